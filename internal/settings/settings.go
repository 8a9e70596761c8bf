// Package settings reads the key=value settings file.
//
// Lines starting with '#', ';' or '//' are comments. Keys are matched without
// regard to case; unknown keys and lines without '=' are logged and ignored.
// A missing file is generated with every key at its default value.
package settings

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	EnvPath  = "COMCROP_SETTINGS"
	FileName = "comcrop.settings"
)

type Settings struct {
	PathFfmpegExe                string
	PathComskipExe               string
	PathComskipIni               string
	ExtensionDestination         string
	LockFile                     string
	CreateChaptersForCommercials bool
	SkipConfirmation             bool
	ConfirmPollSeconds           int
	ConcatVideoCodec             string
	ConcatAudioCodec             string
	ConcatAudioBitrate           string
	Niceness                     int
}

func Defaults() Settings {
	return Settings{
		PathFfmpegExe:                "ffmpeg",
		PathComskipExe:               "comskip",
		ExtensionDestination:         "mp4",
		LockFile:                     "comcrop.lock",
		CreateChaptersForCommercials: true,
		ConfirmPollSeconds:           5,
		ConcatVideoCodec:             "libx264",
		ConcatAudioCodec:             "libmp3lame",
		ConcatAudioBitrate:           "128k",
		Niceness:                     19,
	}
}

type field struct {
	name    string
	comment string
	get     func(*Settings) string
	set     func(*Settings, string) error
}

func stringField(name, comment string, p func(*Settings) *string) field {
	return field{
		name:    name,
		comment: comment,
		get:     func(s *Settings) string { return *p(s) },
		set:     func(s *Settings, v string) error { *p(s) = v; return nil },
	}
}

func boolField(name, comment string, p func(*Settings) *bool) field {
	return field{
		name:    name,
		comment: comment,
		get:     func(s *Settings) string { return strconv.FormatBool(*p(s)) },
		set: func(s *Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("not a boolean: %q", v)
			}
			*p(s) = b
			return nil
		},
	}
}

func intField(name, comment string, p func(*Settings) *int) field {
	return field{
		name:    name,
		comment: comment,
		get:     func(s *Settings) string { return strconv.Itoa(*p(s)) },
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			*p(s) = n
			return nil
		},
	}
}

var fields = []field{
	stringField("PathFfmpegExe", "Path to the ffmpeg executable, or a name looked up in PATH",
		func(s *Settings) *string { return &s.PathFfmpegExe }),
	stringField("PathComskipExe", "Path to the comskip executable, or a name looked up in PATH",
		func(s *Settings) *string { return &s.PathComskipExe }),
	stringField("PathComskipIni", "comskip settings file. Must produce a 3-column EDL file: output_edl=1 but no edl_skip_field=3. Empty uses comskip's own default",
		func(s *Settings) *string { return &s.PathComskipIni }),
	stringField("ExtensionDestination", "Container extension of the output file",
		func(s *Settings) *string { return &s.ExtensionDestination }),
	stringField("LockFile", "Leave empty to allow parallel instances. A relative path is placed next to the executable; use an absolute path to allow only one instance system-wide",
		func(s *Settings) *string { return &s.LockFile }),
	boolField("CreateChaptersForCommercials", "Also extract the commercial blocks as part files to delete before confirming (off when SkipConfirmation is set)",
		func(s *Settings) *bool { return &s.CreateChaptersForCommercials }),
	boolField("SkipConfirmation", "Assemble right after extraction without waiting for the hold file to be deleted",
		func(s *Settings) *bool { return &s.SkipConfirmation }),
	intField("ConfirmPollSeconds", "Seconds between checks for the deleted hold file",
		func(s *Settings) *int { return &s.ConfirmPollSeconds }),
	stringField("ConcatVideoCodec", "Video codec when joining .ts part files",
		func(s *Settings) *string { return &s.ConcatVideoCodec }),
	stringField("ConcatAudioCodec", "Audio codec when joining .ts part files",
		func(s *Settings) *string { return &s.ConcatAudioCodec }),
	stringField("ConcatAudioBitrate", "Audio bitrate when joining .ts part files. Empty leaves the encoder default",
		func(s *Settings) *string { return &s.ConcatAudioBitrate }),
	intField("Niceness", "Nice value of ffmpeg and comskip (0 keeps the current priority, 19 is lowest)",
		func(s *Settings) *int { return &s.Niceness }),
}

func lookup(name string) (field, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.name, name) {
			return f, true
		}
	}
	return field{}, false
}

// DefaultPath is $COMCROP_SETTINGS, else comcrop.settings in the user config
// directory, else next to the executable.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "comcrop", FileName)
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), FileName)
	}
	return FileName
}

// Load reads path, generating it first when it does not exist. created
// reports whether the file was generated.
func Load(path string, log zerolog.Logger) (s Settings, created bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path, false); err != nil {
			return Settings{}, false, err
		}
		log.Info().Str("path", path).Msg("generated default settings file")
		return Defaults(), true, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()

	s, err = Read(f, log)
	if err != nil {
		return Settings{}, false, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, false, nil
}

// Read parses settings on top of Defaults.
func Read(r io.Reader, log zerolog.Logger) (Settings, error) {
	var kept strings.Builder
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		trimmed := strings.TrimSpace(sc.Text())
		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, ";"), strings.HasPrefix(trimmed, "//"):
			continue
		case !strings.Contains(trimmed, "="):
			log.Warn().Int("line", line).Str("text", trimmed).Msg("ignoring settings line without '='")
			continue
		}
		kept.WriteString(trimmed)
		kept.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	values, err := godotenv.Parse(strings.NewReader(kept.String()))
	if err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}

	s := Defaults()
	for name, value := range values {
		f, ok := lookup(name)
		if !ok {
			log.Warn().Str("key", name).Msg("ignoring unknown setting")
			continue
		}
		if err := f.set(&s, strings.TrimSpace(value)); err != nil {
			return Settings{}, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return s, nil
}

// WriteDefault writes a commented settings file with default values. An
// existing file is only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := Write(f, Defaults()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func Write(w io.Writer, s Settings) error {
	bw := bufio.NewWriter(w)
	for i, f := range fields {
		if i > 0 {
			bw.WriteByte('\n')
		}
		v, err := quote(f.get(&s))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		fmt.Fprintf(bw, "# %s\n%s=%s\n", f.comment, f.name, v)
	}
	return bw.Flush()
}

// quote single-quotes values the parser would otherwise change: it splits at
// '#', trims blanks and expands $VAR outside single quotes. Single quotes
// cannot be escaped inside single quotes, so such values are rejected.
func quote(v string) (string, error) {
	if strings.ContainsRune(v, '\'') {
		return "", fmt.Errorf("value %q must not contain a single quote", v)
	}
	if v == "" || !strings.ContainsAny(v, " \t#\"$\\") {
		return v, nil
	}
	return "'" + v + "'", nil
}

// CommercialParts reports whether commercial blocks get their own part files.
// Without a confirmation step nobody deletes them, so they are left out.
func (s Settings) CommercialParts() bool {
	return s.CreateChaptersForCommercials && !s.SkipConfirmation
}

type Entry struct {
	Name    string
	Value   string
	Comment string
}

func (s Settings) Entries() []Entry {
	out := make([]Entry, len(fields))
	for i, f := range fields {
		out[i] = Entry{Name: f.name, Value: f.get(&s), Comment: f.comment}
	}
	return out
}

func (s Settings) Validate() error {
	if err := requireExecutable("PathFfmpegExe", s.PathFfmpegExe); err != nil {
		return err
	}
	if err := requireExecutable("PathComskipExe", s.PathComskipExe); err != nil {
		return err
	}
	if s.PathComskipIni != "" {
		if _, err := os.Stat(s.PathComskipIni); err != nil {
			return fmt.Errorf("PathComskipIni: %w", err)
		}
	}
	return s.validateValues()
}

// validateValues checks everything that does not depend on the host.
func (s Settings) validateValues() error {
	if strings.TrimPrefix(strings.TrimSpace(s.ExtensionDestination), ".") == "" {
		return errors.New("ExtensionDestination must not be empty")
	}
	if s.ConfirmPollSeconds <= 0 {
		return fmt.Errorf("ConfirmPollSeconds must be > 0, got %d", s.ConfirmPollSeconds)
	}
	if s.Niceness < 0 || s.Niceness > 19 {
		return fmt.Errorf("Niceness must be within 0..19, got %d", s.Niceness)
	}
	if s.ConcatVideoCodec == "" || s.ConcatAudioCodec == "" {
		return errors.New("ConcatVideoCodec and ConcatAudioCodec must not be empty")
	}
	return nil
}

func requireExecutable(key, path string) error {
	if path == "" {
		return fmt.Errorf("%s is empty", key)
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
