// Package workspace derives every file name a job reads or writes. All files
// live next to the input and are named from its base name.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/forPelevin/comcrop/internal/types"
)

// SameExtSuffix is appended to the output name when the input already has the
// destination extension.
const SameExtSuffix = "_comcrop"

var reSegmentBase = regexp.MustCompile(`\.part-\d+$`)

type Job struct {
	Input      string
	Dir        string
	Base       string
	InputExt   string
	SegmentExt string
	DestExt    string
}

func NewJob(input, destExt string) (Job, error) {
	if strings.TrimSpace(input) == "" {
		return Job{}, errors.New("input is empty")
	}
	destExt = strings.TrimPrefix(strings.TrimSpace(destExt), ".")
	if destExt == "" {
		return Job{}, errors.New("destination extension is empty")
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return Job{}, err
	}
	ext := filepath.Ext(abs)
	segExt := ".ts"
	if strings.EqualFold(ext, ".mp4") {
		segExt = ".mp4"
	}
	return Job{
		Input:      abs,
		Dir:        filepath.Dir(abs),
		Base:       strings.TrimSuffix(filepath.Base(abs), ext),
		InputExt:   ext,
		SegmentExt: segExt,
		DestExt:    destExt,
	}, nil
}

func (j Job) path(name string) string { return filepath.Join(j.Dir, name) }

func (j Job) CutPointFile() string { return j.path(j.Base + ".edl") }

func (j Job) SegmentFile(index int) string {
	return j.path(fmt.Sprintf("%s.part-%02d%s", j.Base, index, j.SegmentExt))
}

func (j Job) SegmentMarker(index int) string {
	return j.path(fmt.Sprintf("%s.created-%d-lock", j.Base, index))
}

func (j Job) HoldFile() string { return j.path(j.Base + ".part-select.delete-to-continue") }

func (j Job) OutputFile() string {
	suffix := ""
	if strings.EqualFold(j.InputExt, "."+j.DestExt) {
		suffix = SameExtSuffix
	}
	return j.path(j.Base + suffix + "." + j.DestExt)
}

func (j Job) InProgressFile() string { return j.OutputFile() + ".creating-in-progress" }

func (j Job) ListFile() string { return j.OutputFile() + ".list" }

// AuxFiles are side products of the detector.
func (j Job) AuxFiles() []string {
	return []string{
		j.path(j.Base + ".logo.txt"),
		j.path(j.Base + ".txt"),
		j.path(j.Base + ".log"),
	}
}

func (j Job) ConcatMode() types.ConcatMode {
	if j.SegmentExt == ".mp4" {
		return types.ConcatList
	}
	return types.ConcatProtocol
}

// SegmentPattern is the shell-style pattern shown to the operator.
func (j Job) SegmentPattern() string { return j.Base + ".part-*" + j.SegmentExt }

// IsSegmentFile reports whether the input is itself one of our segment files.
func (j Job) IsSegmentFile() bool { return reSegmentBase.MatchString(j.Base) }

// Attach fills in the output and marker paths of planned segments.
func (j Job) Attach(segs []types.Segment) []types.Segment {
	out := make([]types.Segment, len(segs))
	for i, s := range segs {
		s.Path = j.SegmentFile(s.Index)
		s.Marker = j.SegmentMarker(s.Index)
		out[i] = s
	}
	return out
}

type indexedFile struct {
	index int
	path  string
}

// SegmentFiles lists the segment files currently on disk in index order.
func (j Job) SegmentFiles() ([]string, error) {
	prefix := j.Base + ".part-"
	files, err := j.scan(func(name string) (int, bool) {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, j.SegmentExt) {
			return 0, false
		}
		return parseIndex(strings.TrimSuffix(strings.TrimPrefix(name, prefix), j.SegmentExt))
	})
	if err != nil {
		return nil, err
	}
	return paths(files), nil
}

func (j Job) SegmentMarkers() ([]string, error) {
	prefix := j.Base + ".created-"
	files, err := j.scan(func(name string) (int, bool) {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "-lock") {
			return 0, false
		}
		return parseIndex(strings.TrimSuffix(strings.TrimPrefix(name, prefix), "-lock"))
	})
	if err != nil {
		return nil, err
	}
	return paths(files), nil
}

// PurgeSegments removes segment files, their markers and the hold file left
// over from an earlier run.
func (j Job) PurgeSegments() error {
	files, err := j.SegmentFiles()
	if err != nil {
		return err
	}
	markers, err := j.SegmentMarkers()
	if err != nil {
		return err
	}
	files = append(files, markers...)
	files = append(files, j.HoldFile())
	return removeAll(files)
}

// Cleanup removes everything but the input and the final output.
func (j Job) Cleanup() error {
	if err := j.PurgeSegments(); err != nil {
		return err
	}
	files := append([]string{j.CutPointFile(), j.ListFile()}, j.AuxFiles()...)
	files = append(files, j.InProgressFile())
	return removeAll(files)
}

func (j Job) scan(match func(name string) (int, bool)) ([]indexedFile, error) {
	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		return nil, fmt.Errorf("read job directory %s: %w", j.Dir, err)
	}
	var out []indexedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if idx, ok := match(e.Name()); ok {
			out = append(out, indexedFile{index: idx, path: j.path(e.Name())})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].index < out[b].index })
	return out, nil
}

func parseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func paths(files []indexedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out
}

func removeAll(files []string) error {
	var errs []error
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", f, err))
		}
	}
	return errors.Join(errs...)
}
