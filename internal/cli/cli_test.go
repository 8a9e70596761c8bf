package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/forPelevin/comcrop/internal/instancelock"
	"github.com/forPelevin/comcrop/internal/settings"
	"github.com/forPelevin/comcrop/internal/workspace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// testSettings writes a settings file whose tool paths point at scripts that
// do nothing, so Validate passes without ffmpeg or comskip installed.
func testSettings(t *testing.T, dir string, edit func(*settings.Settings)) string {
	t.Helper()
	s := settings.Defaults()
	for _, name := range []string{"ffmpeg", "comskip"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		if name == "ffmpeg" {
			s.PathFfmpegExe = p
		} else {
			s.PathComskipExe = p
		}
	}
	s.LockFile = ""
	s.CreateChaptersForCommercials = false
	if edit != nil {
		edit(&s)
	}
	var b bytes.Buffer
	if err := settings.Write(&b, s); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "comcrop.settings")
	writeFile(t, path, b.String())
	return path
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	root := newRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestExpandInputs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"b.ts", "a.ts", "c.mp4"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	if err := os.Mkdir(filepath.Join(dir, "d.ts"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, missing := expandInputs([]string{
		filepath.Join(dir, "*.ts"),
		filepath.Join(dir, "a.ts"),
		filepath.Join(dir, "c.mp4"),
		filepath.Join(dir, "nope.ts"),
		filepath.Join(dir, "*.mkv"),
		filepath.Join(dir, "d.ts"),
	})

	wantFiles := []string{
		filepath.Join(dir, "a.ts"),
		filepath.Join(dir, "b.ts"),
		filepath.Join(dir, "c.mp4"),
	}
	if !slices.Equal(files, wantFiles) {
		t.Fatalf("files = %v, want %v", files, wantFiles)
	}
	wantMissing := []string{
		filepath.Join(dir, "nope.ts"),
		filepath.Join(dir, "*.mkv"),
		filepath.Join(dir, "d.ts"),
	}
	if !slices.Equal(missing, wantMissing) {
		t.Fatalf("missing = %v, want %v", missing, wantMissing)
	}
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := testSettings(t, dir, nil)
	in := filepath.Join(dir, "rec.ts")
	writeFile(t, in, "video")
	writeFile(t, filepath.Join(dir, "rec.edl"), "10.00\t12.00\t0\n20.00\t20.00\t0\n")

	out, _, err := execute(t, "plan", "--settings", cfg, in)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, want := range []string{"rec.part-01.ts", "rec.part-02.ts", "rec.part-03.ts", "to end", filepath.Join(dir, "rec.mp4")} {
		if !strings.Contains(out, want) {
			t.Fatalf("plan output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "discarded") {
		t.Fatalf("commercials listed without --commercials:\n%s", out)
	}

	out, _, err = execute(t, "plan", "--settings", cfg, "--commercials", in)
	if err != nil {
		t.Fatalf("plan --commercials: %v", err)
	}
	if !strings.Contains(out, "rec.part-02.ts") || !strings.Contains(out, "discarded") {
		t.Fatalf("commercial block not planned:\n%s", out)
	}
}

func TestStage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		st   workspace.State
		want string
	}{
		{"nothing", workspace.State{}, "not started"},
		{"cut points only", workspace.State{CutPointsReady: true, Expected: 2}, "extracting segments"},
		{"all marked", workspace.State{
			CutPointsReady: true,
			Expected:       1,
			Segments:       []workspace.SegmentState{{Index: 1, Marked: true, FileReady: true}},
		}, "segments extracted"},
		{"hold", workspace.State{CutPointsReady: true, HoldPending: true}, "waiting for confirmation"},
		{"assembling", workspace.State{InProgress: true, OutputExists: true}, "assembling"},
		{"done", workspace.State{OutputExists: true}, "done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stage(tt.st); !strings.Contains(got, tt.want) {
				t.Fatalf("stage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := testSettings(t, dir, nil)
	in := filepath.Join(dir, "rec.ts")
	writeFile(t, in, "video")
	writeFile(t, filepath.Join(dir, "rec.edl"), "10.00\t12.00\t0\n")
	writeFile(t, filepath.Join(dir, "rec.created-1-lock"), "")
	writeFile(t, filepath.Join(dir, "rec.part-select.delete-to-continue"), "")

	out, _, err := execute(t, "status", "--settings", cfg, in, filepath.Join(dir, "gone.ts"))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"waiting for confirmation", "1 record(s)", "1/2 marked", "gone.ts: no such file"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_NoMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := testSettings(t, dir, nil)

	_, stderr, err := execute(t, "--settings", cfg, filepath.Join(dir, "*.ts"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stderr, "no file to handle") {
		t.Fatalf("expected a warning, got:\n%s", stderr)
	}

	_, stderr, err = execute(t, "-q", "--settings", cfg, filepath.Join(dir, "*.ts"))
	if err != nil {
		t.Fatalf("quiet run: %v", err)
	}
	if stderr != "" {
		t.Fatalf("quiet run wrote:\n%s", stderr)
	}
}

func TestRun_AnotherInstanceHoldsLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "comcrop.lock")
	cfg := testSettings(t, dir, func(s *settings.Settings) { s.LockFile = lockPath })
	in := filepath.Join(dir, "rec.ts")
	writeFile(t, in, "video")

	lock, err := instancelock.Acquire(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	_, stderr, err := execute(t, "--settings", cfg, in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stderr, "another instance is running") {
		t.Fatalf("expected lock warning, got:\n%s", stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "rec.edl")); !os.IsNotExist(err) {
		t.Fatalf("input was processed while locked: %v", err)
	}
}

func TestRun_InvalidSettings(t *testing.T) {
	dir := t.TempDir()
	cfg := testSettings(t, dir, func(s *settings.Settings) { s.Niceness = 25 })
	in := filepath.Join(dir, "rec.ts")
	writeFile(t, in, "video")

	_, _, err := execute(t, "--settings", cfg, in)
	if err == nil || !strings.Contains(err.Error(), "Niceness") || !strings.Contains(err.Error(), cfg) {
		t.Fatalf("err = %v", err)
	}
}

func TestSettingsShowAndInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "comcrop.settings")

	out, _, err := execute(t, "settings", "init", "--settings", path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Wrote "+path) {
		t.Fatalf("init output:\n%s", out)
	}

	out, _, err = execute(t, "settings", "show", "--settings", path)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, e := range settings.Defaults().Entries() {
		if !strings.Contains(out, e.Name) {
			t.Fatalf("show output missing %s:\n%s", e.Name, out)
		}
	}
}

func TestDoctor(t *testing.T) {
	dir := t.TempDir()
	cfg := testSettings(t, dir, nil)

	out, _, err := execute(t, "doctor", "--settings", cfg)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	if !strings.Contains(out, "All dependencies found.") {
		t.Fatalf("doctor output:\n%s", out)
	}

	cfg = testSettings(t, dir, func(s *settings.Settings) { s.PathComskipIni = filepath.Join(dir, "missing.ini") })
	out, _, err = execute(t, "doctor", "--settings", cfg)
	if err == nil || !strings.Contains(err.Error(), "1 check(s) failed") {
		t.Fatalf("err = %v\n%s", err, out)
	}
	if !strings.Contains(out, "comskip ini") {
		t.Fatalf("doctor output:\n%s", out)
	}
}
