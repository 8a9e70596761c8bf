package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/forPelevin/comcrop/internal/checkpoint"
	"github.com/forPelevin/comcrop/internal/domain/cutpoints"
	"github.com/forPelevin/comcrop/internal/domain/segments"
	"github.com/forPelevin/comcrop/internal/gate"
	"github.com/forPelevin/comcrop/internal/types"
	"github.com/forPelevin/comcrop/internal/workspace"
)

type extractCall struct {
	start    float64
	duration float64
	out      string
}

type fakeVideo struct {
	extracts    []extractCall
	concats     [][]string
	failExtract string
	noOutput    bool
}

func (f *fakeVideo) ExtractSegment(_ context.Context, _ string, start, duration float64, out string) error {
	f.extracts = append(f.extracts, extractCall{start: start, duration: duration, out: filepath.Base(out)})
	if filepath.Base(out) == f.failExtract {
		return &types.ToolError{Tool: "ffmpeg", Step: "extract segment", ExitCode: 1}
	}
	return os.WriteFile(out, []byte("segment"), 0o644)
}

func (f *fakeVideo) Concat(_ context.Context, _ types.ConcatMode, parts []string, _, out string) error {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = filepath.Base(p)
	}
	f.concats = append(f.concats, names)
	if f.noOutput {
		return nil
	}
	return os.WriteFile(out, []byte("joined"), 0o644)
}

type fakeDetector struct {
	edl   string
	calls int
}

func (f *fakeDetector) Detect(_ context.Context, input string) error {
	f.calls++
	if f.edl == "" {
		return nil
	}
	return os.WriteFile(strings.TrimSuffix(input, filepath.Ext(input))+".edl", []byte(f.edl), 0o644)
}

type fakeNotifier struct {
	messages []string
	beeps    []int
}

func (f *fakeNotifier) Announce(msg string) { f.messages = append(f.messages, msg) }
func (f *fakeNotifier) Success(msg string)  { f.messages = append(f.messages, msg) }
func (f *fakeNotifier) Failure(msg string)  { f.messages = append(f.messages, msg) }
func (f *fakeNotifier) Beep(times int)      { f.beeps = append(f.beeps, times) }

// confirmingGate behaves like an operator who deletes the hold file at once.
type confirmingGate struct{ calls int }

func (g *confirmingGate) Hold(_ context.Context, holdPath string) error {
	g.calls++
	if err := os.Remove(holdPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type harness struct {
	job      workspace.Job
	video    *fakeVideo
	detector *fakeDetector
	notify   *fakeNotifier
	gate     *confirmingGate
	uc       Usecase
}

func newHarness(t *testing.T, inputName string) *harness {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, inputName)
	writeFile(t, input, "recording")
	job, err := workspace.NewJob(input, "mp4")
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		job:      job,
		video:    &fakeVideo{},
		detector: &fakeDetector{},
		notify:   &fakeNotifier{},
		gate:     &confirmingGate{},
	}
	h.uc = h.build(h.gate)
	return h
}

func (h *harness) build(g Gate) Usecase {
	return New(Deps{
		Detector: h.detector,
		Video:    h.video,
		Notify:   h.notify,
		Gate:     g,
		Log:      zerolog.Nop(),
		InUse:    func(string) bool { return false },
	})
}

// seed writes the cut-point file and, for every listed index, a segment file
// and its marker.
func (h *harness) seed(t *testing.T, edl string, indices ...int) {
	t.Helper()
	writeFile(t, h.job.CutPointFile(), edl)
	for _, i := range indices {
		writeFile(t, h.job.SegmentFile(i), "segment")
		writeFile(t, h.job.SegmentMarker(i), "")
	}
}

func TestRun_FreshJobCreatesOutputAndCleansUp(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.detector.edl = "10.00\t12.00\t0\n20.00\t20.00\t0\n"

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != types.OutcomeCreated {
		t.Fatalf("outcome = %s", outcome)
	}
	want := []extractCall{
		{start: 0, duration: 10, out: "rec.part-01.ts"},
		{start: 12, duration: 8, out: "rec.part-02.ts"},
		{start: 20, duration: types.ToEnd, out: "rec.part-03.ts"},
	}
	if len(h.video.extracts) != len(want) {
		t.Fatalf("extracts = %+v", h.video.extracts)
	}
	for i := range want {
		if h.video.extracts[i] != want[i] {
			t.Fatalf("extract %d = %+v, want %+v", i, h.video.extracts[i], want[i])
		}
	}
	if h.gate.calls != 1 {
		t.Fatalf("expected confirmation gate once, got %d", h.gate.calls)
	}
	if len(h.video.concats) != 1 || strings.Join(h.video.concats[0], ",") != "rec.part-01.ts,rec.part-02.ts,rec.part-03.ts" {
		t.Fatalf("unexpected concat calls %v", h.video.concats)
	}
	if got := dirNames(t, h.job.Dir); strings.Join(got, ",") != "rec.mp4,rec.ts" {
		t.Fatalf("expected only input and output after cleanup, got %v", got)
	}
	if len(h.notify.beeps) != 2 || h.notify.beeps[0] != 3 || h.notify.beeps[1] != 1 {
		t.Fatalf("unexpected beeps %v", h.notify.beeps)
	}
}

func TestExtractSegments_AllMarkedDoesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n20 25 0\n", 1, 2, 3)
	cps, err := cutpoints.ParseFile(h.job.CutPointFile())
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := h.uc.extractSegments(context.Background(), h.job, checkpoint.New(), h.job.Attach(segments.Plan(cps, false)), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != types.OutcomeAlreadyExisted {
		t.Fatalf("outcome = %s, want already-existed", outcome)
	}
	if len(h.video.extracts) != 0 || h.detector.calls != 0 {
		t.Fatalf("expected zero tool invocations, got %d extracts %d detects", len(h.video.extracts), h.detector.calls)
	}
}

func TestRun_AllMarkedGoesStraightToAssembly(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n20 25 0\n", 1, 2, 3)

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if err != nil || outcome != types.OutcomeCreated {
		t.Fatalf("run: %s %v", outcome, err)
	}
	if len(h.video.extracts) != 0 || h.detector.calls != 0 {
		t.Fatalf("no extraction or detection expected")
	}
	if h.gate.calls != 0 {
		t.Fatalf("gate must be skipped without new segments or hold file")
	}
	if len(h.video.concats) != 1 {
		t.Fatalf("expected one assembly, got %d", len(h.video.concats))
	}
}

func TestRun_OutputExistsIsAlreadyExisted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	writeFile(t, h.job.OutputFile(), "done")

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if err != nil || outcome != types.OutcomeAlreadyExisted {
		t.Fatalf("run: %s %v", outcome, err)
	}
	if h.detector.calls != 0 || len(h.video.extracts) != 0 || len(h.video.concats) != 0 {
		t.Fatalf("expected zero tool invocations")
	}
}

func TestRun_InterruptedAssemblyIsRedone(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n", 1, 2)
	writeFile(t, h.job.OutputFile(), "trunc")
	writeFile(t, h.job.InProgressFile(), "")

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if err != nil || outcome != types.OutcomeCreated {
		t.Fatalf("run: %s %v", outcome, err)
	}
	if len(h.video.concats) != 1 || len(h.video.extracts) != 0 {
		t.Fatalf("expected reassembly only, got %d concats %d extracts", len(h.video.concats), len(h.video.extracts))
	}
	if _, err := os.Stat(h.job.InProgressFile()); !os.IsNotExist(err) {
		t.Fatalf("in-progress marker must be removed")
	}
}

func TestRun_MissingMarkerReextractsOnlyThatSegment(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n20 25 0\n", 1, 2, 3)
	if err := os.Remove(h.job.SegmentMarker(2)); err != nil {
		t.Fatal(err)
	}

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if err != nil || outcome != types.OutcomeCreated {
		t.Fatalf("run: %s %v", outcome, err)
	}
	if len(h.video.extracts) != 1 || h.video.extracts[0].out != "rec.part-02.ts" {
		t.Fatalf("expected only segment 2 re-extracted, got %+v", h.video.extracts)
	}
	if h.video.extracts[0].start != 12 || h.video.extracts[0].duration != 8 {
		t.Fatalf("unexpected span %+v", h.video.extracts[0])
	}
}

func TestRun_MarkerWithoutFileIsReextracted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n20 25 0\n", 1)
	writeFile(t, h.job.SegmentMarker(2), "")

	if _, err := h.uc.Run(context.Background(), h.job, Options{}); err != nil {
		t.Fatal(err)
	}
	var extracted []string
	for _, c := range h.video.extracts {
		extracted = append(extracted, c.out)
	}
	if strings.Join(extracted, ",") != "rec.part-02.ts,rec.part-03.ts" {
		t.Fatalf("expected segments 2 and 3 extracted, got %v", extracted)
	}
}

func TestRun_DeletedSegmentStaysDeletedWhileHoldPending(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n20 25 0\n", 1, 3)
	writeFile(t, h.job.HoldFile(), "")
	// The operator removed segment 1 and a crash lost marker 3.
	if err := os.Remove(h.job.SegmentFile(1)); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(h.job.SegmentMarker(3)); err != nil {
		t.Fatal(err)
	}

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if err != nil || outcome != types.OutcomeCreated {
		t.Fatalf("run: %s %v", outcome, err)
	}
	var extracted []string
	for _, c := range h.video.extracts {
		extracted = append(extracted, c.out)
	}
	if strings.Join(extracted, ",") != "rec.part-02.ts,rec.part-03.ts" {
		t.Fatalf("unexpected extractions %v", extracted)
	}
	if strings.Join(h.video.concats[0], ",") != "rec.part-02.ts,rec.part-03.ts" {
		t.Fatalf("deleted segment must not be assembled: %v", h.video.concats[0])
	}
}

func TestRun_MalformedCutPointsFailBeforeExtraction(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n20 25\n")

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if outcome != types.OutcomeFailed {
		t.Fatalf("outcome = %s", outcome)
	}
	var pe *cutpoints.ParseError
	if !errors.As(err, &pe) || pe.Line != 2 {
		t.Fatalf("expected ParseError on line 2, got %v", err)
	}
	if len(h.video.extracts) != 0 {
		t.Fatalf("no extraction may happen before the file parsed")
	}
}

func TestRun_BatchModeStopsAtHoldFile(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.detector.edl = "10 12 0\n"
	uc := h.build(gate.Gate{Batch: true})

	outcome, err := uc.Run(context.Background(), h.job, Options{})
	if err != nil || outcome != types.OutcomeAwaitingConfirmation {
		t.Fatalf("first run: %s %v", outcome, err)
	}
	if len(h.video.concats) != 0 {
		t.Fatalf("no assembly while the hold file exists")
	}
	if _, err := os.Stat(h.job.HoldFile()); err != nil {
		t.Fatalf("hold file expected: %v", err)
	}

	outcome, err = uc.Run(context.Background(), h.job, Options{})
	if err != nil || outcome != types.OutcomeAwaitingConfirmation {
		t.Fatalf("second run: %s %v", outcome, err)
	}
	if len(h.video.extracts) != 2 || len(h.video.concats) != 0 {
		t.Fatalf("second run must not touch tools: %d extracts %d concats", len(h.video.extracts), len(h.video.concats))
	}

	if err := os.Remove(h.job.HoldFile()); err != nil {
		t.Fatal(err)
	}
	outcome, err = uc.Run(context.Background(), h.job, Options{})
	if err != nil || outcome != types.OutcomeCreated {
		t.Fatalf("third run: %s %v", outcome, err)
	}
	if len(h.video.extracts) != 2 || len(h.video.concats) != 1 {
		t.Fatalf("third run should only assemble: %d extracts %d concats", len(h.video.extracts), len(h.video.concats))
	}
}

func TestRun_SkipConfirmation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.detector.edl = "10 12 0\n"

	outcome, err := h.uc.Run(context.Background(), h.job, Options{SkipConfirmation: true})
	if err != nil || outcome != types.OutcomeCreated {
		t.Fatalf("run: %s %v", outcome, err)
	}
	if h.gate.calls != 0 {
		t.Fatalf("gate must not be consulted")
	}
}

func TestRun_VerificationFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n", 1, 2)
	h.video.noOutput = true

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if outcome != types.OutcomeFailed {
		t.Fatalf("outcome = %s", outcome)
	}
	var ve *types.VerificationError
	if !errors.As(err, &ve) || ve.Path != h.job.OutputFile() {
		t.Fatalf("expected VerificationError for output, got %v", err)
	}
	for _, f := range []string{h.job.SegmentFile(1), h.job.SegmentMarker(2), h.job.CutPointFile(), h.job.InProgressFile()} {
		if _, err := os.Stat(f); err != nil {
			t.Fatalf("%s must survive a failed assembly: %v", f, err)
		}
	}
}

func TestRun_ExtractionFailureAbortsJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n20 25 0\n")
	h.video.failExtract = "rec.part-02.ts"

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if outcome != types.OutcomeFailed {
		t.Fatalf("outcome = %s", outcome)
	}
	var te *types.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if len(h.video.extracts) != 2 {
		t.Fatalf("extraction must stop at the failing segment, got %+v", h.video.extracts)
	}
	if _, err := os.Stat(h.job.SegmentMarker(1)); err != nil {
		t.Fatalf("marker 1 expected: %v", err)
	}
	if _, err := os.Stat(h.job.SegmentMarker(2)); !os.IsNotExist(err) {
		t.Fatalf("failed segment must not be marked")
	}
}

func TestRun_DetectorWithoutCutPointsFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")

	outcome, err := h.uc.Run(context.Background(), h.job, Options{})
	if outcome != types.OutcomeFailed {
		t.Fatalf("outcome = %s", outcome)
	}
	var te *types.ToolError
	if !errors.As(err, &te) || te.Step != "detect" {
		t.Fatalf("expected detect ToolError, got %v", err)
	}
	if h.detector.calls != 1 || len(h.video.extracts) != 0 {
		t.Fatalf("unexpected tool calls")
	}
}

func TestRun_FreshDetectionPurgesStaleSegments(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	writeFile(t, h.job.SegmentFile(5), "stale")
	writeFile(t, h.job.SegmentMarker(1), "")
	writeFile(t, h.job.HoldFile(), "")
	h.detector.edl = "10 12 0\n"

	outcome, err := h.uc.Run(context.Background(), h.job, Options{SkipConfirmation: true})
	if err != nil || outcome != types.OutcomeCreated {
		t.Fatalf("run: %s %v", outcome, err)
	}
	if len(h.video.extracts) != 2 {
		t.Fatalf("stale marker must not skip extraction: %+v", h.video.extracts)
	}
	if strings.Join(h.video.concats[0], ",") != "rec.part-01.ts,rec.part-02.ts" {
		t.Fatalf("stale segment assembled: %v", h.video.concats[0])
	}
}

func TestRun_IncludeDiscardedSegments(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n")

	if _, err := h.uc.Run(context.Background(), h.job, Options{IncludeDiscarded: true}); err != nil {
		t.Fatal(err)
	}
	want := []extractCall{
		{start: 0, duration: 10, out: "rec.part-01.ts"},
		{start: 10, duration: 2, out: "rec.part-02.ts"},
		{start: 12, duration: types.ToEnd, out: "rec.part-03.ts"},
	}
	if len(h.video.extracts) != len(want) {
		t.Fatalf("extracts = %+v", h.video.extracts)
	}
	for i := range want {
		if h.video.extracts[i] != want[i] {
			t.Fatalf("extract %d = %+v, want %+v", i, h.video.extracts[i], want[i])
		}
	}
}

func TestRun_NotRelevantInputs(t *testing.T) {
	t.Parallel()

	t.Run("segment file", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "rec.part-01.ts")
		outcome, err := h.uc.Run(context.Background(), h.job, Options{})
		if err != nil || outcome != types.OutcomeNotRelevantSkip {
			t.Fatalf("run: %s %v", outcome, err)
		}
		if h.detector.calls != 0 || len(h.notify.messages) != 0 {
			t.Fatalf("skipped job must have no side effects")
		}
	})

	t.Run("in use", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "rec.ts")
		uc := New(Deps{
			Detector: h.detector, Video: h.video, Notify: h.notify, Gate: h.gate, Log: zerolog.Nop(),
			InUse: func(string) bool { return true },
		})
		outcome, err := uc.Run(context.Background(), h.job, Options{})
		if err != nil || outcome != types.OutcomeNotRelevantSkip {
			t.Fatalf("run: %s %v", outcome, err)
		}
		if got := dirNames(t, h.job.Dir); strings.Join(got, ",") != "rec.ts" {
			t.Fatalf("skipped job must not create files: %v", got)
		}
	})

	t.Run("in use and still empty", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "rec.ts")
		writeFile(t, h.job.Input, "")
		uc := New(Deps{
			Detector: h.detector, Video: h.video, Notify: h.notify, Gate: h.gate, Log: zerolog.Nop(),
			InUse: func(string) bool { return true },
		})
		outcome, err := uc.Run(context.Background(), h.job, Options{})
		if err != nil || outcome != types.OutcomeNotRelevantSkip {
			t.Fatalf("a capture that just started must be skipped, got %s %v", outcome, err)
		}
	})
}

func TestRun_SkipConfirmationLeavesCommercialsOut(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "100 160 0\n")

	outcome, err := h.uc.Run(context.Background(), h.job, Options{IncludeDiscarded: true, SkipConfirmation: true})
	if err != nil || outcome != types.OutcomeCreated {
		t.Fatalf("run: %s %v", outcome, err)
	}
	want := []extractCall{
		{start: 0, duration: 100, out: "rec.part-01.ts"},
		{start: 160, duration: types.ToEnd, out: "rec.part-02.ts"},
	}
	if len(h.video.extracts) != len(want) {
		t.Fatalf("extracts = %+v, want %+v", h.video.extracts, want)
	}
	for i := range want {
		if h.video.extracts[i] != want[i] {
			t.Fatalf("extract %d = %+v, want %+v", i, h.video.extracts[i], want[i])
		}
	}
	if len(h.video.concats) != 1 || strings.Join(h.video.concats[0], ",") != "rec.part-01.ts,rec.part-02.ts" {
		t.Fatalf("concats = %v", h.video.concats)
	}
}

func TestRun_CancelledBeforeExtraction(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "rec.ts")
	h.seed(t, "10 12 0\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := h.uc.Run(ctx, h.job, Options{})
	if outcome != types.OutcomeFailed || !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %s %v", outcome, err)
	}
	if len(h.video.extracts) != 0 {
		t.Fatalf("no extraction after cancellation")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
