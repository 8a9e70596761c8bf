package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/forPelevin/comcrop/internal/checkpoint"
	"github.com/forPelevin/comcrop/internal/domain/cutpoints"
	"github.com/forPelevin/comcrop/internal/domain/segments"
	"github.com/forPelevin/comcrop/internal/gate"
	"github.com/forPelevin/comcrop/internal/ports"
	"github.com/forPelevin/comcrop/internal/types"
	"github.com/forPelevin/comcrop/internal/workspace"
)

// Gate blocks until the operator confirmed the segment selection.
type Gate interface {
	Hold(ctx context.Context, holdPath string) error
}

type Deps struct {
	Detector ports.Detector
	Video    ports.VideoTool
	Notify   ports.Notifier
	Gate     Gate
	Log      zerolog.Logger

	// InUse reports whether another process is still writing the input.
	// Nil means workspace.InUse.
	InUse func(path string) bool
}

type Options struct {
	// IncludeDiscarded also extracts the commercial spans so the operator can
	// review them before assembly.
	IncludeDiscarded bool
	SkipConfirmation bool
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.InUse == nil {
		d.InUse = workspace.InUse
	}
	return Usecase{d: d}
}

// Run drives one job from cut-point detection to the cleaned-up output. The
// error is non-nil exactly when the outcome is types.OutcomeFailed.
func (u Usecase) Run(ctx context.Context, job workspace.Job, opts Options) (types.Outcome, error) {
	out := job.OutputFile()
	outcome, err := u.run(ctx, job, opts)
	switch outcome {
	case types.OutcomeFailed:
		u.d.Log.Error().Err(err).Str("output", out).Msg("job failed")
		u.d.Notify.Failure(fmt.Sprintf("Creating %s failed", out))
	case types.OutcomeCreated:
		u.d.Notify.Success(fmt.Sprintf("Successfully created %s", out))
		u.d.Notify.Beep(1)
	case types.OutcomeAlreadyExisted:
		u.d.Notify.Announce(fmt.Sprintf("Already existed %s", out))
	}
	return outcome, err
}

func (u Usecase) run(ctx context.Context, job workspace.Job, opts Options) (types.Outcome, error) {
	log := u.d.Log

	if job.IsSegmentFile() {
		log.Debug().Msg("input is a segment file, skipping")
		return types.OutcomeNotRelevantSkip, nil
	}
	// A capture that just started can be locked and still empty.
	if u.d.InUse(job.Input) {
		log.Debug().Msg("input is in use by another process, skipping")
		return types.OutcomeNotRelevantSkip, nil
	}
	if !checkpoint.FileReady(job.Input) {
		return types.OutcomeFailed, fmt.Errorf("input %s is missing or empty", job.Input)
	}
	if opts.IncludeDiscarded && opts.SkipConfirmation {
		// Nobody gets to delete commercial parts, so they would end up in the output.
		log.Info().Msg("confirmation skipped, not creating parts for commercials")
		opts.IncludeDiscarded = false
	}

	u.d.Notify.Announce(fmt.Sprintf("Cropping commercials from %s", job.Input))
	if checkpoint.Exists(job.OutputFile()) && !checkpoint.Exists(job.InProgressFile()) {
		log.Info().Str("output", job.OutputFile()).Msg("output already exists")
		return types.OutcomeAlreadyExisted, nil
	}

	store := checkpoint.New()
	if err := u.ensureCutPoints(ctx, job, store); err != nil {
		return types.OutcomeFailed, err
	}

	cps, err := cutpoints.ParseFile(job.CutPointFile())
	if err != nil {
		return types.OutcomeFailed, err
	}
	plan := job.Attach(segments.Plan(cps, opts.IncludeDiscarded))

	extracted, err := u.extractSegments(ctx, job, store, plan, opts)
	if err != nil {
		return types.OutcomeFailed, err
	}

	if extracted == types.OutcomeCreated || checkpoint.Exists(job.HoldFile()) {
		if opts.SkipConfirmation {
			log.Info().Msg("confirmation skipped by settings")
		} else {
			if err := u.confirm(ctx, job); err != nil {
				if errors.Is(err, gate.ErrDeferred) {
					log.Info().Str("hold_file", job.HoldFile()).Msg("waiting for confirmation, run again after deleting the hold file")
					return types.OutcomeAwaitingConfirmation, nil
				}
				return types.OutcomeFailed, err
			}
		}
	} else {
		log.Debug().Msg("no new segment and no hold file, assembling")
	}

	if err := u.assemble(ctx, job, store); err != nil {
		return types.OutcomeFailed, err
	}

	if err := job.Cleanup(); err != nil {
		log.Warn().Err(err).Msg("cleanup incomplete")
	}
	return types.OutcomeCreated, nil
}

// ensureCutPoints runs the detector unless a non-empty cut-point file exists.
// A fresh detection invalidates every segment of an earlier run.
func (u Usecase) ensureCutPoints(ctx context.Context, job workspace.Job, store *checkpoint.Store) error {
	edl := job.CutPointFile()
	if checkpoint.FileReady(edl) {
		u.d.Log.Debug().Str("edl", edl).Msg("cut-point file exists")
		return nil
	}

	u.d.Notify.Announce("Scanning video, find commercials...")
	if err := u.d.Detector.Detect(ctx, job.Input); err != nil {
		return err
	}
	if !checkpoint.FileReady(edl) {
		return &types.ToolError{
			Tool:     "comskip",
			Step:     "detect",
			ExitCode: -1,
			Output:   fmt.Sprintf("cut-point file %s missing or empty (is output_edl=1 set in the ini?)", edl),
		}
	}

	if err := job.PurgeSegments(); err != nil {
		return fmt.Errorf("purge stale segments: %w", err)
	}
	store.Forget()
	return nil
}

// extractSegments returns OutcomeCreated when at least one segment was
// extracted in this run and OutcomeAlreadyExisted otherwise.
func (u Usecase) extractSegments(ctx context.Context, job workspace.Job, store *checkpoint.Store, plan []types.Segment, opts Options) (types.Outcome, error) {
	u.d.Notify.Announce("Creating video file for each non-commercial block...")

	records, err := cutpoints.CountRecords(job.CutPointFile())
	if err != nil {
		return types.OutcomeFailed, err
	}
	expected := segments.ExpectedCount(records, opts.IncludeDiscarded)
	if allMarked(job, store, expected) {
		u.d.Notify.Announce("All blocks already exist. Skip.")
		return types.OutcomeAlreadyExisted, nil
	}

	confirmedBefore := checkpoint.Exists(job.HoldFile()) || checkpoint.Exists(job.InProgressFile())
	created := false
	for _, seg := range plan {
		if err := ctx.Err(); err != nil {
			return types.OutcomeFailed, err
		}
		log := u.d.Log.With().Int("segment", seg.Index).Str("kind", string(seg.Kind)).Logger()

		if store.Done(seg.Marker) && (checkpoint.FileReady(seg.Path) || confirmedBefore) {
			log.Debug().Str("path", seg.Path).Msg("segment already extracted")
			continue
		}

		if err := store.Clear(seg.Marker); err != nil {
			return types.OutcomeFailed, err
		}
		log.Info().Float64("start", seg.Start).Float64("duration", seg.Duration).Msg("extracting segment")
		if err := u.d.Video.ExtractSegment(ctx, job.Input, seg.Start, seg.Duration, seg.Path); err != nil {
			return types.OutcomeFailed, err
		}
		if err := store.Commit(seg.Path, seg.Marker); err != nil {
			return types.OutcomeFailed, err
		}
		created = true
	}
	if created {
		return types.OutcomeCreated, nil
	}
	return types.OutcomeAlreadyExisted, nil
}

func allMarked(job workspace.Job, store *checkpoint.Store, expected int) bool {
	for i := 1; i <= expected; i++ {
		if !store.Done(job.SegmentMarker(i)) {
			return false
		}
	}
	return true
}

func (u Usecase) confirm(ctx context.Context, job workspace.Job) error {
	u.d.Notify.Beep(3)
	u.d.Notify.Announce(fmt.Sprintf(
		"Check if all part files are wanted.\nDelete unnecessary %q files,\nthen delete file %s.\nWorking dir: %s",
		job.SegmentPattern(), job.HoldFile(), job.Dir,
	))
	return u.d.Gate.Hold(ctx, job.HoldFile())
}

func (u Usecase) assemble(ctx context.Context, job workspace.Job, store *checkpoint.Store) error {
	u.d.Notify.Announce("Concatenating and compressing chapters to video file without commercials...")
	if err := store.Mark(job.InProgressFile()); err != nil {
		return err
	}
	parts, err := job.SegmentFiles()
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return &types.VerificationError{Path: job.SegmentPattern(), Reason: "no segment files left to assemble"}
	}

	out := job.OutputFile()
	u.d.Log.Info().Int("parts", len(parts)).Str("mode", string(job.ConcatMode())).Str("output", out).Msg("assembling output")
	if err := u.d.Video.Concat(ctx, job.ConcatMode(), parts, job.ListFile(), out); err != nil {
		return err
	}
	if !checkpoint.FileReady(out) {
		return &types.VerificationError{Path: out, Reason: "output missing or empty after assembly"}
	}
	return nil
}
