package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/comcrop/internal/gate"
	"github.com/forPelevin/comcrop/internal/ports"
	"github.com/forPelevin/comcrop/internal/ports/adapters/comskip"
	"github.com/forPelevin/comcrop/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/comcrop/internal/ports/adapters/terminal"
	"github.com/forPelevin/comcrop/internal/procrun"
	"github.com/forPelevin/comcrop/internal/settings"
	"github.com/forPelevin/comcrop/internal/types"
	"github.com/forPelevin/comcrop/internal/usecase"
	"github.com/forPelevin/comcrop/internal/workspace"
)

type Config struct {
	Input    string
	Settings settings.Settings
	// Batch leaves the hold file in place instead of waiting for the operator.
	Batch bool

	Log zerolog.Logger
	// Out receives operator banners, Bell the terminal bell. Nil discards.
	Out  io.Writer
	Bell io.Writer
	// Echo receives the output of ffmpeg and comskip as they run.
	Echo io.Writer

	// GracePeriod is how long an interrupted tool may take to exit.
	// If zero, procrun's default applies.
	GracePeriod time.Duration
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.Input); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if c.Settings.ExtensionDestination == "" {
		return errors.New("destination extension is empty")
	}
	if c.Settings.ConfirmPollSeconds <= 0 {
		return fmt.Errorf("confirm poll interval must be > 0")
	}
	return nil
}

// Run processes one recording. The returned error is set iff the outcome is
// types.OutcomeFailed.
func Run(ctx context.Context, cfg Config) (types.Outcome, error) {
	job, err := workspace.NewJob(cfg.Input, cfg.Settings.ExtensionDestination)
	if err != nil {
		return types.OutcomeFailed, err
	}
	log := cfg.Log.With().Str("run_id", uuid.NewString()).Str("input", job.Input).Logger()

	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	s := cfg.Settings

	// adapters
	runner := &procrun.Runner{Log: log, Echo: cfg.Echo, Niceness: s.Niceness, GracePeriod: cfg.GracePeriod}
	video := ffmpeg.New(s.PathFfmpegExe, runner, ffmpeg.Codecs{
		Video:        s.ConcatVideoCodec,
		Audio:        s.ConcatAudioCodec,
		AudioBitrate: s.ConcatAudioBitrate,
	})
	detector := comskip.New(s.PathComskipExe, s.PathComskipIni, runner, log)
	notifier := terminal.New(out, cfg.Bell)

	uc := usecase.New(usecase.Deps{
		Detector: detector,
		Video:    video,
		Notify:   notifier,
		Gate: gate.Gate{
			Interval: time.Duration(s.ConfirmPollSeconds) * time.Second,
			Batch:    cfg.Batch,
		},
		Log: log,
	})

	log.Debug().Str("output", job.OutputFile()).Str("segments", job.SegmentPattern()).Msg("job prepared")
	outcome, err := uc.Run(ctx, job, usecase.Options{
		IncludeDiscarded: s.CommercialParts(),
		SkipConfirmation: s.SkipConfirmation,
	})
	log.Info().Str("outcome", string(outcome)).Msg("job finished")
	return outcome, err
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.Detector = (*comskip.Adapter)(nil)
var _ ports.Notifier = (*terminal.Notifier)(nil)
var _ usecase.Gate = gate.Gate{}
