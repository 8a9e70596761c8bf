package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forPelevin/comcrop/internal/instancelock"
	"github.com/forPelevin/comcrop/internal/interrupt"
	"github.com/forPelevin/comcrop/internal/pipeline"
	"github.com/forPelevin/comcrop/internal/procrun"
	"github.com/forPelevin/comcrop/internal/settings"
	"github.com/forPelevin/comcrop/internal/types"
)

func run(cmd *cobra.Command, args []string) error {
	quiet, _ := cmd.Flags().GetBool("quiet")
	noNotify, _ := cmd.Flags().GetBool("no-notify")
	pause, _ := cmd.Flags().GetBool("pause")
	verbose, _ := cmd.Flags().GetBool("verbose")
	grace, _ := cmd.Flags().GetDuration("grace")
	log := commandLogger(cmd)

	if pause {
		defer waitForEnter(cmd.InOrStdin(), cmd.OutOrStdout())
	}

	s, path, err := loadSettings(cmd, log)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("settings: %w (fix %s)", err, path)
	}

	lockPath, err := instancelock.Resolve(s.LockFile)
	if err != nil {
		return err
	}
	if lockPath != "" {
		log.Debug().Str("lock", lockPath).Msg("acquiring instance lock")
		lock, err := instancelock.Acquire(lockPath)
		if errors.Is(err, instancelock.ErrLocked) {
			if !quiet {
				log.Warn().Err(err).Msg("another instance is running, exiting")
			}
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn().Err(err).Msg("release instance lock")
			}
		}()
	}

	files, missing := expandInputs(args)
	if !quiet {
		for _, m := range missing {
			log.Warn().Str("file", m).Msg("no such file, skipping")
		}
	}
	if len(files) == 0 {
		if !quiet {
			log.Warn().Strs("args", args).Msg("no file to handle")
		}
		return nil
	}

	ctx, stop := interrupt.Context(cmd.Context(), log, func() {
		if n := procrun.KillActive(); n > 0 {
			log.Warn().Int("groups", n).Msg("killed running tools")
		}
	})
	defer stop()

	var echo io.Writer
	if verbose {
		echo = cmd.ErrOrStderr()
	}

	var sum batchSummary
	for _, f := range files {
		cfg := pipeline.Config{
			Input:       f,
			Settings:    s,
			Batch:       noNotify,
			Log:         log,
			Out:         cmd.OutOrStdout(),
			Bell:        cmd.ErrOrStderr(),
			Echo:        echo,
			GracePeriod: grace,
		}
		var outcome types.Outcome
		if err = cfg.Validate(); err == nil {
			outcome, err = pipeline.Run(ctx, cfg)
		} else {
			outcome = types.OutcomeFailed
		}
		sum.add(outcome)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAILED %s: %v\n", f, err)
		}
		if ctx.Err() != nil {
			log.Warn().Msg("cancelled, remaining files are not processed")
			break
		}
	}

	sum.log(log)
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}
	if sum.failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", sum.failed, sum.total)
	}
	return nil
}

type batchSummary struct {
	total, created, existed, failed, skipped, awaiting int
}

func (b *batchSummary) add(o types.Outcome) {
	b.total++
	switch o {
	case types.OutcomeCreated:
		b.created++
	case types.OutcomeAlreadyExisted:
		b.existed++
	case types.OutcomeFailed:
		b.failed++
	case types.OutcomeNotRelevantSkip:
		b.skipped++
	case types.OutcomeAwaitingConfirmation:
		b.awaiting++
	}
}

func (b batchSummary) log(log zerolog.Logger) {
	log.Info().
		Int("created", b.created).
		Int("already_existed", b.existed).
		Int("awaiting_confirmation", b.awaiting).
		Int("skipped", b.skipped).
		Int("failed", b.failed).
		Msg("batch finished")
}

func loadSettings(cmd *cobra.Command, log zerolog.Logger) (settings.Settings, string, error) {
	path, _ := cmd.Flags().GetString("settings")
	if path == "" {
		path = settings.DefaultPath()
	}
	s, created, err := settings.Load(path, log)
	if err != nil {
		return settings.Settings{}, path, err
	}
	if created {
		log.Warn().Str("path", path).Msg("no settings file found, wrote defaults; review the tool paths")
	}
	return s, path, nil
}

func waitForEnter(in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "Press enter to exit.")
	_, _ = bufio.NewReader(in).ReadString('\n')
}
