package comskip

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/forPelevin/comcrop/internal/procrun"
)

type Runner interface {
	Run(ctx context.Context, c procrun.Command) (procrun.Result, error)
}

type Adapter struct {
	bin string
	ini string
	run Runner
	log zerolog.Logger
}

func New(binPath, iniPath string, run Runner, log zerolog.Logger) *Adapter {
	if binPath == "" {
		binPath = "comskip"
	}
	return &Adapter{bin: binPath, ini: iniPath, run: run, log: log}
}

// Detect runs comskip in the input's directory so the .edl lands next to the
// recording. The exit code differs between builds and platforms and is only
// logged; the caller judges success by the cut-point file.
func (a *Adapter) Detect(ctx context.Context, input string) error {
	args := []string{"-q"}
	if a.ini != "" {
		args = append(args, "--ini="+a.ini)
	}
	args = append(args, input)

	res, err := a.run.Run(ctx, procrun.Command{Name: a.bin, Args: args, Dir: filepath.Dir(input)})
	if err != nil {
		return fmt.Errorf("comskip detect: %w", err)
	}
	if res.ExitCode != 0 {
		a.log.Debug().Int("exit_code", res.ExitCode).Str("output", res.Output).Msg("comskip exited non-zero, checking cut-point file")
	}
	return nil
}
