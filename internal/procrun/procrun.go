// Package procrun runs external tools one at a time, with lowered priority and
// cooperative cancellation.
package procrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultGracePeriod = 10 * time.Second
	maxKeptOutput      = 8192
)

type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if strings.ContainsAny(a, " \t'\"|") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

type Result struct {
	ExitCode int
	// Output is the beginning of the combined stdout/stderr.
	Output string
}

type Runner struct {
	Log zerolog.Logger
	// Echo receives the tool's output as it is produced. Nil discards it.
	Echo io.Writer
	// Niceness is the nice value children run with; 0 leaves it unchanged.
	Niceness int
	// GracePeriod is how long a cancelled child may take to exit after it was
	// interrupted before it is killed.
	GracePeriod time.Duration
}

// Run starts the command and waits for it. A non-zero exit status is reported
// in Result, not as an error: callers decide whether the exit code matters.
// The error is set when the tool could not be started or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = nil

	out := &limitedBuffer{max: maxKeptOutput}
	if r.Echo != nil {
		cmd.Stdout = io.MultiWriter(out, r.Echo)
	} else {
		cmd.Stdout = out
	}
	cmd.Stderr = cmd.Stdout

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return interruptGroup(cmd) }
	cmd.WaitDelay = r.GracePeriod
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultGracePeriod
	}

	r.Log.Debug().Str("cmd", c.String()).Msg("calling external tool")
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start %s: %w", c.Name, err)
	}
	untrack := track(cmd.Process.Pid)
	if r.Niceness != 0 {
		if err := lowerPriority(cmd.Process.Pid, r.Niceness); err != nil {
			r.Log.Debug().Err(err).Int("pid", cmd.Process.Pid).Msg("could not lower priority")
		}
	}

	waitErr := cmd.Wait()
	untrack()
	res := Result{ExitCode: exitCode(cmd, waitErr), Output: strings.TrimSpace(out.String())}
	r.Log.Info().Str("tool", c.Name).Int("exit_code", res.ExitCode).Msg("external tool finished")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s interrupted: %w", c.Name, ctxErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			return res, fmt.Errorf("wait %s: %w", c.Name, waitErr)
		}
	}
	return res, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// limitedBuffer keeps the first max bytes of output, enough to explain a failure
// without holding hours of progress lines in memory.
type limitedBuffer struct {
	mu  sync.Mutex
	b   strings.Builder
	max int
}

func (t *limitedBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if remain := t.max - t.b.Len(); remain > 0 {
		if len(p) > remain {
			t.b.Write(p[:remain])
		} else {
			t.b.Write(p)
		}
	}
	return len(p), nil
}

func (t *limitedBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.b.String()
}
