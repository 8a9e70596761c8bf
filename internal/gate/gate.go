// Package gate pauses a job between segment extraction and assembly until the
// operator deletes the hold file.
package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/forPelevin/comcrop/internal/checkpoint"
)

const DefaultInterval = 5 * time.Second

// ErrDeferred is returned in batch mode: the hold file is in place and the
// operator is expected to run the job again after deleting it.
var ErrDeferred = errors.New("confirmation deferred")

type Gate struct {
	// Interval between checks for the hold file. Zero means DefaultInterval.
	Interval time.Duration
	// Batch creates the hold file and returns ErrDeferred instead of waiting.
	Batch bool
}

// Hold creates holdPath if missing and blocks until it is removed or ctx is
// cancelled.
func (g Gate) Hold(ctx context.Context, holdPath string) error {
	if !checkpoint.Exists(holdPath) {
		f, err := os.OpenFile(holdPath, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create hold file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("create hold file: %w", err)
		}
	}
	if g.Batch {
		return ErrDeferred
	}

	interval := g.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for checkpoint.Exists(holdPath) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
