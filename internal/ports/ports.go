package ports

import (
	"context"

	"github.com/forPelevin/comcrop/internal/types"
)

// Detector scans a recording for commercials and writes the cut-point file
// next to it. Its exit status is not trusted; callers check the file.
type Detector interface {
	Detect(ctx context.Context, input string) error
}

type VideoTool interface {
	// ExtractSegment copies the span [start, start+duration) of input into out
	// without re-encoding. A duration of types.ToEnd copies to the end of input.
	ExtractSegment(ctx context.Context, input string, start, duration float64, out string) error
	// Concat joins parts in order into out. listFile is only used in
	// types.ConcatList mode and is removed afterwards.
	Concat(ctx context.Context, mode types.ConcatMode, parts []string, listFile, out string) error
}

// Notifier talks to the operator. Beep must not block.
type Notifier interface {
	Announce(msg string)
	Success(msg string)
	Failure(msg string)
	Beep(times int)
}
