package types

import "fmt"

// CutPoint is one detector record: where a commercial block ends and where the
// next block of content starts, in seconds from the start of the recording.
type CutPoint struct {
	End       float64
	NextStart float64
}

type SegmentKind string

const (
	SegmentKept      SegmentKind = "kept"
	SegmentDiscarded SegmentKind = "discarded"
)

// ToEnd is the duration sentinel of the terminal segment.
const ToEnd = -1.0

type Segment struct {
	Index    int
	Start    float64
	Duration float64
	Kind     SegmentKind

	Path   string
	Marker string
}

func (s Segment) Terminal() bool { return s.Duration == ToEnd }

type Outcome string

const (
	OutcomeCreated              Outcome = "created"
	OutcomeAlreadyExisted       Outcome = "already-existed"
	OutcomeFailed               Outcome = "failed"
	OutcomeNotRelevantSkip      Outcome = "not-relevant-skip"
	OutcomeAwaitingConfirmation Outcome = "awaiting-confirmation"
)

// ConcatMode selects how segment files are joined into the final output.
type ConcatMode string

const (
	// ConcatProtocol feeds the segments as one byte stream ("concat:a|b|c").
	ConcatProtocol ConcatMode = "protocol"
	// ConcatList writes a list file for the concat demuxer.
	ConcatList ConcatMode = "list"
)

// ToolError reports an external tool that did not do its job. ExitCode is -1
// when the exit status was not the reason.
type ToolError struct {
	Tool     string
	Step     string
	ExitCode int
	Output   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Tool, e.Step)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s %s: exit code %d", e.Tool, e.Step, e.ExitCode)
	}
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

type VerificationError struct {
	Path   string
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s: %s", e.Path, e.Reason)
}
