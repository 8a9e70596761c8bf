package workspace

import (
	"github.com/forPelevin/comcrop/internal/checkpoint"
	"github.com/forPelevin/comcrop/internal/domain/cutpoints"
	"github.com/forPelevin/comcrop/internal/domain/segments"
)

type SegmentState struct {
	Index     int
	FileReady bool
	Marked    bool
}

// State is the pipeline state as read back from disk. It is never persisted.
type State struct {
	CutPointsReady bool
	Records        int
	Expected       int
	Segments       []SegmentState
	HoldPending    bool
	InProgress     bool
	OutputExists   bool
}

func (s State) MarkedCount() int {
	n := 0
	for _, seg := range s.Segments {
		if seg.Marked {
			n++
		}
	}
	return n
}

func (s State) AllMarked() bool {
	return s.Expected > 0 && s.MarkedCount() == s.Expected
}

func Inspect(j Job, includeDiscarded bool) State {
	st := State{
		CutPointsReady: checkpoint.FileReady(j.CutPointFile()),
		HoldPending:    checkpoint.Exists(j.HoldFile()),
		InProgress:     checkpoint.Exists(j.InProgressFile()),
		OutputExists:   checkpoint.Exists(j.OutputFile()),
	}
	if !st.CutPointsReady {
		return st
	}
	n, err := cutpoints.CountRecords(j.CutPointFile())
	if err != nil {
		return st
	}
	st.Records = n
	st.Expected = segments.ExpectedCount(n, includeDiscarded)
	for i := 1; i <= st.Expected; i++ {
		st.Segments = append(st.Segments, SegmentState{
			Index:     i,
			FileReady: checkpoint.FileReady(j.SegmentFile(i)),
			Marked:    checkpoint.Exists(j.SegmentMarker(i)),
		})
	}
	return st
}
