package segments

import "github.com/forPelevin/comcrop/internal/types"

// Plan turns cut points into the ordered list of spans to extract.
//
// Interior spans with a non-positive duration are dropped without consuming
// an index. The terminal span (last next-start to end of file) is always
// emitted, even when nothing is left after the last commercial.
func Plan(cps []types.CutPoint, includeDiscarded bool) []types.Segment {
	var out []types.Segment
	index := 0
	timeStart := 0.0
	emit := func(start, duration float64, kind types.SegmentKind) {
		index++
		out = append(out, types.Segment{Index: index, Start: start, Duration: duration, Kind: kind})
	}

	for _, cp := range cps {
		if d := cp.End - timeStart; d > 0 {
			emit(timeStart, d, types.SegmentKept)
		}
		if includeDiscarded {
			if d := cp.NextStart - cp.End; d > 0 {
				emit(cp.End, d, types.SegmentDiscarded)
			}
		}
		timeStart = cp.NextStart
	}
	emit(timeStart, types.ToEnd, types.SegmentKept)
	return out
}

// ExpectedCount is the upper bound of segments a cut-point file with the given
// number of records can produce. It is reached only when no span was dropped.
func ExpectedCount(records int, includeDiscarded bool) int {
	n := records
	if includeDiscarded {
		n *= 2
	}
	return n + 1
}
