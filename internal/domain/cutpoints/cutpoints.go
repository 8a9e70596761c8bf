package cutpoints

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/forPelevin/comcrop/internal/types"
)

// fieldsPerRecord is the comskip EDL layout: end, next start, action. The
// action column is accepted but not interpreted.
const fieldsPerRecord = 3

type ParseError struct {
	Path   string
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "cut points"
	}
	return fmt.Sprintf("%s line %d: %s (%q)", where, e.Line, e.Reason, e.Text)
}

func ParseFile(path string) ([]types.CutPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cut points: %w", err)
	}
	defer f.Close()

	cps, err := Parse(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return cps, nil
}

// Parse reads one record per non-empty line. Any malformed line fails the
// whole read; records are returned in file order without reordering.
func Parse(r io.Reader) ([]types.CutPoint, error) {
	var out []types.CutPoint
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != fieldsPerRecord {
			return nil, &ParseError{
				Line:   line,
				Text:   text,
				Reason: fmt.Sprintf("expected %d fields, got %d", fieldsPerRecord, len(fields)),
			}
		}
		end, err := parseSeconds(fields[0])
		if err != nil {
			return nil, &ParseError{Line: line, Text: text, Reason: "commercial end: " + err.Error()}
		}
		next, err := parseSeconds(fields[1])
		if err != nil {
			return nil, &ParseError{Line: line, Text: text, Reason: "next start: " + err.Error()}
		}
		out = append(out, types.CutPoint{End: end, NextStart: next})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cut points: %w", err)
	}
	return out, nil
}

// CountRecords counts non-empty lines without validating them.
func CountRecords(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open cut points: %w", err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read cut points: %w", err)
	}
	return n, nil
}

func parseSeconds(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	if v < 0 {
		return 0, fmt.Errorf("negative time")
	}
	return v, nil
}

// Format renders cut points back into the three-column layout.
func Format(cps []types.CutPoint) string {
	var b strings.Builder
	for _, cp := range cps {
		b.WriteString(strconv.FormatFloat(cp.End, 'f', 2, 64))
		b.WriteByte('\t')
		b.WriteString(strconv.FormatFloat(cp.NextStart, 'f', 2, 64))
		b.WriteString("\t0\n")
	}
	return b.String()
}
