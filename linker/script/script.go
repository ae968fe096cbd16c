// Package script parses and evaluates placement scripts into the validated
// configuration model consumed by the linker: output files, memory regions
// and segments, all in declaration order.
package script

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xo65/ldx/linker/index"
)

type (
	// Script is an evaluated placement script. The first out-file is the
	// main output. Slices keep declaration order; indices into them are
	// index.File, index.Mem and index.Seg.
	Script struct {
		OutFiles []string
		Mems     []Memory
		Segs     []Segment
	}

	// Memory is a declared memory region: a contiguous address range
	// inside one output file.
	Memory struct {
		Name     string
		Range    Range
		Filled   bool
		FillByte byte
		File     index.File
	}

	// Segment is a declared segment, loaded into exactly one memory
	// region. Start is nil when no start policy was given.
	Segment struct {
		Name     string
		Mem      index.Mem
		Start    Start
		BSS      bool
		FillByte byte
		HasFill  bool
	}

	// Start is a segment start policy: nil, StartAddr or StartAlign.
	Start any

	// StartAddr requests an explicit absolute start address.
	StartAddr int

	// StartAlign requests start address alignment.
	StartAlign int

	// Range is an inclusive, non-empty address range.
	Range struct {
		Min int
		Max int
	}
)

// Load parses and evaluates a placement script. mainOut is the name of the
// main output file, substituted for %O in the script.
func Load(ctx context.Context, text []byte, mainOut string) (s *Script, err error) {
	t, err := parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	s, err = eval(t, mainOut)
	if err != nil {
		return nil, errors.Wrap(err, "eval")
	}

	tlog.SpanFromContext(ctx).Printw("loaded script",
		"outfiles", len(s.OutFiles), "memories", len(s.Mems), "segments", len(s.Segs))

	return s, nil
}

// RangeFromStartLen builds the range [start, start+n-1]. n must be positive.
func RangeFromStartLen(start, n int) Range {
	return Range{Min: start, Max: start + n - 1}
}

func (r Range) Len() int {
	return r.Max - r.Min + 1
}

func (r Range) Contains(x int) bool {
	return r.Min <= x && x <= r.Max
}
