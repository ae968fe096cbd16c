package linker

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xo65/ldx/linker/index"
	"github.com/xo65/ldx/linker/object"
	"github.com/xo65/ldx/linker/script"
)

type (
	// Result is a finished link: one output blob per declared output
	// file plus the intermediate structures, kept for reporting.
	Result struct {
		Outputs []Output

		objs   []*object.Object
		graph  *Graph
		layout *Layout
		syms   *SymbolTable
	}

	Output struct {
		Path string
		Body []byte
	}
)

// LinkFiles reads a placement script and object files from disk and links
// them. output names the main output file.
func LinkFiles(ctx context.Context, scriptPath, output string, objPaths []string) (res *Result, err error) {
	text, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, errors.Wrap(err, "read linker script")
	}

	s, err := script.Load(ctx, text, output)
	if err != nil {
		return nil, errors.Wrap(err, "linker script %v", scriptPath)
	}

	objs := make([]*object.Object, len(objPaths))

	for i, path := range objPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read object file")
		}

		objs[i], err = object.Decode(path, data)
		if err != nil {
			return nil, errors.Wrap(err, "parse object file")
		}
	}

	return Link(ctx, s, objs)
}

// Link runs the whole pipeline: graph, layout, symbol resolution, emit.
// It either completes deterministically or fails on the first fatal
// condition; no partial result is returned.
func Link(ctx context.Context, s *script.Script, objs []*object.Object) (res *Result, err error) {
	g, err := NewGraph(ctx, s, objs)
	if err != nil {
		return nil, errors.Wrap(err, "build graph")
	}

	l, err := NewLayout(ctx, s, objs, g)
	if err != nil {
		return nil, errors.Wrap(err, "layout")
	}

	t, err := NewSymbolTable(ctx, objs, g, l)
	if err != nil {
		return nil, errors.Wrap(err, "resolve symbols")
	}

	em := &emitter{objs: objs, graph: g, layout: l, syms: t}

	res = &Result{
		objs:   objs,
		graph:  g,
		layout: l,
		syms:   t,
	}

	total := 0

	for fi := 0; fi < g.FileCount(); fi++ {
		file := index.File(fi)

		body, err := em.emitFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "emit %v", g.FileName(file))
		}

		res.Outputs = append(res.Outputs, Output{Path: g.FileName(file), Body: body})
		total += len(body)
	}

	tlog.SpanFromContext(ctx).Printw("linked", "outputs", len(res.Outputs), "bytes", total)

	return res, nil
}
