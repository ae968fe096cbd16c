package linker

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xo65/ldx/linker/index"
	"github.com/xo65/ldx/linker/object"
)

type (
	// SymbolTable holds the resolved value of every import slot of every
	// object file.
	SymbolTable struct {
		table [][]Symbol
	}

	Symbol struct {
		Size  object.AddrSize
		Value int64
	}

	// exportDesc is one entry of the global export namespace, insertion
	// ordered across objects.
	exportDesc struct {
		name string
		obj  index.Obj
		size object.AddrSize
		expr object.Expr
	}

	resolver struct {
		objs    []*object.Object
		graph   *Graph
		layout  *Layout
		exports []exportDesc

		state [][]resolveEntry
	}

	resolveEntry struct {
		size   object.AddrSize
		export int
		state  resolveState
		value  int64
	}

	resolveState uint8
)

const (
	stateUnresolved resolveState = iota
	stateResolving
	stateDone
)

// NewSymbolTable builds the global export namespace and resolves every
// import in every object to a concrete value. Resolution is memoized
// recursion over a per-slot state machine; re-entering a slot that is
// still resolving is a circular reference.
func NewSymbolTable(ctx context.Context, objs []*object.Object, g *Graph, l *Layout) (t *SymbolTable, err error) {
	r := &resolver{
		objs:   objs,
		graph:  g,
		layout: l,
	}

	err = r.buildExports()
	if err != nil {
		return nil, err
	}

	err = r.bindImports()
	if err != nil {
		return nil, err
	}

	for oi := range objs {
		for ii := range r.state[oi] {
			_, err = r.resolveImport(index.Obj(oi), index.ObjImport(ii))
			if err != nil {
				return nil, err
			}
		}
	}

	t = &SymbolTable{table: make([][]Symbol, len(objs))}

	for oi, row := range r.state {
		syms := make([]Symbol, len(row))

		for ii, ent := range row {
			syms[ii] = Symbol{Size: ent.size, Value: ent.value}
		}

		t.table[oi] = syms
	}

	tlog.SpanFromContext(ctx).Printw("resolved symbols", "exports", len(r.exports))

	return t, nil
}

// Get returns the resolved symbol for an import slot.
func (t *SymbolTable) Get(o index.Obj, i index.ObjImport) Symbol {
	return t.table[o][i]
}

func (r *resolver) buildExports() error {
	byName := map[string]struct{}{}

	for oi, o := range r.objs {
		for _, exp := range o.Exports {
			name, err := o.String(exp.Name)
			if err != nil {
				return err
			}

			if _, ok := byName[name]; ok {
				return errors.New("duplicate export: %v", name)
			}

			byName[name] = struct{}{}

			r.exports = append(r.exports, exportDesc{
				name: name,
				obj:  index.Obj(oi),
				size: exp.Size,
				expr: exp.Expr,
			})
		}
	}

	return nil
}

// bindImports points every import slot at its export and marks it
// unresolved.
func (r *resolver) bindImports() error {
	exportIdx := map[string]int{}
	for i, exp := range r.exports {
		exportIdx[exp.name] = i
	}

	r.state = make([][]resolveEntry, len(r.objs))

	for oi, o := range r.objs {
		row := make([]resolveEntry, len(o.Imports))

		for ii, imp := range o.Imports {
			name, err := o.String(imp.Name)
			if err != nil {
				return err
			}

			ei, ok := exportIdx[name]
			if !ok {
				return errors.New("%v: symbol %v is not exported", o.Name, name)
			}

			row[ii] = resolveEntry{size: imp.Size, export: ei}
		}

		r.state[oi] = row
	}

	return nil
}

func (r *resolver) resolveImport(obj index.Obj, imp index.ObjImport) (int64, error) {
	ent := &r.state[obj][imp]

	switch ent.state {
	case stateDone:
		return ent.value, nil
	case stateResolving:
		return 0, errors.New("circular reference for symbol %v", r.importName(obj, imp))
	}

	ent.state = stateResolving

	exp := r.exports[ent.export]
	if ent.size != exp.size {
		return 0, errors.New("address size mismatch for symbol %v: import %v, export %v", exp.name, ent.size, exp.size)
	}

	v, err := r.resolveExpr(ent.export, exp.expr)
	if err != nil {
		return 0, err
	}

	ent.state = stateDone
	ent.value = v

	return v, nil
}

// resolveExpr evaluates an export expression. Symbol and section references
// are interpreted in the exporting object's local namespace.
func (r *resolver) resolveExpr(export int, x object.Expr) (int64, error) {
	exp := r.exports[export]

	switch x := x.(type) {
	case nil:
		return 0, errors.New("export %v: missing expression", exp.name)
	case object.Lit:
		return int64(x), nil
	case object.Sym:
		imp := index.ObjImport(x)

		if next := r.state[exp.obj][imp]; exp.size != next.size {
			return 0, errors.New("address size mismatch for symbol %v", r.importName(exp.obj, imp))
		}

		return r.resolveImport(exp.obj, imp)
	case object.Sect:
		sect, ok := r.graph.SectOfObjSect(exp.obj, index.ObjSect(x))
		if !ok {
			return 0, errors.New("export %v: unknown section: %v", exp.name, int(x))
		}

		return int64(r.layout.Sect(sect).Start), nil
	case object.Unary:
		v, err := r.resolveExpr(export, x.X)
		if err != nil {
			return 0, err
		}

		return x.Op.Apply(v)
	case object.Binary:
		l, err := r.resolveExpr(export, x.L)
		if err != nil {
			return 0, err
		}

		rv, err := r.resolveExpr(export, x.R)
		if err != nil {
			return 0, err
		}

		return x.Op.Apply(l, rv)
	default:
		return 0, errors.New("export %v: bad expr node: %T", exp.name, x)
	}
}

func (r *resolver) importName(obj index.Obj, imp index.ObjImport) string {
	name, err := r.objs[obj].ImportName(imp)
	if err != nil {
		return "?"
	}

	return name
}
