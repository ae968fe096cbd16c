package linker

import (
	"tlog.app/go/errors"

	"github.com/xo65/ldx/linker/index"
	"github.com/xo65/ldx/linker/object"
)

type (
	// emitter replays section fragments into output buffers using the
	// layout for placement and the symbol table for expression values.
	emitter struct {
		objs   []*object.Object
		graph  *Graph
		layout *Layout
		syms   *SymbolTable
	}
)

func (e *emitter) emitFile(f index.File) (buf []byte, err error) {
	buf = make([]byte, e.layout.File(f).Len)

	for _, mem := range e.graph.FileMems(f) {
		ml := e.layout.Mem(mem)
		if ml.OutLen == 0 {
			continue
		}

		sub := buf[ml.FileOff : ml.FileOff+ml.OutLen]

		fillBytes(sub, ml.FillByte)

		err = e.emitMemory(sub, mem)
		if err != nil {
			return nil, errors.Wrap(err, "memory %v", e.graph.MemName(mem))
		}
	}

	return buf, nil
}

func (e *emitter) emitMemory(buf []byte, mem index.Mem) (err error) {
	ml := e.layout.Mem(mem)

	for _, seg := range e.graph.MemSegs(mem) {
		sl := e.layout.Seg(seg)
		if sl.OutLen == 0 {
			continue
		}

		off := sl.Start - ml.Range.Min
		if off+sl.OutLen > len(buf) {
			// address space reserved before this segment produced no
			// bytes, so the segment has no place in an unfilled region
			return errors.New("segment %v: unfilled gap in memory %v", e.graph.SegName(seg), e.graph.MemName(mem))
		}

		sub := buf[off:][:sl.OutLen]

		// A segment fill byte overrides the region's, for the whole
		// segment extent.
		fill := ml.FillByte
		if sl.HasFill {
			fill = sl.FillByte
			fillBytes(sub, fill)
		}

		err = e.emitSegment(sub, seg, fill)
		if err != nil {
			return errors.Wrap(err, "segment %v", e.graph.SegName(seg))
		}
	}

	return nil
}

func (e *emitter) emitSegment(buf []byte, seg index.Seg, fill byte) (err error) {
	sl := e.layout.Seg(seg)

	for _, sect := range e.graph.SegSects(seg) {
		cl := e.layout.Sect(sect)
		if cl.OutLen == 0 {
			continue
		}

		os := e.graph.ObjSectOfSect(sect)

		err = e.emitSection(buf[cl.Start-sl.Start:][:cl.OutLen], os, fill)
		if err != nil {
			return errors.Wrap(err, "%v: section %v", e.objs[os.Obj].Name, int(os.Sect))
		}
	}

	return nil
}

func (e *emitter) emitSection(buf []byte, os ObjSect, fill byte) (err error) {
	sect := &e.objs[os.Obj].Sections[os.Sect]

	off := 0

	for fi, f := range sect.Frags {
		switch f := f.(type) {
		case object.Bytes:
			copy(buf[off:], f)
			off += len(f)
		case object.Fill:
			fillBytes(buf[off:off+int(f)], fill)
			off += int(f)
		case object.Value:
			v, err := e.evalExpr(os.Obj, f.Expr)
			if err != nil {
				return errors.Wrap(err, "fragment %v", fi)
			}

			err = writeValue(buf[off:], v, f.Size, f.Signed)
			if err != nil {
				return errors.Wrap(err, "fragment %v", fi)
			}

			off += f.Size
		default:
			return errors.New("fragment %v: bad fragment: %T", fi, f)
		}
	}

	return nil
}

// evalExpr evaluates an expression at emit time, when every import slot is
// already resolved.
func (e *emitter) evalExpr(obj index.Obj, x object.Expr) (int64, error) {
	switch x := x.(type) {
	case nil:
		return 0, errors.New("missing expression")
	case object.Lit:
		return int64(x), nil
	case object.Sym:
		return e.syms.Get(obj, index.ObjImport(x)).Value, nil
	case object.Sect:
		sect, ok := e.graph.SectOfObjSect(obj, index.ObjSect(x))
		if !ok {
			return 0, errors.New("unknown section: %v", int(x))
		}

		return int64(e.layout.Sect(sect).Start), nil
	case object.Unary:
		v, err := e.evalExpr(obj, x.X)
		if err != nil {
			return 0, err
		}

		return x.Op.Apply(v)
	case object.Binary:
		l, err := e.evalExpr(obj, x.L)
		if err != nil {
			return 0, err
		}

		r, err := e.evalExpr(obj, x.R)
		if err != nil {
			return 0, err
		}

		return x.Op.Apply(l, r)
	default:
		return 0, errors.New("bad expr node: %T", x)
	}
}

// writeValue writes v little-endian in the given width, rejecting values
// outside the width's valid range.
func writeValue(buf []byte, v int64, size int, signed bool) error {
	var min, max int64
	if signed {
		max = 1<<(8*size-1) - 1
		min = -max - 1
	} else {
		max = 1<<(8*size) - 1
	}

	if v < min || v > max {
		return errors.New("value %v does not fit %v %d-byte value", v, signedName(signed), size)
	}

	for i := 0; i < size; i++ {
		buf[i] = byte(v >> (8 * i))
	}

	return nil
}

func signedName(signed bool) string {
	if signed {
		return "signed"
	}

	return "unsigned"
}

func fillBytes(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
