package object

import (
	"encoding/binary"

	"tlog.app/go/errors"

	"github.com/xo65/ldx/linker/index"
)

// Binary container layout (version 1, little-endian):
//
//	magic "xo65", version u8
//	strings:  u32 count, each u16 len + bytes
//	sections: u32 count, each u32 segname, u8 align, u32 frag count + frags
//	imports:  u32 count, each u32 name, u8 addr size
//	exports:  u32 count, each u32 name, u8 addr size, expr
//
// Fragments are tagged: 0 bytes (u32 len + raw), 1 fill (u32 n),
// 2 value (u8 size, u8 signed, expr). Expressions are tagged: 0 absent,
// 1 literal (u64, two's complement), 2 symbol (u32 import), 3 section
// (u32 section), 4 unary (u8 op, x), 5 binary (u8 op, l, r).

var magic = []byte("xo65")

const codecVersion = 1

// maxExprDepth bounds expression nesting in decoded input. Assemblers emit
// shallow trees; anything past this is a corrupt or hostile file.
const maxExprDepth = 10_000

const (
	fragBytes = iota
	fragFill
	fragValue
)

const (
	exprNull = iota
	exprLit
	exprSym
	exprSect
	exprUnary
	exprBinary
)

type (
	reader struct {
		b []byte
		i int
	}
)

// Decode parses a binary object file. name is used in error messages and
// becomes Object.Name. All table indices are validated before returning.
func Decode(name string, b []byte) (o *Object, err error) {
	r := &reader{b: b}

	o = &Object{Name: name}

	err = r.header()
	if err != nil {
		return nil, errors.Wrap(err, "%v: header", name)
	}

	o.Strings, err = r.strings()
	if err != nil {
		return nil, errors.Wrap(err, "%v: string table", name)
	}

	o.Sections, err = r.sections()
	if err != nil {
		return nil, errors.Wrap(err, "%v: section table", name)
	}

	o.Imports, err = r.imports()
	if err != nil {
		return nil, errors.Wrap(err, "%v: import table", name)
	}

	o.Exports, err = r.exports()
	if err != nil {
		return nil, errors.Wrap(err, "%v: export table", name)
	}

	if r.i != len(r.b) {
		return nil, errors.New("%v: %v trailing bytes", name, len(r.b)-r.i)
	}

	err = o.validate()
	if err != nil {
		return nil, err
	}

	return o, nil
}

func (r *reader) header() error {
	m, err := r.take(len(magic))
	if err != nil {
		return err
	}

	if string(m) != string(magic) {
		return errors.New("bad magic")
	}

	v, err := r.u8()
	if err != nil {
		return err
	}

	if v != codecVersion {
		return errors.New("unsupported version: %v", v)
	}

	return nil
}

func (r *reader) strings() (ss []string, err error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		l, err := r.u16()
		if err != nil {
			return nil, errors.Wrap(err, "string %v", i)
		}

		b, err := r.take(l)
		if err != nil {
			return nil, errors.Wrap(err, "string %v", i)
		}

		ss = append(ss, string(b))
	}

	return ss, nil
}

func (r *reader) sections() (ss []Section, err error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		s, err := r.section()
		if err != nil {
			return nil, errors.Wrap(err, "section %v", i)
		}

		ss = append(ss, s)
	}

	return ss, nil
}

func (r *reader) section() (s Section, err error) {
	name, err := r.u32()
	if err != nil {
		return s, err
	}

	align, err := r.u8()
	if err != nil {
		return s, err
	}

	s.SegName = index.ObjStr(name)
	s.Align = int(align)

	n, err := r.u32()
	if err != nil {
		return s, err
	}

	for i := 0; i < n; i++ {
		f, err := r.fragment()
		if err != nil {
			return s, errors.Wrap(err, "fragment %v", i)
		}

		s.Frags = append(s.Frags, f)
	}

	return s, nil
}

func (r *reader) fragment() (Fragment, error) {
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}

	switch tag {
	case fragBytes:
		l, err := r.u32()
		if err != nil {
			return nil, err
		}

		b, err := r.take(l)
		if err != nil {
			return nil, err
		}

		return Bytes(append([]byte{}, b...)), nil
	case fragFill:
		l, err := r.u32()
		if err != nil {
			return nil, err
		}

		return Fill(l), nil
	case fragValue:
		size, err := r.u8()
		if err != nil {
			return nil, err
		}

		if size < 1 || size > 4 {
			return nil, errors.New("bad value size: %v", size)
		}

		signed, err := r.u8()
		if err != nil {
			return nil, err
		}

		x, err := r.expr()
		if err != nil {
			return nil, err
		}

		return Value{Expr: x, Size: int(size), Signed: signed != 0}, nil
	default:
		return nil, errors.New("bad fragment tag: %v", tag)
	}
}

func (r *reader) imports() (ii []Import, err error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		name, err := r.u32()
		if err != nil {
			return nil, errors.Wrap(err, "import %v", i)
		}

		size, err := r.addrSize()
		if err != nil {
			return nil, errors.Wrap(err, "import %v", i)
		}

		ii = append(ii, Import{Name: index.ObjStr(name), Size: size})
	}

	return ii, nil
}

func (r *reader) exports() (ee []Export, err error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		name, err := r.u32()
		if err != nil {
			return nil, errors.Wrap(err, "export %v", i)
		}

		size, err := r.addrSize()
		if err != nil {
			return nil, errors.Wrap(err, "export %v", i)
		}

		x, err := r.expr()
		if err != nil {
			return nil, errors.Wrap(err, "export %v", i)
		}

		ee = append(ee, Export{Name: index.ObjStr(name), Size: size, Expr: x})
	}

	return ee, nil
}

func (r *reader) expr() (Expr, error) {
	return r.exprAt(0)
}

func (r *reader) exprAt(depth int) (Expr, error) {
	if depth > maxExprDepth {
		return nil, errors.New("expression too deep")
	}

	tag, err := r.u8()
	if err != nil {
		return nil, err
	}

	switch tag {
	case exprNull:
		return nil, nil
	case exprLit:
		v, err := r.u64()
		if err != nil {
			return nil, err
		}

		return Lit(v), nil
	case exprSym:
		v, err := r.u32()
		if err != nil {
			return nil, err
		}

		return Sym(v), nil
	case exprSect:
		v, err := r.u32()
		if err != nil {
			return nil, err
		}

		return Sect(v), nil
	case exprUnary:
		op, err := r.u8()
		if err != nil {
			return nil, err
		}

		x, err := r.exprAt(depth + 1)
		if err != nil {
			return nil, err
		}

		return Unary{Op: UnaryOp(op), X: x}, nil
	case exprBinary:
		op, err := r.u8()
		if err != nil {
			return nil, err
		}

		l, err := r.exprAt(depth + 1)
		if err != nil {
			return nil, err
		}

		rhs, err := r.exprAt(depth + 1)
		if err != nil {
			return nil, err
		}

		return Binary{Op: BinaryOp(op), L: l, R: rhs}, nil
	default:
		return nil, errors.New("bad expr tag: %v", tag)
	}
}

func (r *reader) addrSize() (AddrSize, error) {
	v, err := r.u8()
	if err != nil {
		return 0, err
	}

	if v < 1 || v > 4 {
		return 0, errors.New("bad address size: %v", v)
	}

	return AddrSize(v), nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (r *reader) u16() (int, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}

	return int(binary.LittleEndian.Uint16(b)), nil
}

func (r *reader) u32() (int, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}

	return int(binary.LittleEndian.Uint32(b)), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) take(n int) ([]byte, error) {
	if len(r.b)-r.i < n {
		return nil, errors.New("truncated at offset %v", r.i)
	}

	b := r.b[r.i : r.i+n]
	r.i += n

	return b, nil
}

// validate checks that every table index in the object is in range.
func (o *Object) validate() error {
	str := func(i index.ObjStr) error {
		if i < 0 || int(i) >= len(o.Strings) {
			return errors.New("string index out of range: %v", i)
		}

		return nil
	}

	for i, s := range o.Sections {
		if err := str(s.SegName); err != nil {
			return errors.Wrap(err, "%v: section %v", o.Name, i)
		}

		for j, f := range s.Frags {
			v, ok := f.(Value)
			if !ok {
				continue
			}

			if err := o.validateExpr(v.Expr); err != nil {
				return errors.Wrap(err, "%v: section %v: fragment %v", o.Name, i, j)
			}
		}
	}

	for i, imp := range o.Imports {
		if err := str(imp.Name); err != nil {
			return errors.Wrap(err, "%v: import %v", o.Name, i)
		}
	}

	for i, exp := range o.Exports {
		if err := str(exp.Name); err != nil {
			return errors.Wrap(err, "%v: export %v", o.Name, i)
		}

		if err := o.validateExpr(exp.Expr); err != nil {
			return errors.Wrap(err, "%v: export %v", o.Name, i)
		}
	}

	return nil
}

func (o *Object) validateExpr(x Expr) error {
	switch x := x.(type) {
	case nil, Lit:
		return nil
	case Sym:
		if x < 0 || int(x) >= len(o.Imports) {
			return errors.New("import index out of range: %v", int(x))
		}

		return nil
	case Sect:
		if x < 0 || int(x) >= len(o.Sections) {
			return errors.New("section index out of range: %v", int(x))
		}

		return nil
	case Unary:
		return o.validateExpr(x.X)
	case Binary:
		if err := o.validateExpr(x.L); err != nil {
			return err
		}

		return o.validateExpr(x.R)
	default:
		return errors.New("bad expr node: %T", x)
	}
}
