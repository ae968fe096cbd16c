package object

import (
	"encoding/binary"

	"tlog.app/go/errors"
)

// Encode serializes the object into the binary container decoded by Decode.
// It is the assembler-side half of the codec; the linker itself only reads.
func Encode(o *Object) (b []byte, err error) {
	err = o.validate()
	if err != nil {
		return nil, err
	}

	b = append(b, magic...)
	b = append(b, codecVersion)

	b = appendU32(b, len(o.Strings))

	for i, s := range o.Strings {
		if len(s) > 0xFFFF {
			return nil, errors.New("%v: string %v too long: %v bytes", o.Name, i, len(s))
		}

		b = appendU16(b, len(s))
		b = append(b, s...)
	}

	b = appendU32(b, len(o.Sections))

	for i, s := range o.Sections {
		if s.Align < 0 || s.Align > 0xFF {
			return nil, errors.New("%v: section %v: bad alignment: %v", o.Name, i, s.Align)
		}

		b = appendU32(b, int(s.SegName))
		b = append(b, byte(s.Align))
		b = appendU32(b, len(s.Frags))

		for j, f := range s.Frags {
			b, err = appendFragment(b, f)
			if err != nil {
				return nil, errors.Wrap(err, "%v: section %v: fragment %v", o.Name, i, j)
			}
		}
	}

	b = appendU32(b, len(o.Imports))

	for _, imp := range o.Imports {
		b = appendU32(b, int(imp.Name))
		b = append(b, byte(imp.Size))
	}

	b = appendU32(b, len(o.Exports))

	for i, exp := range o.Exports {
		b = appendU32(b, int(exp.Name))
		b = append(b, byte(exp.Size))

		b, err = appendExpr(b, exp.Expr)
		if err != nil {
			return nil, errors.Wrap(err, "%v: export %v", o.Name, i)
		}
	}

	return b, nil
}

func appendFragment(b []byte, f Fragment) ([]byte, error) {
	switch f := f.(type) {
	case Bytes:
		b = append(b, fragBytes)
		b = appendU32(b, len(f))
		b = append(b, f...)

		return b, nil
	case Fill:
		if f < 0 {
			return nil, errors.New("bad fill length: %v", int(f))
		}

		b = append(b, fragFill)
		b = appendU32(b, int(f))

		return b, nil
	case Value:
		if f.Size < 1 || f.Size > 4 {
			return nil, errors.New("bad value size: %v", f.Size)
		}

		b = append(b, fragValue, byte(f.Size))

		if f.Signed {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}

		return appendExpr(b, f.Expr)
	default:
		return nil, errors.New("bad fragment: %T", f)
	}
}

func appendExpr(b []byte, x Expr) ([]byte, error) {
	switch x := x.(type) {
	case nil:
		return append(b, exprNull), nil
	case Lit:
		b = append(b, exprLit)

		return binary.LittleEndian.AppendUint64(b, uint64(x)), nil
	case Sym:
		b = append(b, exprSym)

		return appendU32(b, int(x)), nil
	case Sect:
		b = append(b, exprSect)

		return appendU32(b, int(x)), nil
	case Unary:
		b = append(b, exprUnary, byte(x.Op))

		return appendExpr(b, x.X)
	case Binary:
		b = append(b, exprBinary, byte(x.Op))

		b, err := appendExpr(b, x.L)
		if err != nil {
			return nil, err
		}

		return appendExpr(b, x.R)
	default:
		return nil, errors.New("bad expr node: %T", x)
	}
}

func appendU16(b []byte, v int) []byte {
	return binary.LittleEndian.AppendUint16(b, uint16(v))
}

func appendU32(b []byte, v int) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}
