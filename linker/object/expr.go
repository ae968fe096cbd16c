package object

import (
	"tlog.app/go/errors"

	"github.com/xo65/ldx/linker/index"
)

type (
	// Expr is a symbol value expression: nil (absent), Lit, Sym, Sect,
	// Unary or Binary. Evaluation happens in the linker, which supplies
	// symbol values and section addresses.
	Expr any

	// Lit is a literal value.
	Lit int64

	// Sym references an import slot of the owning object.
	Sym index.ObjImport

	// Sect references the absolute start address of a local section of
	// the owning object.
	Sect index.ObjSect

	Unary struct {
		Op UnaryOp
		X  Expr
	}

	Binary struct {
		Op   BinaryOp
		L, R Expr
	}

	UnaryOp  uint8
	BinaryOp uint8
)

const (
	Neg UnaryOp = iota
	BitNot
	Not
)

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	And
	Or
	Xor
	Shl
	Shr
)

func (op UnaryOp) Apply(x int64) (int64, error) {
	switch op {
	case Neg:
		return -x, nil
	case BitNot:
		return ^x, nil
	case Not:
		if x == 0 {
			return 1, nil
		}

		return 0, nil
	default:
		return 0, errors.New("bad unary op: %v", uint8(op))
	}
}

func (op BinaryOp) Apply(l, r int64) (int64, error) {
	switch op {
	case Add:
		return l + r, nil
	case Sub:
		return l - r, nil
	case Mul:
		return l * r, nil
	case Div:
		if r == 0 {
			return 0, errors.New("division by zero")
		}

		return l / r, nil
	case Mod:
		if r == 0 {
			return 0, errors.New("division by zero")
		}

		return l % r, nil
	case And:
		return l & r, nil
	case Or:
		return l | r, nil
	case Xor:
		return l ^ r, nil
	case Shl:
		return l << (uint64(r) & 63), nil
	case Shr:
		return l >> (uint64(r) & 63), nil
	default:
		return 0, errors.New("bad binary op: %v", uint8(op))
	}
}

func (op UnaryOp) String() string {
	switch op {
	case Neg:
		return "-"
	case BitNot:
		return "~"
	case Not:
		return "!"
	default:
		return "?"
	}
}

func (op BinaryOp) String() string {
	switch op {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	case And:
		return "&"
	case Or:
		return "|"
	case Xor:
		return "^"
	case Shl:
		return "<<"
	case Shr:
		return ">>"
	default:
		return "?"
	}
}
