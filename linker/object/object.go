// Package object defines the in-memory model of a relocatable object file:
// sections made of content fragments, imported and exported symbols with
// expression trees, and a string table addressed by index. The binary
// container codec lives in codec.go.
package object

import (
	"tlog.app/go/errors"

	"github.com/xo65/ldx/linker/index"
)

type (
	// Object is one parsed object file. Table order is declaration order
	// and is load-bearing: section addresses depend on it.
	Object struct {
		Name string

		Sections []Section
		Imports  []Import
		Exports  []Export
		Strings  []string
	}

	// Section is one unit of contributed content. SegName names the
	// segment the section wants to be placed into.
	Section struct {
		SegName index.ObjStr
		Align   int
		Frags   []Fragment
	}

	// Import is a reference to a symbol exported by some object.
	Import struct {
		Name index.ObjStr
		Size AddrSize
	}

	// Export binds a globally unique name to an expression.
	Export struct {
		Name index.ObjStr
		Size AddrSize
		Expr Expr
	}

	// Fragment is one atomic piece of section content: Bytes, Fill or
	// Value.
	Fragment any

	// Bytes is raw literal content.
	Bytes []byte

	// Fill is a run of n fill bytes; the byte value comes from the
	// enclosing segment or memory region at emit time.
	Fill int

	// Value is an expression emitted little-endian in Size bytes.
	Value struct {
		Expr   Expr
		Size   int // 1..4
		Signed bool
	}

	// AddrSize is the declared address width of a symbol.
	AddrSize uint8
)

const (
	Zeropage AddrSize = 1 + iota
	Absolute
	Far
	Long
)

func (s AddrSize) String() string {
	switch s {
	case Zeropage:
		return "zeropage"
	case Absolute:
		return "absolute"
	case Far:
		return "far"
	case Long:
		return "long"
	default:
		return "invalid"
	}
}

// Size is the number of address-space bytes the section occupies.
func (s *Section) Size() (n int) {
	for _, f := range s.Frags {
		n += FragSize(f)
	}

	return n
}

func (s *Section) Empty() bool {
	return s.Size() == 0
}

// FragSize is the number of bytes the fragment occupies.
func FragSize(f Fragment) int {
	switch f := f.(type) {
	case Bytes:
		return len(f)
	case Fill:
		return int(f)
	case Value:
		return f.Size
	default:
		return 0
	}
}

// String resolves a string table index.
func (o *Object) String(i index.ObjStr) (string, error) {
	if i < 0 || int(i) >= len(o.Strings) {
		return "", errors.New("%v: string index out of range: %v", o.Name, i)
	}

	return o.Strings[i], nil
}

// SegmentName is the declared segment name of a local section.
func (o *Object) SegmentName(i index.ObjSect) (string, error) {
	if i < 0 || int(i) >= len(o.Sections) {
		return "", errors.New("%v: section index out of range: %v", o.Name, i)
	}

	return o.String(o.Sections[i].SegName)
}

// ImportName is the symbol name of a local import slot.
func (o *Object) ImportName(i index.ObjImport) (string, error) {
	if i < 0 || int(i) >= len(o.Imports) {
		return "", errors.New("%v: import index out of range: %v", o.Name, i)
	}

	return o.String(o.Imports[i].Name)
}
