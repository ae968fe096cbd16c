package linker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xo65/ldx/linker/object"
	"github.com/xo65/ldx/linker/script"
)

func buildSymbols(t *testing.T, s *script.Script, objs []*object.Object) (*SymbolTable, error) {
	t.Helper()

	ctx := context.Background()

	g, err := NewGraph(ctx, s, objs)
	require.NoError(t, err)

	l, err := NewLayout(ctx, s, objs, g)
	require.NoError(t, err)

	return NewSymbolTable(ctx, objs, g, l)
}

func emptyScript() *script.Script {
	return &script.Script{OutFiles: []string{"a.out"}}
}

func TestSymbolLiteralExport(t *testing.T) {
	objs := []*object.Object{
		newObj("def.o").exp("ANSWER", object.Absolute, object.Lit(42)).o,
		newObj("use1.o").imp("ANSWER", object.Absolute).o,
		newObj("use2.o").imp("ANSWER", object.Absolute).o,
	}

	st, err := buildSymbols(t, emptyScript(), objs)
	require.NoError(t, err)

	require.Equal(t, int64(42), st.Get(1, 0).Value)
	require.Equal(t, int64(42), st.Get(2, 0).Value)
	require.Equal(t, object.Absolute, st.Get(1, 0).Size)
}

func TestSymbolChainAcrossObjects(t *testing.T) {
	// a exports X as Y+1, importing Y from b; c imports X.
	objs := []*object.Object{
		newObj("a.o").
			imp("Y", object.Absolute).
			exp("X", object.Absolute, object.Binary{Op: object.Add, L: object.Sym(0), R: object.Lit(1)}).o,
		newObj("b.o").exp("Y", object.Absolute, object.Lit(5)).o,
		newObj("c.o").imp("X", object.Absolute).o,
	}

	st, err := buildSymbols(t, emptyScript(), objs)
	require.NoError(t, err)

	require.Equal(t, int64(6), st.Get(0, 0).Value+1)
	require.Equal(t, int64(6), st.Get(2, 0).Value)
}

func TestSymbolSectionAddress(t *testing.T) {
	s := oneFile(
		[]script.Memory{mem("PRG", 0x8000, 0x10)},
		[]script.Segment{seg("CODE", 0)},
	)

	objs := []*object.Object{
		newObj("a.o").
			section("CODE", object.Bytes{1, 2}).
			section("CODE", object.Bytes{3}).
			exp("SECOND", object.Absolute, object.Sect(1)).o,
		newObj("b.o").imp("SECOND", object.Absolute).o,
	}

	st, err := buildSymbols(t, s, objs)
	require.NoError(t, err)

	require.Equal(t, int64(0x8002), st.Get(1, 0).Value)
}

func TestSymbolDroppedSectionReference(t *testing.T) {
	s := oneFile(
		[]script.Memory{mem("PRG", 0x8000, 0x10)},
		[]script.Segment{seg("CODE", 0)},
	)

	objs := []*object.Object{
		newObj("a.o").
			section("RODATA"). // dropped: empty assembler default
			exp("BAD", object.Absolute, object.Sect(0)).o,
		newObj("b.o").imp("BAD", object.Absolute).o,
	}

	_, err := buildSymbols(t, s, objs)
	require.ErrorContains(t, err, "unknown section")
}

func TestSymbolCircularReference(t *testing.T) {
	objs := []*object.Object{
		newObj("a.o").
			imp("Y", object.Absolute).
			exp("X", object.Absolute, object.Sym(0)).o,
		newObj("b.o").
			imp("X", object.Absolute).
			exp("Y", object.Absolute, object.Sym(0)).o,
	}

	_, err := buildSymbols(t, emptyScript(), objs)
	require.ErrorContains(t, err, "circular reference")
}

func TestSymbolDuplicateExport(t *testing.T) {
	objs := []*object.Object{
		newObj("a.o").exp("X", object.Absolute, object.Lit(1)).o,
		newObj("b.o").exp("X", object.Absolute, object.Lit(2)).o,
	}

	_, err := buildSymbols(t, emptyScript(), objs)
	require.ErrorContains(t, err, "duplicate export: X")
}

func TestSymbolNotExported(t *testing.T) {
	objs := []*object.Object{
		newObj("a.o").imp("MISSING", object.Absolute).o,
	}

	_, err := buildSymbols(t, emptyScript(), objs)
	require.ErrorContains(t, err, "symbol MISSING is not exported")
}

func TestSymbolAddrSizeMismatch(t *testing.T) {
	objs := []*object.Object{
		newObj("a.o").exp("X", object.Absolute, object.Lit(1)).o,
		newObj("b.o").imp("X", object.Zeropage).o,
	}

	_, err := buildSymbols(t, emptyScript(), objs)
	require.ErrorContains(t, err, "address size mismatch")
}

func TestSymbolMissingExpression(t *testing.T) {
	objs := []*object.Object{
		newObj("a.o").exp("X", object.Absolute, nil).o,
		newObj("b.o").imp("X", object.Absolute).o,
	}

	_, err := buildSymbols(t, emptyScript(), objs)
	require.ErrorContains(t, err, "missing expression")
}

func TestSymbolOperators(t *testing.T) {
	// -(2*3) + (20>>2) = -6 + 5 = -1
	expr := object.Binary{
		Op: object.Add,
		L: object.Unary{
			Op: object.Neg,
			X:  object.Binary{Op: object.Mul, L: object.Lit(2), R: object.Lit(3)},
		},
		R: object.Binary{Op: object.Shr, L: object.Lit(20), R: object.Lit(2)},
	}

	objs := []*object.Object{
		newObj("a.o").exp("X", object.Absolute, expr).o,
		newObj("b.o").imp("X", object.Absolute).o,
	}

	st, err := buildSymbols(t, emptyScript(), objs)
	require.NoError(t, err)

	require.Equal(t, int64(-1), st.Get(1, 0).Value)
}

func TestSymbolDivisionByZero(t *testing.T) {
	objs := []*object.Object{
		newObj("a.o").exp("X", object.Absolute, object.Binary{Op: object.Div, L: object.Lit(1), R: object.Lit(0)}).o,
		newObj("b.o").imp("X", object.Absolute).o,
	}

	_, err := buildSymbols(t, emptyScript(), objs)
	require.ErrorContains(t, err, "division by zero")
}

func TestSymbolDeepExpression(t *testing.T) {
	var expr object.Expr = object.Lit(0)
	for i := 0; i < 5000; i++ {
		expr = object.Binary{Op: object.Add, L: expr, R: object.Lit(1)}
	}

	objs := []*object.Object{
		newObj("a.o").exp("DEEP", object.Absolute, expr).o,
		newObj("b.o").imp("DEEP", object.Absolute).o,
	}

	st, err := buildSymbols(t, emptyScript(), objs)
	require.NoError(t, err)

	require.Equal(t, int64(5000), st.Get(1, 0).Value)
}
