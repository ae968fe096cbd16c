package linker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xo65/ldx/linker/object"
	"github.com/xo65/ldx/linker/script"
)

func link(t *testing.T, s *script.Script, objs []*object.Object) ([]byte, error) {
	t.Helper()

	res, err := Link(context.Background(), s, objs)
	if err != nil {
		return nil, err
	}

	require.Len(t, res.Outputs, len(s.OutFiles))

	return res.Outputs[0].Body, nil
}

func TestEmitLiteralAndFill(t *testing.T) {
	m := mem("PRG", 0x8000, 0x10)
	m.Filled = true

	s := oneFile([]script.Memory{m}, []script.Segment{seg("CODE", 0)})

	objs := []*object.Object{
		newObj("a.o").
			section("CODE", object.Bytes{0xAA, 0xBB, 0xCC, 0xDD}, object.Fill(2)).o,
	}

	body, err := link(t, s, objs)
	require.NoError(t, err)

	want := make([]byte, 0x10)
	copy(want, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0x00, 0x00})
	require.Equal(t, want, body)
}

func TestEmitRegionFillByte(t *testing.T) {
	m := mem("PRG", 0x8000, 8)
	m.Filled = true
	m.FillByte = 0xFF

	s := oneFile([]script.Memory{m}, []script.Segment{seg("CODE", 0)})

	objs := []*object.Object{
		newObj("a.o").section("CODE", object.Bytes{1, 2}, object.Fill(2)).o,
	}

	body, err := link(t, s, objs)
	require.NoError(t, err)

	// the fill run uses the region's fill byte, and so does the tail
	require.Equal(t, []byte{1, 2, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, body)
}

func TestEmitSegmentFillOverride(t *testing.T) {
	m := mem("PRG", 0x8000, 8)
	m.Filled = true
	m.FillByte = 0xFF

	sg := seg("CODE", 0)
	sg.FillByte = 0x11
	sg.HasFill = true

	s := oneFile([]script.Memory{m}, []script.Segment{sg})

	objs := []*object.Object{
		newObj("a.o").section("CODE", object.Bytes{1}, object.Fill(2)).o,
	}

	body, err := link(t, s, objs)
	require.NoError(t, err)

	// fill run uses the segment override, region tail keeps its own byte
	require.Equal(t, []byte{1, 0x11, 0x11, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, body)
}

func TestEmitExprLittleEndian(t *testing.T) {
	s := oneFile(
		[]script.Memory{mem("PRG", 0x8000, 0x10)},
		[]script.Segment{seg("CODE", 0)},
	)

	objs := []*object.Object{
		newObj("a.o").
			section("CODE",
				object.Value{Expr: object.Lit(0x12), Size: 1},
				object.Value{Expr: object.Lit(0x1234), Size: 2},
				object.Value{Expr: object.Lit(0x123456), Size: 3},
				object.Value{Expr: object.Lit(0x12345678), Size: 4},
				object.Value{Expr: object.Lit(-2), Size: 2, Signed: true},
			).o,
	}

	body, err := link(t, s, objs)
	require.NoError(t, err)

	require.Equal(t, []byte{
		0x12,
		0x34, 0x12,
		0x56, 0x34, 0x12,
		0x78, 0x56, 0x34, 0x12,
		0xFE, 0xFF,
	}, body)
}

func TestEmitExprOverflow(t *testing.T) {
	for _, tc := range []struct {
		name string
		frag object.Value
		ok   bool
	}{
		{"u16 max", object.Value{Expr: object.Lit(0xFFFF), Size: 2}, true},
		{"u16 over", object.Value{Expr: object.Lit(0x10000), Size: 2}, false},
		{"u24 max", object.Value{Expr: object.Lit(0xFFFFFF), Size: 3}, true},
		{"u24 over", object.Value{Expr: object.Lit(0x1000000), Size: 3}, false},
		{"s24 min", object.Value{Expr: object.Lit(-0x800000), Size: 3, Signed: true}, true},
		{"s24 under", object.Value{Expr: object.Lit(-0x800001), Size: 3, Signed: true}, false},
		{"u8 negative", object.Value{Expr: object.Lit(-1), Size: 1}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := oneFile(
				[]script.Memory{mem("PRG", 0x8000, 0x10)},
				[]script.Segment{seg("CODE", 0)},
			)

			objs := []*object.Object{
				newObj("a.o").section("CODE", tc.frag).o,
			}

			_, err := link(t, s, objs)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, "does not fit")
			}
		})
	}
}

func TestEmitSymbolValue(t *testing.T) {
	s := oneFile(
		[]script.Memory{mem("PRG", 0x8000, 0x10)},
		[]script.Segment{seg("CODE", 0)},
	)

	objs := []*object.Object{
		newObj("a.o").
			section("CODE", object.Bytes{0x4C}, object.Value{Expr: object.Sym(0), Size: 2}).
			imp("ENTRY", object.Absolute).o,
		newObj("b.o").
			section("CODE", object.Bytes{0x60}).
			exp("ENTRY", object.Absolute, object.Sect(0)).o,
	}

	body, err := link(t, s, objs)
	require.NoError(t, err)

	// b.o's section lands after a.o's three bytes, at $8003
	require.Equal(t, []byte{0x4C, 0x03, 0x80, 0x60}, body)
}

func TestEmitBSSEmitsNothing(t *testing.T) {
	bss := seg("ZP", 1)
	bss.BSS = true

	s := oneFile(
		[]script.Memory{mem("PRG", 0x8000, 8), mem("RAM", 0x0000, 8)},
		[]script.Segment{seg("CODE", 0), bss},
	)

	objs := []*object.Object{
		newObj("a.o").
			section("ZP", object.Bytes{0xEE, 0xEE}).
			section("CODE", object.Bytes{1}).o,
	}

	body, err := link(t, s, objs)
	require.NoError(t, err)

	// BSS content never reaches the output
	require.Equal(t, []byte{1}, body)
}

func TestEmitUnfilledGapRejected(t *testing.T) {
	bss := seg("ZP", 0)
	bss.BSS = true

	s := oneFile(
		[]script.Memory{mem("RAM", 0x0000, 8)},
		[]script.Segment{bss, seg("CODE", 0)},
	)

	objs := []*object.Object{
		newObj("a.o").
			section("ZP", object.Fill(2)).
			section("CODE", object.Bytes{1}).o,
	}

	// the BSS reservation leaves a hole the unfilled region cannot cover
	_, err := link(t, s, objs)
	require.ErrorContains(t, err, "unfilled gap")

	// filling the region makes room for the gap
	s.Mems[0].Filled = true

	body, err := link(t, s, objs)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 1, 0, 0, 0, 0, 0}, body)
}
