package linker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xo65/ldx/linker/index"
	"github.com/xo65/ldx/linker/object"
	"github.com/xo65/ldx/linker/script"
)

type (
	testObj struct {
		o    *object.Object
		strs map[string]index.ObjStr
	}
)

func newObj(name string) *testObj {
	return &testObj{
		o:    &object.Object{Name: name},
		strs: map[string]index.ObjStr{},
	}
}

func (t *testObj) str(s string) index.ObjStr {
	if i, ok := t.strs[s]; ok {
		return i
	}

	i := index.ObjStr(len(t.o.Strings))
	t.o.Strings = append(t.o.Strings, s)
	t.strs[s] = i

	return i
}

func (t *testObj) section(seg string, frags ...object.Fragment) *testObj {
	t.o.Sections = append(t.o.Sections, object.Section{SegName: t.str(seg), Align: 1, Frags: frags})

	return t
}

func (t *testObj) imp(name string, size object.AddrSize) *testObj {
	t.o.Imports = append(t.o.Imports, object.Import{Name: t.str(name), Size: size})

	return t
}

func (t *testObj) exp(name string, size object.AddrSize, x object.Expr) *testObj {
	t.o.Exports = append(t.o.Exports, object.Export{Name: t.str(name), Size: size, Expr: x})

	return t
}

func mem(name string, start, size int) script.Memory {
	return script.Memory{Name: name, Range: script.RangeFromStartLen(start, size)}
}

func seg(name string, m index.Mem) script.Segment {
	return script.Segment{Name: name, Mem: m}
}

func oneFile(mems []script.Memory, segs []script.Segment) *script.Script {
	return &script.Script{OutFiles: []string{"a.out"}, Mems: mems, Segs: segs}
}

func TestLinkFiles(t *testing.T) {
	dir := t.TempDir()

	scriptPath := filepath.Join(dir, "game.cfg")
	err := os.WriteFile(scriptPath, []byte(`
# one bank of PRG
MEMORY {
    PRG: start=$8000, size=$0010, fill=yes;
}
SEGMENTS {
    CODE: load=PRG, type=ro;
}
`), 0o644)
	require.NoError(t, err)

	obj := newObj("game.o").
		section("CODE", object.Bytes{0xA9, 0x00}, object.Value{Expr: object.Sect(0), Size: 2}).o

	data, err := object.Encode(obj)
	require.NoError(t, err)

	objPath := filepath.Join(dir, "game.o")
	err = os.WriteFile(objPath, data, 0o644)
	require.NoError(t, err)

	res, err := LinkFiles(context.Background(), scriptPath, filepath.Join(dir, "game.bin"), []string{objPath})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)
	require.Equal(t, filepath.Join(dir, "game.bin"), res.Outputs[0].Path)

	want := make([]byte, 0x10)
	copy(want, []byte{0xA9, 0x00, 0x00, 0x80})
	require.Equal(t, want, res.Outputs[0].Body)

	m := res.AppendMap(nil)
	require.True(t, bytes.Contains(m, []byte("memory PRG")), "map: %s", m)
	require.True(t, bytes.Contains(m, []byte("segment CODE")), "map: %s", m)
}

func TestLinkTwoOutputFiles(t *testing.T) {
	s := &script.Script{
		OutFiles: []string{"a.out", "chr.bin"},
		Mems: []script.Memory{
			mem("PRG", 0x8000, 4),
			{Name: "CHR", Range: script.RangeFromStartLen(0, 2), File: 1},
		},
		Segs: []script.Segment{
			seg("CODE", 0),
			{Name: "TILES", Mem: 1},
		},
	}

	objs := []*object.Object{
		newObj("a.o").
			section("CODE", object.Bytes{1, 2, 3}).
			section("TILES", object.Bytes{7, 8}).o,
	}

	res, err := Link(context.Background(), s, objs)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)

	require.Equal(t, "a.out", res.Outputs[0].Path)
	require.Equal(t, []byte{1, 2, 3}, res.Outputs[0].Body)

	require.Equal(t, "chr.bin", res.Outputs[1].Path)
	require.Equal(t, []byte{7, 8}, res.Outputs[1].Body)
}
