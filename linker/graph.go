// Package linker is the linking engine: it maps object sections onto
// script-declared segments and memory regions, computes absolute addresses,
// resolves cross-module symbols and emits the final byte buffers.
package linker

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xo65/ldx/linker/index"
	"github.com/xo65/ldx/linker/object"
	"github.com/xo65/ldx/linker/script"
)

type (
	// Graph holds the structural relations between the linked entities:
	// file -> memories -> segments -> sections, plus the mapping between
	// global section identities and object-local sections. Built once,
	// read-only afterwards.
	Graph struct {
		fileMems [][]index.Mem
		memSegs  [][]index.Seg
		segSects [][]index.Sect
		objSects [][]index.Sect

		memFile []index.File
		segMem  []index.Mem
		sectSeg []index.Seg

		objSectSect [][]index.Sect // -1 for dropped sections
		sectObjSect []ObjSect

		fileNames []string
		memNames  []string
		segNames  []string
	}

	// ObjSect addresses one section of one object file.
	ObjSect struct {
		Obj  index.Obj
		Sect index.ObjSect
	}
)

// Segment names emitted by assemblers even when the source never mentions
// them. Such a section is dropped when empty and rejected when not, unless
// the script declares the segment.
var defaultSegNames = []string{"BSS", "CODE", "DATA", "NULL", "RODATA", "ZEROPAGE"}

// NewGraph classifies every object section into a script segment and builds
// the adjacency tables. Global section identities are assigned in object
// input order, then local declaration order.
func NewGraph(ctx context.Context, s *script.Script, objs []*object.Object) (g *Graph, err error) {
	g = &Graph{
		fileMems: make([][]index.Mem, len(s.OutFiles)),
		memSegs:  make([][]index.Seg, len(s.Mems)),
		segSects: make([][]index.Sect, len(s.Segs)),
		objSects: make([][]index.Sect, len(objs)),

		objSectSect: make([][]index.Sect, len(objs)),

		fileNames: s.OutFiles,
	}

	for _, mem := range s.Mems {
		g.fileMems[mem.File] = append(g.fileMems[mem.File], index.Mem(len(g.memFile)))
		g.memFile = append(g.memFile, mem.File)
		g.memNames = append(g.memNames, mem.Name)
	}

	for _, seg := range s.Segs {
		g.memSegs[seg.Mem] = append(g.memSegs[seg.Mem], index.Seg(len(g.segMem)))
		g.segMem = append(g.segMem, seg.Mem)
		g.segNames = append(g.segNames, seg.Name)
	}

	segIdx := map[string]index.Seg{}
	for i, seg := range s.Segs {
		segIdx[seg.Name] = index.Seg(i)
	}

	for oi, o := range objs {
		obj := index.Obj(oi)
		row := make([]index.Sect, len(o.Sections))

		for si := range o.Sections {
			objSect := index.ObjSect(si)

			segName, err := o.SegmentName(objSect)
			if err != nil {
				return nil, err
			}

			seg, ok := segIdx[segName]
			if !ok {
				if !isDefaultSegName(segName) {
					return nil, errors.New("%v: unknown segment: %v", o.Name, segName)
				}

				if !o.Sections[si].Empty() {
					return nil, errors.New("%v: cannot handle segment %v", o.Name, segName)
				}

				// Empty assembler-default section, contributes nothing.
				row[si] = -1

				continue
			}

			sect := index.Sect(len(g.sectSeg))

			g.segSects[seg] = append(g.segSects[seg], sect)
			g.objSects[obj] = append(g.objSects[obj], sect)
			g.sectSeg = append(g.sectSeg, seg)
			g.sectObjSect = append(g.sectObjSect, ObjSect{Obj: obj, Sect: objSect})
			row[si] = sect
		}

		g.objSectSect[oi] = row
	}

	tlog.SpanFromContext(ctx).Printw("built graph",
		"objects", len(objs), "segments", len(s.Segs), "sections", len(g.sectSeg))

	return g, nil
}

func isDefaultSegName(name string) bool {
	for _, s := range defaultSegNames {
		if s == name {
			return true
		}
	}

	return false
}

func (g *Graph) FileCount() int { return len(g.fileNames) }
func (g *Graph) MemCount() int  { return len(g.memNames) }
func (g *Graph) SegCount() int  { return len(g.segNames) }
func (g *Graph) SectCount() int { return len(g.sectSeg) }
func (g *Graph) ObjCount() int  { return len(g.objSects) }

func (g *Graph) FileName(f index.File) string { return g.fileNames[f] }
func (g *Graph) MemName(m index.Mem) string   { return g.memNames[m] }
func (g *Graph) SegName(s index.Seg) string   { return g.segNames[s] }

// FileMems lists the memory regions of an output file, declaration order.
func (g *Graph) FileMems(f index.File) []index.Mem { return g.fileMems[f] }

// MemSegs lists the segments of a memory region, declaration order.
func (g *Graph) MemSegs(m index.Mem) []index.Seg { return g.memSegs[m] }

// SegSects lists the sections of a segment, global identity order.
func (g *Graph) SegSects(s index.Seg) []index.Sect { return g.segSects[s] }

// ObjSects lists the global sections contributed by an object.
func (g *Graph) ObjSects(o index.Obj) []index.Sect { return g.objSects[o] }

func (g *Graph) MemFile(m index.Mem) index.File { return g.memFile[m] }
func (g *Graph) SegMem(s index.Seg) index.Mem   { return g.segMem[s] }
func (g *Graph) SectSeg(s index.Sect) index.Seg { return g.sectSeg[s] }

// SectOfObjSect maps an object-local section to its global identity. ok is
// false for sections dropped as empty assembler defaults.
func (g *Graph) SectOfObjSect(o index.Obj, s index.ObjSect) (index.Sect, bool) {
	sect := g.objSectSect[o][s]

	return sect, sect >= 0
}

// ObjSectOfSect maps a global section identity back to its object section.
func (g *Graph) ObjSectOfSect(s index.Sect) ObjSect { return g.sectObjSect[s] }
