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
	// Layout assigns absolute addresses and output extents to every
	// memory region, segment and section, and the byte length of every
	// output file. Built once from the Graph, read-only afterwards.
	Layout struct {
		files []FileLayout
		mems  []MemLayout
		segs  []SegLayout
		sects []SectLayout
	}

	FileLayout struct {
		Len int
	}

	MemLayout struct {
		FileOff  int
		Range    script.Range
		OutLen   int
		Filled   bool
		FillByte byte
	}

	SegLayout struct {
		Start    int
		OutLen   int
		FillByte byte
		HasFill  bool
	}

	SectLayout struct {
		Start  int
		OutLen int
	}
)

// NewLayout walks the graph in declaration order, one forward pass per
// output file. Explicit segment start addresses are checked against the
// monotonic address cursor; segments within a region must therefore be
// declared address-ascending.
func NewLayout(ctx context.Context, s *script.Script, objs []*object.Object, g *Graph) (l *Layout, err error) {
	l = &Layout{
		files: make([]FileLayout, g.FileCount()),
		mems:  make([]MemLayout, g.MemCount()),
		segs:  make([]SegLayout, g.SegCount()),
		sects: make([]SectLayout, g.SectCount()),
	}

	for fi := 0; fi < g.FileCount(); fi++ {
		file := index.File(fi)
		fileOff := 0

		for _, mem := range g.FileMems(file) {
			scriptMem := s.Mems[mem]
			addr := scriptMem.Range.Min

			ml := MemLayout{
				FileOff:  fileOff,
				Range:    scriptMem.Range,
				Filled:   scriptMem.Filled,
				FillByte: scriptMem.FillByte,
			}

			for _, seg := range g.MemSegs(mem) {
				scriptSeg := s.Segs[seg]

				switch start := scriptSeg.Start.(type) {
				case nil:
				case script.StartAddr:
					if int(start) < addr {
						return nil, errors.New("segment %v overwrites another segment", g.SegName(seg))
					}

					addr = int(start)
				case script.StartAlign:
					if start != 1 {
						return nil, errors.New("segment %v: alignment is not supported", g.SegName(seg))
					}
				default:
					return nil, errors.New("segment %v: bad start policy: %T", g.SegName(seg), start)
				}

				sl := SegLayout{
					Start:    addr,
					FillByte: scriptSeg.FillByte,
					HasFill:  scriptSeg.HasFill,
				}

				for _, sect := range g.SegSects(seg) {
					os := g.ObjSectOfSect(sect)
					obj := objs[os.Obj]
					objSect := &obj.Sections[os.Sect]

					if objSect.Align != 1 {
						return nil, errors.New("%v: section %v: alignment is not supported", obj.Name, int(os.Sect))
					}

					// A BSS section reserves address space but
					// emits no bytes.
					sectLen := objSect.Size()
					outLen := sectLen
					if scriptSeg.BSS {
						outLen = 0
					}

					l.sects[sect] = SectLayout{Start: addr, OutLen: outLen}

					sl.OutLen += outLen
					ml.OutLen += outLen

					if ml.OutLen > scriptMem.Range.Len() {
						return nil, errors.New("memory %v overflows", g.MemName(mem))
					}

					addr += sectLen
				}

				l.segs[seg] = sl
			}

			if ml.Filled {
				ml.OutLen = scriptMem.Range.Len()
			}

			fileOff += ml.OutLen

			l.mems[mem] = ml
		}

		l.files[file] = FileLayout{Len: fileOff}

		tlog.SpanFromContext(ctx).Printw("laid out file", "file", g.FileName(file), "len", fileOff)
	}

	return l, nil
}

func (l *Layout) File(f index.File) FileLayout { return l.files[f] }
func (l *Layout) Mem(m index.Mem) MemLayout    { return l.mems[m] }
func (l *Layout) Seg(s index.Seg) SegLayout    { return l.segs[s] }
func (l *Layout) Sect(s index.Sect) SectLayout { return l.sects[s] }
