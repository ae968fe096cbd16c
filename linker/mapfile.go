package linker

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/xo65/ldx/linker/index"
)

// AppendMap appends a human-readable placement listing: every output file
// with its regions, segments and sections, then the resolved value of every
// import slot.
func (r *Result) AppendMap(b []byte) []byte {
	g, l := r.graph, r.layout

	for fi := 0; fi < g.FileCount(); fi++ {
		file := index.File(fi)

		if fi != 0 {
			b = append(b, '\n')
		}

		b = hfmt.Appendf(b, "output %v: $%04X bytes\n", g.FileName(file), l.File(file).Len)

		for _, mem := range g.FileMems(file) {
			ml := l.Mem(mem)

			b = hfmt.Appendf(b, "  memory %v: start $%04X size $%04X out $%04X\n",
				g.MemName(mem), ml.Range.Min, ml.Range.Len(), ml.OutLen)

			for _, seg := range g.MemSegs(mem) {
				sl := l.Seg(seg)

				b = hfmt.Appendf(b, "    segment %v: start $%04X out $%04X\n",
					g.SegName(seg), sl.Start, sl.OutLen)

				for _, sect := range g.SegSects(seg) {
					cl := l.Sect(sect)
					os := g.ObjSectOfSect(sect)

					b = hfmt.Appendf(b, "      %v #%d: start $%04X out $%04X\n",
						r.objs[os.Obj].Name, int(os.Sect), cl.Start, cl.OutLen)
				}
			}
		}
	}

	b = append(b, "\nimports\n"...)

	for oi, o := range r.objs {
		for ii := range o.Imports {
			name, err := o.ImportName(index.ObjImport(ii))
			if err != nil {
				name = "?"
			}

			sym := r.syms.Get(index.Obj(oi), index.ObjImport(ii))

			b = hfmt.Appendf(b, "  %v: %v = %d (%v)\n", o.Name, name, sym.Value, sym.Size)
		}
	}

	return b
}
