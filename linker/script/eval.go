package script

import (
	"strings"

	"tlog.app/go/errors"

	"github.com/xo65/ldx/linker/index"
)

type (
	evalState struct {
		outFiles []string // first is main output
		mems     []Memory
		memIdx   map[string]index.Mem
		segs     []Segment
	}
)

// eval validates the parsed tree and builds the script model.
func eval(t tree, mainOut string) (*Script, error) {
	err := checkDup(t)
	if err != nil {
		return nil, err
	}

	st := &evalState{
		outFiles: []string{mainOut},
		memIdx:   map[string]index.Mem{},
	}

	for _, bl := range t.Blocks {
		err = st.block(bl)
		if err != nil {
			return nil, errors.Wrap(err, "block %v", bl.Name)
		}
	}

	return &Script{OutFiles: st.outFiles, Mems: st.mems, Segs: st.segs}, nil
}

// checkDup rejects duplicate block names, element names within a block and
// attribute keys within an element.
func checkDup(t tree) error {
	blocks := map[string]struct{}{}

	for _, bl := range t.Blocks {
		if _, ok := blocks[bl.Name]; ok {
			return errors.New("duplicate block: %v", bl.Name)
		}

		blocks[bl.Name] = struct{}{}

		elems := map[string]struct{}{}

		for _, el := range bl.Elems {
			if _, ok := elems[el.Name]; ok {
				return errors.New("block %v: duplicate element: %v", bl.Name, el.Name)
			}

			elems[el.Name] = struct{}{}

			attrs := map[string]struct{}{}

			for _, a := range el.Attrs {
				if _, ok := attrs[a.Key]; ok {
					return errors.New("block %v: element %v: duplicate attribute: %v", bl.Name, el.Name, a.Key)
				}

				attrs[a.Key] = struct{}{}
			}
		}
	}

	return nil
}

func (st *evalState) block(bl block) error {
	switch bl.Name {
	case "memory":
		return st.memoryBlock(bl)
	case "segments":
		return st.segmentsBlock(bl)
	default:
		return errors.New("unknown block: %v", bl.Name)
	}
}

func (st *evalState) memoryBlock(bl block) (err error) {
	for _, el := range bl.Elems {
		mem, err := st.memoryElem(el)
		if err != nil {
			return errors.Wrap(err, "memory %v", el.Name)
		}

		st.memIdx[el.Name] = index.Mem(len(st.mems))
		st.mems = append(st.mems, mem)
	}

	return nil
}

func (st *evalState) memoryElem(el element) (mem Memory, err error) {
	mem = Memory{Name: el.Name}

	start, size := -1, -1

	for _, a := range el.Attrs {
		switch a.Key {
		case "start":
			v, ok := a.Value.(uintVal)
			if !ok {
				return mem, errors.New("bad start address: %v", a.Value)
			}

			start = int(v)
		case "size":
			v, ok := a.Value.(uintVal)
			if !ok {
				return mem, errors.New("bad size: %v", a.Value)
			}

			size = int(v)
		case "type":
			v, ok := a.Value.(identVal)
			if !ok {
				return mem, errors.New("bad memory type: %v", a.Value)
			}

			switch strings.ToLower(string(v)) {
			case "ro", "rw": // access type carries no meaning here
			default:
				return mem, errors.New("bad memory type: %v", v)
			}
		case "fill":
			v, ok := a.Value.(boolVal)
			if !ok {
				return mem, errors.New("bad fill value: %v", a.Value)
			}

			mem.Filled = bool(v)
		case "fillval":
			v, ok := a.Value.(uintVal)
			if !ok || v > 0xFF {
				return mem, errors.New("bad fillval: %v", a.Value)
			}

			mem.FillByte = byte(v)
		case "file":
			v, ok := a.Value.(strVal)
			if !ok {
				return mem, errors.New("bad file name: %v", a.Value)
			}

			name := v.format(st.outFiles[0])
			if name == "" {
				return mem, errors.New("output file name is empty")
			}

			mem.File = st.outFile(name)
		case "bank", "define":
			return mem, errors.New("attribute %v is not supported", a.Key)
		default:
			return mem, errors.New("unknown memory attribute: %v", a.Key)
		}
	}

	if start < 0 {
		return mem, errors.New("start address not specified")
	}

	if size < 0 {
		return mem, errors.New("size not specified")
	}

	if size == 0 {
		return mem, errors.New("size must be positive")
	}

	mem.Range = RangeFromStartLen(start, size)

	return mem, nil
}

func (st *evalState) segmentsBlock(bl block) (err error) {
	for _, el := range bl.Elems {
		seg, err := st.segmentElem(el)
		if err != nil {
			return errors.Wrap(err, "segment %v", el.Name)
		}

		// An explicit start address must lie inside the target memory.
		if start, ok := seg.Start.(StartAddr); ok {
			mem := st.mems[seg.Mem]
			if !mem.Range.Contains(int(start)) {
				return errors.New("segment %v: start address is outside memory %v", seg.Name, mem.Name)
			}
		}

		st.segs = append(st.segs, seg)
	}

	return nil
}

func (st *evalState) segmentElem(el element) (seg Segment, err error) {
	seg = Segment{Name: el.Name, Mem: -1}

	startSet := false

	for _, a := range el.Attrs {
		switch a.Key {
		case "load":
			v, ok := a.Value.(identVal)
			if !ok {
				return seg, errors.New("bad load value: %v", a.Value)
			}

			mem, ok := st.memIdx[string(v)]
			if !ok {
				return seg, errors.New("unknown memory: %v", v)
			}

			seg.Mem = mem
		case "type":
			v, ok := a.Value.(identVal)
			if !ok {
				return seg, errors.New("bad segment type: %v", a.Value)
			}

			switch strings.ToLower(string(v)) {
			case "ro", "rw": // access type carries no meaning here
			case "zp", "bss":
				seg.BSS = true
			case "overwrite":
				return seg, errors.New("segment type overwrite is not supported")
			default:
				return seg, errors.New("bad segment type: %v", v)
			}
		case "start":
			if startSet {
				return seg, errors.New("attribute start/align appeared twice")
			}

			v, ok := a.Value.(uintVal)
			if !ok {
				return seg, errors.New("bad start address: %v", a.Value)
			}

			seg.Start = StartAddr(v)
			startSet = true
		case "align":
			if startSet {
				return seg, errors.New("attribute start/align appeared twice")
			}

			v, ok := a.Value.(uintVal)
			if !ok {
				return seg, errors.New("bad alignment: %v", a.Value)
			}

			seg.Start = StartAlign(v)
			startSet = true
		case "fillval":
			v, ok := a.Value.(uintVal)
			if !ok || v > 0xFF {
				return seg, errors.New("bad fillval: %v", a.Value)
			}

			seg.FillByte = byte(v)
			seg.HasFill = true
		case "align_load", "define", "offset", "optional", "run":
			return seg, errors.New("attribute %v is not supported", a.Key)
		default:
			return seg, errors.New("unknown segment attribute: %v", a.Key)
		}
	}

	if seg.Mem < 0 {
		return seg, errors.New("load memory not specified")
	}

	return seg, nil
}

// outFile returns the index of the named output file, adding it to the list
// on first use.
func (st *evalState) outFile(name string) index.File {
	for i, f := range st.outFiles {
		if f == name {
			return index.File(i)
		}
	}

	st.outFiles = append(st.outFiles, name)

	return index.File(len(st.outFiles) - 1)
}
