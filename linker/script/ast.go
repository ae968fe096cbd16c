package script

type (
	// tree is a parsed but unevaluated script.
	tree struct {
		Blocks []block
	}

	// block is `NAME { elements }`. Names are folded to lower case.
	block struct {
		Name  string
		Elems []element
	}

	// element is `NAME: key=value, ...;`. The '=' and ',' are optional.
	element struct {
		Name  string
		Attrs []attribute
	}

	// attribute is a single `key=value`. Keys are folded to lower case.
	attribute struct {
		Key   string
		Value value
	}

	// value is one of uintVal, boolVal, identVal, strVal.
	value any

	uintVal  uint32
	boolVal  bool
	identVal string

	// strVal is a quoted string (or bare %O), kept as parts so %O can be
	// substituted at eval time.
	strVal struct {
		Parts []strPart
	}

	// strPart is one of litPart, mainOutPart, percentPart.
	strPart any

	litPart     string
	mainOutPart struct{}
	percentPart struct{}
)

// format substitutes %O and %% and returns the final string.
func (s strVal) format(mainOut string) string {
	var res []byte

	for _, p := range s.Parts {
		switch p := p.(type) {
		case litPart:
			res = append(res, p...)
		case mainOutPart:
			res = append(res, mainOut...)
		case percentPart:
			res = append(res, '%')
		}
	}

	return string(res)
}
