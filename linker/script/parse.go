package script

import (
	"bytes"
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

type (
	parser struct {
		b []byte
		i int
	}
)

// parse turns script text into an unevaluated tree.
//
// Grammar, loosely: `BLOCK { ELEM: key=value, ...; ... } ...` where '=' and
// ',' may be replaced by plain whitespace. '#' starts a line comment.
// Numbers are decimal, $hex or %binary. %O stands for the main output name.
func parse(b []byte) (t tree, err error) {
	p := &parser{b: b}

	p.ign()

	for !p.eof() {
		bl, err := p.block()
		if err != nil {
			return t, err
		}

		t.Blocks = append(t.Blocks, bl)

		p.ign()
	}

	return t, nil
}

func (p *parser) block() (bl block, err error) {
	name, ok := p.ident()
	if !ok {
		return bl, p.errf("block name expected")
	}

	bl.Name = strings.ToLower(name)

	p.ign()

	if !p.eat('{') {
		return bl, p.errf("'{' expected after block %v", bl.Name)
	}

	p.ign()

	for !p.eat('}') {
		if p.eof() {
			return bl, p.errf("'}' expected to close block %v", bl.Name)
		}

		el, err := p.element()
		if err != nil {
			return bl, err
		}

		bl.Elems = append(bl.Elems, el)

		p.ign()
	}

	return bl, nil
}

func (p *parser) element() (el element, err error) {
	name, ok := p.ident()
	if !ok {
		return el, p.errf("element name expected")
	}

	el.Name = name

	p.ign()

	if !p.eat(':') {
		return el, p.errf("':' expected after element %v", el.Name)
	}

	p.ign()

	for {
		a, err := p.attr()
		if err != nil {
			return el, err
		}

		el.Attrs = append(el.Attrs, a)

		p.ign()

		if p.eat(';') {
			break
		}

		if p.eat(',') {
			p.ign()
		}
	}

	return el, nil
}

func (p *parser) attr() (a attribute, err error) {
	key, ok := p.ident()
	if !ok {
		return a, p.errf("attribute expected")
	}

	a.Key = strings.ToLower(key)

	p.ign()
	p.eat('=')
	p.ign()

	a.Value, err = p.value()
	if err != nil {
		return a, errors.Wrap(err, "attribute %v", a.Key)
	}

	return a, nil
}

func (p *parser) value() (value, error) {
	if p.eof() {
		return nil, p.errf("value expected")
	}

	switch c := p.b[p.i]; {
	case c == '"':
		return p.str()
	case c == '%' && p.i+1 < len(p.b) && p.b[p.i+1] == 'O':
		p.i += 2

		return strVal{Parts: []strPart{mainOutPart{}}}, nil
	case c == '%' || c == '$' || c >= '0' && c <= '9':
		return p.number()
	default:
		word, ok := p.ident()
		if !ok {
			return nil, p.errf("value expected")
		}

		switch strings.ToLower(word) {
		case "yes", "true":
			return boolVal(true), nil
		case "no", "false":
			return boolVal(false), nil
		}

		return identVal(word), nil
	}
}

func (p *parser) number() (value, error) {
	st := p.i
	base := 10

	switch p.b[p.i] {
	case '$':
		base = 16
		p.i++
	case '%':
		base = 2
		p.i++
	}

	dst := p.i

	for p.i < len(p.b) && isBaseDigit(p.b[p.i], base) {
		p.i++
	}

	if p.i == dst {
		return nil, p.errAt(st, "number expected")
	}

	x, err := strconv.ParseUint(string(p.b[dst:p.i]), base, 32)
	if err != nil {
		return nil, p.errAt(st, "bad number %s", p.b[st:p.i])
	}

	return uintVal(x), nil
}

func (p *parser) str() (value, error) {
	p.i++ // opening quote

	var parts []strPart

	for {
		if p.eof() {
			return nil, p.errf("unterminated string")
		}

		switch c := p.b[p.i]; {
		case c == '"':
			p.i++

			return strVal{Parts: parts}, nil
		case c == '%':
			if p.i+1 >= len(p.b) {
				return nil, p.errf("unterminated string")
			}

			switch p.b[p.i+1] {
			case 'O':
				parts = append(parts, mainOutPart{})
			case '%':
				parts = append(parts, percentPart{})
			default:
				return nil, p.errf("bad escape %%%c in string", p.b[p.i+1])
			}

			p.i += 2
		default:
			dst := p.i

			for p.i < len(p.b) && p.b[p.i] != '"' && p.b[p.i] != '%' {
				p.i++
			}

			parts = append(parts, litPart(p.b[dst:p.i]))
		}
	}
}

func (p *parser) ident() (string, bool) {
	if p.eof() || !isIdentStart(p.b[p.i]) {
		return "", false
	}

	st := p.i
	p.i++

	for p.i < len(p.b) && isIdentChar(p.b[p.i]) {
		p.i++
	}

	return string(p.b[st:p.i]), true
}

// ign skips whitespace and # comments.
func (p *parser) ign() {
	for p.i < len(p.b) {
		switch c := p.b[p.i]; {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.i++
		case c == '#':
			for p.i < len(p.b) && p.b[p.i] != '\n' {
				p.i++
			}
		default:
			return
		}
	}
}

func (p *parser) eat(c byte) bool {
	if p.eof() || p.b[p.i] != c {
		return false
	}

	p.i++

	return true
}

func (p *parser) eof() bool {
	return p.i >= len(p.b)
}

func (p *parser) errf(f string, args ...any) error {
	return p.errAt(p.i, f, args...)
}

func (p *parser) errAt(i int, f string, args ...any) error {
	line := 1 + bytes.Count(p.b[:i], []byte{'\n'})

	return errors.Wrap(errors.New(f, args...), "line %d", line)
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isBaseDigit(c byte, base int) bool {
	switch base {
	case 2:
		return c == '0' || c == '1'
	case 16:
		return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
	default:
		return c >= '0' && c <= '9'
	}
}
