package tensorvec

import (
	"errors"
	"strconv"
	"strings"
)

const whitespace = " \t\n\r\v\f"

func isSpace(c byte) bool {
	return strings.IndexByte(whitespace, c) >= 0
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) fail(at int, msg string) error {
	return SyntaxError{Input: p.src, Pos: at, Msg: msg}
}

// list walks a bracketed, comma separated list whose opening byte has
// already been consumed. Each trimmed token is handed to elem with its
// starting offset.
func (p *parser) list(closing byte, what string, limit func() error, maxCount int, elem func(tok string, at int) error) error {
	p.skipSpace()
	if !p.eof() && p.src[p.pos] == closing {
		return p.fail(p.pos, what+" must have at least 1 dimension")
	}
	n := 0
	for {
		p.skipSpace()
		if p.eof() {
			return p.fail(p.pos, "malformed "+what+" literal: missing closing \""+string(closing)+"\"")
		}
		switch p.src[p.pos] {
		case ',':
			return p.fail(p.pos, "malformed "+what+" literal: consecutive commas")
		case closing:
			return p.fail(p.pos, "invalid input syntax for type "+what)
		}
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != ',' && p.src[p.pos] != closing {
			p.pos++
		}
		if n == maxCount {
			return limit()
		}
		tok := strings.TrimRight(p.src[start:p.pos], whitespace)
		if err := elem(tok, start); err != nil {
			return err
		}
		n++
		if p.eof() {
			return p.fail(p.pos, "malformed "+what+" literal: missing closing \""+string(closing)+"\"")
		}
		if p.src[p.pos] == closing {
			p.pos++
			return nil
		}
		p.pos++
	}
}

// Parse reads a vector literal of the form `[f,...]` optionally followed by
// a shape clause `{i,...}`.
func Parse(s string) (Vector, error) {
	p := &parser{src: s}
	p.skipSpace()
	if p.eof() || p.src[p.pos] != '[' {
		return Vector{}, p.fail(p.pos, "vector contents must start with \"[\"")
	}
	p.pos++

	var data []float32
	err := p.list(']', "vector", limitDim, MaxDim, func(tok string, at int) error {
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return p.fail(at, "value out of range for type real")
			}
			return p.fail(at, "invalid input syntax for type vector")
		}
		data = append(data, float32(f))
		return nil
	})
	if err != nil {
		return Vector{}, err
	}

	p.skipSpace()
	if p.eof() {
		return newUnchecked(data, []int32{int32(len(data))}), nil
	}
	if p.src[p.pos] != '{' {
		return Vector{}, p.fail(p.pos, "malformed vector literal: unexpected character after \"]\"")
	}
	p.pos++

	var shape []int32
	err = p.list('}', "vector shape", limitShape, MaxShapeSize, func(tok string, at int) error {
		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return p.fail(at, "value out of range for type integer")
			}
			return p.fail(at, "invalid input syntax for type vector shape")
		}
		if n < 0 {
			return p.fail(at, "vector shape values must not be negative")
		}
		shape = append(shape, int32(n))
		return nil
	})
	if err != nil {
		return Vector{}, err
	}
	p.skipSpace()
	if !p.eof() {
		return Vector{}, p.fail(p.pos, "malformed vector shape literal: unexpected character after \"}\"")
	}
	if err := checkShape(len(data), shape); err != nil {
		return Vector{}, err
	}
	return newUnchecked(data, shape), nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level literals.
func MustParse(s string) Vector {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}
