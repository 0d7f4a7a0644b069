package tensorvec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRowReference is returned when an operation needs inline data but
	// was handed a row reference.
	ErrRowReference = errors.New("tensorvec: row reference vector has no inline payload")
	// ErrEmptyVector is returned for the zero Vector.
	ErrEmptyVector = errors.New("tensorvec: empty vector")
)

// hintIndent is the width of `HINT:  error occur at pos (%5d): "`.
const hintIndent = 36

// SyntaxError reports a malformed text literal together with the byte
// offset where parsing failed.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e SyntaxError) Error() string {
	return "invalid input: \"" + e.Input + "\": " + e.Msg + "."
}

// Hint renders up to 20 bytes on each side of the failure position and a
// caret under it.
func (e SyntaxError) Hint() string {
	pos := e.Pos
	if pos < 0 {
		pos = 0
	}
	if pos > len(e.Input) {
		pos = len(e.Input)
	}
	start := pos - 20
	if start < 0 {
		start = 0
	}
	end := pos + 20
	if end > len(e.Input) {
		end = len(e.Input)
	}
	before := e.Input[start:pos]
	after := e.Input[pos:end]
	prefix, suffix := "", ""
	spaces := hintIndent + len(before)
	if start > 0 {
		prefix = "..."
		spaces += 3
	}
	if end < len(e.Input) {
		suffix = "..."
	}
	return fmt.Sprintf("error occur at pos (%5d): \"%s%s%s%s\"\n%s^",
		pos, prefix, before, after, suffix, strings.Repeat(" ", spaces))
}

// Detail is the full two-part diagnostic as shown to users.
func (e SyntaxError) Detail() string {
	return e.Error() + "\nHINT:  " + e.Hint()
}

// IsSyntax reports whether err is a SyntaxError.
func IsSyntax(err error) bool {
	var se SyntaxError
	return errors.As(err, &se)
}

// ShapeMismatchError signals a dim/shape inconsistency.
type ShapeMismatchError struct{ Msg string }

func (e ShapeMismatchError) Error() string { return e.Msg }

// IsShapeMismatch reports whether err is a ShapeMismatchError.
func IsShapeMismatch(err error) bool {
	var se ShapeMismatchError
	return errors.As(err, &se)
}

// LimitExceededError signals a dimension or rank over a hard cap.
type LimitExceededError struct {
	Msg   string
	Limit int
}

func (e LimitExceededError) Error() string { return e.Msg }

// IsLimitExceeded reports whether err is a LimitExceededError.
func IsLimitExceeded(err error) bool {
	var le LimitExceededError
	return errors.As(err, &le)
}

func limitDim() error {
	return LimitExceededError{Msg: fmt.Sprintf("vector cannot have more than %d dimensions", MaxDim), Limit: MaxDim}
}

func limitShape() error {
	return LimitExceededError{Msg: fmt.Sprintf("vector shape cannot have more than %d", MaxShapeSize), Limit: MaxShapeSize}
}

// OverflowError reports an elementwise result that became infinite while
// both inputs were finite.
type OverflowError struct {
	Op          byte
	Left, Right float32
}

func (e OverflowError) Error() string {
	return fmt.Sprintf("overflow for %f %c %f", e.Left, e.Op, e.Right)
}

// IsOverflow reports whether err is an OverflowError.
func IsOverflow(err error) bool {
	var oe OverflowError
	return errors.As(err, &oe)
}

// UnsupportedTypeError names a Go type FromArray cannot convert.
type UnsupportedTypeError struct{ Type string }

func (e UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported %s type to mvec", e.Type)
}
