package formula

import (
	"errors"
	"fmt"
)

// Evaluation failure kinds. Match them with errors.Is.
var (
	ErrUnknownVariable = errors.New("UnknownVariable")
	ErrTypeMismatch    = errors.New("TypeMismatch")
	ErrShapeMismatch   = errors.New("ShapeMismatch")
	ErrDivisionByZero  = errors.New("DivisionByZero")
	ErrOverflow        = errors.New("Overflow")
)

// SyntaxError reports a malformed formula. Pos is a byte offset into the source.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: %s at position %d", e.Msg, e.Pos)
}

// EvalError is a typed evaluation failure
type EvalError struct {
	Kind   error
	Name   string // offending identifier, if any
	Detail string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *EvalError) Unwrap() error {
	return e.Kind
}

func unknownVariable(name string) error {
	return &EvalError{Kind: ErrUnknownVariable, Name: name, Detail: fmt.Sprintf("%s is not defined", name)}
}

func typeMismatch(format string, args ...any) error {
	return &EvalError{Kind: ErrTypeMismatch, Detail: fmt.Sprintf(format, args...)}
}

func shapeMismatch(left, right int) error {
	return &EvalError{Kind: ErrShapeMismatch, Detail: fmt.Sprintf("cannot broadcast arrays of length %d and %d", left, right)}
}

func divisionByZero(op string) error {
	return &EvalError{Kind: ErrDivisionByZero, Detail: fmt.Sprintf("right operand of %s is zero", op)}
}

func overflow(op string) error {
	return &EvalError{Kind: ErrOverflow, Detail: fmt.Sprintf("result of %s is not a finite number", op)}
}
