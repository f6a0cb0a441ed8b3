package interp

import (
	"errors"
	"fmt"
)

// Runtime error kinds. A *RuntimeError unwraps to exactly one of these.
var (
	ErrDivisionByZero         = errors.New("division by zero")
	ErrNullDereference        = errors.New("null pointer dereference")
	ErrOutOfBounds            = errors.New("out-of-bounds access")
	ErrInvalidAddress         = errors.New("invalid address")
	ErrNegativeAlloc          = errors.New("negative allocation")
	ErrAllocTooLarge          = errors.New("allocation too large")
	ErrUnsupportedExtern      = errors.New("unsupported extern")
	ErrNotAFunction           = errors.New("call of non-function value")
	ErrIllTypedCompare        = errors.New("ill-typed comparison")
	ErrTypeMismatch           = errors.New("type mismatch")
	ErrBadResult              = errors.New("bad result from main")
	ErrNoCaller               = errors.New("no caller to return to")
	ErrUndefined              = errors.New("undefined name")
	ErrUnsupportedInstruction = errors.New("unsupported instruction")
)

// RuntimeError is a fatal error raised while executing a program.
type RuntimeError struct {
	Kind error
	Msg  string
}

func (e *RuntimeError) Error() string { return "runtime error: " + e.Msg }

func (e *RuntimeError) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
