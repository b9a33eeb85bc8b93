package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProgram is returned when an instruction names a program the
	// node cannot execute: unregistered, or bytecode-owned.
	ErrUnknownProgram          = errors.New("unknown program")
	ErrInvalidAccountIndex     = errors.New("invalid account index")
	ErrReadonlyAccountModified = errors.New("readonly account modified")
	ErrNilTransaction          = errors.New("nil transaction")
)

// InstructionError reports which instruction aborted a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }
