package blocktpl

import (
	"errors"
	"fmt"
)

// Load errors. A *LoadError wraps one of these with the source line.
var (
	ErrNestedSegment   = errors.New("segments cannot be nested")
	ErrBlockInSegment  = errors.New("cannot open a block within a segment")
	ErrReservedName    = errors.New("disallowed block/var name")
	ErrMissingName     = errors.New("tag requires a name")
	ErrEndMismatch     = errors.New("end name mismatch")
	ErrUnexpectedEnd   = errors.New("end found when not in a block or segment")
	ErrUnexpectedEndif = errors.New("endif found when not in an if-block")
	ErrEndifParam      = errors.New("unexpected param in endif tag")
	ErrEndifInSegment  = errors.New("endif found while still in segment")
	ErrUnclosedBlock   = errors.New("still in block at end of template")
	ErrUnclosedSegment = errors.New("still in segment at end of template")
)

// Mutation errors.
var (
	ErrDuplicateBlock = errors.New("duplicate block name")
	ErrBlockNotFound  = errors.New("block not found")
	ErrAttached       = errors.New("block already has a parent")
	ErrInvalidName    = errors.New("invalid name")
	ErrUnknownCommand = errors.New("unknown command")
)

// ErrCorruptOrder is the panic value raised when render order or index
// bookkeeping points outside its tables.
var ErrCorruptOrder = errors.New("template element order index out of range")

// LoadError reports a malformed template. Line is 1-based.
type LoadError struct {
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("template line %d: %v", e.Line, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
