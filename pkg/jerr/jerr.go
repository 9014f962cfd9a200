// Package jerr defines the error taxonomy shared by the decoder, descriptor
// parser, and interpreter. Their fallible operations return one of these
// kinds, wrapped with github.com/pkg/errors so the original call site and
// any underlying cause survive up to the top of Decode/Call. (DecodeFile
// returns a failure to open the file as the os error itself.)
package jerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which member of the error taxonomy an Error represents.
type Kind int

const (
	// InvalidMagic: the first four bytes were missing or not 0xCAFEBABE.
	InvalidMagic Kind = iota
	// UnknownConstantTag: a constant pool tag was not in the recognized set.
	UnknownConstantTag
	// PoolIndexOutOfRange: index 0 or an index >= pool length was used, or
	// a local variable index outside the frame's locals.
	PoolIndexOutOfRange
	// PoolKindMismatch: a pool entry was not the expected variant, or the
	// class, static field or method it names was not found.
	PoolKindMismatch
	// MalformedAttribute: an attribute's body length didn't match its
	// declared size, or the stream ended inside any class-file structure.
	MalformedAttribute
	// TrailingBytes: bytes remained after the final class-level attribute.
	TrailingBytes
	// BadDescriptor: a field or method descriptor violated the grammar.
	BadDescriptor
	// TooManyDimensions: a field descriptor had more than 255 leading '['.
	TooManyDimensions
	// NoCode: a method was invoked but carries no Code attribute, or the
	// method selector found no method of the given name.
	NoCode
	// UnhandledOpcode: the dispatch loop hit an opcode outside the implemented subset.
	UnhandledOpcode
	// DivisionByZero: an integer idiv/ldiv ran with a zero divisor.
	DivisionByZero
	// StackUnderflow: the operand stack was empty when a value was required.
	StackUnderflow
	// WrongValueKind: a Value's tag didn't match what the opcode expected,
	// or the method selector rejected a method that is not public static
	// or takes parameters.
	WrongValueKind
	// StackOverflow: nested invokestatic recursion exceeded the frame-depth
	// guard, or a push exceeded the frame's max_stack.
	StackOverflow
)

var kindNames = map[Kind]string{
	InvalidMagic:        "InvalidMagic",
	UnknownConstantTag:  "UnknownConstantTag",
	PoolIndexOutOfRange: "PoolIndexOutOfRange",
	PoolKindMismatch:    "PoolKindMismatch",
	MalformedAttribute:  "MalformedAttribute",
	TrailingBytes:       "TrailingBytes",
	BadDescriptor:       "BadDescriptor",
	TooManyDimensions:   "TooManyDimensions",
	NoCode:              "NoCode",
	UnhandledOpcode:     "UnhandledOpcode",
	DivisionByZero:      "DivisionByZero",
	StackUnderflow:      "StackUnderflow",
	WrongValueKind:      "WrongValueKind",
	StackOverflow:       "StackOverflow",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the concrete error type returned by this module. It carries a
// matchable Kind plus a formatted message; Unwrap exposes any wrapped cause
// so errors.Is/errors.As keep working across package boundaries.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the taxonomy member this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{kind: kind, msg: fmt.Sprintf(format, args...)})
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return New(kind, format, args...)
	}
	return errors.WithStack(&Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause})
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		err = errors.Unwrap(err)
	}
	return e != nil && e.kind == kind
}
