// Package errs provides the unified error type used across ocisql.
//
// Every layer (native backends, the database core, the HTTP adapter) reports
// failures as *errs.Error. Callers use the Is* predicates to branch on the
// kind of failure without importing backend-specific packages.
//
// Usage:
//
//	// In the core, convert a native failure:
//	return errs.Database(code, msg)
//
//	// In a handler, check the error kind:
//	if errs.IsResourceBusy(err) {
//	    http.Error(w, err.Error(), http.StatusConflict)
//	}
package errs

import (
	"errors"
	"fmt"
)

// Prefix is prepended to every rendered error message.
const Prefix = "ocisql: "

// ErrKind categorises an error without exposing native status codes.
type ErrKind int

const (
	ErrKindUnknown         ErrKind = iota
	ErrKindAllocation              // native memory / resource exhaustion
	ErrKindDatabase                // any native error status
	ErrKindUnsupportedType         // column type with no decoding rule
	ErrKindResourceBusy            // close attempted while dependents remain open
	ErrKindArgument                // wrong or closed handle, bad arguments
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindAllocation:
		return "allocation"
	case ErrKindDatabase:
		return "database"
	case ErrKindUnsupportedType:
		return "unsupported_type"
	case ErrKindResourceBusy:
		return "resource_busy"
	case ErrKindArgument:
		return "argument"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by every ocisql layer.
type Error struct {
	Kind    ErrKind
	Message string

	// Code is the native error code for ErrKindDatabase (0 when the failure
	// was a non-error status such as OCI_NO_DATA).
	Code int

	// Tag and Column identify the offending column for ErrKindUnsupportedType.
	Tag    int
	Column int

	Cause error // original backend-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s] %s: %v", Prefix, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s] %s", Prefix, e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Database reports a native error with its code and message.
func Database(code int, msg string) *Error {
	return &Error{Kind: ErrKindDatabase, Code: code, Message: msg}
}

// UnsupportedType reports a column whose native type tag has no decoding rule.
// column is 1-based, matching native field positions.
func UnsupportedType(tag, column int) *Error {
	return &Error{
		Kind:    ErrKindUnsupportedType,
		Message: fmt.Sprintf("invalid type %d #%d", tag, column),
		Tag:     tag,
		Column:  column,
	}
}

// Busy reports a close attempted while dependent handles remain open.
func Busy(msg string) *Error {
	return &Error{Kind: ErrKindResourceBusy, Message: msg}
}

// Argument reports a wrong or closed handle passed to an operation.
func Argument(msg string) *Error {
	return &Error{Kind: ErrKindArgument, Message: msg}
}

// Allocation reports a native allocation failure.
func Allocation(msg string) *Error {
	return &Error{Kind: ErrKindAllocation, Message: msg}
}

// --- Predicates ---

// IsDatabase reports whether err is a native database failure.
func IsDatabase(err error) bool {
	return kindOf(err) == ErrKindDatabase
}

// IsUnsupportedType reports whether err was caused by an undecodable column type.
func IsUnsupportedType(err error) bool {
	return kindOf(err) == ErrKindUnsupportedType
}

// IsResourceBusy reports whether err is a close refused because of open dependents.
func IsResourceBusy(err error) bool {
	return kindOf(err) == ErrKindResourceBusy
}

// IsArgument reports whether err was caused by a bad or closed handle.
func IsArgument(err error) bool {
	return kindOf(err) == ErrKindArgument
}

// IsAllocation reports whether err is a native allocation failure.
func IsAllocation(err error) bool {
	return kindOf(err) == ErrKindAllocation
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

// CodeOf returns the native error code carried by err, or 0.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
