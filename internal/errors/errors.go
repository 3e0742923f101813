// Package errors defines error types for the Beacon mDNS querier.
//
// This package implements the error handling requirements from F-3 (Error Handling)
// and provides structured error types for network, validation, and wire format errors.
//
// Architecture: Per F-3, all errors include:
//   - Operation context (what operation failed)
//   - Root cause (underlying error if any)
//   - Actionable message (how to fix the problem)
//
// Requirements:
//   - FR-013: NetworkError for socket creation, binding, or I/O failures
//   - FR-014: ValidationError for invalid query names or unsupported record types
//   - FR-015: WireFormatError for malformed response packets
//   - NFR-006: Error messages MUST include actionable context
package errors

import (
	"fmt"
)

// NetworkError represents network-related failures such as socket creation,
// binding, or I/O operations.
//
// This error type is returned when the system cannot establish or use network
// resources required for mDNS queries.
//
// FR-013: System MUST return NetworkError for socket creation, binding, or I/O failures
type NetworkError struct {
	// Operation describes what network operation failed (e.g., "bind socket", "send query")
	Operation string

	// Err is the underlying error from the network stack
	Err error

	// Details provides additional context for troubleshooting
	Details string
}

// Error implements the error interface for NetworkError.
//
// NFR-006: Error messages MUST include actionable context
func (e *NetworkError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("network error during %s: %v (%s)", e.Operation, e.Err, e.Details)
	}
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error, enabling error chain inspection with errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError represents validation failures for query inputs such as
// invalid names, unsupported record types, or out-of-range parameters.
//
// This error type is returned when the caller provides invalid input to the querier API.
//
// FR-014: System MUST return ValidationError for invalid query names or unsupported record types
type ValidationError struct {
	// Field identifies which input field failed validation (e.g., "name", "recordType", "timeout")
	Field string

	// Value is the invalid value that was provided (if safe to include)
	Value interface{}

	// Message describes why the validation failed
	Message string
}

// Error implements the error interface for ValidationError.
//
// NFR-006: Error messages MUST include actionable context
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// WireFormatError represents errors parsing DNS wire format messages, including
// malformed packets, invalid compression pointers, or truncated data.
//
// This error type is returned when a received mDNS response cannot be parsed
// according to RFC 1035/6762 wire format specifications.
//
// FR-015: System MUST return WireFormatError for malformed response packets
type WireFormatError struct {
	// Operation describes what parsing operation failed (e.g., "parse header", "decompress name")
	Operation string

	// Offset indicates the byte offset in the message where the error occurred (if known)
	Offset int

	// Message describes why the wire format is invalid
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface for WireFormatError.
//
// NFR-006: Error messages MUST include actionable context
func (e *WireFormatError) Error() string {
	if e.Offset >= 0 {
		if e.Err != nil {
			return fmt.Sprintf("wire format error during %s at offset %d: %s (underlying: %v)", e.Operation, e.Offset, e.Message, e.Err)
		}
		return fmt.Sprintf("wire format error during %s at offset %d: %s", e.Operation, e.Offset, e.Message)
	}

	if e.Err != nil {
		return fmt.Sprintf("wire format error during %s: %s (underlying: %v)", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("wire format error during %s: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying error, enabling error chain inspection with errors.Is/As.
func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// Kind enumerates the abstract outcomes the core reports to clients and to
// itself across asynchronous boundaries (register/deregister, update,
// start/stop question, and the terminal state of a record or question
// callback).
type Kind int

const (
	// NoError indicates the operation succeeded.
	NoError Kind = iota
	// BadParam indicates a syntactically invalid argument (empty name, zero TTL on a non-goodbye record, etc).
	BadParam
	// AlreadyRegistered indicates a duplicate registration of the same record/service.
	AlreadyRegistered
	// BadReference indicates an operation was given a handle the core doesn't recognize.
	BadReference
	// Invalid indicates an operation that is not valid in the object's current state.
	Invalid
	// NoCache indicates a cache-dependent operation was attempted with no cache memory configured.
	NoCache
	// NameConflict indicates a unique record lost ownership of its name to another host.
	NameConflict
	// MemFree is callback-only: the last callback a client receives for a
	// record, signalling it is now safe to free the record's storage.
	MemFree
	// ServiceNotRunning indicates the core is shutting down and can no longer accept new work.
	ServiceNotRunning
	// NoMemory indicates a cache or record allocation could not be satisfied.
	NoMemory
)

// String renders a Kind the way client logs and error messages want it.
func (k Kind) String() string {
	switch k {
	case NoError:
		return "NoError"
	case BadParam:
		return "BadParam"
	case AlreadyRegistered:
		return "AlreadyRegistered"
	case BadReference:
		return "BadReference"
	case Invalid:
		return "Invalid"
	case NoCache:
		return "NoCache"
	case NameConflict:
		return "NameConflict"
	case MemFree:
		return "MemFree"
	case ServiceNotRunning:
		return "ServiceNotRunning"
	case NoMemory:
		return "NoMemory"
	default:
		return "Unknown"
	}
}

// CoreError carries one of the abstract error Kinds the core reports across
// Register/Deregister/Update/StartQuery/StopQuery and their callbacks.
//
// Unlike NetworkError/ValidationError/WireFormatError (which describe wire
// and transport failures), CoreError describes outcomes of the core's own
// state machine and is never fatal: a CoreError is always delivered through
// a return value or callback, never a panic.
type CoreError struct {
	// Kind is the abstract outcome.
	Kind Kind

	// Operation names what the caller was trying to do (e.g. "register record", "start question").
	Operation string

	// Detail gives human-readable context, if any is available.
	Detail string
}

// Error implements the error interface for CoreError.
func (e *CoreError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Operation, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Kind)
}

// Is allows errors.Is(err, &CoreError{Kind: NameConflict}) style comparisons
// based on Kind alone, ignoring Operation/Detail.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
