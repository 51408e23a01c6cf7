// Package rerrors defines the node-wide error kinds and the propagation
// rules between the storage engine, the query executor, internode
// responses, and client ERROR frames.
package rerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation across the internode Response
// payload and the client protocol ERROR frame.
type Kind uint8

const (
	// Protocol marks a malformed frame or an unsupported protocol version.
	Protocol Kind = iota
	// Syntax marks a CQL parse failure.
	Syntax
	// Schema marks an unknown keyspace/table/column, a duplicate definition,
	// or an attempted primary-key modification.
	Schema
	// Unauthorized is reserved for future use; the node never emits it today.
	Unauthorized
	// InvalidCondition marks a WHERE clause that does not cover every
	// partition-key column with equality, or otherwise violates the shape
	// required by section 4.2.
	InvalidCondition
	// Unavailable marks fewer live replicas than the consistency level needs.
	Unavailable
	// Timeout marks an open query that missed its deadline.
	Timeout
	// IO marks a storage or network failure.
	IO
	// Internal marks an invariant violation; the node logs and continues.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "Protocol"
	case Syntax:
		return "Syntax"
	case Schema:
		return "Schema"
	case Unauthorized:
		return "Unauthorized"
	case InvalidCondition:
		return "InvalidCondition"
	case Unavailable:
		return "Unavailable"
	case Timeout:
		return "Timeout"
	case IO:
		return "IO"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the node's canonical error type. It carries a Kind so callers at
// the internode and client boundaries can render "<kind>:<msg>" without
// re-deriving the classification from the underlying cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind of err, defaulting to Internal when err does not
// wrap an *Error (an invariant violation we didn't anticipate).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Wire renders the error the way it crosses the internode Response payload:
// "<kind>:<msg>".
func Wire(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return fmt.Sprintf("%s:%s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s:%s", Internal, err.Error())
}

var wireKinds = map[string]Kind{
	Protocol.String():         Protocol,
	Syntax.String():           Syntax,
	Schema.String():           Schema,
	Unauthorized.String():     Unauthorized,
	InvalidCondition.String(): InvalidCondition,
	Unavailable.String():      Unavailable,
	Timeout.String():          Timeout,
	IO.String():               IO,
	Internal.String():         Internal,
}

// ParseWire is Wire's inverse, used by a coordinator decoding an internode
// Response whose status is an error. A string that doesn't match
// "<kind>:<msg>" is reported as Internal rather than rejected, since the
// sender is a peer node, not untrusted client input.
func ParseWire(s string) *Error {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return &Error{Kind: Internal, Msg: s}
	}
	if kind, ok := wireKinds[s[:idx]]; ok {
		return &Error{Kind: kind, Msg: s[idx+1:]}
	}
	return &Error{Kind: Internal, Msg: s}
}
