package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrorKind classifies probe failures. The values are reported to the sink as
// error_type.
type ErrorKind string

const (
	AuthRequired    ErrorKind = "AuthRequired"
	Timeout         ErrorKind = "Timeout"
	Transport       ErrorKind = "Transport"
	RPCError        ErrorKind = "RpcError"
	HTTPStatus      ErrorKind = "HTTPStatus"
	UnknownProvider ErrorKind = "UnknownProvider"
)

// Error is a per-account probe failure. It never aborts a refresh batch.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	// Payload is the structured RPC error object, when there was one.
	Payload json.RawMessage
	// Partial carries what the probe learned before failing (identity,
	// model, key hint).
	Partial *Outcome
	// RequiresAuth is set by Rules.Apply.
	RequiresAuth bool
	Err          error
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind ErrorKind, provider string, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StructuredMessage is the text auth rules are evaluated against: the
// payload's message field when present, else the error text.
func (e *Error) StructuredMessage() string {
	if len(e.Payload) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(e.Payload, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return e.Error()
}

// Raw renders the sink raw field for a failed probe.
func (e *Error) Raw() string {
	if e.Kind == AuthRequired && len(bytes.TrimSpace(e.Payload)) == 0 {
		return "[auth_required] " + e.Error()
	}
	return fmt.Sprintf("[probe_error] %s: %s", e.Kind, e.Error())
}

// partial returns the partial outcome, never nil.
func (e *Error) partial() *Outcome {
	if e.Partial == nil {
		return &Outcome{Provider: e.Provider}
	}
	return e.Partial
}

// AccountEmail returns the identity discovered before the failure.
func (e *Error) AccountEmail() string {
	return e.partial().AccountEmail
}
