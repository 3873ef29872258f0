// Package ocpperr defines the OCPP CALLERROR vocabulary (§4.E, §7)
// and the typed error that carries it from a handler through the
// dispatcher to the wire.
package ocpperr

// Code is one of the error codes an action handler or the dispatcher
// may report in a CALLERROR frame.
type Code string

const (
	NotImplemented                Code = "NotImplemented"
	NotSupported                  Code = "NotSupported"
	InternalError                 Code = "InternalError"
	ProtocolError                 Code = "ProtocolError"
	PropertyConstraintViolation   Code = "PropertyConstraintViolation"
	OccurrenceConstraintViolation Code = "OccurrenceConstraintViolation"
	TypeConstraintViolation       Code = "TypeConstraintViolation"
	GenericError                  Code = "GenericError"
	FormationViolation            Code = "FormationViolation"
	SecurityError                 Code = "SecurityError"
)

// Error is the typed error a handler returns to signal a CALLERROR
// reply rather than a CALLRESULT. No panic crosses the handler
// boundary: dispatch.Inbound.invoke recovers a panic into
// Error{Code: InternalError}.
type Error struct {
	Code    Code
	Message string
	Details interface{}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Internal wraps an infrastructure failure as InternalError, per the
// failure-semantics table: DB errors in a read path become
// InternalError in the protocol response.
func Internal(err error) *Error {
	return &Error{Code: InternalError, Message: err.Error()}
}
