package domain

import "time"

// PendingCall is runtime-only: it is never persisted. It is keyed by
// (session, outbound message id) and destroyed on matching
// CALLRESULT/CALLERROR or on deadline expiry. Survivors of a closed
// session complete with ErrDisconnected.
type PendingCall struct {
	MessageID string
	Action    string
	Deadline  time.Time
	// Done carries the eventual CALLRESULT payload, or an error
	// (*ocpperr.Error for a CALLERROR, ErrTimeout, ErrDisconnected).
	Done chan PendingCallResult
}

// PendingCallResult is the eventual outcome of an outbound CALL.
type PendingCallResult struct {
	Payload []byte
	Err     error
}
