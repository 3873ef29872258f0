// Package wire implements the OCPP JSON array frame codec: encoding
// and decoding CALL/CALLRESULT/CALLERROR messages and rejecting
// malformed ones per the FormationViolation/drop-frame rules.
package wire

import (
	"encoding/json"
	"fmt"
)

// MessageType is the first element of every OCPP frame.
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

// Frame is the decoded form of one OCPP array frame.
type Frame struct {
	Type          MessageType
	MessageID     string
	Action        string          // set only for Call
	Payload       json.RawMessage // Call request / CallResult response
	ErrorCode     string          // set only for CallError
	ErrorDesc     string
	ErrorDetails  json.RawMessage
}

// FormationError is returned when a frame is malformed. If its
// messageId could still be recovered (see Recoverable), the caller can
// send a CALLERROR instead of silently dropping the frame.
type FormationError struct {
	MessageID string // empty if unrecoverable
	Reason    string
}

func (e *FormationError) Error() string {
	return fmt.Sprintf("formation violation: %s", e.Reason)
}

// Recoverable reports whether a CALLERROR carrying MessageID can be
// sent back, versus the frame having to be dropped outright.
func (e *FormationError) Recoverable() bool {
	return e.MessageID != ""
}

// Decode parses one inbound OCPP frame. On a formation violation it
// returns a *FormationError; callers must check errors.As to decide
// between replying FormationViolation and dropping the frame.
func Decode(raw []byte) (*Frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, &FormationError{Reason: "not a JSON array: " + err.Error()}
	}
	if len(elems) < 3 || len(elems) > 5 {
		return nil, &FormationError{Reason: "wrong element count"}
	}

	var msgType int
	if err := json.Unmarshal(elems[0], &msgType); err != nil {
		return nil, &FormationError{Reason: "non-integer message type"}
	}

	var messageID string
	if err := json.Unmarshal(elems[1], &messageID); err != nil {
		return nil, &FormationError{Reason: "non-string messageId"}
	}

	switch MessageType(msgType) {
	case Call:
		if len(elems) != 4 {
			return nil, &FormationError{MessageID: messageID, Reason: "CALL requires 4 elements"}
		}
		var action string
		if err := json.Unmarshal(elems[2], &action); err != nil {
			return nil, &FormationError{MessageID: messageID, Reason: "non-string action"}
		}
		return &Frame{Type: Call, MessageID: messageID, Action: action, Payload: elems[3]}, nil

	case CallResult:
		if len(elems) != 3 {
			return nil, &FormationError{MessageID: messageID, Reason: "CALLRESULT requires 3 elements"}
		}
		return &Frame{Type: CallResult, MessageID: messageID, Payload: elems[2]}, nil

	case CallError:
		if len(elems) != 5 {
			return nil, &FormationError{MessageID: messageID, Reason: "CALLERROR requires 5 elements"}
		}
		var code, desc string
		if err := json.Unmarshal(elems[2], &code); err != nil {
			return nil, &FormationError{MessageID: messageID, Reason: "non-string errorCode"}
		}
		_ = json.Unmarshal(elems[3], &desc)
		return &Frame{Type: CallError, MessageID: messageID, ErrorCode: code, ErrorDesc: desc, ErrorDetails: elems[4]}, nil

	default:
		return nil, &FormationError{MessageID: messageID, Reason: fmt.Sprintf("messageType %d not in {2,3,4}", msgType)}
	}
}

// EncodeCall renders an outbound CALL frame.
func EncodeCall(messageID, action string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{int(Call), messageID, action, payload})
}

// EncodeCallResult renders a CALLRESULT frame.
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{int(CallResult), messageID, payload})
}

// EncodeCallError renders a CALLERROR frame.
func EncodeCallError(messageID, code, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = struct{}{}
	}
	return json.Marshal([]interface{}{int(CallError), messageID, code, description, details})
}
