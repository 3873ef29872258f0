// Package actions is the message registry (§4.B): for each supported
// protocol version, the recognized actions, their direction, and a
// request decoder that doubles as the schema validator.
package actions

import (
	"encoding/json"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ocpp/messages"
	"github.com/ocpp-csms/csms/internal/ocpp/ocpperr"
)

// Direction classifies which side may originate a CALL for an action.
type Direction int

const (
	Inbound Direction = iota // CP -> CSMS
	Outbound                 // CSMS -> CP
	Bidirectional
)

// validatable is implemented by request structs with non-trivial
// required fields; structs without one (Heartbeat) are accepted as-is
// once they decode.
type validatable interface {
	Validate() error
}

// Spec describes one action in one protocol version's table.
type Spec struct {
	Action    string
	Direction Direction
	// NewRequest constructs a zero-valued request payload to decode
	// into. Left nil for outbound pass-through actions (§4.G), whose
	// payload is forwarded to the CP verbatim.
	NewRequest func() interface{}
}

// Table is one protocol version's action registry.
type Table struct {
	Version domain.ProtocolVersion
	specs   map[string]Spec
}

func newTable(version domain.ProtocolVersion, specs []Spec) *Table {
	t := &Table{Version: version, specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		t.specs[s.Action] = s
	}
	return t
}

// Lookup resolves an action name to its Spec. Ok is false for unknown
// actions, which the dispatcher must refuse with NotImplemented.
func (t *Table) Lookup(action string) (Spec, bool) {
	s, ok := t.specs[action]
	return s, ok
}

// DecodeRequest unmarshals and validates payload against the action's
// request schema. For outbound pass-through actions (NewRequest ==
// nil) it only checks payload is a JSON object.
func (t *Table) DecodeRequest(action string, payload json.RawMessage) (interface{}, *ocpperr.Error) {
	spec, ok := t.Lookup(action)
	if !ok {
		return nil, ocpperr.New(ocpperr.NotImplemented, "unknown action "+action)
	}
	if spec.NewRequest == nil {
		var probe map[string]interface{}
		if err := json.Unmarshal(payload, &probe); err != nil {
			return nil, ocpperr.New(ocpperr.FormationViolation, "payload is not a JSON object")
		}
		return payload, nil
	}
	req := spec.NewRequest()
	if err := json.Unmarshal(payload, req); err != nil {
		return nil, ocpperr.New(ocpperr.FormationViolation, err.Error())
	}
	if v, ok := req.(validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, ocpperr.New(ocpperr.FormationViolation, err.Error())
		}
	}
	return req, nil
}

// ForVersion resolves the registry for a negotiated protocol version.
func ForVersion(version domain.ProtocolVersion) (*Table, bool) {
	switch version {
	case domain.ProtocolVersion16:
		return V16, true
	case domain.ProtocolVersion201:
		return V201, true
	default:
		return nil, false
	}
}

var V16 = newTable(domain.ProtocolVersion16, []Spec{
	{Action: "BootNotification", Direction: Inbound, NewRequest: func() interface{} { return new(messages.BootNotificationReq16) }},
	{Action: "Heartbeat", Direction: Inbound, NewRequest: func() interface{} { return new(messages.HeartbeatReq16) }},
	{Action: "StatusNotification", Direction: Inbound, NewRequest: func() interface{} { return new(messages.StatusNotificationReq16) }},
	{Action: "Authorize", Direction: Inbound, NewRequest: func() interface{} { return new(messages.AuthorizeReq16) }},
	{Action: "StartTransaction", Direction: Inbound, NewRequest: func() interface{} { return new(messages.StartTransactionReq16) }},
	{Action: "StopTransaction", Direction: Inbound, NewRequest: func() interface{} { return new(messages.StopTransactionReq16) }},
	{Action: "MeterValues", Direction: Inbound, NewRequest: func() interface{} { return new(messages.MeterValuesReq16) }},
	{Action: "DataTransfer", Direction: Bidirectional, NewRequest: func() interface{} { return new(messages.DataTransferReq16) }},
	{Action: "FirmwareStatusNotification", Direction: Inbound, NewRequest: func() interface{} { return new(messages.FirmwareStatusNotificationReq16) }},
	{Action: "DiagnosticsStatusNotification", Direction: Inbound, NewRequest: func() interface{} { return new(messages.DiagnosticsStatusNotificationReq16) }},

	{Action: "RemoteStartTransaction", Direction: Outbound},
	{Action: "RemoteStopTransaction", Direction: Outbound},
	{Action: "Reset", Direction: Outbound},
	{Action: "ChangeAvailability", Direction: Outbound},
	{Action: "UnlockConnector", Direction: Outbound},
	{Action: "ClearCache", Direction: Outbound},
	{Action: "TriggerMessage", Direction: Outbound},
	{Action: "ReserveNow", Direction: Outbound},
	{Action: "CancelReservation", Direction: Outbound},
})

var V201 = newTable(domain.ProtocolVersion201, []Spec{
	{Action: "BootNotification", Direction: Inbound, NewRequest: func() interface{} { return new(messages.BootNotificationReq201) }},
	{Action: "Heartbeat", Direction: Inbound, NewRequest: func() interface{} { return new(messages.HeartbeatReq201) }},
	{Action: "StatusNotification", Direction: Inbound, NewRequest: func() interface{} { return new(messages.StatusNotificationReq201) }},
	{Action: "Authorize", Direction: Inbound, NewRequest: func() interface{} { return new(messages.AuthorizeReq201) }},
	{Action: "TransactionEvent", Direction: Inbound, NewRequest: func() interface{} { return new(messages.TransactionEventReq201) }},
	{Action: "DataTransfer", Direction: Bidirectional, NewRequest: func() interface{} { return new(messages.DataTransferReq201) }},
	{Action: "FirmwareStatusNotification", Direction: Inbound, NewRequest: func() interface{} { return new(messages.FirmwareStatusNotificationReq201) }},
	{Action: "LogStatusNotification", Direction: Inbound, NewRequest: func() interface{} { return new(messages.LogStatusNotificationReq201) }},

	{Action: "RequestStartTransaction", Direction: Outbound},
	{Action: "RequestStopTransaction", Direction: Outbound},
	{Action: "Reset", Direction: Outbound},
	{Action: "ChangeAvailability", Direction: Outbound},
	{Action: "UnlockConnector", Direction: Outbound},
	{Action: "ClearCache", Direction: Outbound},
	{Action: "GetVariables", Direction: Outbound},
	{Action: "SetVariables", Direction: Outbound},
	{Action: "TriggerMessage", Direction: Outbound},
	{Action: "ReserveNow", Direction: Outbound},
	{Action: "CancelReservation", Direction: Outbound},
})
