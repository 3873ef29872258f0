// Package dispatch wires the message registry (actions), the action
// handlers and the Session together: the inbound dispatcher (§4.E)
// and the outbound dispatcher (§4.F).
package dispatch

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/observability/telemetry"
	"github.com/ocpp-csms/csms/internal/ocpp/actions"
	"github.com/ocpp-csms/csms/internal/ocpp/handlers"
	"github.com/ocpp-csms/csms/internal/ocpp/ocpperr"
	"github.com/ocpp-csms/csms/internal/ocpp/session"
)

// Inbound implements session.Dispatcher: for every CALL a session
// reads, it resolves the action table for the session's protocol
// version, decodes and validates the payload, looks up the handler,
// invokes it with panic recovery, and writes the CALLRESULT or
// CALLERROR back.
type Inbound struct {
	handlers *handlers.Table
	log      *zap.Logger
}

func NewInbound(handlerTable *handlers.Table, log *zap.Logger) *Inbound {
	return &Inbound{handlers: handlerTable, log: log}
}

var _ session.Dispatcher = (*Inbound)(nil)

func (d *Inbound) HandleCall(ctx context.Context, s *session.Session, action, messageID string, payload json.RawMessage) {
	telemetry.RecordOCPPMessage(action, true)
	table, ok := actions.ForVersion(s.ProtocolVersion)
	if !ok {
		d.writeError(s, messageID, ocpperr.New(ocpperr.InternalError, "no action table for protocol "+string(s.ProtocolVersion)))
		return
	}

	spec, ok := table.Lookup(action)
	if !ok {
		d.writeError(s, messageID, ocpperr.New(ocpperr.NotImplemented, "unrecognized action "+action))
		return
	}
	if spec.Direction == actions.Outbound {
		// CSMS never receives a CALL for an action it only sends.
		d.writeError(s, messageID, ocpperr.New(ocpperr.NotSupported, action+" is not a CP-originated action"))
		return
	}

	req, decodeErr := table.DecodeRequest(action, payload)
	if decodeErr != nil {
		d.writeError(s, messageID, decodeErr)
		return
	}

	fn, ok := d.handlers.Lookup(s.ProtocolVersion, action)
	if !ok {
		d.writeError(s, messageID, ocpperr.New(ocpperr.NotImplemented, action+" has no registered handler"))
		return
	}

	resp, handlerErr := d.invoke(ctx, s, fn, req)
	if handlerErr != nil {
		d.writeError(s, messageID, handlerErr)
		return
	}
	if err := s.WriteCallResult(messageID, resp); err != nil {
		d.log.Warn("failed to write call result", zap.String("station_id", s.StationID), zap.String("action", action), zap.Error(err))
	}
}

// invoke runs fn with panic recovery: a handler bug becomes an
// InternalError CALLERROR, never a crashed session (§7 propagation
// policy — handlers never throw past the dispatcher).
func (d *Inbound) invoke(ctx context.Context, s *session.Session, fn handlers.Func, req interface{}) (resp interface{}, herr *ocpperr.Error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic recovered", zap.String("station_id", s.StationID), zap.Any("panic", r))
			herr = ocpperr.New(ocpperr.InternalError, "internal error")
		}
	}()
	return fn(ctx, s, req)
}

func (d *Inbound) writeError(s *session.Session, messageID string, err *ocpperr.Error) {
	if werr := s.WriteCallError(messageID, err.Code, err.Message); werr != nil {
		d.log.Warn("failed to write call error", zap.String("station_id", s.StationID), zap.Error(werr))
	}
}
