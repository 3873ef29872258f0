// Package handlers implements the action handlers of §4.G: pure
// business logic for each inbound OCPP action, consulting the domain
// services port (§4.H) and returning either a response payload or a
// protocol error.
package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ocpp/messages"
	"github.com/ocpp-csms/csms/internal/ocpp/ocpperr"
	"github.com/ocpp-csms/csms/internal/ocpp/session"
	"github.com/ocpp-csms/csms/internal/ports"
)

// Func handles one decoded, validated inbound request for one
// session and returns the response payload to write back, or a
// protocol error.
type Func func(ctx context.Context, s *session.Session, req interface{}) (interface{}, *ocpperr.Error)

// Table maps (protocol version, action) to its handler.
type Table struct {
	service  ports.StationService
	mq       ports.MessageQueue
	log      *zap.Logger
	handlers map[domain.ProtocolVersion]map[string]Func
	// vendorHandlers is the DataTransfer vendor registry (supplemented
	// feature, see original_source/ocpp_handlers.py's vendor table):
	// empty by default, extensible.
	vendorHandlers map[string]func(messageID string, data string) (status, respData string)
}

func New(service ports.StationService, mq ports.MessageQueue, log *zap.Logger) *Table {
	t := &Table{
		service:        service,
		mq:             mq,
		log:            log,
		vendorHandlers: make(map[string]func(messageID, data string) (string, string)),
	}
	t.handlers = map[domain.ProtocolVersion]map[string]Func{
		domain.ProtocolVersion16:  t.v16Table(),
		domain.ProtocolVersion201: t.v201Table(),
	}
	return t
}

// RegisterVendor adds a DataTransfer vendor handler. Calling this with
// an already-registered vendorId replaces it.
func (t *Table) RegisterVendor(vendorID string, fn func(messageID, data string) (status, respData string)) {
	t.vendorHandlers[vendorID] = fn
}

// Lookup resolves the handler for one (version, action) pair.
func (t *Table) Lookup(version domain.ProtocolVersion, action string) (Func, bool) {
	m, ok := t.handlers[version]
	if !ok {
		return nil, false
	}
	fn, ok := m[action]
	return fn, ok
}

func (t *Table) publish(topic string, payload []byte) {
	if t.mq == nil {
		return
	}
	if err := t.mq.Publish(topic, payload); err != nil {
		t.log.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

func (t *Table) v16Table() map[string]Func {
	return map[string]Func{
		"BootNotification":              t.bootNotification16,
		"Heartbeat":                     t.heartbeat16,
		"StatusNotification":            t.statusNotification16,
		"Authorize":                     t.authorize16,
		"StartTransaction":              t.startTransaction16,
		"StopTransaction":               t.stopTransaction16,
		"MeterValues":                   t.meterValues16,
		"DataTransfer":                  t.dataTransfer16,
		"FirmwareStatusNotification":    t.firmwareStatusNotification16,
		"DiagnosticsStatusNotification": t.diagnosticsStatusNotification16,
	}
}

func (t *Table) v201Table() map[string]Func {
	return map[string]Func{
		"BootNotification":           t.bootNotification201,
		"Heartbeat":                  t.heartbeat201,
		"StatusNotification":         t.statusNotification201,
		"Authorize":                  t.authorize201,
		"TransactionEvent":           t.transactionEvent201,
		"DataTransfer":               t.dataTransfer201,
		"FirmwareStatusNotification": t.firmwareStatusNotification201,
		"LogStatusNotification":      t.logStatusNotification201,
	}
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }
