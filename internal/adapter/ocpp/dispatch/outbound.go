package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/observability/telemetry"
	"github.com/ocpp-csms/csms/internal/ocpp/actions"
	"github.com/ocpp-csms/csms/internal/ocpp/registry"
	"github.com/ocpp-csms/csms/internal/ports"
)

// Outbound implements ports.OCPPCommandService (§4.F): it resolves a
// station's live Session from the registry, validates the action is
// one the CSMS may originate for the session's protocol version, and
// delegates to Session.SendCall. Each station gets its own circuit
// breaker so a wedged CP does not starve outbound calls to healthy
// ones sharing the process.
type Outbound struct {
	registry *registry.Registry
	log      *zap.Logger

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
}

func NewOutbound(reg *registry.Registry, log *zap.Logger) *Outbound {
	return &Outbound{
		registry: reg,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

var _ ports.OCPPCommandService = (*Outbound)(nil)

func (o *Outbound) breakerFor(stationID string) *gobreaker.CircuitBreaker {
	o.breakersMu.Lock()
	defer o.breakersMu.Unlock()
	if cb, ok := o.breakers[stationID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ocpp-outbound-" + stationID,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.log.Warn("outbound circuit breaker state changed", zap.String("station_id", stationID), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	o.breakers[stationID] = cb
	return cb
}

func (o *Outbound) SendCommand(ctx context.Context, stationID, action string, payload []byte, deadline time.Duration) (ports.CommandResult, error) {
	sess, ok := o.registry.Get(stationID)
	if !ok {
		return ports.CommandResult{Status: "Disconnected", Err: domain.ErrStationNotConnected}, domain.ErrStationNotConnected
	}

	table, ok := actions.ForVersion(sess.ProtocolVersion)
	if !ok {
		return ports.CommandResult{Status: "Rejected"}, fmt.Errorf("no action table for protocol %s", sess.ProtocolVersion)
	}
	spec, ok := table.Lookup(action)
	if !ok || spec.Direction == actions.Inbound {
		return ports.CommandResult{Status: "Rejected"}, fmt.Errorf("%s is not a CSMS-originated action for %s", action, sess.ProtocolVersion)
	}

	var body interface{} = json.RawMessage(payload)

	telemetry.RecordOCPPMessage(action, false)
	cb := o.breakerFor(stationID)
	raw, err := cb.Execute(func() (interface{}, error) {
		return sess.SendCall(ctx, action, body, deadline)
	})
	if err != nil {
		switch {
		case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
			return ports.CommandResult{Status: "Unavailable", Err: err}, err
		case err == domain.ErrTimeout:
			return ports.CommandResult{Status: "Timeout", Err: err}, err
		case err == domain.ErrDisconnected:
			return ports.CommandResult{Status: "Disconnected", Err: err}, err
		default:
			return ports.CommandResult{Status: "Rejected", Err: err}, err
		}
	}
	respBytes, _ := raw.(json.RawMessage)
	return ports.CommandResult{Status: "Accepted", Response: respBytes}, nil
}

// Broadcast fans SendCommand out across every live session
// concurrently; the wall clock is bounded by the slowest station, not
// the sum of all of them.
func (o *Outbound) Broadcast(ctx context.Context, action string, payload []byte, deadline time.Duration) map[string]ports.CommandResult {
	sessions := o.registry.List()
	results := make(map[string]ports.CommandResult, len(sessions))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, sess := range sessions {
		sess := sess
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := o.SendCommand(ctx, sess.StationID, action, payload, deadline)
			mu.Lock()
			results[sess.StationID] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (o *Outbound) LiveSessionCount() int {
	return o.registry.Count()
}
