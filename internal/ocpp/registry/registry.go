// Package registry implements the connection registry (§4.D): the
// process-wide station-id -> Session map, with atomic takeover and an
// observer channel of register/unregister events (see Subscribe).
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/ocpp/session"
)

// EventKind distinguishes registry observer events.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
)

// Event is published on register/unregister.
type Event struct {
	Kind      EventKind
	StationID string
}

// Registry is the station-id -> *session.Session map.
type Registry struct {
	mu            sync.RWMutex
	sessions      map[string]*session.Session
	observers     []chan Event
	observersMu   sync.Mutex
	takeoverGrace time.Duration
	log           *zap.Logger

	// registerLocks serializes the whole check-drain-install sequence
	// per station id, so two concurrent Register calls for the same
	// never-before-seen station can't both observe existed=false and
	// both install without draining each other.
	registerLocks sync.Map
}

func New(takeoverGrace time.Duration, log *zap.Logger) *Registry {
	return &Registry{
		sessions:      make(map[string]*session.Session),
		takeoverGrace: takeoverGrace,
		log:           log,
	}
}

// Register installs sess under stationID. If a session is already
// registered under that id, it is evicted and asked to drain; only
// after the old session acknowledges (Drain returns, bounded by the
// configured takeover grace period) is the new session installed —
// this is the atomic-takeover contract of §4.D.
func (r *Registry) Register(ctx context.Context, stationID string, sess *session.Session) {
	lockV, _ := r.registerLocks.LoadOrStore(stationID, &sync.Mutex{})
	lock := lockV.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	old, existed := r.sessions[stationID]
	r.mu.Unlock()

	if existed && old != sess {
		r.log.Info("takeover: evicting previous session", zap.String("station_id", stationID))
		drainCtx, cancel := context.WithTimeout(ctx, r.takeoverGrace)
		old.Drain(drainCtx)
		cancel()
	}

	r.mu.Lock()
	r.sessions[stationID] = sess
	r.mu.Unlock()

	r.publish(Event{Kind: EventConnected, StationID: stationID})
}

// Unregister removes sess from the registry, but only if it is still
// the currently registered session for stationID — a session that has
// already been replaced by a takeover must not unregister the new one
// on its own delayed shutdown.
func (r *Registry) Unregister(stationID string, sess *session.Session) {
	r.mu.Lock()
	current, ok := r.sessions[stationID]
	removed := false
	if ok && current == sess {
		delete(r.sessions, stationID)
		removed = true
	}
	r.mu.Unlock()

	if removed {
		r.publish(Event{Kind: EventDisconnected, StationID: stationID})
	}
}

// Get returns the live session for a station id, if any.
func (r *Registry) Get(stationID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[stationID]
	return s, ok
}

// List returns a snapshot of all live sessions.
func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Subscribe returns a channel of future registry events. No component
// in this repository subscribes: the liveness supervisor polls station
// rows on its tick, and station.status is updated directly by the
// WebSocket server on disconnect and by the liveness supervisor.
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	r.observersMu.Lock()
	r.observers = append(r.observers, ch)
	r.observersMu.Unlock()
	return ch
}

func (r *Registry) publish(ev Event) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	for _, ch := range r.observers {
		select {
		case ch <- ev:
		default:
			r.log.Warn("registry observer channel full, dropping event", zap.String("station_id", ev.StationID))
		}
	}
}
