// Package session implements the per-connection Session (§4.C): one
// live WebSocket, its inbound read loop, outbound write queue,
// pending-call table and heartbeat timer.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ocpp/ocpperr"
	"github.com/ocpp-csms/csms/internal/ocpp/wire"
)

// State is the session lifecycle state (§4.C).
type State int32

const (
	StateHandshaking State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Dispatcher resolves and invokes the action handler for one inbound
// CALL. Implemented by the inbound dispatcher (§4.E); kept as an
// interface here so this package does not import it.
type Dispatcher interface {
	HandleCall(ctx context.Context, s *Session, action, messageID string, payload json.RawMessage)
}

// Config carries the tunables the Session needs that the spec leaves
// to deployment (§4.C defaults: 30s outbound deadline, 300s heartbeat).
type Config struct {
	DefaultOutboundTimeout time.Duration
	HeartbeatInterval      time.Duration
	HeartbeatGraceFactor   float64
	WriteQueueSize         int
	LateResultGrace        time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultOutboundTimeout: 30 * time.Second,
		HeartbeatInterval:      300 * time.Second,
		HeartbeatGraceFactor:   2.5,
		WriteQueueSize:         64,
		LateResultGrace:        10 * time.Second,
	}
}

// Session wraps one CP's WebSocket connection.
type Session struct {
	StationID       string
	ProtocolVersion domain.ProtocolVersion

	conn       *websocket.Conn
	log        *zap.Logger
	dispatcher Dispatcher
	cfg        Config

	state atomic.Int32

	writeCh chan []byte
	doneCh  chan struct{}
	closeOnce sync.Once

	pendingMu sync.Mutex
	pending   map[string]*domain.PendingCall
	// lateIDs remembers recently-expired messageIds for LateResultGrace
	// so a tardy CALLRESULT is logged and discarded, not misrouted.
	lateIDs map[string]time.Time

	lastActivityMu sync.Mutex
	lastActivity   time.Time

	// onHeartbeatTimeout is invoked once from the heartbeat loop when the
	// heartbeat deadline is missed. Drain does not invoke it.
	onHeartbeatTimeout func()

	wg sync.WaitGroup
}

// New constructs a Session in state Handshaking. Call Run to start it.
func New(stationID string, protocolVersion domain.ProtocolVersion, conn *websocket.Conn, dispatcher Dispatcher, log *zap.Logger, cfg Config) *Session {
	s := &Session{
		StationID:       stationID,
		ProtocolVersion: protocolVersion,
		conn:            conn,
		log:             log.With(zap.String("station_id", stationID), zap.String("protocol", string(protocolVersion))),
		dispatcher:      dispatcher,
		cfg:             cfg,
		writeCh:         make(chan []byte, cfg.WriteQueueSize),
		doneCh:          make(chan struct{}),
		pending:         make(map[string]*domain.PendingCall),
		lateIDs:         make(map[string]time.Time),
	}
	s.state.Store(int32(StateHandshaking))
	s.touch()
	return s
}

// OnHeartbeatTimeout registers the callback invoked when the
// heartbeat deadline is missed (the liveness supervisor also watches
// this independently via a tick; this is the session's own fallback).
func (s *Session) OnHeartbeatTimeout(fn func()) { s.onHeartbeatTimeout = fn }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) touch() {
	s.lastActivityMu.Lock()
	s.lastActivity = time.Now()
	s.lastActivityMu.Unlock()
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.lastActivityMu.Lock()
	defer s.lastActivityMu.Unlock()
	return now.Sub(s.lastActivity)
}

// Run drives the session until the connection closes or Drain is
// called. It blocks; callers run it in its own goroutine per
// connection.
func (s *Session) Run(ctx context.Context) {
	s.setState(StateActive)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.wg.Add(2)
	go s.writeLoop()
	go s.heartbeatLoop(ctx)

	s.readLoop(ctx)

	s.setState(StateDraining)
	close(s.doneCh)
	_ = s.conn.Close()
	s.failAllPending(domain.ErrDisconnected)
	s.wg.Wait()
	s.setState(StateClosed)
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		s.touch()

		frame, err := wire.Decode(raw)
		if err != nil {
			if fe, ok := err.(*wire.FormationError); ok && fe.Recoverable() {
				s.replyError(fe.MessageID, ocpperr.FormationViolation, fe.Reason)
			} else {
				s.log.Warn("dropping malformed frame", zap.Error(err))
			}
			continue
		}

		switch frame.Type {
		case wire.Call:
			// Inbound handling is concurrent per-frame: the reader keeps
			// pulling while a handler suspends on I/O.
			s.wg.Add(1)
			go func(f *wire.Frame) {
				defer s.wg.Done()
				s.dispatcher.HandleCall(ctx, s, f.Action, f.MessageID, f.Payload)
			}(frame)

		case wire.CallResult:
			s.completePending(frame.MessageID, frame.Payload, nil)

		case wire.CallError:
			s.completePending(frame.MessageID, nil, &ocpperr.Error{
				Code:    ocpperr.Code(frame.ErrorCode),
				Message: frame.ErrorDesc,
			})
		}
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case b, ok := <-s.writeCh:
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.log.Warn("websocket write error", zap.Error(err))
				return
			}
		case <-s.doneCh:
			return
		}
	}
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	if s.cfg.HeartbeatInterval <= 0 {
		return
	}
	deadline := time.Duration(float64(s.cfg.HeartbeatInterval) * s.cfg.HeartbeatGraceFactor)
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.doneCh:
			return
		case now := <-ticker.C:
			if s.idleFor(now) > deadline {
				s.log.Warn("heartbeat deadline exceeded, closing session")
				if s.onHeartbeatTimeout != nil {
					s.onHeartbeatTimeout()
				}
				_ = s.conn.Close()
				return
			}
		}
	}
}

// enqueue pushes a raw frame onto the bounded write queue. It never
// blocks past the session closing.
func (s *Session) enqueue(b []byte) {
	select {
	case s.writeCh <- b:
	case <-s.doneCh:
	}
}

// WriteCallResult sends a CALLRESULT for a CALL this session read.
func (s *Session) WriteCallResult(messageID string, payload interface{}) error {
	b, err := wire.EncodeCallResult(messageID, payload)
	if err != nil {
		return err
	}
	s.enqueue(b)
	return nil
}

// WriteCallError sends a CALLERROR for a CALL this session read.
func (s *Session) WriteCallError(messageID string, code ocpperr.Code, description string) error {
	return s.replyError(messageID, code, description)
}

func (s *Session) replyError(messageID string, code ocpperr.Code, description string) error {
	b, err := wire.EncodeCallError(messageID, string(code), description, nil)
	if err != nil {
		return err
	}
	s.enqueue(b)
	return nil
}

// SendCall issues an outbound CALL and blocks until the matching
// CALLRESULT/CALLERROR arrives, the deadline expires, or the session
// closes (§4.C outbound path, §4.F step 4).
func (s *Session) SendCall(ctx context.Context, action string, payload interface{}, deadline time.Duration) (json.RawMessage, error) {
	if s.State() != StateActive {
		return nil, domain.ErrDisconnected
	}
	if deadline <= 0 {
		deadline = s.cfg.DefaultOutboundTimeout
	}
	messageID := uuid.NewString()

	pc := &domain.PendingCall{
		MessageID: messageID,
		Action:    action,
		Deadline:  time.Now().Add(deadline),
		Done:      make(chan domain.PendingCallResult, 1),
	}
	s.pendingMu.Lock()
	s.pending[messageID] = pc
	s.pendingMu.Unlock()

	b, err := wire.EncodeCall(messageID, action, payload)
	if err != nil {
		s.removePending(messageID)
		return nil, err
	}
	s.enqueue(b)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case res := <-pc.Done:
		return res.Payload, res.Err
	case <-timer.C:
		s.removePending(messageID)
		s.markLate(messageID)
		return nil, domain.ErrTimeout
	case <-s.doneCh:
		s.removePending(messageID)
		return nil, domain.ErrDisconnected
	case <-ctx.Done():
		s.removePending(messageID)
		return nil, ctx.Err()
	}
}

func (s *Session) removePending(messageID string) {
	s.pendingMu.Lock()
	delete(s.pending, messageID)
	s.pendingMu.Unlock()
}

func (s *Session) markLate(messageID string) {
	s.pendingMu.Lock()
	s.lateIDs[messageID] = time.Now().Add(s.cfg.LateResultGrace)
	for id, exp := range s.lateIDs {
		if time.Now().After(exp) {
			delete(s.lateIDs, id)
		}
	}
	s.pendingMu.Unlock()
}

func (s *Session) completePending(messageID string, payload json.RawMessage, callErr error) {
	s.pendingMu.Lock()
	pc, ok := s.pending[messageID]
	if ok {
		delete(s.pending, messageID)
	}
	_, late := s.lateIDs[messageID]
	s.pendingMu.Unlock()

	if !ok {
		if late {
			s.log.Info("discarding late CALLRESULT/CALLERROR after deadline", zap.String("message_id", messageID))
		} else {
			s.log.Warn("CALLRESULT/CALLERROR for unknown messageId", zap.String("message_id", messageID))
		}
		return
	}
	pc.Done <- domain.PendingCallResult{Payload: payload, Err: callErr}
}

func (s *Session) failAllPending(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, pc := range s.pending {
		pc.Done <- domain.PendingCallResult{Err: err}
		delete(s.pending, id)
	}
}

// Drain moves the session to StateDraining, so SendCall refuses new
// outbound CALLs, and closes the connection at once. It does not wait
// for in-flight handlers to finish: once the reader exits the writer
// stops, and responses those handlers enqueue afterwards are not sent.
// It blocks until the reader loop has exited (Done is closed) or ctx
// is done, whichever comes first.
func (s *Session) Drain(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.setState(StateDraining)
		_ = s.conn.Close()
	})
	select {
	case <-s.doneCh:
	case <-ctx.Done():
	}
}

// Done returns a channel closed once the session has finished
// reading (the reader loop has exited).
func (s *Session) Done() <-chan struct{} { return s.doneCh }

func (s *Session) String() string {
	return fmt.Sprintf("session[%s/%s state=%s]", s.StationID, s.ProtocolVersion, s.State())
}
