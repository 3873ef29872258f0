package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ocpp/ocpperr"
	"github.com/ocpp-csms/csms/internal/ocpp/wire"
)

type noopDispatcher struct{}

func (noopDispatcher) HandleCall(ctx context.Context, s *Session, action, messageID string, payload json.RawMessage) {
}

func newTestSession(cfg Config) *Session {
	logger, _ := zap.NewDevelopment()
	s := New("CP001", domain.ProtocolVersion16, nil, noopDispatcher{}, logger, cfg)
	s.setState(StateActive)
	return s
}

// nextOutbound drains one frame pushed to the write queue by SendCall
// and decodes it, giving the test the messageId the session assigned.
func nextOutbound(t *testing.T, s *Session) *wire.Frame {
	t.Helper()
	select {
	case b := <-s.writeCh:
		f, err := wire.Decode(b)
		if err != nil {
			t.Fatalf("failed to decode outbound frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

func TestSendCall_CompletesOnCallResult(t *testing.T) {
	s := newTestSession(DefaultConfig())

	type result struct {
		payload json.RawMessage
		err     error
	}
	resCh := make(chan result, 1)
	go func() {
		payload, err := s.SendCall(context.Background(), "RemoteStartTransaction", map[string]string{"idTag": "tag-1"}, time.Second)
		resCh <- result{payload, err}
	}()

	frame := nextOutbound(t, s)
	if frame.Type != wire.Call {
		t.Fatalf("expected CALL frame, got %v", frame.Type)
	}
	if frame.Action != "RemoteStartTransaction" {
		t.Errorf("expected action RemoteStartTransaction, got %s", frame.Action)
	}

	s.completePending(frame.MessageID, json.RawMessage(`{"status":"Accepted"}`), nil)

	r := <-resCh
	if r.err != nil {
		t.Fatalf("expected no error, got %v", r.err)
	}
	if string(r.payload) != `{"status":"Accepted"}` {
		t.Errorf("unexpected payload: %s", r.payload)
	}
}

func TestSendCall_CompletesOnCallError(t *testing.T) {
	s := newTestSession(DefaultConfig())

	type result struct {
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		_, err := s.SendCall(context.Background(), "RemoteStopTransaction", nil, time.Second)
		resCh <- result{err}
	}()

	frame := nextOutbound(t, s)
	s.completePending(frame.MessageID, nil, &ocpperr.Error{Code: ocpperr.NotSupported, Message: "unsupported"})

	r := <-resCh
	if r.err == nil {
		t.Fatal("expected an error from CALLERROR completion")
	}
}

func TestSendCall_TimesOut(t *testing.T) {
	s := newTestSession(DefaultConfig())

	_, err := s.SendCall(context.Background(), "Reset", nil, 20*time.Millisecond)
	if err != domain.ErrTimeout {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

// TestSendCall_LateResultDiscarded: a CALLRESULT that arrives after
// SendCall has already timed out is recognised as late (its messageId
// is remembered for LateResultGrace) and discarded without panicking,
// blocking, or leaving a pending entry behind.
func TestSendCall_LateResultDiscarded(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSession(cfg)

	_, err := s.SendCall(context.Background(), "Reset", nil, 10*time.Millisecond)
	if err != domain.ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The timed-out CALL is still buffered in the write queue.
	frame := nextOutbound(t, s)

	s.pendingMu.Lock()
	_, late := s.lateIDs[frame.MessageID]
	s.pendingMu.Unlock()
	if !late {
		t.Fatalf("expected timed-out messageId %s to be remembered as late", frame.MessageID)
	}

	s.completePending(frame.MessageID, json.RawMessage(`{}`), nil)

	s.pendingMu.Lock()
	_, stillPending := s.pending[frame.MessageID]
	s.pendingMu.Unlock()
	if stillPending {
		t.Errorf("expected no pending entry for late messageId %s", frame.MessageID)
	}
}

func TestSendCall_RejectsWhenNotActive(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := New("CP001", domain.ProtocolVersion16, nil, noopDispatcher{}, logger, DefaultConfig())
	// state is Handshaking, not Active

	_, err := s.SendCall(context.Background(), "Reset", nil, time.Second)
	if err != domain.ErrDisconnected {
		t.Errorf("expected ErrDisconnected, got %v", err)
	}
}

func TestSendCall_FailsOnDone(t *testing.T) {
	s := newTestSession(DefaultConfig())

	resCh := make(chan error, 1)
	go func() {
		_, err := s.SendCall(context.Background(), "Reset", nil, time.Second)
		resCh <- err
	}()

	nextOutbound(t, s)
	close(s.doneCh)

	if err := <-resCh; err != domain.ErrDisconnected {
		t.Errorf("expected ErrDisconnected, got %v", err)
	}
}
