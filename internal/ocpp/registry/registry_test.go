package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ocpp/session"
)

type noopDispatcher struct{}

func (noopDispatcher) HandleCall(ctx context.Context, s *session.Session, action, messageID string, payload json.RawMessage) {
}

// newServerSession dials a real websocket connection through an
// httptest server and wraps the server side in a session.Session —
// Session.Drain closes the underlying *websocket.Conn, so registry
// tests need a genuine connection rather than a nil stand-in.
func newServerSession(t *testing.T, stationID string) (*session.Session, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	var serverConn *websocket.Conn
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	serverConn = <-connCh

	logger, _ := zap.NewDevelopment()
	sess := session.New(stationID, domain.ProtocolVersion16, serverConn, noopDispatcher{}, logger, session.DefaultConfig())
	go sess.Run(context.Background())

	cleanup := func() {
		clientConn.Close()
		srv.Close()
	}
	return sess, cleanup
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New(time.Second, zap.NewNop())
	sess, cleanup := newServerSession(t, "CP001")
	defer cleanup()

	r.Register(context.Background(), "CP001", sess)

	got, ok := r.Get("CP001")
	if !ok {
		t.Fatal("expected session to be registered")
	}
	if got != sess {
		t.Error("expected to get back the same session")
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := New(time.Second, zap.NewNop())
	sess, cleanup := newServerSession(t, "CP001")
	defer cleanup()

	r.Register(context.Background(), "CP001", sess)
	r.Unregister("CP001", sess)

	if _, ok := r.Get("CP001"); ok {
		t.Error("expected session to be removed")
	}
	if r.Count() != 0 {
		t.Errorf("expected count 0, got %d", r.Count())
	}
}

// TestRegistry_UnregisterIgnoresReplacedSession covers the
// takeover-safety rule: a session that has already been superseded
// must not be able to unregister its replacement on a delayed
// shutdown.
func TestRegistry_UnregisterIgnoresReplacedSession(t *testing.T) {
	r := New(time.Second, zap.NewNop())
	first, cleanup1 := newServerSession(t, "CP001")
	defer cleanup1()
	second, cleanup2 := newServerSession(t, "CP001")
	defer cleanup2()

	r.Register(context.Background(), "CP001", first)
	r.Register(context.Background(), "CP001", second)

	r.Unregister("CP001", first)

	got, ok := r.Get("CP001")
	if !ok || got != second {
		t.Error("expected the second (current) session to remain registered")
	}
}

// TestRegistry_TakeoverDrainsPreviousSession asserts the atomic
// takeover contract: registering a second session for a station
// already registered evicts and drains the first.
func TestRegistry_TakeoverDrainsPreviousSession(t *testing.T) {
	r := New(2 * time.Second, zap.NewNop())
	first, cleanup1 := newServerSession(t, "CP001")
	defer cleanup1()
	second, cleanup2 := newServerSession(t, "CP001")
	defer cleanup2()

	r.Register(context.Background(), "CP001", first)
	r.Register(context.Background(), "CP001", second)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("expected the first session to be drained and closed on takeover")
	}

	got, ok := r.Get("CP001")
	if !ok || got != second {
		t.Error("expected the second session to be the one registered")
	}
}

// TestRegistry_ConcurrentFirstRegisterIsAtomic exercises the fix for
// the check-drain-install race: two goroutines racing to register the
// very first session for a never-before-seen station id must not both
// believe they are first — exactly one survives as the registered
// session, and the loser is observably drained, never left running
// outside the map.
func TestRegistry_ConcurrentFirstRegisterIsAtomic(t *testing.T) {
	r := New(2 * time.Second, zap.NewNop())
	a, cleanupA := newServerSession(t, "CP001")
	defer cleanupA()
	b, cleanupB := newServerSession(t, "CP001")
	defer cleanupB()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); r.Register(context.Background(), "CP001", a) }()
	go func() { defer wg.Done(); r.Register(context.Background(), "CP001", b) }()
	wg.Wait()

	got, ok := r.Get("CP001")
	if !ok {
		t.Fatal("expected exactly one session registered")
	}

	var loser *session.Session
	if got == a {
		loser = b
	} else if got == b {
		loser = a
	} else {
		t.Fatal("registered session is neither of the two racers")
	}

	select {
	case <-loser.Done():
	case <-time.After(time.Second):
		t.Error("expected the losing session to have been drained, not orphaned outside the map")
	}
}

func TestRegistry_Subscribe(t *testing.T) {
	r := New(time.Second, zap.NewNop())
	sess, cleanup := newServerSession(t, "CP001")
	defer cleanup()

	events := r.Subscribe()
	r.Register(context.Background(), "CP001", sess)

	select {
	case ev := <-events:
		if ev.Kind != EventConnected || ev.StationID != "CP001" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a connected event")
	}

	r.Unregister("CP001", sess)
	select {
	case ev := <-events:
		if ev.Kind != EventDisconnected || ev.StationID != "CP001" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a disconnected event")
	}
}
