// Package ws is the OCPP WebSocket listener: HTTP upgrade, subprotocol
// negotiation between ocpp1.6 and ocpp2.0.1, and per-connection Session
// wiring into the registry. This replaces the teacher's per-version
// listener pair with the single negotiated endpoint §6 specifies.
package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/observability/telemetry"
	"github.com/ocpp-csms/csms/internal/ocpp/registry"
	"github.com/ocpp-csms/csms/internal/ocpp/session"
	"github.com/ocpp-csms/csms/internal/ports"
)

var supportedSubprotocols = []string{string(domain.ProtocolVersion16), string(domain.ProtocolVersion201)}

// Server accepts OCPP WebSocket connections at /<station-id>.
type Server struct {
	registry   *registry.Registry
	dispatcher session.Dispatcher
	service    ports.StationService
	sessionCfg session.Config
	log        *zap.Logger
	upgrader   websocket.Upgrader
}

func NewServer(reg *registry.Registry, dispatcher session.Dispatcher, service ports.StationService, sessionCfg session.Config, log *zap.Logger) *Server {
	return &Server{
		registry:   reg,
		dispatcher: dispatcher,
		service:    service,
		sessionCfg: sessionCfg,
		log:        log,
		upgrader: websocket.Upgrader{
			Subprotocols:    supportedSubprotocols,
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the net/http handler for the OCPP listener mux.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	stationID := strings.Trim(r.URL.Path, "/")
	if stationID == "" {
		http.Error(w, "missing station id", http.StatusBadRequest)
		return
	}

	protocol, ok := selectSubprotocol(websocket.Subprotocols(r))
	if !ok {
		s.log.Warn("handshake with no matching subprotocol", zap.String("station_id", stationID))
		http.Error(w, "no supported subprotocol offered", http.StatusBadRequest)
		return
	}
	version, _ := negotiatedVersion(protocol)

	// Answer with the subprotocol chosen above. With Subprotocols set,
	// the Upgrader would pick by the client's order instead.
	upgrader := s.upgrader
	upgrader.Subprotocols = nil
	conn, err := upgrader.Upgrade(w, r, http.Header{"Sec-Websocket-Protocol": {protocol}})
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}

	sess := session.New(stationID, version, conn, s.dispatcher, s.log, s.sessionCfg)
	s.registry.Register(r.Context(), stationID, sess)
	telemetry.OCPPConnectionsActive.Inc()
	s.log.Info("station connected", zap.String("station_id", stationID), zap.String("protocol", string(version)))

	defer func() {
		s.registry.Unregister(stationID, sess)
		telemetry.OCPPConnectionsActive.Dec()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.service.UpdateStationStatus(ctx, stationID, domain.StationStatusOffline, time.Now()); err != nil {
			s.log.Warn("failed to mark station offline on disconnect", zap.String("station_id", stationID), zap.Error(err))
		}
		s.log.Info("station disconnected", zap.String("station_id", stationID))
	}()

	sess.Run(r.Context())
}

// negotiatedVersion maps a selected subprotocol to the corresponding
// domain.ProtocolVersion. handleUpgrade calls it only after
// selectSubprotocol has found a match; a handshake offering none of
// supportedSubprotocols is already answered with HTTP 400 there, since
// gorilla/websocket's Upgrade does not reject that case itself.
func negotiatedVersion(protocol string) (domain.ProtocolVersion, bool) {
	switch protocol {
	case string(domain.ProtocolVersion16):
		return domain.ProtocolVersion16, true
	case string(domain.ProtocolVersion201):
		return domain.ProtocolVersion201, true
	default:
		return "", false
	}
}

// selectSubprotocol picks the first of our supported subprotocols that
// the client also offered, honoring our own preference order rather
// than the client's.
func selectSubprotocol(offered []string) (string, bool) {
	for _, want := range supportedSubprotocols {
		for _, got := range offered {
			if got == want {
				return want, true
			}
		}
	}
	return "", false
}
