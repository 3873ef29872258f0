// Package liveness implements the liveness supervisor (§4.I): a
// ticking sweep over known-online stations that declares a station
// Offline once it has gone silent for longer than its heartbeat
// interval times a grace factor, and cooperatively drains any session
// still registered for it.
package liveness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ocpp/registry"
	"github.com/ocpp-csms/csms/internal/ports"
)

type Config struct {
	TickInterval time.Duration
	GraceFactor  float64
	DrainTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 30 * time.Second,
		GraceFactor:  2.5,
		DrainTimeout: 10 * time.Second,
	}
}

type Supervisor struct {
	service  ports.StationService
	registry *registry.Registry
	cfg      Config
	log      *zap.Logger
}

func New(service ports.StationService, reg *registry.Registry, cfg Config, log *zap.Logger) *Supervisor {
	return &Supervisor{service: service, registry: reg, cfg: cfg, log: log}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Supervisor) sweep(ctx context.Context) {
	stations, err := s.service.ListStations(ctx)
	if err != nil {
		s.log.Warn("liveness sweep: failed to list stations", zap.Error(err))
		return
	}
	now := time.Now()
	for _, st := range stations {
		if st.Status != domain.StationStatusOnline {
			continue
		}
		if s.isLive(st, now) {
			continue
		}
		s.log.Info("station missed heartbeat deadline, marking offline", zap.String("station_id", st.ID))
		if err := s.service.UpdateStationStatus(ctx, st.ID, domain.StationStatusOffline, now); err != nil {
			s.log.Warn("liveness sweep: failed to mark station offline", zap.String("station_id", st.ID), zap.Error(err))
		}
		if sess, ok := s.registry.Get(st.ID); ok {
			drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
			sess.Drain(drainCtx)
			cancel()
		}
	}
}

func (s *Supervisor) isLive(st domain.Station, now time.Time) bool {
	if st.LastHeartbeatAt == nil {
		return true
	}
	interval := time.Duration(st.HeartbeatIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 300 * time.Second
	}
	deadline := time.Duration(float64(interval) * s.cfg.GraceFactor)
	return now.Sub(*st.LastHeartbeatAt) <= deadline
}
