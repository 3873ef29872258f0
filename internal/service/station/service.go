// Package station implements the domain services port (§4.H): the
// business logic action handlers and the operator REST surface share,
// independent of OCPP wire format or transport.
package station

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/observability/telemetry"
	"github.com/ocpp-csms/csms/internal/ports"
)

const (
	cacheKeyPrefix  = "station:"
	cacheTTL        = 30 * time.Second
	meterSampleCap  = 1000
)

// Service implements ports.StationService.
type Service struct {
	stations     ports.StationRepository
	transactions ports.TransactionRepository
	users        ports.UserRepository
	cache        ports.Cache
	mq           ports.MessageQueue
	log          *zap.Logger

	// connectorLocks serializes operations keyed by connector
	// (station-id#connector-id), the unit of concurrency named in §4.H.
	// GetConnectorForUpdate issues SELECT ... FOR UPDATE, but these calls
	// do not run inside a database transaction, so the row lock ends with
	// that statement and writers outside this process are not serialized.
	connectorLocks sync.Map
}

func NewService(stations ports.StationRepository, transactions ports.TransactionRepository, users ports.UserRepository, cache ports.Cache, mq ports.MessageQueue, log *zap.Logger) *Service {
	return &Service{
		stations:     stations,
		transactions: transactions,
		users:        users,
		cache:        cache,
		mq:           mq,
		log:          log,
	}
}

var _ ports.StationService = (*Service)(nil)

func (s *Service) lockConnector(key string) func() {
	v, _ := s.connectorLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) publish(topic string, payload interface{}) {
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := s.mq.Publish(topic, data); err != nil {
		s.log.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *Service) invalidateStationCache(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKeyPrefix+id); err != nil {
		s.log.Warn("failed to invalidate station cache", zap.String("station_id", id), zap.Error(err))
	}
}

func (s *Service) UpsertStationOnBoot(ctx context.Context, id, vendor, model, firmwareVersion string, protocolVersion domain.ProtocolVersion, heartbeatIntervalSeconds int, now time.Time) (*domain.Station, error) {
	existing, err := s.stations.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("upsert station on boot: %w", err)
	}

	st := existing
	if st == nil {
		st = &domain.Station{ID: id, CreatedAt: now}
	}
	st.Vendor = vendor
	st.Model = model
	st.FirmwareVersion = firmwareVersion
	st.ProtocolVersion = protocolVersion
	st.HeartbeatIntervalSeconds = heartbeatIntervalSeconds
	st.LastBootAt = &now
	st.LastHeartbeatAt = &now
	if !st.Blocked {
		st.Status = domain.StationStatusOnline
	}
	st.UpdatedAt = now

	if err := s.stations.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("upsert station on boot: %w", err)
	}
	s.invalidateStationCache(ctx, id)
	s.publish("station.boot", map[string]interface{}{"station_id": id, "vendor": vendor, "model": model, "blocked": st.Blocked})
	return st, nil
}

func (s *Service) RecordHeartbeat(ctx context.Context, id string, now time.Time) error {
	st, err := s.stations.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	if st == nil {
		return domain.ErrStationNotFound
	}
	st.LastHeartbeatAt = &now
	if st.Status != domain.StationStatusFaulted && !st.Blocked {
		st.Status = domain.StationStatusOnline
	}
	st.UpdatedAt = now
	if err := s.stations.Save(ctx, st); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	s.invalidateStationCache(ctx, id)
	telemetry.StationLastHeartbeat.WithLabelValues(id).Set(float64(now.Unix()))
	return nil
}

func (s *Service) UpdateConnectorStatus(ctx context.Context, stationID string, connectorID int, status domain.ConnectorStatus, errorCode string, now time.Time) error {
	unlock := s.lockConnector(domain.Connector{StationID: stationID, ConnectorID: connectorID}.Key())
	defer unlock()

	existing, err := s.stations.GetConnectorForUpdate(ctx, stationID, connectorID)
	if err != nil {
		return fmt.Errorf("update connector status: %w", err)
	}
	c := existing
	if c == nil {
		c = &domain.Connector{StationID: stationID, ConnectorID: connectorID}
	}
	c.Status = status
	c.ErrorCode = errorCode
	c.UpdatedAt = now
	if !status.HasActiveTransaction() {
		c.CurrentTransactionKey = nil
	}

	if err := s.stations.UpsertConnector(ctx, c); err != nil {
		return fmt.Errorf("update connector status: %w", err)
	}
	s.publish("connector.status", map[string]interface{}{"station_id": stationID, "connector_id": connectorID, "status": status})
	return nil
}

func (s *Service) UpdateStationStatus(ctx context.Context, id string, status domain.StationStatus, now time.Time) error {
	if err := s.stations.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update station status: %w", err)
	}
	s.invalidateStationCache(ctx, id)
	s.publish("station.status", map[string]interface{}{"station_id": id, "status": status})
	telemetry.StationsTotal.WithLabelValues(string(status)).Inc()
	return nil
}

// Authorize resolves the id-token to a user and returns Invalid (no
// user), Blocked (user not authorized), ConcurrentTx (the id-token
// already owns an Active transaction) or Accepted; now is not
// consulted. It is exposed as its own service call so it stays extensible — an
// expiry or parent-idtag policy can be layered on without touching
// the action handlers (§9 Open Questions).
func (s *Service) Authorize(ctx context.Context, idToken string, now time.Time) (domain.AuthResult, error) {
	user, err := s.users.FindByIDToken(ctx, idToken)
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("authorize: %w", err)
	}
	if user == nil {
		return domain.AuthResult{Status: domain.AuthorizationInvalid}, nil
	}
	if !user.Authorized {
		return domain.AuthResult{Status: domain.AuthorizationBlocked, UserID: user.ID}, nil
	}

	active, err := s.transactions.FindActiveByIDToken(ctx, idToken)
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("authorize: %w", err)
	}
	if active != nil {
		return domain.AuthResult{Status: domain.AuthorizationConcurrentTx, UserID: user.ID}, nil
	}

	return domain.AuthResult{Status: domain.AuthorizationAccepted, UserID: user.ID}, nil
}

func (s *Service) OpenTransaction(ctx context.Context, stationID string, connectorID int, protocolVersion domain.ProtocolVersion, idToken string, meterStartWh int, idempotencyKey, onWireIDHint string, now time.Time) (*domain.Transaction, error) {
	if idempotencyKey != "" {
		if existing, err := s.transactions.FindByIdempotencyKey(ctx, stationID, idempotencyKey); err == nil && existing != nil {
			return existing, nil
		}
	}

	unlock := s.lockConnector(domain.Connector{StationID: stationID, ConnectorID: connectorID}.Key())
	defer unlock()

	connector, err := s.stations.GetConnectorForUpdate(ctx, stationID, connectorID)
	if err != nil {
		return nil, fmt.Errorf("open transaction: %w", err)
	}
	if connector != nil && connector.CurrentTransactionKey != nil {
		return nil, domain.ErrConnectorBusy
	}

	tx := &domain.Transaction{
		Key:             uuid.NewString(),
		StationID:       stationID,
		ConnectorID:     connectorID,
		ProtocolVersion: protocolVersion,
		IDToken:         idToken,
		StartedAt:       now,
		MeterStartWh:    meterStartWh,
		Status:          domain.TransactionStatusActive,
		IdempotencyKey:  idempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if onWireIDHint != "" {
		tx.OnWireIDString = &onWireIDHint
	} else {
		onWireID, err := s.transactions.NextOnWireID(ctx, stationID)
		if err != nil {
			return nil, fmt.Errorf("open transaction: %w", err)
		}
		tx.OnWireIDInt = &onWireID
	}

	// Start must fail the caller on a write error, unlike the
	// idempotent status-update paths above (§4.G failure-semantics).
	if err := s.transactions.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("open transaction: %w", err)
	}

	if connector == nil {
		connector = &domain.Connector{StationID: stationID, ConnectorID: connectorID}
	}
	connector.Status = domain.ConnectorStatusCharging
	connector.CurrentTransactionKey = &tx.Key
	connector.UpdatedAt = now
	if err := s.stations.UpsertConnector(ctx, connector); err != nil {
		return nil, fmt.Errorf("open transaction: %w", err)
	}

	s.publish("transaction.started", map[string]interface{}{"transaction_key": tx.Key, "station_id": stationID, "connector_id": connectorID})
	telemetry.RecordTransactionStarted()
	return tx, nil
}

func (s *Service) CloseTransaction(ctx context.Context, stationID string, protocolVersion domain.ProtocolVersion, onWireIDInt *int, onWireIDString *string, meterStopWh int, reason string, now time.Time) (*domain.Transaction, error) {
	tx, err := s.transactions.FindByOnWireID(ctx, stationID, protocolVersion, onWireIDInt, onWireIDString)
	if err != nil {
		return nil, fmt.Errorf("close transaction: %w", err)
	}
	if tx == nil {
		return nil, domain.ErrTransactionNotFound
	}
	if tx.Status == domain.TransactionStatusCompleted {
		// Closing an already-completed transaction is a no-op success.
		return tx, nil
	}

	unlock := s.lockConnector(tx.ConnectorKey())
	defer unlock()

	tx.StoppedAt = &now
	tx.MeterStopWh = &meterStopWh
	if meterStopWh > tx.MeterStartWh {
		tx.EnergyDeliveredWh = meterStopWh - tx.MeterStartWh
	}
	tx.Status = domain.TransactionStatusCompleted
	tx.StopReason = reason
	tx.UpdatedAt = now

	// Stop must fail the caller on a write error.
	if err := s.transactions.Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("close transaction: %w", err)
	}

	connector, err := s.stations.GetConnectorForUpdate(ctx, tx.StationID, tx.ConnectorID)
	if err == nil && connector != nil {
		// ConnectorStatusFinishing still has an active transaction per
		// HasActiveTransaction — the ref stays set until a later
		// StatusNotification moves the connector to Available and
		// UpdateConnectorStatus clears it.
		connector.Status = domain.ConnectorStatusFinishing
		connector.UpdatedAt = now
		if err := s.stations.UpsertConnector(ctx, connector); err != nil {
			s.log.Warn("failed to update connector status after stop", zap.String("station_id", tx.StationID), zap.Int("connector_id", tx.ConnectorID), zap.Error(err))
		}
	}

	s.publish("transaction.completed", map[string]interface{}{"transaction_key": tx.Key, "station_id": tx.StationID, "energy_wh": tx.EnergyDeliveredWh})
	if tx.StoppedAt != nil {
		telemetry.RecordTransactionCompleted(float64(tx.EnergyDeliveredWh), tx.StoppedAt.Sub(tx.StartedAt).Seconds())
	}
	return tx, nil
}

func (s *Service) AppendMeter(ctx context.Context, transactionKey string, samples []domain.MeterSample) error {
	if err := s.transactions.AppendMeterSamples(ctx, transactionKey, samples, meterSampleCap); err != nil {
		return fmt.Errorf("append meter: %w", err)
	}
	return nil
}

func (s *Service) GetStation(ctx context.Context, id string) (*domain.Station, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKeyPrefix+id); err == nil && cached != "" {
			var st domain.Station
			if jsonErr := json.Unmarshal([]byte(cached), &st); jsonErr == nil {
				telemetry.RecordCacheAccess(true)
				return &st, nil
			}
		}
		telemetry.RecordCacheAccess(false)
	}
	st, err := s.stations.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	if st != nil && s.cache != nil {
		if data, jsonErr := json.Marshal(st); jsonErr == nil {
			if cacheErr := s.cache.Set(ctx, cacheKeyPrefix+id, string(data), cacheTTL); cacheErr != nil {
				s.log.Warn("failed to cache station", zap.String("station_id", id), zap.Error(cacheErr))
			}
		}
	}
	return st, nil
}

func (s *Service) ListStations(ctx context.Context) ([]domain.Station, error) {
	stations, err := s.stations.FindAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	return stations, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter map[string]interface{}) ([]domain.Transaction, error) {
	txs, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *Service) GetTransaction(ctx context.Context, key string) (*domain.Transaction, error) {
	tx, err := s.transactions.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (s *Service) GetTransactionByOnWireID(ctx context.Context, stationID string, onWireIDInt *int, onWireIDString *string) (*domain.Transaction, error) {
	protocolVersion := domain.ProtocolVersion16
	if onWireIDString != nil {
		protocolVersion = domain.ProtocolVersion201
	}
	tx, err := s.transactions.FindByOnWireID(ctx, stationID, protocolVersion, onWireIDInt, onWireIDString)
	if err != nil {
		return nil, fmt.Errorf("get transaction by on-wire id: %w", err)
	}
	return tx, nil
}

func (s *Service) RegisterStation(ctx context.Context, id, vendor, model string) (*domain.Station, error) {
	existing, err := s.stations.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("register station: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	now := time.Now()
	st := &domain.Station{
		ID:        id,
		Vendor:    vendor,
		Model:     model,
		Status:    domain.StationStatusUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stations.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("register station: %w", err)
	}
	return st, nil
}

func (s *Service) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	for i := range user.IdTokens {
		user.IdTokens[i].UserID = user.ID
		user.IdTokens[i].CreatedAt = now
		if err := s.users.SaveIDToken(ctx, &user.IdTokens[i]); err != nil {
			return fmt.Errorf("create user: save id token: %w", err)
		}
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
