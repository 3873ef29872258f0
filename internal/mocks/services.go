package mocks

import (
	"context"
	"time"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ports"
)

// MockStationService is a mock implementation of ports.StationService
type MockStationService struct {
	UpsertStationOnBootFunc  func(ctx context.Context, id, vendor, model, firmwareVersion string, protocolVersion domain.ProtocolVersion, heartbeatIntervalSeconds int, now time.Time) (*domain.Station, error)
	RecordHeartbeatFunc      func(ctx context.Context, id string, now time.Time) error
	UpdateConnectorStatusFunc func(ctx context.Context, stationID string, connectorID int, status domain.ConnectorStatus, errorCode string, now time.Time) error
	UpdateStationStatusFunc  func(ctx context.Context, id string, status domain.StationStatus, now time.Time) error
	AuthorizeFunc            func(ctx context.Context, idToken string, now time.Time) (domain.AuthResult, error)
	OpenTransactionFunc      func(ctx context.Context, stationID string, connectorID int, protocolVersion domain.ProtocolVersion, idToken string, meterStartWh int, idempotencyKey, onWireIDHint string, now time.Time) (*domain.Transaction, error)
	CloseTransactionFunc     func(ctx context.Context, stationID string, protocolVersion domain.ProtocolVersion, onWireIDInt *int, onWireIDString *string, meterStopWh int, reason string, now time.Time) (*domain.Transaction, error)
	AppendMeterFunc          func(ctx context.Context, transactionKey string, samples []domain.MeterSample) error
	GetStationFunc           func(ctx context.Context, id string) (*domain.Station, error)
	ListStationsFunc         func(ctx context.Context) ([]domain.Station, error)
	ListTransactionsFunc     func(ctx context.Context, filter map[string]interface{}) ([]domain.Transaction, error)
	GetTransactionFunc       func(ctx context.Context, key string) (*domain.Transaction, error)
	GetTransactionByOnWireIDFunc func(ctx context.Context, stationID string, onWireIDInt *int, onWireIDString *string) (*domain.Transaction, error)
	RegisterStationFunc      func(ctx context.Context, id, vendor, model string) (*domain.Station, error)
	CreateUserFunc           func(ctx context.Context, user *domain.User) error
	ListUsersFunc            func(ctx context.Context) ([]domain.User, error)
}

var _ ports.StationService = (*MockStationService)(nil)

func (m *MockStationService) UpsertStationOnBoot(ctx context.Context, id, vendor, model, firmwareVersion string, protocolVersion domain.ProtocolVersion, heartbeatIntervalSeconds int, now time.Time) (*domain.Station, error) {
	if m.UpsertStationOnBootFunc != nil {
		return m.UpsertStationOnBootFunc(ctx, id, vendor, model, firmwareVersion, protocolVersion, heartbeatIntervalSeconds, now)
	}
	return &domain.Station{ID: id, Vendor: vendor, Model: model}, nil
}

func (m *MockStationService) RecordHeartbeat(ctx context.Context, id string, now time.Time) error {
	if m.RecordHeartbeatFunc != nil {
		return m.RecordHeartbeatFunc(ctx, id, now)
	}
	return nil
}

func (m *MockStationService) UpdateConnectorStatus(ctx context.Context, stationID string, connectorID int, status domain.ConnectorStatus, errorCode string, now time.Time) error {
	if m.UpdateConnectorStatusFunc != nil {
		return m.UpdateConnectorStatusFunc(ctx, stationID, connectorID, status, errorCode, now)
	}
	return nil
}

func (m *MockStationService) UpdateStationStatus(ctx context.Context, id string, status domain.StationStatus, now time.Time) error {
	if m.UpdateStationStatusFunc != nil {
		return m.UpdateStationStatusFunc(ctx, id, status, now)
	}
	return nil
}

func (m *MockStationService) Authorize(ctx context.Context, idToken string, now time.Time) (domain.AuthResult, error) {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, idToken, now)
	}
	return domain.AuthResult{Status: domain.AuthorizationAccepted}, nil
}

func (m *MockStationService) OpenTransaction(ctx context.Context, stationID string, connectorID int, protocolVersion domain.ProtocolVersion, idToken string, meterStartWh int, idempotencyKey, onWireIDHint string, now time.Time) (*domain.Transaction, error) {
	if m.OpenTransactionFunc != nil {
		return m.OpenTransactionFunc(ctx, stationID, connectorID, protocolVersion, idToken, meterStartWh, idempotencyKey, onWireIDHint, now)
	}
	return nil, nil
}

func (m *MockStationService) CloseTransaction(ctx context.Context, stationID string, protocolVersion domain.ProtocolVersion, onWireIDInt *int, onWireIDString *string, meterStopWh int, reason string, now time.Time) (*domain.Transaction, error) {
	if m.CloseTransactionFunc != nil {
		return m.CloseTransactionFunc(ctx, stationID, protocolVersion, onWireIDInt, onWireIDString, meterStopWh, reason, now)
	}
	return nil, nil
}

func (m *MockStationService) AppendMeter(ctx context.Context, transactionKey string, samples []domain.MeterSample) error {
	if m.AppendMeterFunc != nil {
		return m.AppendMeterFunc(ctx, transactionKey, samples)
	}
	return nil
}

func (m *MockStationService) GetStation(ctx context.Context, id string) (*domain.Station, error) {
	if m.GetStationFunc != nil {
		return m.GetStationFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStationService) ListStations(ctx context.Context) ([]domain.Station, error) {
	if m.ListStationsFunc != nil {
		return m.ListStationsFunc(ctx)
	}
	return []domain.Station{}, nil
}

func (m *MockStationService) ListTransactions(ctx context.Context, filter map[string]interface{}) ([]domain.Transaction, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, filter)
	}
	return []domain.Transaction{}, nil
}

func (m *MockStationService) GetTransaction(ctx context.Context, key string) (*domain.Transaction, error) {
	if m.GetTransactionFunc != nil {
		return m.GetTransactionFunc(ctx, key)
	}
	return nil, nil
}

func (m *MockStationService) GetTransactionByOnWireID(ctx context.Context, stationID string, onWireIDInt *int, onWireIDString *string) (*domain.Transaction, error) {
	if m.GetTransactionByOnWireIDFunc != nil {
		return m.GetTransactionByOnWireIDFunc(ctx, stationID, onWireIDInt, onWireIDString)
	}
	return nil, nil
}

func (m *MockStationService) RegisterStation(ctx context.Context, id, vendor, model string) (*domain.Station, error) {
	if m.RegisterStationFunc != nil {
		return m.RegisterStationFunc(ctx, id, vendor, model)
	}
	return &domain.Station{ID: id, Vendor: vendor, Model: model}, nil
}

func (m *MockStationService) CreateUser(ctx context.Context, user *domain.User) error {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, user)
	}
	return nil
}

func (m *MockStationService) ListUsers(ctx context.Context) ([]domain.User, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx)
	}
	return []domain.User{}, nil
}

// MockOCPPCommandService is a mock implementation of ports.OCPPCommandService
type MockOCPPCommandService struct {
	SendCommandFunc      func(ctx context.Context, stationID, action string, payload []byte, deadline time.Duration) (ports.CommandResult, error)
	BroadcastFunc        func(ctx context.Context, action string, payload []byte, deadline time.Duration) map[string]ports.CommandResult
	LiveSessionCountFunc func() int
}

var _ ports.OCPPCommandService = (*MockOCPPCommandService)(nil)

func (m *MockOCPPCommandService) SendCommand(ctx context.Context, stationID, action string, payload []byte, deadline time.Duration) (ports.CommandResult, error) {
	if m.SendCommandFunc != nil {
		return m.SendCommandFunc(ctx, stationID, action, payload, deadline)
	}
	return ports.CommandResult{}, nil
}

func (m *MockOCPPCommandService) Broadcast(ctx context.Context, action string, payload []byte, deadline time.Duration) map[string]ports.CommandResult {
	if m.BroadcastFunc != nil {
		return m.BroadcastFunc(ctx, action, payload, deadline)
	}
	return map[string]ports.CommandResult{}
}

func (m *MockOCPPCommandService) LiveSessionCount() int {
	if m.LiveSessionCountFunc != nil {
		return m.LiveSessionCountFunc()
	}
	return 0
}
