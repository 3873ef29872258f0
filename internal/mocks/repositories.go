package mocks

import (
	"context"

	"github.com/ocpp-csms/csms/internal/domain"
)

// MockUserRepository is a mock implementation of ports.UserRepository
type MockUserRepository struct {
	SaveFunc        func(ctx context.Context, user *domain.User) error
	FindByIDFunc    func(ctx context.Context, id string) (*domain.User, error)
	FindAllFunc     func(ctx context.Context) ([]domain.User, error)
	FindByIDTokenFunc func(ctx context.Context, token string) (*domain.User, error)
	SaveIDTokenFunc func(ctx context.Context, token *domain.IdToken) error
}

func (m *MockUserRepository) Save(ctx context.Context, user *domain.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, user)
	}
	return nil
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockUserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx)
	}
	return []domain.User{}, nil
}

func (m *MockUserRepository) FindByIDToken(ctx context.Context, token string) (*domain.User, error) {
	if m.FindByIDTokenFunc != nil {
		return m.FindByIDTokenFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockUserRepository) SaveIDToken(ctx context.Context, token *domain.IdToken) error {
	if m.SaveIDTokenFunc != nil {
		return m.SaveIDTokenFunc(ctx, token)
	}
	return nil
}

// MockStationRepository is a mock implementation of ports.StationRepository
type MockStationRepository struct {
	SaveFunc                  func(ctx context.Context, station *domain.Station) error
	FindByIDFunc              func(ctx context.Context, id string) (*domain.Station, error)
	FindAllFunc               func(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error)
	UpdateStatusFunc          func(ctx context.Context, id string, status domain.StationStatus) error
	ListLastSeenOnlineFunc    func(ctx context.Context) ([]domain.Station, error)
	UpsertConnectorFunc       func(ctx context.Context, connector *domain.Connector) error
	GetConnectorForUpdateFunc func(ctx context.Context, stationID string, connectorID int) (*domain.Connector, error)
	ListConnectorsFunc        func(ctx context.Context, stationID string) ([]domain.Connector, error)
}

func (m *MockStationRepository) Save(ctx context.Context, station *domain.Station) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, station)
	}
	return nil
}

func (m *MockStationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStationRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx, filter)
	}
	return []domain.Station{}, nil
}

func (m *MockStationRepository) UpdateStatus(ctx context.Context, id string, status domain.StationStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockStationRepository) ListLastSeenOnline(ctx context.Context) ([]domain.Station, error) {
	if m.ListLastSeenOnlineFunc != nil {
		return m.ListLastSeenOnlineFunc(ctx)
	}
	return []domain.Station{}, nil
}

func (m *MockStationRepository) UpsertConnector(ctx context.Context, connector *domain.Connector) error {
	if m.UpsertConnectorFunc != nil {
		return m.UpsertConnectorFunc(ctx, connector)
	}
	return nil
}

func (m *MockStationRepository) GetConnectorForUpdate(ctx context.Context, stationID string, connectorID int) (*domain.Connector, error) {
	if m.GetConnectorForUpdateFunc != nil {
		return m.GetConnectorForUpdateFunc(ctx, stationID, connectorID)
	}
	return nil, nil
}

func (m *MockStationRepository) ListConnectors(ctx context.Context, stationID string) ([]domain.Connector, error) {
	if m.ListConnectorsFunc != nil {
		return m.ListConnectorsFunc(ctx, stationID)
	}
	return []domain.Connector{}, nil
}

// MockTransactionRepository is a mock implementation of ports.TransactionRepository
type MockTransactionRepository struct {
	SaveFunc                   func(ctx context.Context, tx *domain.Transaction) error
	UpdateFunc                 func(ctx context.Context, tx *domain.Transaction) error
	FindByKeyFunc              func(ctx context.Context, key string) (*domain.Transaction, error)
	FindByOnWireIDFunc         func(ctx context.Context, stationID string, protocolVersion domain.ProtocolVersion, onWireIDInt *int, onWireIDString *string) (*domain.Transaction, error)
	FindByIdempotencyKeyFunc   func(ctx context.Context, stationID, idempotencyKey string) (*domain.Transaction, error)
	FindActiveByConnectorFunc  func(ctx context.Context, stationID string, connectorID int) (*domain.Transaction, error)
	FindActiveByIDTokenFunc    func(ctx context.Context, idToken string) (*domain.Transaction, error)
	ListFunc                   func(ctx context.Context, filter map[string]interface{}) ([]domain.Transaction, error)
	AppendMeterSamplesFunc     func(ctx context.Context, transactionKey string, samples []domain.MeterSample, cap int) error
	NextOnWireIDFunc           func(ctx context.Context, stationID string) (int, error)
}

func (m *MockTransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx)
	}
	return nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx)
	}
	return nil
}

func (m *MockTransactionRepository) FindByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	if m.FindByKeyFunc != nil {
		return m.FindByKeyFunc(ctx, key)
	}
	return nil, nil
}

func (m *MockTransactionRepository) FindByOnWireID(ctx context.Context, stationID string, protocolVersion domain.ProtocolVersion, onWireIDInt *int, onWireIDString *string) (*domain.Transaction, error) {
	if m.FindByOnWireIDFunc != nil {
		return m.FindByOnWireIDFunc(ctx, stationID, protocolVersion, onWireIDInt, onWireIDString)
	}
	return nil, nil
}

func (m *MockTransactionRepository) FindByIdempotencyKey(ctx context.Context, stationID, idempotencyKey string) (*domain.Transaction, error) {
	if m.FindByIdempotencyKeyFunc != nil {
		return m.FindByIdempotencyKeyFunc(ctx, stationID, idempotencyKey)
	}
	return nil, nil
}

func (m *MockTransactionRepository) FindActiveByConnector(ctx context.Context, stationID string, connectorID int) (*domain.Transaction, error) {
	if m.FindActiveByConnectorFunc != nil {
		return m.FindActiveByConnectorFunc(ctx, stationID, connectorID)
	}
	return nil, nil
}

func (m *MockTransactionRepository) FindActiveByIDToken(ctx context.Context, idToken string) (*domain.Transaction, error) {
	if m.FindActiveByIDTokenFunc != nil {
		return m.FindActiveByIDTokenFunc(ctx, idToken)
	}
	return nil, nil
}

func (m *MockTransactionRepository) List(ctx context.Context, filter map[string]interface{}) ([]domain.Transaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []domain.Transaction{}, nil
}

func (m *MockTransactionRepository) AppendMeterSamples(ctx context.Context, transactionKey string, samples []domain.MeterSample, cap int) error {
	if m.AppendMeterSamplesFunc != nil {
		return m.AppendMeterSamplesFunc(ctx, transactionKey, samples, cap)
	}
	return nil
}

func (m *MockTransactionRepository) NextOnWireID(ctx context.Context, stationID string) (int, error) {
	if m.NextOnWireIDFunc != nil {
		return m.NextOnWireIDFunc(ctx, stationID)
	}
	return 1, nil
}
