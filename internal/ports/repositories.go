package ports

import (
	"context"

	"github.com/ocpp-csms/csms/internal/domain"
)

// StationRepository persists Station and its owned Connectors.
// Implementations must enforce the (station-id, connector-id) unique
// constraint named in §6 of the system's persisted-state layout.
type StationRepository interface {
	Save(ctx context.Context, station *domain.Station) error
	FindByID(ctx context.Context, id string) (*domain.Station, error)
	FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error)
	UpdateStatus(ctx context.Context, id string, status domain.StationStatus) error
	ListLastSeenOnline(ctx context.Context) ([]domain.Station, error)

	// UpsertConnector creates or updates one connector row.
	UpsertConnector(ctx context.Context, connector *domain.Connector) error
	// GetConnectorForUpdate fetches one connector with a row lock held
	// for the duration of the caller's transaction, implementing the
	// per-connector serializability invariant via SELECT ... FOR UPDATE.
	GetConnectorForUpdate(ctx context.Context, stationID string, connectorID int) (*domain.Connector, error)
	ListConnectors(ctx context.Context, stationID string) ([]domain.Connector, error)
}

// TransactionRepository persists Transactions and their meter samples.
type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	Update(ctx context.Context, tx *domain.Transaction) error
	FindByKey(ctx context.Context, key string) (*domain.Transaction, error)
	FindByOnWireID(ctx context.Context, stationID string, protocolVersion domain.ProtocolVersion, onWireIDInt *int, onWireIDString *string) (*domain.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, stationID, idempotencyKey string) (*domain.Transaction, error)
	FindActiveByConnector(ctx context.Context, stationID string, connectorID int) (*domain.Transaction, error)
	FindActiveByIDToken(ctx context.Context, idToken string) (*domain.Transaction, error)
	List(ctx context.Context, filter map[string]interface{}) ([]domain.Transaction, error)
	AppendMeterSamples(ctx context.Context, transactionKey string, samples []domain.MeterSample, cap int) error
	NextOnWireID(ctx context.Context, stationID string) (int, error)
}

// UserRepository resolves id-tokens to users.
type UserRepository interface {
	Save(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
	FindByIDToken(ctx context.Context, token string) (*domain.User, error)
	SaveIDToken(ctx context.Context, token *domain.IdToken) error
}
