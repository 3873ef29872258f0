package ports

import (
	"context"
	"time"

	"github.com/ocpp-csms/csms/internal/domain"
)

// Cache is a read-through key/value cache fronting the repositories.
// Values are stored as strings (JSON-encoded for structured values);
// a cache miss or backend error is reported through the error return,
// never through a zero value, so callers can fall through to the
// repository.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}

// MessageQueue publishes domain events. Domain services treat
// publish failures as best-effort: a nil queue or a publish error is
// logged and swallowed, never surfaced to the OCPP or REST caller.
type MessageQueue interface {
	Publish(topic string, message []byte) error
	Subscribe(topic string, handler func(message []byte) error) error
	Close() error
}

// AuthService issues and validates the operator REST surface's bearer
// tokens. Business authorization of charging sessions is a distinct
// concern, see StationService.Authorize.
type AuthService interface {
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	RefreshToken(ctx context.Context, token string) (string, error)
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
}

// StationService is §4.H's domain-services port: the operations
// action handlers and the operator REST surface call into. Operations
// keyed by a connector are internally serialized per connector key;
// operations on distinct connectors proceed in parallel.
type StationService interface {
	UpsertStationOnBoot(ctx context.Context, id, vendor, model, firmwareVersion string, protocolVersion domain.ProtocolVersion, heartbeatIntervalSeconds int, now time.Time) (*domain.Station, error)
	RecordHeartbeat(ctx context.Context, id string, now time.Time) error
	UpdateConnectorStatus(ctx context.Context, stationID string, connectorID int, status domain.ConnectorStatus, errorCode string, now time.Time) error
	UpdateStationStatus(ctx context.Context, id string, status domain.StationStatus, now time.Time) error
	Authorize(ctx context.Context, idToken string, now time.Time) (domain.AuthResult, error)

	// OpenTransaction fails with ErrConnectorBusy if the connector's
	// current-transaction-ref is already non-null. onWireIDHint is the
	// CP-chosen 2.0.1 transactionId; left "" for 1.6, where the CSMS
	// assigns the on-wire id itself.
	OpenTransaction(ctx context.Context, stationID string, connectorID int, protocolVersion domain.ProtocolVersion, idToken string, meterStartWh int, idempotencyKey, onWireIDHint string, now time.Time) (*domain.Transaction, error)
	// CloseTransaction is idempotent: closing an already-Completed
	// transaction succeeds without altering state.
	CloseTransaction(ctx context.Context, stationID string, protocolVersion domain.ProtocolVersion, onWireIDInt *int, onWireIDString *string, meterStopWh int, reason string, now time.Time) (*domain.Transaction, error)
	AppendMeter(ctx context.Context, transactionKey string, samples []domain.MeterSample) error

	GetStation(ctx context.Context, id string) (*domain.Station, error)
	ListStations(ctx context.Context) ([]domain.Station, error)
	ListTransactions(ctx context.Context, filter map[string]interface{}) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, key string) (*domain.Transaction, error)
	// GetTransactionByOnWireID resolves a transaction by its on-wire id,
	// the form MeterValues (1.6) and TransactionEvent (2.0.1) carry
	// instead of the internal Key.
	GetTransactionByOnWireID(ctx context.Context, stationID string, onWireIDInt *int, onWireIDString *string) (*domain.Transaction, error)
	RegisterStation(ctx context.Context, id, vendor, model string) (*domain.Station, error)
	CreateUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// CommandResult is the outcome of one outbound CALL, returned to the
// operator REST surface by OCPPCommandService.SendCommand.
type CommandResult struct {
	Status   string // "Accepted" | "Timeout" | "Disconnected" | "Rejected" | ...
	Response []byte
	Err      error
}

// OCPPCommandService is §4.F's outbound dispatcher, exposed to the
// operator REST surface.
type OCPPCommandService interface {
	SendCommand(ctx context.Context, stationID, action string, payload []byte, deadline time.Duration) (CommandResult, error)
	Broadcast(ctx context.Context, action string, payload []byte, deadline time.Duration) map[string]CommandResult
	LiveSessionCount() int
}
