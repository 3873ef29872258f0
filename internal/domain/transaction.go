package domain

import "time"

type TransactionStatus string

const (
	TransactionStatusActive    TransactionStatus = "Active"
	TransactionStatusCompleted TransactionStatus = "Completed"
	TransactionStatusAborted   TransactionStatus = "Aborted"
)

// Transaction is a start-to-stop energy-delivery episode on one
// connector. Its on-wire identity differs by protocol version: 1.6
// assigns a CSMS-chosen monotonic integer, 2.0.1 carries an opaque
// string chosen by the CP. Both are kept as distinct attributes rather
// than collapsed into one, per the dual on-wire-id requirement — the
// Key field is the only identity used internally and across protocol
// versions.
type Transaction struct {
	Key               string            `json:"key" gorm:"primaryKey"`
	StationID         string            `json:"station_id" gorm:"index:idx_tx_station_conn"`
	ConnectorID       int               `json:"connector_id" gorm:"index:idx_tx_station_conn"`
	ProtocolVersion   ProtocolVersion   `json:"protocol_version"`
	OnWireIDInt       *int              `json:"on_wire_id_int,omitempty" gorm:"index:idx_tx_station_wireid"`
	OnWireIDString    *string           `json:"on_wire_id_string,omitempty" gorm:"index:idx_tx_station_wireid"`
	IDToken           string            `json:"id_token"`
	StartedAt         time.Time         `json:"started_at"`
	MeterStartWh      int               `json:"meter_start_wh"`
	StoppedAt         *time.Time        `json:"stopped_at,omitempty"`
	MeterStopWh       *int              `json:"meter_stop_wh,omitempty"`
	EnergyDeliveredWh int               `json:"energy_delivered_wh"`
	Status            TransactionStatus `json:"status"`
	StopReason        string            `json:"stop_reason,omitempty"`
	// IdempotencyKey dedupes duplicate CP retries of StartTransaction /
	// TransactionEvent{Started}, keyed by a CP-supplied sequence or
	// timestamp per station.
	IdempotencyKey string         `json:"idempotency_key,omitempty" gorm:"index"`
	MeterSamples   []MeterSample  `json:"meter_samples,omitempty" gorm:"foreignKey:TransactionKey;references:Key"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ConnectorKey is the serialization unit this transaction belongs to.
func (t Transaction) ConnectorKey() string {
	return connectorKey(t.StationID, t.ConnectorID)
}

// MeterSample is one time-series meter reading appended by MeterValues
// or TransactionEvent{Updated}. Bounded per transaction — oldest
// dropped once the configured cap is reached.
type MeterSample struct {
	ID              uint      `json:"-" gorm:"primaryKey"`
	TransactionKey  string    `json:"-" gorm:"index"`
	Timestamp       time.Time `json:"timestamp"`
	EnergyWh        float64   `json:"energy_wh"`
	Measurand       string    `json:"measurand,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
