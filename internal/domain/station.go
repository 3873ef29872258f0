package domain

import (
	"strconv"
	"time"
)

// StationStatus is the operational status the CSMS attributes to a station.
type StationStatus string

const (
	StationStatusOnline  StationStatus = "Online"
	StationStatusOffline StationStatus = "Offline"
	StationStatusFaulted StationStatus = "Faulted"
	StationStatusUnknown StationStatus = "Unknown"
)

// ProtocolVersion is the OCPP dialect negotiated at handshake time.
type ProtocolVersion string

const (
	ProtocolVersion16  ProtocolVersion = "ocpp1.6"
	ProtocolVersion201 ProtocolVersion = "ocpp2.0.1"
)

// Station is a charging station identified by an externally assigned,
// opaque station id. Created either by operator registration or
// implicitly on first BootNotification.
type Station struct {
	ID              string          `json:"id" gorm:"primaryKey"`
	Vendor          string          `json:"vendor"`
	Model           string          `json:"model"`
	FirmwareVersion string          `json:"firmware_version"`
	ProtocolVersion ProtocolVersion `json:"protocol_version"`
	Status          StationStatus   `json:"status"`
	LastBootAt      *time.Time      `json:"last_boot_at,omitempty"`
	LastHeartbeatAt *time.Time      `json:"last_heartbeat_at,omitempty"`
	HeartbeatIntervalSeconds int    `json:"heartbeat_interval_seconds"`
	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	Address         string          `json:"address,omitempty"`
	Blocked         bool            `json:"blocked"`
	Connectors      []Connector     `json:"connectors,omitempty" gorm:"foreignKey:StationID"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ConnectorStatus mirrors the OCPP StatusNotification vocabulary.
type ConnectorStatus string

const (
	ConnectorStatusAvailable     ConnectorStatus = "Available"
	ConnectorStatusPreparing     ConnectorStatus = "Preparing"
	ConnectorStatusCharging      ConnectorStatus = "Charging"
	ConnectorStatusSuspendedEVSE ConnectorStatus = "SuspendedEVSE"
	ConnectorStatusSuspendedEV   ConnectorStatus = "SuspendedEV"
	ConnectorStatusFinishing     ConnectorStatus = "Finishing"
	ConnectorStatusReserved      ConnectorStatus = "Reserved"
	ConnectorStatusUnavailable   ConnectorStatus = "Unavailable"
	ConnectorStatusFaulted       ConnectorStatus = "Faulted"
)

// HasActiveTransaction reports whether this status permits a non-null
// CurrentTransactionRef, per the connector invariant in §3 of the spec
// this system implements.
func (s ConnectorStatus) HasActiveTransaction() bool {
	switch s {
	case ConnectorStatusCharging, ConnectorStatusSuspendedEVSE, ConnectorStatusSuspendedEV, ConnectorStatusFinishing:
		return true
	default:
		return false
	}
}

// Connector is a child of a Station. Composite identity is
// (StationID, ConnectorID); ConnectorID 0 means "the station itself"
// in StatusNotification and never carries a transaction.
type Connector struct {
	ID                     uint            `json:"-" gorm:"primaryKey"`
	StationID              string          `json:"station_id" gorm:"index:idx_connector_station_conn,unique"`
	ConnectorID            int             `json:"connector_id" gorm:"index:idx_connector_station_conn,unique"`
	Status                 ConnectorStatus `json:"status"`
	ErrorCode              string          `json:"error_code,omitempty"`
	CurrentTransactionKey  *string         `json:"current_transaction_key,omitempty"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Key is the string used as the serialization unit for per-connector
// operations (§4.H concurrency rule).
func (c Connector) Key() string {
	return connectorKey(c.StationID, c.ConnectorID)
}

func connectorKey(stationID string, connectorID int) string {
	return stationID + "#" + strconv.Itoa(connectorID)
}
