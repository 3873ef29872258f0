package domain

import "errors"

// Domain errors raised by StationService (§4.H) and the outbound
// dispatcher (§4.F). Handlers map these to the action-specific status
// field where one exists, or to ocpperr.GenericError otherwise (§7).
var (
	ErrConnectorBusy        = errors.New("connector busy")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrStationNotFound      = errors.New("station not found")
	ErrStationNotConnected  = errors.New("station not connected")
	ErrTimeout              = errors.New("timeout")
	ErrDisconnected         = errors.New("disconnected")
)
