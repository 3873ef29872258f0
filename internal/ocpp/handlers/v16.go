package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ocpp/messages"
	"github.com/ocpp-csms/csms/internal/ocpp/ocpperr"
	"github.com/ocpp-csms/csms/internal/ocpp/session"
)

func parseTimestamp(v string) time.Time {
	if v == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Now().UTC()
}

func (t *Table) bootNotification16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.BootNotificationReq16)
	station, err := t.service.UpsertStationOnBoot(ctx, s.StationID, req.ChargePointVendor, req.ChargePointModel, req.FirmwareVersion, domain.ProtocolVersion16, 300, time.Now())
	if err != nil {
		// Boot gates everything else: unlike the idempotent-swallow
		// actions below, a persistence failure here fails the response
		// so the CP retries.
		return nil, ocpperr.Internal(err)
	}
	if station.Blocked {
		return messages.BootNotificationResp16{
			CurrentTime: nowISO(),
			Interval:    300,
			Status:      "Rejected",
		}, nil
	}
	t.publish("station.connected", []byte(s.StationID))
	return messages.BootNotificationResp16{
		CurrentTime: nowISO(),
		Interval:    300,
		Status:      "Accepted",
	}, nil
}

func (t *Table) heartbeat16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	if err := t.service.RecordHeartbeat(ctx, s.StationID, time.Now()); err != nil {
		t.log.Warn("heartbeat persist failed, responding success anyway", zap.String("station_id", s.StationID), zap.Error(err))
	}
	return messages.HeartbeatResp16{CurrentTime: nowISO()}, nil
}

func mapStationStatus16(ocppStatus string) domain.StationStatus {
	switch ocppStatus {
	case "Faulted":
		return domain.StationStatusFaulted
	case "Unavailable":
		return domain.StationStatusOffline
	default:
		return domain.StationStatusOnline
	}
}

func (t *Table) statusNotification16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.StatusNotificationReq16)
	now := parseTimestamp(req.Timestamp)
	if req.ConnectorID == 0 {
		if err := t.service.UpdateStationStatus(ctx, s.StationID, mapStationStatus16(req.Status), now); err != nil {
			t.log.Warn("status notification persist failed, responding success anyway", zap.Error(err))
		}
		return struct{}{}, nil
	}
	if err := t.service.UpdateConnectorStatus(ctx, s.StationID, req.ConnectorID, domain.ConnectorStatus(req.Status), req.ErrorCode, now); err != nil {
		t.log.Warn("status notification persist failed, responding success anyway", zap.Error(err))
	}
	return struct{}{}, nil
}

func (t *Table) authorize16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.AuthorizeReq16)
	result, err := t.service.Authorize(ctx, req.IdTag, time.Now())
	if err != nil {
		return nil, ocpperr.Internal(err)
	}
	return messages.AuthorizeResp16{IdTagInfo: messages.IdTagInfo{Status: string(result.Status)}}, nil
}

func (t *Table) startTransaction16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.StartTransactionReq16)
	now := parseTimestamp(req.Timestamp)

	tx, err := t.service.OpenTransaction(ctx, s.StationID, req.ConnectorID, domain.ProtocolVersion16, req.IdTag, req.MeterStart, req.Timestamp, "", now)
	if err != nil {
		if errors.Is(err, domain.ErrConnectorBusy) {
			return messages.StartTransactionResp16{
				TransactionID: 0,
				IdTagInfo:     messages.IdTagInfo{Status: "Invalid"},
			}, nil
		}
		// Write failure on Start must fail the response so the CP retries.
		return nil, ocpperr.Internal(err)
	}

	t.publish("transaction.started", []byte(tx.Key))
	onWireID := 0
	if tx.OnWireIDInt != nil {
		onWireID = *tx.OnWireIDInt
	}
	return messages.StartTransactionResp16{
		TransactionID: onWireID,
		IdTagInfo:     messages.IdTagInfo{Status: "Accepted"},
	}, nil
}

func (t *Table) stopTransaction16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.StopTransactionReq16)
	now := parseTimestamp(req.Timestamp)
	onWireID := req.TransactionID

	tx, err := t.service.CloseTransaction(ctx, s.StationID, domain.ProtocolVersion16, &onWireID, nil, req.MeterStop, req.Reason, now)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			// Duplicate/unknown stop: accepted as a no-op, per the
			// idempotent-close rule of §4.H.
			return messages.StopTransactionResp16{}, nil
		}
		return nil, ocpperr.Internal(err)
	}
	t.publish("transaction.completed", []byte(tx.Key))
	t.publish("billing.dispatch", []byte(tx.Key))
	return messages.StopTransactionResp16{}, nil
}

func (t *Table) meterValues16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.MeterValuesReq16)
	if req.TransactionID == nil {
		return messages.MeterValuesResp16{}, nil
	}

	tx, err := t.service.GetTransactionByOnWireID(ctx, s.StationID, req.TransactionID, nil)
	if err != nil || tx == nil {
		// MeterValues never fails the caller, even when the owning
		// transaction cannot be resolved (§4.G failure-semantics table).
		t.log.Warn("meter values for unresolvable transaction", zap.String("station_id", s.StationID), zap.Intp("transaction_id", req.TransactionID))
		return messages.MeterValuesResp16{}, nil
	}

	samples := decodeMeterValues16(req.MeterValue)
	if len(samples) > 0 {
		if err := t.service.AppendMeter(ctx, tx.Key, samples); err != nil {
			t.log.Warn("meter values append failed, responding success anyway", zap.Error(err))
		}
	}
	return messages.MeterValuesResp16{}, nil
}

func decodeMeterValues16(values []messages.MeterValue) []domain.MeterSample {
	samples := make([]domain.MeterSample, 0, len(values))
	for _, mv := range values {
		ts := parseTimestamp(mv.Timestamp)
		for _, sv := range mv.SampledValue {
			wh, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				continue
			}
			samples = append(samples, domain.MeterSample{Timestamp: ts, EnergyWh: wh, Measurand: sv.Measurand})
		}
	}
	return samples
}

func (t *Table) dataTransfer16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.DataTransferReq16)
	if fn, ok := t.vendorHandlers[req.VendorID]; ok {
		status, data := fn(req.MessageID, req.Data)
		return messages.DataTransferResp16{Status: status, Data: data}, nil
	}
	return messages.DataTransferResp16{Status: "UnknownVendorId"}, nil
}

func (t *Table) firmwareStatusNotification16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.FirmwareStatusNotificationReq16)
	t.log.Info("firmware status", zap.String("station_id", s.StationID), zap.String("status", req.Status))
	return messages.FirmwareStatusNotificationResp16{}, nil
}

func (t *Table) diagnosticsStatusNotification16(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.DiagnosticsStatusNotificationReq16)
	t.log.Info("diagnostics status", zap.String("station_id", s.StationID), zap.String("status", req.Status))
	return messages.DiagnosticsStatusNotificationResp16{}, nil
}
