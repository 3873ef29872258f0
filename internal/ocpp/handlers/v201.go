package handlers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ocpp/messages"
	"github.com/ocpp-csms/csms/internal/ocpp/ocpperr"
	"github.com/ocpp-csms/csms/internal/ocpp/session"
)

func (t *Table) bootNotification201(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.BootNotificationReq201)
	station, err := t.service.UpsertStationOnBoot(ctx, s.StationID, req.ChargingStation.VendorName, req.ChargingStation.Model, req.ChargingStation.FirmwareVersion, domain.ProtocolVersion201, 300, time.Now())
	if err != nil {
		return nil, ocpperr.Internal(err)
	}
	if station.Blocked {
		return messages.BootNotificationResp201{
			CurrentTime: nowISO(),
			Interval:    300,
			Status:      "Rejected",
		}, nil
	}
	t.publish("station.connected", []byte(s.StationID))
	return messages.BootNotificationResp201{
		CurrentTime: nowISO(),
		Interval:    300,
		Status:      "Accepted",
	}, nil
}

func (t *Table) heartbeat201(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	if err := t.service.RecordHeartbeat(ctx, s.StationID, time.Now()); err != nil {
		t.log.Warn("heartbeat persist failed, responding success anyway", zap.String("station_id", s.StationID), zap.Error(err))
	}
	return messages.HeartbeatResp201{CurrentTime: nowISO()}, nil
}

func mapStationStatus201(ocppStatus string) domain.StationStatus {
	switch ocppStatus {
	case "Faulted":
		return domain.StationStatusFaulted
	case "Unavailable":
		return domain.StationStatusOffline
	default:
		return domain.StationStatusOnline
	}
}

func (t *Table) statusNotification201(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.StatusNotificationReq201)
	now := parseTimestamp(req.Timestamp)
	if req.ConnectorID == 0 {
		if err := t.service.UpdateStationStatus(ctx, s.StationID, mapStationStatus201(req.ConnectorStatus), now); err != nil {
			t.log.Warn("status notification persist failed, responding success anyway", zap.Error(err))
		}
		return struct{}{}, nil
	}
	if err := t.service.UpdateConnectorStatus(ctx, s.StationID, req.ConnectorID, domain.ConnectorStatus(req.ConnectorStatus), "", now); err != nil {
		t.log.Warn("status notification persist failed, responding success anyway", zap.Error(err))
	}
	return struct{}{}, nil
}

func (t *Table) authorize201(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.AuthorizeReq201)
	result, err := t.service.Authorize(ctx, req.IdToken.IdToken, time.Now())
	if err != nil {
		return nil, ocpperr.Internal(err)
	}
	return messages.AuthorizeResp201{IdTokenInfo: messages.IdTokenInfo{Status: string(result.Status)}}, nil
}

func (t *Table) transactionEvent201(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.TransactionEventReq201)
	now := parseTimestamp(req.Timestamp)
	connectorID := 0
	if req.ConnectorID != nil {
		connectorID = *req.ConnectorID
	}

	switch req.EventType {
	case "Started":
		idToken := ""
		if req.IdToken != nil {
			idToken = req.IdToken.IdToken
		}
		meterStart := firstMeterValueWh201(req.MeterValue)
		tx, err := t.service.OpenTransaction(ctx, s.StationID, connectorID, domain.ProtocolVersion201, idToken, meterStart, req.TransactionInfo.TransactionID, req.TransactionInfo.TransactionID, now)
		if err != nil {
			if errors.Is(err, domain.ErrConnectorBusy) {
				return messages.TransactionEventResp201{
					IdTokenInfo: &messages.IdTokenInfo{Status: "Invalid"},
				}, nil
			}
			return nil, ocpperr.Internal(err)
		}
		t.publish("transaction.started", []byte(tx.Key))
		return messages.TransactionEventResp201{
			IdTokenInfo: &messages.IdTokenInfo{Status: "Accepted"},
		}, nil

	case "Updated":
		onWireID := req.TransactionInfo.TransactionID
		tx, err := t.service.GetTransactionByOnWireID(ctx, s.StationID, nil, &onWireID)
		if err != nil || tx == nil {
			t.log.Warn("transaction event update for unresolvable transaction", zap.String("station_id", s.StationID), zap.String("transaction_id", onWireID))
			return messages.TransactionEventResp201{}, nil
		}
		samples := decodeMeterValues201(req.MeterValue)
		if len(samples) > 0 {
			if err := t.service.AppendMeter(ctx, tx.Key, samples); err != nil {
				t.log.Warn("meter values append failed, responding success anyway", zap.Error(err))
			}
		}
		return messages.TransactionEventResp201{}, nil

	case "Ended":
		onWireID := req.TransactionInfo.TransactionID
		meterStop := lastMeterValueWh201(req.MeterValue)
		tx, err := t.service.CloseTransaction(ctx, s.StationID, domain.ProtocolVersion201, nil, &onWireID, meterStop, req.StoppedReason, now)
		if err != nil {
			if errors.Is(err, domain.ErrTransactionNotFound) {
				return messages.TransactionEventResp201{}, nil
			}
			return nil, ocpperr.Internal(err)
		}
		t.publish("transaction.completed", []byte(tx.Key))
		t.publish("billing.dispatch", []byte(tx.Key))
		return messages.TransactionEventResp201{}, nil

	default:
		return nil, ocpperr.New(ocpperr.PropertyConstraintViolation, "unknown eventType "+req.EventType)
	}
}

func firstMeterValueWh201(values []messages.MeterValue201) int {
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			return int(sv.Value)
		}
	}
	return 0
}

func lastMeterValueWh201(values []messages.MeterValue201) int {
	wh := 0
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			wh = int(sv.Value)
		}
	}
	return wh
}

func decodeMeterValues201(values []messages.MeterValue201) []domain.MeterSample {
	samples := make([]domain.MeterSample, 0, len(values))
	for _, mv := range values {
		ts := parseTimestamp(mv.Timestamp)
		for _, sv := range mv.SampledValue {
			samples = append(samples, domain.MeterSample{Timestamp: ts, EnergyWh: sv.Value, Measurand: sv.Measurand})
		}
	}
	return samples
}

func (t *Table) dataTransfer201(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.DataTransferReq201)
	data, _ := req.Data.(string)
	if fn, ok := t.vendorHandlers[req.VendorID]; ok {
		status, respData := fn(req.MessageID, data)
		return messages.DataTransferResp201{Status: status, Data: respData}, nil
	}
	return messages.DataTransferResp201{Status: "UnknownVendorId"}, nil
}

func (t *Table) firmwareStatusNotification201(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.FirmwareStatusNotificationReq201)
	t.log.Info("firmware status", zap.String("station_id", s.StationID), zap.String("status", req.Status))
	return messages.FirmwareStatusNotificationResp201{}, nil
}

func (t *Table) logStatusNotification201(ctx context.Context, s *session.Session, reqAny interface{}) (interface{}, *ocpperr.Error) {
	req := reqAny.(*messages.LogStatusNotificationReq201)
	t.log.Info("log status", zap.String("station_id", s.StationID), zap.String("status", req.Status))
	return messages.LogStatusNotificationResp201{}, nil
}
