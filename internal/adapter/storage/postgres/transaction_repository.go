package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ports"
)

type TransactionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTransactionRepository(db *gorm.DB, log *zap.Logger) ports.TransactionRepository {
	return &TransactionRepository{db: db, log: log}
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

func (r *TransactionRepository) FindByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).Preload("MeterSamples").First(&tx, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindByOnWireID(ctx context.Context, stationID string, protocolVersion domain.ProtocolVersion, onWireIDInt *int, onWireIDString *string) (*domain.Transaction, error) {
	var tx domain.Transaction
	q := r.db.WithContext(ctx).Where("station_id = ?", stationID)
	switch {
	case onWireIDString != nil:
		q = q.Where("on_wire_id_string = ?", *onWireIDString)
	case onWireIDInt != nil:
		q = q.Where("on_wire_id_int = ?", *onWireIDInt)
	default:
		return nil, nil
	}
	err := q.First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, stationID, idempotencyKey string) (*domain.Transaction, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	var tx domain.Transaction
	err := r.db.WithContext(ctx).Where("station_id = ? AND idempotency_key = ?", stationID, idempotencyKey).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindActiveByConnector(ctx context.Context, stationID string, connectorID int) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND connector_id = ? AND status = ?", stationID, connectorID, domain.TransactionStatusActive).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindActiveByIDToken(ctx context.Context, idToken string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		Where("id_token = ? AND status = ?", idToken, domain.TransactionStatusActive).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) List(ctx context.Context, filter map[string]interface{}) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	q := r.db.WithContext(ctx).Order("started_at desc")
	for k, v := range filter {
		q = q.Where(k+" = ?", v)
	}
	err := q.Find(&txs).Error
	return txs, err
}

// AppendMeterSamples inserts samples and, if the transaction now holds
// more than cap rows, drops the oldest so storage stays bounded
// (§3's MeterSample retention note).
func (r *TransactionRepository) AppendMeterSamples(ctx context.Context, transactionKey string, samples []domain.MeterSample, cap int) error {
	if len(samples) == 0 {
		return nil
	}
	for i := range samples {
		samples[i].TransactionKey = transactionKey
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&samples).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&domain.MeterSample{}).Where("transaction_key = ?", transactionKey).Count(&count).Error; err != nil {
			return err
		}
		if int(count) <= cap {
			return nil
		}
		excess := int(count) - cap
		var staleIDs []uint
		if err := tx.Model(&domain.MeterSample{}).
			Where("transaction_key = ?", transactionKey).
			Order("timestamp asc").
			Limit(excess).
			Pluck("id", &staleIDs).Error; err != nil {
			return err
		}
		if len(staleIDs) == 0 {
			return nil
		}
		return tx.Delete(&domain.MeterSample{}, staleIDs).Error
	})
}

// NextOnWireID assigns the CSMS-chosen monotonic integer transaction
// id OCPP 1.6 requires, scoped per station.
func (r *TransactionRepository) NextOnWireID(ctx context.Context, stationID string) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("station_id = ? AND on_wire_id_int IS NOT NULL", stationID).
		Select("MAX(on_wire_id_int)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}
