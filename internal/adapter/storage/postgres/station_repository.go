package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ports"
)

type StationRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStationRepository(db *gorm.DB, log *zap.Logger) ports.StationRepository {
	return &StationRepository{db: db, log: log}
}

func (r *StationRepository) Save(ctx context.Context, station *domain.Station) error {
	return r.db.WithContext(ctx).Save(station).Error
}

func (r *StationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	var st domain.Station
	err := r.db.WithContext(ctx).Preload("Connectors").First(&st, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (r *StationRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error) {
	var stations []domain.Station
	q := r.db.WithContext(ctx)
	for k, v := range filter {
		q = q.Where(k+" = ?", v)
	}
	err := q.Find(&stations).Error
	return stations, err
}

func (r *StationRepository) UpdateStatus(ctx context.Context, id string, status domain.StationStatus) error {
	return r.db.WithContext(ctx).Model(&domain.Station{}).Where("id = ?", id).Update("status", status).Error
}

func (r *StationRepository) ListLastSeenOnline(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station
	err := r.db.WithContext(ctx).Where("status = ?", domain.StationStatusOnline).Find(&stations).Error
	return stations, err
}

func (r *StationRepository) UpsertConnector(ctx context.Context, connector *domain.Connector) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "station_id"}, {Name: "connector_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "error_code", "current_transaction_key", "updated_at"}),
		}).
		Create(connector).Error
}

// GetConnectorForUpdate holds a row lock for the duration of the
// caller's transaction, implementing the per-connector serializability
// invariant of §4.H against writers outside this process.
func (r *StationRepository) GetConnectorForUpdate(ctx context.Context, stationID string, connectorID int) (*domain.Connector, error) {
	var c domain.Connector
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("station_id = ? AND connector_id = ?", stationID, connectorID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *StationRepository) ListConnectors(ctx context.Context, stationID string) ([]domain.Connector, error) {
	var connectors []domain.Connector
	err := r.db.WithContext(ctx).Where("station_id = ?", stationID).Find(&connectors).Error
	return connectors, err
}
