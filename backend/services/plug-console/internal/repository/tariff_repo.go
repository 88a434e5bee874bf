package repository

import (
	"context"
	"database/sql"
	"errors"

	"smartplug/backend/services/plug-console/internal/models"
)

// ErrNoTariff means no active tariff carries a usable price.
var ErrNoTariff = errors.New("no active tariff")

// TariffRepository looks up the USD/kWh price charts are costed with.
type TariffRepository struct {
	db *sql.DB
}

// NewTariffRepository returns repository.
func NewTariffRepository(db *sql.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

// CurrentRate returns the latest edited active tariff with a positive price. Rows
// priced at zero are skipped so a half-configured tariff never zeroes chart costs.
func (r *TariffRepository) CurrentRate(ctx context.Context) (*models.Tariff, error) {
	const query = `
		SELECT id, name, price_per_kwh::float8, is_active, created_at, updated_at
		FROM tariffs
		WHERE is_active AND price_per_kwh > 0
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`
	var t models.Tariff
	err := r.db.QueryRowContext(ctx, query).Scan(&t.ID, &t.Name, &t.PricePerKWh, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoTariff
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
