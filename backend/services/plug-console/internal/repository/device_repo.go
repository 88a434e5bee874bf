package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"smartplug/backend/services/plug-console/internal/models"
)

// ErrDeviceNotFound is returned when no device matches id and owner.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceRepository stores the per-user device registry.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository returns repository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts device, assigning a fresh id.
func (r *DeviceRepository) Create(ctx context.Context, device *models.Device) error {
	device.ID = uuid.NewString()
	const query = `
		INSERT INTO devices (id, user_id, name, address, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		device.ID,
		device.UserID,
		device.Name,
		device.Address,
		string(device.Type),
	).Scan(&device.CreatedAt, &device.UpdatedAt)
}

// ListByUser returns the user's devices in registration order.
func (r *DeviceRepository) ListByUser(ctx context.Context, userID int64) ([]models.Device, error) {
	const query = `
		SELECT id, user_id, name, address, type, created_at, updated_at
		FROM devices
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]models.Device, 0)
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Address, &d.Type, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Get returns the device if it belongs to userID.
func (r *DeviceRepository) Get(ctx context.Context, userID int64, id string) (*models.Device, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrDeviceNotFound
	}
	const query = `
		SELECT id, user_id, name, address, type, created_at, updated_at
		FROM devices
		WHERE id = $1 AND user_id = $2
	`
	var d models.Device
	err := r.db.QueryRowContext(ctx, query, id, userID).
		Scan(&d.ID, &d.UserID, &d.Name, &d.Address, &d.Type, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Update overwrites name, address and type.
func (r *DeviceRepository) Update(ctx context.Context, device *models.Device) error {
	const query = `
		UPDATE devices
		SET name = $3, address = $4, type = $5, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		device.ID,
		device.UserID,
		device.Name,
		device.Address,
		string(device.Type),
	).Scan(&device.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDeviceNotFound
	}
	return err
}
