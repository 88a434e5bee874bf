package models

import (
	"time"

	"smartplug/backend/services/plug-console/internal/protocol"
)

// Device is a registered plug owned by one user.
type Device struct {
	ID        string              `db:"id" json:"id"`
	UserID    int64               `db:"user_id" json:"user_id"`
	Name      string              `db:"name" json:"name"`
	Address   string              `db:"address" json:"address"`
	Type      protocol.DeviceType `db:"type" json:"type"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt time.Time           `db:"updated_at" json:"updated_at"`
}
