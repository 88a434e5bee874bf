package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/protocol"
	"smartplug/backend/services/plug-console/internal/redisstore"
	"smartplug/backend/services/plug-console/internal/repository"
)

// ErrInvalidDevice is returned for registrations without name or address.
var ErrInvalidDevice = errors.New("device: name and address are required")

// DeviceRepository is the storage used by DeviceService.
type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	ListByUser(ctx context.Context, userID int64) ([]models.Device, error)
	Get(ctx context.Context, userID int64, id string) (*models.Device, error)
	Update(ctx context.Context, device *models.Device) error
}

// SelectionStore remembers each user's selected device.
type SelectionStore interface {
	Save(ctx context.Context, userID int64, deviceID string) error
	Get(ctx context.Context, userID int64) (string, error)
	Delete(ctx context.Context, userID int64) error
}

// DeviceInput is what a user supplies when registering or editing a device.
type DeviceInput struct {
	Name    string
	Address string
	Type    string
}

// DeviceService manages the device registry and the current selection.
type DeviceService struct {
	repo       DeviceRepository
	selections SelectionStore
	logger     *zap.Logger
}

// NewDeviceService returns service instance.
func NewDeviceService(repo DeviceRepository, selections SelectionStore, logger *zap.Logger) *DeviceService {
	return &DeviceService{repo: repo, selections: selections, logger: logger.Named("devices")}
}

func (in DeviceInput) validate() (DeviceInput, protocol.DeviceType, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if in.Name == "" || in.Address == "" {
		return in, "", ErrInvalidDevice
	}
	if strings.TrimSpace(in.Type) == "" {
		return in, protocol.DevicePlug, nil
	}
	t, err := protocol.ParseDeviceType(in.Type)
	if err != nil {
		return in, "", err
	}
	return in, t, nil
}

// Register stores a new device and makes it the user's selection.
func (s *DeviceService) Register(ctx context.Context, userID int64, in DeviceInput) (*models.Device, error) {
	in, t, err := in.validate()
	if err != nil {
		return nil, err
	}

	device := &models.Device{UserID: userID, Name: in.Name, Address: in.Address, Type: t}
	if err := s.repo.Create(ctx, device); err != nil {
		return nil, err
	}
	s.remember(ctx, userID, device.ID)

	s.logger.Info("device registered", zap.Int64("user_id", userID), zap.String("device_id", device.ID))
	return device, nil
}

// List returns the user's devices.
func (s *DeviceService) List(ctx context.Context, userID int64) ([]models.Device, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one of the user's devices.
func (s *DeviceService) Get(ctx context.Context, userID int64, id string) (*models.Device, error) {
	return s.repo.Get(ctx, userID, id)
}

// Update edits a device.
func (s *DeviceService) Update(ctx context.Context, userID int64, id string, in DeviceInput) (*models.Device, error) {
	in, t, err := in.validate()
	if err != nil {
		return nil, err
	}
	device, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	device.Name, device.Address, device.Type = in.Name, in.Address, t
	if err := s.repo.Update(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// Select makes id the user's selected device.
func (s *DeviceService) Select(ctx context.Context, userID int64, id string) (*models.Device, error) {
	device, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, userID, device.ID)
	return device, nil
}

// Active returns the selected device, defaulting to the first registered one.
// It returns nil without error when the user has no devices.
func (s *DeviceService) Active(ctx context.Context, userID int64) (*models.Device, error) {
	id, err := s.selections.Get(ctx, userID)
	switch {
	case err == nil:
		device, err := s.repo.Get(ctx, userID, id)
		if err == nil {
			return device, nil
		}
		if !errors.Is(err, repository.ErrDeviceNotFound) {
			return nil, err
		}
	case errors.Is(err, redisstore.ErrNoSelection):
	default:
		s.logger.Warn("selection lookup failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, nil
	}
	first := devices[0]
	s.remember(ctx, userID, first.ID)
	return &first, nil
}

// Forget drops the user's selection.
func (s *DeviceService) Forget(ctx context.Context, userID int64) {
	if err := s.selections.Delete(ctx, userID); err != nil {
		s.logger.Warn("failed to clear selection", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *DeviceService) remember(ctx context.Context, userID int64, deviceID string) {
	if err := s.selections.Save(ctx, userID, deviceID); err != nil {
		s.logger.Warn("failed to store selection", zap.Int64("user_id", userID), zap.Error(err))
	}
}
