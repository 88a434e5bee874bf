package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/console"
	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/service"
)

// DeviceRegistry is the per-user device list with its current selection.
type DeviceRegistry interface {
	Register(ctx context.Context, userID int64, in service.DeviceInput) (*models.Device, error)
	List(ctx context.Context, userID int64) ([]models.Device, error)
	Get(ctx context.Context, userID int64, id string) (*models.Device, error)
	Update(ctx context.Context, userID int64, id string, in service.DeviceInput) (*models.Device, error)
	Select(ctx context.Context, userID int64, id string) (*models.Device, error)
	Active(ctx context.Context, userID int64) (*models.Device, error)
	Forget(ctx context.Context, userID int64)
}

// DeviceHandlers serves /api/devices.
type DeviceHandlers struct {
	devices  DeviceRegistry
	consoles *console.Manager
	logger   *zap.Logger
}

// NewDeviceHandlers returns handler.
func NewDeviceHandlers(devices DeviceRegistry, consoles *console.Manager, logger *zap.Logger) *DeviceHandlers {
	return &DeviceHandlers{devices: devices, consoles: consoles, logger: logger}
}

type deviceRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Type    string `json:"type"`
}

func (d deviceRequest) input() service.DeviceInput {
	return service.DeviceInput{Name: d.Name, Address: d.Address, Type: d.Type}
}

// List handles GET /api/devices.
func (h *DeviceHandlers) List(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Devices    []models.Device `json:"devices"`
		SelectedID string          `json:"selectedId,omitempty"`
	}

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	devices, err := h.devices.List(r.Context(), userID)
	if err != nil {
		h.fail(w, "list devices", err)
		return
	}
	resp := response{Devices: devices}
	if len(devices) > 0 {
		active, err := h.devices.Active(r.Context(), userID)
		if err != nil {
			h.fail(w, "resolve selected device", err)
			return
		}
		if active != nil {
			resp.SelectedID = active.ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/devices. The new device becomes the selection.
func (h *DeviceHandlers) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req deviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	device, err := h.devices.Register(r.Context(), userID, req.input())
	if err != nil {
		h.fail(w, "register device", err)
		return
	}
	h.consoles.For(userID).SwitchDevice()
	writeJSON(w, http.StatusCreated, device)
}

// Get handles GET /api/devices/{id}.
func (h *DeviceHandlers) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	device, err := h.devices.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.fail(w, "get device", err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// Update handles PUT /api/devices/{id}. Editing the live device drops its transport
// and the console shows the edited record.
func (h *DeviceHandlers) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req deviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	device, err := h.devices.Update(r.Context(), userID, r.PathValue("id"), req.input())
	if err != nil {
		h.fail(w, "update device", err)
		return
	}
	c := h.consoles.For(userID)
	if live := c.View().Session.Device; live != nil && live.ID == device.ID {
		c.SwitchDevice()
		c.RefreshDevice(device)
	}
	writeJSON(w, http.StatusOK, device)
}

// Select handles POST /api/devices/{id}/select.
func (h *DeviceHandlers) Select(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	device, err := h.devices.Select(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.fail(w, "select device", err)
		return
	}
	c := h.consoles.For(userID)
	if live := c.View().Session.Device; live == nil || live.ID != device.ID {
		c.SwitchDevice()
	}
	writeJSON(w, http.StatusOK, device)
}

func (h *DeviceHandlers) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
