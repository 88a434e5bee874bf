package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/console"
	"smartplug/backend/services/plug-console/internal/protocol"
	"smartplug/backend/services/plug-console/internal/service"
)

// ConsoleHandlers drive the user's live plug session.
type ConsoleHandlers struct {
	consoles *console.Manager
	devices  DeviceRegistry
	logger   *zap.Logger
}

// NewConsoleHandlers returns handler.
func NewConsoleHandlers(consoles *console.Manager, devices DeviceRegistry, logger *zap.Logger) *ConsoleHandlers {
	return &ConsoleHandlers{consoles: consoles, devices: devices, logger: logger}
}

// State handles GET /api/console.
func (h *ConsoleHandlers) State(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.consoles.For(userID).View())
}

// Connect handles POST /api/console/connect.
func (h *ConsoleHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.reply(w, userID, h.consoles.Connect(r.Context(), userID))
}

// Disconnect handles POST /api/console/disconnect.
func (h *ConsoleHandlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.consoles.For(userID).Disconnect()
	h.reply(w, userID, nil)
}

// Toggle handles POST /api/console/toggle.
func (h *ConsoleHandlers) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.reply(w, userID, h.consoles.For(userID).ToggleRelay())
}

// Timer handles POST /api/console/timer. Minutes may arrive as a JSON number or
// as the raw text the user typed.
func (h *ConsoleHandlers) Timer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind    string          `json:"kind"`
		Minutes json.RawMessage `json:"minutes"`
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	kind, err := protocol.ParseTimerKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.reply(w, userID, h.consoles.For(userID).SetTimer(kind, minutesText(req.Minutes)))
}

func minutesText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// DeviceType handles POST /api/console/device-type. The type is stored on the
// device record and pushed to the plug when connected.
func (h *ConsoleHandlers) DeviceType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := protocol.ParseDeviceType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := h.consoles.For(userID)
	if live := c.View().Session.Device; live != nil {
		h.storeDeviceType(r.Context(), c, userID, live.ID, t)
	}
	h.reply(w, userID, c.SetDeviceType(t))
}

// storeDeviceType changes only the type of the stored record; name and address may
// have been edited since the session connected.
func (h *ConsoleHandlers) storeDeviceType(ctx context.Context, c *console.Console, userID int64, id string, t protocol.DeviceType) {
	stored, err := h.devices.Get(ctx, userID, id)
	if err == nil {
		in := service.DeviceInput{Name: stored.Name, Address: stored.Address, Type: string(t)}
		stored, err = h.devices.Update(ctx, userID, id, in)
	}
	if err != nil {
		h.logger.Warn("failed to store device type", zap.String("device_id", id), zap.Error(err))
		return
	}
	c.RefreshDevice(stored)
}

// History handles POST /api/console/history. The chart arrives on the stream.
func (h *ConsoleHandlers) History(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Period string `json:"period"`
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	period, err := protocol.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.reply(w, userID, h.consoles.For(userID).RequestHistory(period))
}

// Logout handles POST /api/console/logout. It closes the session and clears the
// device selection.
func (h *ConsoleHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.consoles.Release(userID)
	h.devices.Forget(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// reply writes the console view, or on err the alert the session raised for it.
func (h *ConsoleHandlers) reply(w http.ResponseWriter, userID int64, err error) {
	view := h.consoles.For(userID).View()
	if err == nil {
		writeJSON(w, http.StatusOK, view)
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("console command failed", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	message := view.Session.LastAlert
	if message == "" {
		message = err.Error()
	}
	writeError(w, status, message)
}
