package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"smartplug/backend/services/plug-console/internal/http/middleware"
	"smartplug/backend/services/plug-console/internal/protocol"
	"smartplug/backend/services/plug-console/internal/repository"
	"smartplug/backend/services/plug-console/internal/service"
	"smartplug/backend/services/plug-console/internal/session"
)

// maxBodyBytes caps request bodies; every payload here is a handful of fields.
const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return userID, true
}

// statusFor maps domain errors to HTTP statuses; anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidMinutes),
		errors.Is(err, service.ErrInvalidDevice),
		errors.Is(err, protocol.ErrUnknownValue),
		errors.Is(err, protocol.ErrInvalidDelay):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoDevice),
		errors.Is(err, session.ErrAlreadyConnected),
		errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
