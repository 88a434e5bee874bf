package httpserver

import (
	"net/http"
	"sort"
	"strings"

	"smartplug/backend/services/plug-console/internal/http/handlers"
	"smartplug/backend/services/plug-console/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	AuthHandlers    *handlers.AuthHandlers
	DeviceHandlers  *handlers.DeviceHandlers
	ConsoleHandlers *handlers.ConsoleHandlers
	StreamHandler   http.Handler
	HealthHandler   http.HandlerFunc
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))

	mux.Handle("/api/auth/signup", method(http.MethodPost, http.HandlerFunc(deps.AuthHandlers.Signup)))
	mux.Handle("/api/auth/login", method(http.MethodPost, http.HandlerFunc(deps.AuthHandlers.Login)))

	authenticated := func(handler http.Handler) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	devices := deps.DeviceHandlers
	mux.Handle("/api/devices", authenticated(methods{
		http.MethodGet:  http.HandlerFunc(devices.List),
		http.MethodPost: http.HandlerFunc(devices.Create),
	}))
	mux.Handle("/api/devices/{id}", authenticated(methods{
		http.MethodGet: http.HandlerFunc(devices.Get),
		http.MethodPut: http.HandlerFunc(devices.Update),
	}))
	mux.Handle("/api/devices/{id}/select", authenticated(method(http.MethodPost, http.HandlerFunc(devices.Select))))

	console := deps.ConsoleHandlers
	mux.Handle("/api/console", authenticated(method(http.MethodGet, http.HandlerFunc(console.State))))
	mux.Handle("/api/console/stream", authenticated(method(http.MethodGet, deps.StreamHandler)))
	for path, handler := range map[string]http.HandlerFunc{
		"/api/console/connect":     console.Connect,
		"/api/console/disconnect":  console.Disconnect,
		"/api/console/toggle":      console.Toggle,
		"/api/console/timer":       console.Timer,
		"/api/console/device-type": console.DeviceType,
		"/api/console/history":     console.History,
		"/api/console/logout":      console.Logout,
	} {
		mux.Handle(path, authenticated(method(http.MethodPost, handler)))
	}

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return methods{expected: handler}
}

// methods dispatches on the request method and answers 405 otherwise.
type methods map[string]http.Handler

func (m methods) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if handler, ok := m[r.Method]; ok {
		handler.ServeHTTP(w, r)
		return
	}
	allowed := make([]string, 0, len(m))
	for name := range m {
		allowed = append(allowed, name)
	}
	sort.Strings(allowed)
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	w.WriteHeader(http.StatusMethodNotAllowed)
}
