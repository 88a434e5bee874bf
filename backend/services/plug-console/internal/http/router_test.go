package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/console"
	"smartplug/backend/services/plug-console/internal/http/handlers"
	"smartplug/backend/services/plug-console/internal/http/middleware"
	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/protocol"
	"smartplug/backend/services/plug-console/internal/repository"
	"smartplug/backend/services/plug-console/internal/service"
	"smartplug/backend/services/plug-console/internal/session"
)

type memAuth struct{}

func (memAuth) Signup(_ context.Context, email, _ string) (*models.User, error) {
	if email == "taken@example.com" {
		return nil, service.ErrEmailInUse
	}
	return &models.User{ID: 1, Email: email}, nil
}

func (memAuth) Login(_ context.Context, email, password string) (string, *models.User, error) {
	if password != "pw" {
		return "", nil, service.ErrInvalidCredentials
	}
	return "token-1", &models.User{ID: 1, Email: email}, nil
}

type memRegistry struct {
	mu       sync.Mutex
	devices  []models.Device
	selected map[int64]string
}

func newMemRegistry() *memRegistry { return &memRegistry{selected: make(map[int64]string)} }

func (m *memRegistry) Register(_ context.Context, userID int64, in service.DeviceInput) (*models.Device, error) {
	if in.Name == "" || in.Address == "" {
		return nil, service.ErrInvalidDevice
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := models.Device{ID: fmt.Sprintf("dev-%d", len(m.devices)+1), UserID: userID, Name: in.Name, Address: in.Address, Type: protocol.DevicePlug}
	m.devices = append(m.devices, d)
	m.selected[userID] = d.ID
	return &d, nil
}

func (m *memRegistry) List(_ context.Context, userID int64) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Device, 0)
	for _, d := range m.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRegistry) Get(_ context.Context, userID int64, id string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.ID == id && d.UserID == userID {
			copied := d
			return &copied, nil
		}
	}
	return nil, repository.ErrDeviceNotFound
}

func (m *memRegistry) Update(ctx context.Context, userID int64, id string, in service.DeviceInput) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devices {
		if d.ID == id && d.UserID == userID {
			m.devices[i].Name, m.devices[i].Address = in.Name, in.Address
			if in.Type != "" {
				m.devices[i].Type = protocol.DeviceType(in.Type)
			}
			copied := m.devices[i]
			return &copied, nil
		}
	}
	return nil, repository.ErrDeviceNotFound
}

func (m *memRegistry) Select(ctx context.Context, userID int64, id string) (*models.Device, error) {
	d, err := m.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.selected[userID] = d.ID
	m.mu.Unlock()
	return d, nil
}

func (m *memRegistry) Active(ctx context.Context, userID int64) (*models.Device, error) {
	m.mu.Lock()
	id, ok := m.selected[userID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return m.Get(ctx, userID, id)
}

func (m *memRegistry) Forget(_ context.Context, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.selected, userID)
}

type plugConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	written []string
}

func (p *plugConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-p.inbound:
		return websocket.TextMessage, msg, nil
	case <-p.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (p *plugConn) WriteMessage(_ int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, string(data))
	return nil
}

func (p *plugConn) SetWriteDeadline(time.Time) error { return nil }

func (p *plugConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *plugConn) frames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

type plugDialer struct {
	mu   sync.Mutex
	last *plugConn
}

func (d *plugDialer) Dial(context.Context, models.Device) (session.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = &plugConn{inbound: make(chan []byte, 8), closed: make(chan struct{})}
	return d.last, nil
}

func (d *plugDialer) conn() *plugConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

type testEnv struct {
	handler  http.Handler
	token    string
	devices  *memRegistry
	dialer   *plugDialer
	consoles *console.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	tokens := service.NewTokenService("test-secret", time.Hour)
	token, err := tokens.GenerateToken(1, "alice@example.com")
	require.NoError(t, err)

	devices := newMemRegistry()
	dialer := &plugDialer{}
	consoles := console.NewManager(console.Config{
		Dialer:  dialer,
		Devices: devices,
		Rates:   service.NewTariffService(nil, 0.12, logger),
		Logger:  logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consoles.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	router := NewRouter(RouterDeps{
		AuthHandlers:    handlers.NewAuthHandlers(memAuth{}, logger),
		DeviceHandlers:  handlers.NewDeviceHandlers(devices, consoles, logger),
		ConsoleHandlers: handlers.NewConsoleHandlers(consoles, devices, logger),
		StreamHandler:   handlers.NewStreamHandler(consoles, time.Second, logger),
		HealthHandler:   handlers.NewHealthHandler(),
	}, middleware.AuthMiddleware(tokens))

	server := NewServer(":0", router, logger, middleware.RecoveryMiddleware(logger), middleware.LoggingMiddleware(logger))
	return &testEnv{handler: server.Handler(), token: token, devices: devices, dialer: dialer, consoles: consoles}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func stateOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Session struct {
			State   string `json:"state"`
			RelayOn bool   `json:"relayOn"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Session.State
}

func TestHealthAndMethods(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/devices", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestConsoleRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/console", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/signup", `{"email":"a@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/signup", `{"email":"taken@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/signup", `{"email":" ","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token_type":"Bearer"`)

	rec = env.do(t, http.MethodPost, "/api/auth/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommandsWithoutDevice(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/console/connect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Please add and select a device first.", errorOf(t, rec))

	rec = env.do(t, http.MethodPost, "/api/console/toggle", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Not connected. Please connect to a device first.", errorOf(t, rec))

	rec = env.do(t, http.MethodPost, "/api/console/timer", `{"kind":"off","minutes":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please enter a valid number of minutes.", errorOf(t, rec))

	rec = env.do(t, http.MethodPost, "/api/console/history", `{"period":"decade"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/console/device-type", `{"type":"toaster"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/devices", `{"name":"","address":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/devices", `{"name":"Fridge","address":"10.0.0.2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/devices", `{"name":"Lamp","address":"10.0.0.3"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"selectedId":"dev-2"`)

	rec = env.do(t, http.MethodPost, "/api/devices/dev-1/select", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/devices/dev-1", `{"name":"Freezer","address":"10.0.0.9"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/devices/dev-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Freezer"`)

	rec = env.do(t, http.MethodGet, "/api/devices/dev-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConsoleCommands(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/devices", `{"name":"Fridge","address":"10.0.0.2"}`).Code)

	rec := env.do(t, http.MethodPost, "/api/console/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return stateOf(t, env.do(t, http.MethodGet, "/api/console", "")) == "open"
	}, time.Second, 5*time.Millisecond)

	rec = env.do(t, http.MethodPost, "/api/console/connect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Already connected.", errorOf(t, rec))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/console/toggle", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/console/timer", `{"kind":"on","minutes":"5"}`).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/console/timer", `{"kind":"off","minutes":2}`).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/console/device-type", `{"type":"fridge"}`).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/console/history", `{"period":"week"}`).Code)

	conn := env.dialer.conn()
	require.Eventually(t, func() bool { return len(conn.frames()) == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"TOGGLE_RELAY",
		"TIMER_ON:300",
		"TIMER_OFF:120",
		`{"type":"setDevice","device":"fridge"}`,
		`{"type":"getData","period":"week"}`,
	}, conn.frames())

	stored, err := env.devices.Get(context.Background(), 1, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, protocol.DeviceFridge, stored.Type)

	rec = env.do(t, http.MethodPost, "/api/console/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "closed", stateOf(t, rec))

	rec = env.do(t, http.MethodPost, "/api/console/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	active, err := env.devices.Active(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestDeviceTypeKeepsEdits(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/devices", `{"name":"Fridge","address":"10.0.0.2"}`).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/console/connect", "").Code)
	require.Eventually(t, func() bool {
		return stateOf(t, env.do(t, http.MethodGet, "/api/console", "")) == "open"
	}, time.Second, 5*time.Millisecond)

	rec := env.do(t, http.MethodPut, "/api/devices/dev-1", `{"name":"Freezer","address":"10.0.0.9"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Session struct {
			Device models.Device `json:"device"`
		} `json:"session"`
	}
	rec = env.do(t, http.MethodGet, "/api/console", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Freezer", view.Session.Device.Name)
	assert.Equal(t, "10.0.0.9", view.Session.Device.Address)

	rec = env.do(t, http.MethodPost, "/api/console/device-type", `{"type":"tv"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.devices.Get(context.Background(), 1, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "Freezer", stored.Name)
	assert.Equal(t, "10.0.0.9", stored.Address)
	assert.Equal(t, protocol.DeviceTV, stored.Type)

	rec = env.do(t, http.MethodGet, "/api/console", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Freezer", view.Session.Device.Name)
	assert.Equal(t, protocol.DeviceTV, view.Session.Device.Type)
}

func TestConsoleStream(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/devices", `{"name":"Fridge","address":"10.0.0.2"}`).Code)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/console/stream?token=" + env.token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var view console.View
	require.NoError(t, ws.ReadJSON(&view))
	assert.Equal(t, console.KindSnapshot, view.Kind)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/console/connect", "").Code)
	for view.Session.State != session.Open {
		require.NoError(t, ws.ReadJSON(&view))
	}

	env.dialer.conn().inbound <- []byte(`{"type":"data","voltage":230.1,"current":0.5,"power":115,"frequency":50,"energy":1.2}`)
	for view.Kind != session.UpdateTelemetry {
		require.NoError(t, ws.ReadJSON(&view))
	}
	assert.Equal(t, 230.1, view.Session.Telemetry.VoltageV)
	assert.Equal(t, 1.2, view.Session.Telemetry.EnergyKWh)
}
