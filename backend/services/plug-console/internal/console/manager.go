package console

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/chart"
	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/session"
)

// DeviceSource resolves the device a user has selected.
type DeviceSource interface {
	Active(ctx context.Context, userID int64) (*models.Device, error)
}

const defaultIdleTimeout = 10 * time.Minute

// Config wires a Manager. IdleTimeout is how long a console with no streams and
// no live transport is kept before it is released.
type Config struct {
	Dialer      session.Dialer
	Session     session.Options
	Devices     DeviceSource
	Rates       RateSource
	Aggregator  *chart.Aggregator
	Logger      *zap.Logger
	IdleTimeout time.Duration
}

// Manager keeps one Console per user.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	consoles map[int64]*Console
}

// NewManager builds a manager.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = chart.NewAggregator(nil)
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.Named("console"),
		consoles: make(map[int64]*Console),
	}
}

// For returns the user's console, creating it on first use.
func (m *Manager) For(userID int64) *Console {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.consoles[userID]; ok {
		c.touch()
		return c
	}
	logger := m.logger.With(zap.Int64("user_id", userID))
	sess := session.New(m.cfg.Dialer, logger.Named("session"), m.cfg.Session)
	c := newConsole(userID, sess, m.cfg.Aggregator, m.cfg.Rates, logger)
	m.consoles[userID] = c
	return c
}

// Connect opens the user's session to their selected device.
func (m *Manager) Connect(ctx context.Context, userID int64) error {
	device, err := m.cfg.Devices.Active(ctx, userID)
	if err != nil {
		return err
	}
	return m.For(userID).Connect(device)
}

// Release shuts down the user's console, closing its transport and streams.
func (m *Manager) Release(userID int64) {
	m.mu.Lock()
	c, ok := m.consoles[userID]
	delete(m.consoles, userID)
	m.mu.Unlock()
	if ok {
		c.close()
	}
}

// Start releases idle consoles until ctx is done and then releases every console.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.sweep(now)
		case <-ctx.Done():
			m.releaseAll()
			return
		}
	}
}

func (m *Manager) releaseAll() {
	m.mu.Lock()
	consoles := m.consoles
	m.consoles = make(map[int64]*Console)
	m.mu.Unlock()

	for _, c := range consoles {
		c.close()
	}
	m.logger.Info("consoles released", zap.Int("count", len(consoles)))
}

func (m *Manager) sweep(now time.Time) {
	var idle []*Console
	m.mu.Lock()
	for userID, c := range m.consoles {
		if c.idleFor(m.cfg.IdleTimeout, now) {
			delete(m.consoles, userID)
			idle = append(idle, c)
		}
	}
	m.mu.Unlock()

	for _, c := range idle {
		c.close()
		m.logger.Debug("idle console released", zap.Int64("user_id", c.userID))
	}
}
