package console

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/chart"
	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/protocol"
	"smartplug/backend/services/plug-console/internal/session"
)

const (
	subscriberBuffer = 32
	rateLookup       = 2 * time.Second
)

// KindSnapshot marks a full view sent on subscribe or on request.
const KindSnapshot session.UpdateKind = "snapshot"

// RateSource supplies the USD/kWh price for cost totals.
type RateSource interface {
	Rate(ctx context.Context) float64
}

// View is what the browser renders.
type View struct {
	Kind    session.UpdateKind `json:"kind"`
	Session session.Snapshot   `json:"session"`
	Icon    string             `json:"icon,omitempty"`
	Alert   string             `json:"alert,omitempty"`
	Chart   *chart.Result      `json:"chart,omitempty"`
}

// Console is one user's side of the dashboard: it owns the user's only Session and
// turns its updates into views for every open browser stream.
type Console struct {
	userID     int64
	sess       *session.Session
	aggregator *chart.Aggregator
	rates      RateSource
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}

	mu          sync.Mutex
	period      protocol.Period
	chart       *chart.Result
	subscribers map[chan View]struct{}
	lastActive  time.Time
	closed      bool
}

func newConsole(userID int64, sess *session.Session, aggregator *chart.Aggregator, rates RateSource, logger *zap.Logger) *Console {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Console{
		userID:      userID,
		sess:        sess,
		aggregator:  aggregator,
		rates:       rates,
		logger:      logger,
		cancel:      cancel,
		done:        make(chan struct{}),
		period:      protocol.PeriodDay,
		subscribers: make(map[chan View]struct{}),
		lastActive:  time.Now(),
	}
	go func() {
		_ = sess.Run(ctx)
	}()
	go c.pump()
	return c
}

// Connect opens the session to device.
func (c *Console) Connect(device *models.Device) error {
	return c.sess.Connect(device)
}

// Disconnect closes the session transport.
func (c *Console) Disconnect() {
	c.sess.Disconnect()
}

// ToggleRelay forwards to the session.
func (c *Console) ToggleRelay() error {
	return c.sess.ToggleRelay()
}

// SetTimer forwards to the session.
func (c *Console) SetTimer(kind protocol.TimerKind, minutes string) error {
	return c.sess.SetTimer(kind, minutes)
}

// SetDeviceType forwards to the session.
func (c *Console) SetDeviceType(t protocol.DeviceType) error {
	return c.sess.SetDeviceType(t)
}

// RequestHistory asks the device for period. The period labels answers that do not
// name their own only once the session has accepted the request.
func (c *Console) RequestHistory(period protocol.Period) error {
	c.mu.Lock()
	prev := c.period
	c.period = period
	c.mu.Unlock()

	err := c.sess.RequestHistory(period)
	if err != nil {
		c.mu.Lock()
		if c.period == period {
			c.period = prev
		}
		c.mu.Unlock()
	}
	return err
}

// RefreshDevice shows the edited record of the current device without touching the
// transport. Other devices are ignored.
func (c *Console) RefreshDevice(device *models.Device) {
	if device != nil {
		c.sess.UpdateDevice(*device)
	}
}

// SwitchDevice drops the live transport and clears what the previous device showed.
func (c *Console) SwitchDevice() {
	c.sess.Disconnect()
	c.sess.Reset()
	c.mu.Lock()
	c.chart = nil
	c.mu.Unlock()
}

// View returns the current full view.
func (c *Console) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(KindSnapshot, c.sess.Snapshot())
}

// Subscribe returns a stream of views starting with a snapshot. The returned func
// unsubscribes and closes the channel.
func (c *Console) Subscribe() (<-chan View, func()) {
	ch := make(chan View, subscriberBuffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- c.viewLocked(KindSnapshot, c.sess.Snapshot())
	c.subscribers[ch] = struct{}{}
	c.lastActive = time.Now()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subscribers[ch]; ok {
				delete(c.subscribers, ch)
				close(ch)
			}
			c.lastActive = time.Now()
		})
	}
}

func (c *Console) pump() {
	defer close(c.done)
	for u := range c.sess.Updates() {
		var result *chart.Result
		if u.Kind == session.UpdateHistory && u.History != nil {
			result = c.chartFor(*u.History)
		}

		c.mu.Lock()
		if result != nil {
			c.chart = result
		}
		view := c.viewLocked(u.Kind, u.Snapshot)
		view.Alert = u.Alert
		c.broadcastLocked(view)
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.closed = true
	for ch := range c.subscribers {
		delete(c.subscribers, ch)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Console) chartFor(h protocol.HistoryReady) *chart.Result {
	c.mu.Lock()
	period := c.period
	c.mu.Unlock()
	if h.Period != "" {
		period = h.Period
	}

	ctx, cancel := context.WithTimeout(context.Background(), rateLookup)
	rate := c.rates.Rate(ctx)
	cancel()

	var res chart.Result
	if h.Chart != nil {
		res = chart.FromPayload(*h.Chart, period, rate)
	} else {
		res = c.aggregator.Aggregate(h.Samples, period, rate)
	}
	c.logger.Debug("chart ready",
		zap.Int64("user_id", c.userID),
		zap.String("period", string(period)),
		zap.Int("points", len(res.Values)),
	)
	return &res
}

func (c *Console) viewLocked(kind session.UpdateKind, snap session.Snapshot) View {
	v := View{Kind: kind, Session: snap, Chart: c.chart}
	if snap.Device != nil {
		v.Icon = snap.Device.Type.Icon()
	}
	return v
}

func (c *Console) broadcastLocked(v View) {
	for ch := range c.subscribers {
		select {
		case ch <- v:
		default:
			c.logger.Warn("dropping view for slow subscriber", zap.Int64("user_id", c.userID))
		}
	}
}

func (c *Console) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// idleFor reports whether nobody has watched the console for at least d and its
// session holds no transport.
func (c *Console) idleFor(d time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subscribers) > 0 || now.Sub(c.lastActive) < d {
		return false
	}
	switch c.sess.Snapshot().State {
	case session.Open, session.Connecting:
		return false
	}
	return true
}

func (c *Console) close() {
	c.cancel()
	<-c.done
}
