package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/protocol"
)

var (
	// ErrNoDevice is returned by Connect without a usable device.
	ErrNoDevice = errors.New("session: no device selected")
	// ErrAlreadyConnected is returned by Connect for the device already live.
	ErrAlreadyConnected = errors.New("session: already connected")
	// ErrNotConnected is returned by commands issued while the transport is not open.
	ErrNotConnected = errors.New("session: not connected")
	// ErrInvalidMinutes is returned by SetTimer for input that is not a positive integer.
	ErrInvalidMinutes = errors.New("session: invalid timer minutes")
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("session: stopped")
)

// User facing alert texts.
const (
	alertNoDevice       = "Please add and select a device first."
	alertAlreadyOpen    = "Already connected."
	alertNotConnected   = "Not connected. Please connect to a device first."
	alertInvalidMinutes = "Please enter a valid number of minutes."
)

// maxTimerMinutes keeps minutes*60 inside int32 seconds for the firmware.
const maxTimerMinutes = math.MaxInt32 / 60

// Options tune a Session.
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	UpdateBuffer int
	Now          func() time.Time
}

// Session owns the single live connection to one plug and the state derived from it.
// Transport signals and inbound frames are applied by Run in arrival order; commands
// are fire-and-forget and never wait for the device.
type Session struct {
	dialer  Dialer
	logger  *zap.Logger
	opts    Options
	events  chan event
	updates chan Update
	done    chan struct{}

	mu         sync.Mutex
	running    bool
	stopped    bool
	generation uint64
	cancelDial context.CancelFunc
	transport  *transport
	device     *models.Device
	state      State
	relayOn    bool
	telemetry  Telemetry
	lastAlert  string
}

// New builds an idle session. Call Run to start processing.
func New(dialer Dialer, logger *zap.Logger, opts Options) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UpdateBuffer <= 0 {
		opts.UpdateBuffer = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		dialer:  dialer,
		logger:  logger,
		opts:    opts,
		events:  make(chan event, 64),
		updates: make(chan Update, opts.UpdateBuffer),
		done:    make(chan struct{}),
		state:   Idle,
	}
}

// Updates streams state changes, alerts and history answers. It is closed when Run exits.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Run is the dispatch loop. It returns when ctx is done, closing the live transport.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return errors.New("session: already running")
	}
	s.running = true
	s.mu.Unlock()

	defer s.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	close(s.done)
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.transport != nil {
		s.transport.close()
		s.transport = nil
	}
	close(s.updates)
}

func (s *Session) emit(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
	}
}

// Connect starts opening a transport to device. A different device replaces the
// current one; its transport is closed before the new dial starts.
func (s *Session) Connect(device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if device == nil || strings.TrimSpace(device.Address) == "" {
		s.alertLocked(alertNoDevice)
		return ErrNoDevice
	}
	if s.state == Open || s.state == Connecting {
		if s.device != nil && s.device.ID == device.ID {
			s.alertLocked(alertAlreadyOpen)
			return ErrAlreadyConnected
		}
		s.teardownLocked()
	}

	dev := *device
	s.generation++
	id := s.generation
	s.device = &dev
	s.relayOn = false
	s.telemetry = Telemetry{}
	s.setStateLocked(Connecting)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	go s.dial(ctx, id, dev)

	s.logger.Info("connecting to device", zap.String("device_id", dev.ID), zap.String("address", dev.Address))
	return nil
}

func (s *Session) dial(ctx context.Context, id uint64, dev models.Device) {
	conn, err := s.dialer.Dial(ctx, dev)
	if err != nil {
		s.emit(event{kind: eventFailed, transportID: id, err: err})
		return
	}
	s.emit(event{kind: eventOpened, transportID: id, conn: conn})
}

// Disconnect closes the live or pending transport.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open && s.state != Connecting {
		return
	}
	s.teardownLocked()
}

// teardownLocked drops the current transport and reports the disconnect.
func (s *Session) teardownLocked() {
	s.generation++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.transport != nil {
		s.transport.close()
		s.transport = nil
	}
	s.setStateLocked(Closed)
	s.alertLocked(fmt.Sprintf("Disconnected from %s.", s.deviceNameLocked()))
}

// Reset clears telemetry, relay state and the last alert, e.g. after switching devices.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayOn = false
	s.telemetry = Telemetry{}
	s.lastAlert = ""
	s.publishLocked(Update{Kind: UpdateState})
}

// UpdateDevice replaces the stored copy of the current device with device when both
// have the same ID. It reports whether the copy was replaced.
func (s *Session) UpdateDevice(device models.Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || s.device.ID != device.ID {
		return false
	}
	s.device = &device
	s.publishLocked(Update{Kind: UpdateState})
	return true
}

// ToggleRelay asks the plug to flip its relay. The local relay flag follows only the
// device's relayState echo.
func (s *Session) ToggleRelay() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Open {
		s.alertLocked(alertNotConnected)
		return ErrNotConnected
	}
	return s.sendLocked(protocol.ToggleRelay{})
}

// SetTimer schedules the relay to switch kind after minutes, given as user input.
func (s *Session) SetTimer(kind protocol.TimerKind, minutes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := strconv.Atoi(strings.TrimSpace(minutes))
	if err != nil || n <= 0 || n > maxTimerMinutes {
		s.alertLocked(alertInvalidMinutes)
		return ErrInvalidMinutes
	}
	if s.state != Open {
		s.alertLocked(alertNotConnected)
		return ErrNotConnected
	}
	if err := s.sendLocked(protocol.SetTimer{Kind: kind, DelaySeconds: n * 60}); err != nil {
		return err
	}
	s.alertLocked(fmt.Sprintf("TIMER %s set for %d minutes.", kind, n))
	return nil
}

// SetDeviceType tells the plug what appliance it feeds. Dropped silently unless open.
func (s *Session) SetDeviceType(t protocol.DeviceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Open {
		s.logger.Debug("set device type dropped, not connected", zap.String("type", string(t)))
		return nil
	}
	return s.sendLocked(protocol.SetDeviceType{Type: t})
}

// RequestHistory asks the plug for readings over period. The answer arrives as an
// UpdateHistory.
func (s *Session) RequestHistory(period protocol.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Open {
		s.alertLocked(alertNotConnected)
		return ErrNotConnected
	}
	return s.sendLocked(protocol.RequestHistory{Period: period})
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) sendLocked(cmd protocol.Command) error {
	frame, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	if s.transport == nil || !s.transport.enqueue(frame) {
		s.logger.Warn("outgoing frame not queued", zap.Uint64("generation", s.generation))
	}
	return nil
}

func (s *Session) dispatch(ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.transportID != s.generation {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case eventOpened:
		if s.state != Connecting {
			_ = ev.conn.Close()
			return
		}
		s.cancelDial = nil
		s.transport = newTransport(ev.transportID, ev.conn, s.opts.WriteTimeout, s.opts.PingInterval, s.emit, s.logger)
		s.transport.start()
		s.setStateLocked(Open)
		s.alertLocked(fmt.Sprintf("Connected to %s.", s.deviceNameLocked()))

	case eventClosed:
		s.transport = nil
		s.setStateLocked(Closed)
		s.alertLocked(fmt.Sprintf("Disconnected from %s.", s.deviceNameLocked()))

	case eventFailed:
		if s.transport != nil {
			s.transport.close()
			s.transport = nil
		}
		s.cancelDial = nil
		s.setStateLocked(Failed)
		s.alertLocked(fmt.Sprintf("Connection to %s failed.", s.deviceNameLocked()))
		s.logger.Warn("device transport failed", zap.Error(ev.err))

	case eventFrame:
		decoded, ok := protocol.Decode(ev.data)
		if !ok {
			s.logger.Debug("discarding inbound frame", zap.ByteString("frame", ev.data))
			return
		}
		s.applyLocked(decoded)
	}
}

func (s *Session) applyLocked(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Telemetry:
		s.telemetry = Telemetry{Telemetry: e, ReceivedAt: s.opts.Now()}
		s.publishLocked(Update{Kind: UpdateTelemetry})
	case protocol.RelayState:
		s.relayOn = e.On
		s.publishLocked(Update{Kind: UpdateRelay})
	case protocol.Alert:
		s.alertLocked(e.Message)
	case protocol.HistoryReady:
		h := e
		s.publishLocked(Update{Kind: UpdateHistory, History: &h})
	}
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.logger.Debug("session state", zap.Stringer("from", s.state), zap.Stringer("to", state))
	s.state = state
	s.publishLocked(Update{Kind: UpdateState})
}

func (s *Session) alertLocked(msg string) {
	s.lastAlert = msg
	s.publishLocked(Update{Kind: UpdateAlert, Alert: msg})
}

func (s *Session) publishLocked(u Update) {
	if s.stopped {
		return
	}
	u.Snapshot = s.snapshotLocked()
	select {
	case s.updates <- u:
	default:
		s.logger.Warn("dropping session update, buffer full", zap.String("kind", string(u.Kind)))
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     s.state,
		RelayOn:   s.relayOn,
		Telemetry: s.telemetry,
		LastAlert: s.lastAlert,
	}
	if s.device != nil {
		dev := *s.device
		snap.Device = &dev
	}
	return snap
}

func (s *Session) deviceNameLocked() string {
	if s.device == nil || s.device.Name == "" {
		return "device"
	}
	return s.device.Name
}
