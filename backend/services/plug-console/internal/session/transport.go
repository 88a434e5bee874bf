package session

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smartplug/backend/services/plug-console/internal/models"
)

const (
	devicePath   = "/ws"
	readLimit    = 1 << 20
	sendBuffered = 16
)

// Conn is the part of *websocket.Conn a session needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens the duplex connection to a plug.
type Dialer interface {
	Dial(ctx context.Context, device models.Device) (Conn, error)
}

// WSDialer dials ws://<address>/ws with gorilla/websocket.
type WSDialer struct {
	dialer *websocket.Dialer
}

// NewWSDialer returns a dialer whose handshake gives up after handshakeTimeout.
func NewWSDialer(handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context, device models.Device) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, DeviceURL(device.Address), nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// DeviceURL builds the plug's WebSocket endpoint from a host or host:port address.
func DeviceURL(address string) string {
	address = strings.TrimSpace(address)
	for _, prefix := range []string{"ws://", "http://"} {
		address = strings.TrimPrefix(address, prefix)
	}
	address = strings.TrimSuffix(address, "/")
	u := url.URL{Scheme: "ws", Host: address, Path: devicePath}
	return u.String()
}

// transport pumps one live connection. Inbound frames and lifecycle signals go to
// the owning session as events tagged with the transport id.
type transport struct {
	id           uint64
	conn         Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	closing      atomic.Bool
	writeTimeout time.Duration
	pingInterval time.Duration
	emit         func(event)
	logger       *zap.Logger
}

func newTransport(id uint64, conn Conn, writeTimeout, pingInterval time.Duration, emit func(event), logger *zap.Logger) *transport {
	return &transport{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, sendBuffered),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		emit:         emit,
		logger:       logger,
	}
}

func (t *transport) start() {
	go t.writePump()
	go t.readPump()
}

func (t *transport) readPump() {
	for {
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			t.shutdown()
			if t.closing.Load() || isCloseFrame(err) {
				t.logger.Debug("device connection closed", zap.Uint64("transport", t.id), zap.Error(err))
				t.emit(event{kind: eventClosed, transportID: t.id})
			} else {
				t.logger.Info("device connection failed", zap.Uint64("transport", t.id), zap.Error(err))
				t.emit(event{kind: eventFailed, transportID: t.id, err: err})
			}
			return
		}
		t.emit(event{kind: eventFrame, transportID: t.id, data: msg})
	}
}

func (t *transport) writePump() {
	var tick <-chan time.Time
	if t.pingInterval > 0 {
		ticker := time.NewTicker(t.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-t.done:
			return
		case msg := <-t.send:
			if err := t.write(websocket.TextMessage, msg); err != nil {
				t.logger.Warn("device write failed", zap.Uint64("transport", t.id), zap.Error(err))
				t.shutdown()
				return
			}
		case <-tick:
			if err := t.write(websocket.PingMessage, []byte("ping")); err != nil {
				t.shutdown()
				return
			}
		}
	}
}

func (t *transport) write(messageType int, data []byte) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(messageType, data)
}

// enqueue hands a frame to the write pump without blocking.
func (t *transport) enqueue(msg []byte) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.send <- msg:
		return true
	default:
		t.logger.Warn("dropping outgoing frame, buffer full", zap.Uint64("transport", t.id))
		return false
	}
}

// close is a local teardown; the read pump reports it as a normal close.
func (t *transport) close() {
	t.closing.Store(true)
	t.shutdown()
}

func (t *transport) shutdown() {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close()
	})
}

func isCloseFrame(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
