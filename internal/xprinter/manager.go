package xprinter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"xprinter/internal/printer"
)

// DefaultReconnectGrace bounds the reconnect attempt a print job makes when
// it finds the printer disconnected. It is a tunable, not a guarantee that a
// handshake can finish in time.
const DefaultReconnectGrace = 500 * time.Millisecond

// Gate reports whether Bluetooth use is currently permitted.
type Gate interface {
	Granted() bool
}

type Option func(*Manager)

func WithGate(g Gate) Option {
	return func(m *Manager) { m.gate = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithNotifier(n *Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithReconnectGrace(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// WithConfig sets the printer configuration applied to every new connection.
func WithConfig(cfg printer.Config) Option {
	return func(m *Manager) { m.config = &cfg }
}

// handle is the single live session and the driver bound to it.
type handle struct {
	address string
	conn    io.ReadWriteCloser
	driver  printer.Driver
}

// Manager owns the printer connection. It holds at most one session at a
// time; connect, configure, print and close are serialized, and a newer
// Connect or Close cancels a connect that is still dialing.
type Manager struct {
	transport printer.Transport
	protocol  printer.Protocol
	gate      Gate
	notifier  *Notifier
	grace     time.Duration
	log       *slog.Logger

	op sync.Mutex

	mu     sync.Mutex
	state  State
	handle *handle
	last   string
	config *printer.Config
	gen    uint64
	cancel context.CancelFunc
}

func New(transport printer.Transport, protocol printer.Protocol, opts ...Option) *Manager {
	m := &Manager{
		transport: transport,
		protocol:  protocol,
		grace:     DefaultReconnectGrace,
		state:     Disconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.notifier == nil {
		m.notifier = NewNotifier(nil, m.log)
	}
	if m.protocol == nil {
		m.protocol = printer.TSPLProtocol
	}
	return m
}

// Notifier returns the notifier state events are published on.
func (m *Manager) Notifier() *Notifier {
	return m.notifier
}

// Initialize prepares the transport when it needs setup.
func (m *Manager) Initialize() error {
	if i, ok := m.transport.(interface{ Init() error }); ok {
		if err := i.Init(); err != nil {
			m.log.Error("[xprinter] initializing transport failed", "error", err)
			return err
		}
	}
	return nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastTarget is the address of the last successful connect, kept across
// disconnects. Empty until the first connect succeeds.
func (m *Manager) LastTarget() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// IsConnected reports whether a session with a bound driver exists.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && m.handle.driver != nil
}

// Connect tears down any existing session and opens a new one to address.
// Overlapping calls resolve in favor of the one issued last; the others
// return ErrSuperseded without a state transition.
func (m *Manager) Connect(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidArgument)
	}
	if !m.granted() {
		m.setState(Error, "Bluetooth permissions not granted")
		return ErrPermissionDenied
	}

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := m.supersede(cancel)

	m.op.Lock()
	defer m.op.Unlock()
	if !m.current(gen) {
		return ErrSuperseded
	}

	m.teardown()
	m.setState(Connecting, "")

	conn, err := m.transport.Dial(dialCtx, address)
	if !m.current(gen) {
		if err == nil {
			conn.Close()
		}
		m.log.Info("[xprinter] connect superseded", "address", address)
		return ErrSuperseded
	}
	if err != nil {
		m.log.Warn("[xprinter] connect failed", "address", address, "error", err)
		m.setState(Error, describe("Connection failed: ", err))
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	h := &handle{address: address, conn: conn, driver: m.protocol(conn)}

	m.mu.Lock()
	cfg := m.config
	m.mu.Unlock()
	if cfg != nil {
		if err := h.driver.Configure(*cfg); err != nil {
			m.log.Warn("[xprinter] restoring printer config failed", "address", address, "error", err)
		}
	}

	m.mu.Lock()
	m.handle = h
	m.last = address
	m.mu.Unlock()
	m.log.Info("[xprinter] connected", "address", address)
	m.setState(Connected, "")
	return nil
}

// Reconnect connects to LastTarget. It returns false, with no transition,
// when there was never a successful connect.
func (m *Manager) Reconnect(ctx context.Context) (bool, error) {
	last := m.LastTarget()
	if last == "" {
		return false, nil
	}
	return true, m.Connect(ctx, last)
}

// Close tears down the session and moves to Disconnected from any state. A
// connect still dialing is cancelled and its session, if one arrives, closed.
func (m *Manager) Close() {
	m.supersede(nil)

	m.op.Lock()
	defer m.op.Unlock()
	m.teardown()
	m.setState(Disconnected, "")
}

// Exit closes the connection and releases transport resources.
func (m *Manager) Exit() {
	m.Close()
	if r, ok := m.transport.(interface{ Release() error }); ok {
		if err := r.Release(); err != nil {
			m.log.Warn("[xprinter] releasing transport failed", "error", err)
		}
	}
}

// Configure applies cfg to the live session and keeps it for later
// connections.
func (m *Manager) Configure(ctx context.Context, cfg printer.Config) error {
	if !m.granted() {
		m.setState(Error, "Bluetooth permissions not granted")
		return ErrPermissionDenied
	}
	if err := cfg.Validate(); err != nil {
		m.setState(Error, describe("Configuration error: ", err))
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	m.op.Lock()
	defer m.op.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()
	if h == nil {
		m.setState(Error, "Printer not connected")
		return ErrNotConnected
	}

	if err := h.driver.Configure(cfg); err != nil {
		m.setState(Error, describe("Configuration error: ", err))
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

func (m *Manager) granted() bool {
	return m.gate == nil || m.gate.Granted()
}

// supersede starts a new generation, cancelling the dial of the previous one,
// and records cancel for the next caller to use.
func (m *Manager) supersede(cancel context.CancelFunc) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.gen++
	m.cancel = cancel
	return m.gen
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// teardown closes the session, logging rather than returning errors.
// Callers hold op.
func (m *Manager) teardown() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()
	if h == nil {
		return
	}
	if err := h.conn.Close(); err != nil {
		m.log.Warn("[xprinter] closing connection failed", "address", h.address, "error", err)
	}
}

// setState records the state and publishes it. Notify only hands the event
// to the delivery context, so holding mu keeps events in transition order.
func (m *Manager) setState(s State, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.notifier.Notify(s, message)
}
