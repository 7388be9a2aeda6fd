package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/identity"
)

var (
	// ErrNotConnected is returned by Emit while the transport is down. Commands are never queued.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrSendBufferFull is returned when the outgoing queue of a live connection is saturated
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

// TokenSupplier resolves the bearer token for one connection attempt
type TokenSupplier = identity.TokenSupplier

// Handler receives transport lifecycle and message callbacks
type Handler interface {
	OnConnect()
	OnDisconnect(err error)
	OnConnectError(err error)
	OnEnvelope(env auction.Envelope)
}

// Transport is a single realtime connection that reconnects on its own.
// Start returns once the connect loop is running; Emit never blocks on the network.
type Transport interface {
	Start(ctx context.Context, h Handler, token TokenSupplier) error
	Emit(env auction.Envelope) error
	Close() error
}

// EventKind classifies events delivered by the Manager
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventConnectError
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectError:
		return "connect_error"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a transport callback forwarded to the session loop
type Event struct {
	Kind     EventKind
	Envelope auction.Envelope
	Err      error
}

// Status is the connection state surfaced to the UI
type Status struct {
	Connected bool   `json:"connected"`
	LastError string `json:"lastError,omitempty"`
}

// Manager owns the one realtime connection of the process. It does not
// retry on its own; the transport reconnects and the manager reports state.
type Manager struct {
	transport Transport
	token     TokenSupplier
	events    chan Event

	mu        sync.RWMutex
	started   bool
	connected bool
	lastError string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewManager creates a manager over the given transport
func NewManager(transport Transport, token TokenSupplier) *Manager {
	return &Manager{
		transport: transport,
		token:     identity.AnonymousOnTransition(token),
		events:    make(chan Event, 256),
	}
}

// Connect starts the transport once. Later calls return the existing connection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
	runCtx := m.ctx
	m.mu.Unlock()

	if err := m.transport.Start(runCtx, m, m.token); err != nil {
		m.mu.Lock()
		m.started = false
		m.cancel()
		m.mu.Unlock()
		return fmt.Errorf("start transport: %w", err)
	}

	log.Info().Msg("realtime connection manager started")
	return nil
}

// Disconnect closes the transport
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.connected = false
	m.cancel()
	m.mu.Unlock()

	if err := m.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	log.Info().Msg("realtime connection manager stopped")
	return nil
}

// Emit sends a command on the shared connection
func (m *Manager) Emit(env auction.Envelope) error {
	if err := m.transport.Emit(env); err != nil {
		return fmt.Errorf("emit %s: %w", env.Type, err)
	}
	log.Debug().Str("event_type", string(env.Type)).Msg("command emitted")
	return nil
}

// Status returns a copy of the connection state
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{Connected: m.connected, LastError: m.lastError}
}

// Events delivers transport events in receipt order
func (m *Manager) Events() <-chan Event {
	return m.events
}

// OnConnect implements Handler
func (m *Manager) OnConnect() {
	m.mu.Lock()
	if m.connected {
		m.mu.Unlock()
		return
	}
	m.connected = true
	m.lastError = ""
	m.mu.Unlock()

	log.Info().Msg("realtime connected")
	m.publish(Event{Kind: EventConnected})
}

// OnDisconnect implements Handler
func (m *Manager) OnDisconnect(err error) {
	m.mu.Lock()
	m.connected = false
	if err != nil {
		m.lastError = err.Error()
	}
	m.mu.Unlock()

	log.Warn().Err(err).Msg("realtime disconnected")
	m.publish(Event{Kind: EventDisconnected, Err: err})
}

// OnConnectError implements Handler
func (m *Manager) OnConnectError(err error) {
	m.mu.Lock()
	m.connected = false
	if err != nil {
		m.lastError = err.Error()
	}
	m.mu.Unlock()

	log.Error().Err(err).Msg("realtime connect failed")
	m.publish(Event{Kind: EventConnectError, Err: err})
}

// OnEnvelope implements Handler
func (m *Manager) OnEnvelope(env auction.Envelope) {
	log.Debug().Str("event_type", string(env.Type)).Msg("event received")
	m.publish(Event{Kind: EventMessage, Envelope: env})
}

// publish preserves receipt order by blocking until the loop takes the event
func (m *Manager) publish(ev Event) {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}
