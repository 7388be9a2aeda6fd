package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
)

// WebSocketConfig holds configuration for the WebSocket transport
type WebSocketConfig struct {
	URL              string
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	SendBufferSize   int
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

// DefaultWebSocketConfig returns default WebSocket configuration
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:              url,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     25 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   1 << 20, // snapshots carry every item
		SendBufferSize:   64,
		ReconnectMin:     500 * time.Millisecond,
		ReconnectMax:     10 * time.Second,
	}
}

// WebSocketTransport is a reconnecting JSON envelope connection
type WebSocketTransport struct {
	config WebSocketConfig
	dialer *websocket.Dialer
	clock  clockwork.Clock

	mu      sync.Mutex
	conn    *connection
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// connection is one established socket and its outgoing queue
type connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	ConnectedAt time.Time
}

// NewWebSocketTransport creates a transport for the given config
func NewWebSocketTransport(config WebSocketConfig, clock clockwork.Clock) *WebSocketTransport {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WebSocketTransport{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		clock: clock,
	}
}

// Start launches the connect loop
func (t *WebSocketTransport) Start(ctx context.Context, h Handler, token TokenSupplier) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.New("websocket transport already started")
	}
	if t.config.URL == "" {
		return errors.New("websocket transport: empty url")
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.started = true
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(runCtx, h, token)
	return nil
}

// Emit queues an envelope on the live connection
func (t *WebSocketTransport) Emit(env auction.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	select {
	case t.conn.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the connect loop and waits for it to exit
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done
	return nil
}

// run dials, serves and redials until the context ends
func (t *WebSocketTransport) run(ctx context.Context, h Handler, token TokenSupplier) {
	defer close(t.done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := t.dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.OnConnectError(err)
			if !t.wait(ctx, t.backoff(attempt)) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		c := &connection{
			ID:          uuid.New().String(),
			Conn:        conn,
			Send:        make(chan []byte, t.config.SendBufferSize),
			ConnectedAt: time.Now(),
		}
		t.setConn(c)

		log.Info().
			Str("connection_id", c.ID).
			Str("url", t.config.URL).
			Msg("WebSocket connection established")
		h.OnConnect()

		err = t.serve(ctx, c, h)
		t.setConn(nil)
		if ctx.Err() != nil {
			return
		}
		h.OnDisconnect(err)

		if !t.wait(ctx, t.config.ReconnectMin) {
			return
		}
	}
}

func (t *WebSocketTransport) dial(ctx context.Context, token TokenSupplier) (*websocket.Conn, error) {
	header := http.Header{}
	if token != nil {
		tok, err := token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		if tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", t.config.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", t.config.URL, err)
	}
	return conn, nil
}

func (t *WebSocketTransport) setConn(c *connection) {
	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()
}

// backoff doubles from ReconnectMin up to ReconnectMax
func (t *WebSocketTransport) backoff(attempt int) time.Duration {
	d := t.config.ReconnectMin
	for i := 0; i < attempt && d < t.config.ReconnectMax; i++ {
		d *= 2
	}
	if d > t.config.ReconnectMax {
		d = t.config.ReconnectMax
	}
	return d
}

func (t *WebSocketTransport) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-t.clock.After(d):
		return true
	}
}

// serve pumps one connection until it fails or ctx ends
func (t *WebSocketTransport) serve(ctx context.Context, c *connection, h Handler) error {
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writePump(ctx, c, stop)
	}()

	err := t.readPump(c, h)
	close(stop)
	<-writerDone
	return err
}

// writePump handles sending messages to the WebSocket connection
func (t *WebSocketTransport) writePump(ctx context.Context, c *connection, stop <-chan struct{}) {
	ticker := time.NewTicker(t.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-stop:
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (t *WebSocketTransport) readPump(c *connection, h Handler) error {
	c.Conn.SetReadLimit(t.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		return nil
	})
	c.Conn.SetPingHandler(func(data string) error {
		c.Conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		err := c.Conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(t.config.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return err
		}
		c.Conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))

		var env auction.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			log.Warn().
				Err(err).
				Str("connection_id", c.ID).
				Msg("dropping malformed server message")
			continue
		}
		h.OnEnvelope(env)
	}
}
