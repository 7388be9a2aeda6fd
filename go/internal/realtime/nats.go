package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
)

// NATSConfig holds configuration for the NATS transport
type NATSConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	EventsPrefix  string // room events arrive on <EventsPrefix>.<auctionID>
	CommandPrefix string // commands go to <CommandPrefix>.<auctionID>
	// Stream, when set, reads room events through an ordered JetStream consumer
	Stream string
}

// DefaultNATSConfig returns default NATS transport configuration
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Name:          "liveauction-client",
		ReconnectWait: 2 * time.Second,
		EventsPrefix:  "auction.events",
		CommandPrefix: "auction.commands",
	}
}

// NATSTransport carries the room protocol over NATS subjects. Replies meant
// only for this client (bid and comment verdicts) arrive on a private inbox.
type NATSTransport struct {
	config NATSConfig

	mu       sync.Mutex
	nc       *nats.Conn
	js       jetstream.JetStream
	inbox    string
	inboxSub *nats.Subscription
	room     string
	roomSub  *nats.Subscription
	roomCons jetstream.ConsumeContext
	handler  Handler
}

// NewNATSTransport creates an unconnected NATS transport
func NewNATSTransport(config NATSConfig) *NATSTransport {
	return &NATSTransport{config: config}
}

// EventsSubject is the subject a room's events are published on
func (t *NATSTransport) EventsSubject(auctionID string) string {
	return t.config.EventsPrefix + "." + auctionID
}

// CommandSubject is the subject a room's commands are sent to
func (t *NATSTransport) CommandSubject(auctionID string) string {
	return t.config.CommandPrefix + "." + auctionID
}

// Start connects with infinite reconnects; the token is resolved on every attempt
func (t *NATSTransport) Start(ctx context.Context, h Handler, token TokenSupplier) error {
	t.mu.Lock()
	if t.nc != nil {
		t.mu.Unlock()
		return errors.New("nats transport already started")
	}
	t.handler = h
	t.mu.Unlock()

	opts := []nats.Option{
		nats.Name(t.config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(t.config.ReconnectWait),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connected")
			h.OnConnect()
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
			h.OnDisconnect(err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			h.OnConnect()
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	if token != nil {
		opts = append(opts, nats.TokenHandler(func() string {
			tok, err := token(ctx)
			if err != nil {
				h.OnConnectError(fmt.Errorf("resolve token: %w", err))
				return ""
			}
			return tok
		}))
	}

	nc, err := nats.Connect(t.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	inbox := nc.NewInbox()
	inboxSub, err := nc.Subscribe(inbox, t.deliver)
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe inbox: %w", err)
	}

	t.mu.Lock()
	t.nc = nc
	t.inbox = inbox
	t.inboxSub = inboxSub
	if t.config.Stream != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			t.mu.Unlock()
			nc.Close()
			return fmt.Errorf("create JetStream context: %w", err)
		}
		t.js = js
	}
	t.mu.Unlock()

	if nc.IsConnected() {
		h.OnConnect()
	} else {
		h.OnConnectError(fmt.Errorf("NATS server %s not reachable yet, retrying", t.config.URL))
	}

	go func() {
		<-ctx.Done()
		t.Close()
	}()
	return nil
}

// Emit publishes a command. Joining subscribes to the room before the
// command goes out so the first snapshot is not missed.
func (t *NATSTransport) Emit(env auction.Envelope) error {
	var target auction.JoinAuctionPayload
	if err := json.Unmarshal(env.Data, &target); err != nil || target.AuctionID == "" {
		return fmt.Errorf("command %s without auctionId", env.Type)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc == nil || !t.nc.IsConnected() {
		return ErrNotConnected
	}

	if env.Type == auction.CommandJoinAuction {
		if err := t.subscribeRoomLocked(target.AuctionID); err != nil {
			return err
		}
	}

	msg := &nats.Msg{
		Subject: t.CommandSubject(target.AuctionID),
		Reply:   t.inbox,
		Data:    data,
	}
	if err := t.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}

	if env.Type == auction.CommandLeaveAuction && t.room == target.AuctionID {
		t.unsubscribeRoomLocked()
	}
	return nil
}

// Close drops subscriptions and closes the connection
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc == nil {
		return nil
	}
	t.unsubscribeRoomLocked()
	if t.inboxSub != nil {
		t.inboxSub.Unsubscribe()
		t.inboxSub = nil
	}
	t.nc.Close()
	t.nc = nil
	t.js = nil
	return nil
}

func (t *NATSTransport) subscribeRoomLocked(auctionID string) error {
	if t.room == auctionID && (t.roomSub != nil || t.roomCons != nil) {
		return nil
	}
	t.unsubscribeRoomLocked()

	subject := t.EventsSubject(auctionID)
	if t.js != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cons, err := t.js.OrderedConsumer(ctx, t.config.Stream, jetstream.OrderedConsumerConfig{
			FilterSubjects: []string{subject},
			DeliverPolicy:  jetstream.DeliverNewPolicy,
		})
		if err != nil {
			return fmt.Errorf("create ordered consumer: %w", err)
		}
		cc, err := cons.Consume(func(msg jetstream.Msg) {
			t.deliverData(msg.Subject(), msg.Data())
		})
		if err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		t.roomCons = cc
	} else {
		sub, err := t.nc.Subscribe(subject, t.deliver)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		t.roomSub = sub
	}

	t.room = auctionID
	log.Debug().Str("subject", subject).Bool("jetstream", t.js != nil).Msg("subscribed to room")
	return nil
}

func (t *NATSTransport) unsubscribeRoomLocked() {
	if t.roomSub != nil {
		if err := t.roomSub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("auction_id", t.room).Msg("failed to unsubscribe room")
		}
		t.roomSub = nil
	}
	if t.roomCons != nil {
		t.roomCons.Stop()
		t.roomCons = nil
	}
	t.room = ""
}

func (t *NATSTransport) deliver(msg *nats.Msg) {
	t.deliverData(msg.Subject, msg.Data)
}

func (t *NATSTransport) deliverData(subject string, data []byte) {
	var env auction.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		log.Warn().Err(err).Str("subject", subject).Msg("dropping malformed server message")
		return
	}

	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h.OnEnvelope(env)
	}
}
