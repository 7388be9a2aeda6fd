package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/clients"
	"github.com/mcdev12/liveauction/go/internal/config"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/mcdev12/liveauction/go/internal/media"
	"github.com/mcdev12/liveauction/go/internal/realtime"
	"github.com/mcdev12/liveauction/go/internal/session"
	"github.com/mcdev12/liveauction/go/internal/tui"
)

type Services struct {
	Auctions    *clients.AuctionClient
	Users       *clients.UserClient
	MediaTokens *clients.MediaTokenClient
	Identity    identity.Store
	Token       identity.TokenSupplier

	closers []func()
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	token := tokenSupplier(cfg)

	// HTTP layer → API clients
	base := clients.NewBaseClient(cfg.APIURL)
	base.SetTimeout(cfg.RequestTimeout)
	base.SetTokenSupplier(clients.TokenSupplier(token))

	services := &Services{
		Auctions:    clients.NewAuctionClient(base),
		Users:       clients.NewUserClient(base),
		MediaTokens: clients.NewMediaTokenClient(base),
		Token:       token,
	}

	store, err := openIdentityStore(ctx, cfg, services)
	if err != nil {
		return nil, err
	}
	services.Identity = store
	return services, nil
}

func openIdentityStore(ctx context.Context, cfg *config.Config, services *Services) (identity.Store, error) {
	switch cfg.Identity.Backend {
	case config.IdentityRedis:
		store, err := identity.NewRedisStore(ctx, cfg.Identity.RedisAddr, cfg.Identity.RedisPassword, cfg.Identity.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis identity store: %w", err)
		}
		services.closers = append(services.closers, func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close redis identity store")
			}
		})
		return store, nil

	case config.IdentityPostgres:
		store, err := identity.NewPostgresStore(ctx, cfg.Identity.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres identity store: %w", err)
		}
		services.closers = append(services.closers, store.Close)
		return store, nil

	default:
		return identity.NewFileStore(cfg.Identity.Path), nil
	}
}

// Close releases identity store connections
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupTransport(cfg *config.Config) realtime.Transport {
	if cfg.Transport == config.TransportNATS {
		natsCfg := realtime.DefaultNATSConfig(cfg.NATSURL)
		natsCfg.Stream = cfg.NATSStream
		return realtime.NewNATSTransport(natsCfg)
	}
	return realtime.NewWebSocketTransport(realtime.DefaultWebSocketConfig(cfg.SocketURL), clockwork.NewRealClock())
}

func setupSession(cfg *config.Config, services *Services, user identity.User) *session.Session {
	// Transport → connection manager → session
	conn := realtime.NewManager(setupTransport(cfg), services.Token)

	engine := media.Probe(media.ProbeConfig{
		SignalURL: cfg.Media.SignalURL,
		STUNURLs:  cfg.Media.STUNURLs,
	})

	opts := session.DefaultOptions()
	opts.RequestTimeout = cfg.RequestTimeout
	opts.Gesture = tui.GestureConfig()

	return session.New(session.Deps{
		Conn:        conn,
		Actions:     services.Auctions,
		MediaEngine: engine,
		MediaTokens: services.MediaTokens,
		MediaAppID:  cfg.Media.AppID,
		User:        user,
		Options:     opts,
	})
}
