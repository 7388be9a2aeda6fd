package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/statusserver"
)

func startStatusServer(addr string, source statusserver.ViewSource) *http.Server {
	if addr == "" {
		return nil
	}
	server := statusserver.New(addr, source)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("status server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status server failed")
		}
	}()
	return server
}

func shutdownStatusServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("status server shutdown failed")
	}
}
