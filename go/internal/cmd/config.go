package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/config"
	"github.com/mcdev12/liveauction/go/internal/identity"
)

// setupLogging routes zerolog to the console, or to a file while the
// terminal UI owns the screen
func setupLogging(cfg *config.Config, interactive bool) (func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	path := cfg.LogFile
	if path == "" && interactive {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		path = filepath.Join(dir, "liveauction", "liveauction.log")
	}
	if path == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { f.Close() }, nil
}

// tokenSupplier prefers a token file, which is re-read on every use
func tokenSupplier(cfg *config.Config) identity.TokenSupplier {
	if cfg.Auth.TokenFile != "" {
		return identity.FileToken(cfg.Auth.TokenFile)
	}
	return identity.StaticToken(cfg.Auth.Token)
}
