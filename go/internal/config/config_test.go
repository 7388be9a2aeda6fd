package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
api_url: https://auction.example.com/
transport: nats
nats_url: nats://bus:4222
media:
  app_id: app-1
  signal_url: wss://media.example.com/signal
  stun_urls: ["stun:stun.l.google.com:19302"]
identity:
  backend: redis
  redis_addr: cache:6379
request_timeout: 5s
`)
	t.Setenv("MEDIA_APP_ID", "app-from-env")
	t.Setenv("STUN_URLS", "stun:a:1, stun:b:2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://auction.example.com", cfg.APIURL)
	assert.Equal(t, "wss://auction.example.com/ws", cfg.SocketURL)
	assert.Equal(t, TransportNATS, cfg.Transport)
	assert.Equal(t, "nats://bus:4222", cfg.NATSURL)
	assert.Equal(t, "app-from-env", cfg.Media.AppID)
	assert.Equal(t, []string{"stun:a:1", "stun:b:2"}, cfg.Media.STUNURLs)
	assert.Equal(t, IdentityRedis, cfg.Identity.Backend)
	assert.Equal(t, "cache:6379", cfg.Identity.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.NotEmpty(t, cfg.Identity.Path)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:4000/ws", cfg.SocketURL)
	assert.Equal(t, TransportWebSocket, cfg.Transport)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestLoad_PostgresDSNFromEnv(t *testing.T) {
	t.Setenv("IDENTITY_BACKEND", "postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "kiosk")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://postgres:postgres@db:5432/kiosk?sslmode=disable", cfg.Identity.DatabaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "transport: carrier-pigeon\n"))
	assert.ErrorContains(t, err, "unknown transport")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
