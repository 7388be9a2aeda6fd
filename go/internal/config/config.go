package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"

	IdentityFile     = "file"
	IdentityRedis    = "redis"
	IdentityPostgres = "postgres"
)

type Config struct {
	APIURL         string         `yaml:"api_url"`
	SocketURL      string         `yaml:"socket_url"`
	Transport      string         `yaml:"transport"`
	NATSURL        string         `yaml:"nats_url"`
	NATSStream     string         `yaml:"nats_stream"`
	Media          MediaConfig    `yaml:"media"`
	Identity       IdentityConfig `yaml:"identity"`
	Auth           AuthConfig     `yaml:"auth"`
	StatusAddr     string         `yaml:"status_addr"`
	LogLevel       string         `yaml:"log_level"`
	LogFile        string         `yaml:"log_file"`
	RequestTimeout time.Duration  `yaml:"request_timeout"`
}

type MediaConfig struct {
	AppID     string   `yaml:"app_id"`
	SignalURL string   `yaml:"signal_url"`
	STUNURLs  []string `yaml:"stun_urls"`
}

type IdentityConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	DatabaseURL   string `yaml:"database_url"`
}

type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		APIURL:         "http://localhost:4000",
		Transport:      TransportWebSocket,
		NATSURL:        "nats://localhost:4222",
		Identity:       IdentityConfig{Backend: IdentityFile, RedisAddr: "localhost:6379"},
		LogLevel:       "info",
		RequestTimeout: 15 * time.Second,
	}
}

// Load reads .env, then the optional YAML file, then environment overrides
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIURL = getEnv("API_URL", c.APIURL)
	c.SocketURL = getEnv("SOCKET_URL", c.SocketURL)
	c.Transport = getEnv("TRANSPORT", c.Transport)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSStream = getEnv("NATS_STREAM", c.NATSStream)
	c.Media.AppID = getEnv("MEDIA_APP_ID", c.Media.AppID)
	c.Media.SignalURL = getEnv("MEDIA_SIGNAL_URL", c.Media.SignalURL)
	if v := os.Getenv("STUN_URLS"); v != "" {
		c.Media.STUNURLs = splitList(v)
	}
	c.Identity.Backend = getEnv("IDENTITY_BACKEND", c.Identity.Backend)
	c.Identity.Path = getEnv("IDENTITY_PATH", c.Identity.Path)
	c.Identity.RedisAddr = getEnv("REDIS_ADDR", c.Identity.RedisAddr)
	c.Identity.RedisPassword = getEnv("REDIS_PASSWORD", c.Identity.RedisPassword)
	c.Identity.RedisDB = getEnvAsInt("REDIS_DB", c.Identity.RedisDB)
	c.Identity.DatabaseURL = getEnv("DATABASE_URL", c.Identity.DatabaseURL)
	c.Auth.Token = getEnv("AUTH_TOKEN", c.Auth.Token)
	c.Auth.TokenFile = getEnv("AUTH_TOKEN_FILE", c.Auth.TokenFile)
	c.StatusAddr = getEnv("STATUS_ADDR", c.StatusAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
}

func (c *Config) fillDerived() {
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.SocketURL == "" {
		c.SocketURL = SocketURLFromAPI(c.APIURL)
	}
	if c.Identity.Path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		c.Identity.Path = filepath.Join(dir, "liveauction", "identity.yaml")
	}
	if c.Identity.Backend == IdentityPostgres && c.Identity.DatabaseURL == "" {
		c.Identity.DatabaseURL = PostgresDSN()
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

// Validate rejects unknown backends and missing endpoints
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	switch c.Transport {
	case TransportWebSocket, TransportNATS:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.Identity.Backend {
	case IdentityFile, IdentityRedis, IdentityPostgres:
	default:
		return fmt.Errorf("unknown identity backend %q", c.Identity.Backend)
	}
	return nil
}

// PostgresDSN assembles the identity database URL from DB_* variables
func PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getEnv("DB_USER", "postgres"), getEnv("DB_PASSWORD", "postgres")),
		Host:   net.JoinHostPort(getEnv("DB_HOST", "localhost"), strconv.Itoa(getEnvAsInt("DB_PORT", 5432))),
		Path:   "/" + getEnv("DB_NAME", "liveauction"),
	}
	q := url.Values{}
	q.Set("sslmode", getEnv("DB_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

// SocketURLFromAPI maps http(s)://host to ws(s)://host/ws
func SocketURLFromAPI(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://") + "/ws"
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://") + "/ws"
	default:
		return apiURL + "/ws"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
