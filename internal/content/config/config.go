package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// RealtimeConfig holds configuration of the change stream endpoint.
type RealtimeConfig struct {
	// WebSocketPath is the endpoint path for listen connections.
	WebSocketPath string `env:"WEBSOCKET_PATH" envDefault:"/ws/listen" json:"websocket_path"`

	// ClientSendChannelBuffer is the per-client outbound buffer. A client whose buffer is full
	// misses events rather than blocking the broadcast.
	ClientSendChannelBuffer int `env:"CLIENT_SEND_CHANNEL_BUFFER" envDefault:"64" json:"client_send_channel_buffer"`
}

// RedisConfig configures the optional change-event relay. An empty Host disables it.
type RedisConfig struct {
	Host            string `env:"REDIS_HOST" envDefault:""`
	Port            string `env:"REDIS_PORT" envDefault:"6379"`
	Password        string `env:"REDIS_PASSWORD" envDefault:""`
	Database        int    `env:"REDIS_DB" envDefault:"0"`
	MaxRetries      int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	PoolSize        int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns    int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	EnableTLS       bool   `env:"REDIS_TLS" envDefault:"false"`
	ConnMaxIdleTime string `env:"REDIS_CONN_MAX_IDLE_TIME" envDefault:"30m"`
	ConnMaxLifetime string `env:"REDIS_CONN_MAX_LIFETIME" envDefault:"1h"`
	Channel         string `env:"REDIS_EVENT_CHANNEL" envDefault:"keepsake:changes"`
	StreamMaxLength int64  `env:"REDIS_STREAM_MAX_LENGTH" envDefault:"10000"`
}

// Enabled reports whether a relay should be started.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// GetAddr returns host:port.
func (r RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// AuthConfig holds the gate and admin token settings.
type AuthConfig struct {
	JWTSecretKey   string        `env:"ADMIN_JWT_SECRET"`
	JWTIssuer      string        `env:"ADMIN_JWT_ISSUER" envDefault:"keepsake"`
	AdminTokenTTL  time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`
	GateCodeHashes []string      `env:"GATE_CODE_HASHES" envSeparator:";"`
}

// ServerConfig holds all configuration of cmd/server.
type ServerConfig struct {
	Host          string        `env:"SERVER_HOST" envDefault:"localhost"`
	Port          string        `env:"SERVER_PORT" envDefault:"3000"`
	MongoDBURI    string        `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	DatabaseName  string        `env:"MONGODB_DATABASE" envDefault:"keepsake"`
	PublicBaseURL string        `env:"PUBLIC_BASE_URL" envDefault:""`
	BodyLimit     int           `env:"BODY_LIMIT_BYTES" envDefault:"52428800"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"30s"`

	Realtime RealtimeConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// BaseURL returns the origin public media references are built on.
func (c *ServerConfig) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return "http://" + c.Addr()
}

// ClientConfig holds configuration of cmd/keepsake.
type ClientConfig struct {
	ServerURL      string        `env:"KEEPSAKE_SERVER_URL" envDefault:"http://localhost:3000"`
	AdminToken     string        `env:"KEEPSAKE_ADMIN_TOKEN" envDefault:""`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	WebSocketPath  string        `env:"WEBSOCKET_PATH" envDefault:"/ws/listen"`
	// PublicBaseURL is the origin media references are built on. Defaults to ServerURL.
	PublicBaseURL string `env:"KEEPSAKE_PUBLIC_BASE_URL" envDefault:""`
}

// LoadDotEnv loads a .env file if one exists. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && isNotExist(err) {
		return nil
	}
	return err
}

// LoadServerConfig reads the server configuration from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load server configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Realtime); err != nil {
		return nil, errors.New("failed to load realtime configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Redis); err != nil {
		return nil, errors.New("failed to load redis configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, errors.New("failed to load auth configuration from environment: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *ServerConfig) Validate() error {
	if c.MongoDBURI == "" {
		return errors.New("MONGODB_URI must not be empty")
	}
	if c.PublicBaseURL != "" {
		if _, err := url.ParseRequestURI(c.PublicBaseURL); err != nil {
			return fmt.Errorf("PUBLIC_BASE_URL is not a valid URL: %w", err)
		}
	}
	if !strings.HasPrefix(c.Realtime.WebSocketPath, "/") {
		return errors.New("WEBSOCKET_PATH must start with /")
	}
	if c.Realtime.ClientSendChannelBuffer <= 0 {
		c.Realtime.ClientSendChannelBuffer = 64
	}
	if c.Auth.AdminTokenTTL <= 0 {
		return errors.New("ADMIN_TOKEN_TTL must be positive")
	}
	return nil
}

// WritesEnabled reports whether the gate and admin tokens are configured.
// Without them the server is read-only.
func (c *ServerConfig) WritesEnabled() bool {
	return c.Auth.JWTSecretKey != "" && len(c.Auth.GateCodeHashes) > 0
}

// LoadClientConfig reads the CLI configuration from the environment.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load client configuration from environment: " + err.Error())
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("KEEPSAKE_SERVER_URL must be an http(s) URL, got %q", cfg.ServerURL)
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = cfg.ServerURL
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
