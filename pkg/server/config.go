package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/NicolasHaas/groupchat/pkg/protocol"
)

// Config holds server configuration.
type Config struct {
	ListenAddr     string   // TCP bind address (e.g. ":12345")
	WebSocketAddr  string   // HTTP bind address for the WebSocket gateway (empty = disabled)
	WebSocketPath  string   // path the gateway upgrades on
	AllowedOrigins []string // browser origins allowed on the gateway ("*" = any)
	MetricsAddr    string   // HTTP bind address for /metrics (empty = disabled)

	MaxMessageSize int           // largest payload in either direction, in bytes
	AuthTimeout    time.Duration // limit on the whole login exchange (0 = none)
	IdleTimeout    time.Duration // disconnect after this long without a command (0 = never)
	WriteTimeout   time.Duration // per-send write deadline (0 = none)

	RateLimit float64 // commands per second per connection (<= 0 disables)
	RateBurst int

	MetricsLogInterval time.Duration // periodic slog summary (0 = disabled)
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         ":12345",
		WebSocketPath:      "/ws",
		MetricsAddr:        ":12346",
		MaxMessageSize:     protocol.DefaultMaxMessage,
		AuthTimeout:        30 * time.Second,
		WriteTimeout:       10 * time.Second,
		RateLimit:          10,
		RateBurst:          20,
		MetricsLogInterval: 60 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.ListenAddr == "" && c.WebSocketAddr == "" {
		return errors.New("server: config: no listen address")
	}
	if c.MaxMessageSize <= 0 || c.MaxMessageSize > protocol.MaxDiscard {
		return fmt.Errorf("server: config: max message size %d out of range (1-%d)", c.MaxMessageSize, protocol.MaxDiscard)
	}
	if c.AuthTimeout < 0 || c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("server: config: timeouts must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("server: config: rate burst %d must be at least 1", c.RateBurst)
	}
	if c.MetricsLogInterval < 0 {
		return errors.New("server: config: metrics log interval must not be negative")
	}
	return nil
}
