// Package config resolves chatd settings from flags, CHATD_* environment
// variables and an optional YAML config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/NicolasHaas/groupchat/pkg/logging"
	"github.com/NicolasHaas/groupchat/pkg/server"
)

// EnvPrefix is prepended to every environment variable, e.g. CHATD_LISTEN.
const EnvPrefix = "CHATD"

// Setting keys. Flags, environment variables and YAML keys share them.
const (
	KeyListen             = "listen"
	KeyWebSocket          = "ws"
	KeyWebSocketPath      = "ws-path"
	KeyOrigins            = "origins"
	KeyMetrics            = "metrics"
	KeyMetricsLogInterval = "metrics-log-interval"
	KeyUsersFile          = "users"
	KeyUsersDB            = "users-db"
	KeyMaxMessage         = "max-message"
	KeyAuthTimeout        = "auth-timeout"
	KeyIdleTimeout        = "idle-timeout"
	KeyWriteTimeout       = "write-timeout"
	KeyRate               = "rate"
	KeyBurst              = "burst"
	KeyLogLevel           = "log-level"
	KeyLogFormat          = "log-format"
)

// Settings is everything chatd serve needs.
type Settings struct {
	Server    server.Config
	Logging   logging.Options
	UsersFile string // username:password or YAML credential file
	UsersDB   string // SQLite credential database
}

// New returns a viper instance wired for CHATD_* environment variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ServeFlags registers the serve flags on fs with server defaults.
func ServeFlags(fs *pflag.FlagSet) {
	def := server.DefaultConfig()
	fs.String(KeyListen, def.ListenAddr, "TCP listen address")
	fs.String(KeyWebSocket, def.WebSocketAddr, "WebSocket gateway listen address (empty = disabled)")
	fs.String(KeyWebSocketPath, def.WebSocketPath, "WebSocket gateway path")
	fs.StringSlice(KeyOrigins, def.AllowedOrigins, "allowed browser origins for the WebSocket gateway (\"*\" = any)")
	fs.String(KeyMetrics, def.MetricsAddr, "metrics HTTP listen address (empty = disabled)")
	fs.Duration(KeyMetricsLogInterval, def.MetricsLogInterval, "interval between metrics log summaries (0 = disabled)")
	fs.String(KeyUsersFile, "", "credential file (username:password lines, or .yaml)")
	fs.String(KeyUsersDB, "", "SQLite credential database")
	fs.Int(KeyMaxMessage, def.MaxMessageSize, "maximum message size in bytes")
	fs.Duration(KeyAuthTimeout, def.AuthTimeout, "time allowed for the login exchange (0 = unlimited)")
	fs.Duration(KeyIdleTimeout, def.IdleTimeout, "disconnect clients idle this long (0 = never)")
	fs.Duration(KeyWriteTimeout, def.WriteTimeout, "per-message write deadline (0 = none)")
	fs.Float64(KeyRate, def.RateLimit, "commands per second per connection (0 = unlimited)")
	fs.Int(KeyBurst, def.RateBurst, "rate limiter burst")
	fs.String(KeyLogLevel, "info", "log level ("+logging.LevelNames()+")")
	fs.String(KeyLogFormat, "text", "log format (text, json)")
}

// Load binds fs into v, reads configFile when given and resolves Settings.
func Load(v *viper.Viper, fs *pflag.FlagSet, configFile string) (Settings, error) {
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Settings{}, fmt.Errorf("config: bind flags: %w", err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	cfg := server.Config{
		ListenAddr:         v.GetString(KeyListen),
		WebSocketAddr:      v.GetString(KeyWebSocket),
		WebSocketPath:      v.GetString(KeyWebSocketPath),
		AllowedOrigins:     splitList(v.GetStringSlice(KeyOrigins)),
		MetricsAddr:        v.GetString(KeyMetrics),
		MetricsLogInterval: v.GetDuration(KeyMetricsLogInterval),
		MaxMessageSize:     v.GetInt(KeyMaxMessage),
		AuthTimeout:        v.GetDuration(KeyAuthTimeout),
		IdleTimeout:        v.GetDuration(KeyIdleTimeout),
		WriteTimeout:       v.GetDuration(KeyWriteTimeout),
		RateLimit:          v.GetFloat64(KeyRate),
		RateBurst:          v.GetInt(KeyBurst),
	}

	s := Settings{
		Server: cfg,
		Logging: logging.Options{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
		UsersFile: v.GetString(KeyUsersFile),
		UsersDB:   v.GetString(KeyUsersDB),
	}
	return s, s.Validate()
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	if err := s.Server.Validate(); err != nil {
		return err
	}
	if err := logging.Validate(s.Logging.Level); err != nil {
		return err
	}
	if err := logging.ValidateFormat(s.Logging.Format); err != nil {
		return err
	}
	switch {
	case s.UsersFile == "" && s.UsersDB == "":
		return errors.New("config: one of --users or --users-db is required")
	case s.UsersFile != "" && s.UsersDB != "":
		return errors.New("config: --users and --users-db are mutually exclusive")
	}
	return nil
}

// splitList flattens comma-separated entries, which is how lists arrive
// from environment variables.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
