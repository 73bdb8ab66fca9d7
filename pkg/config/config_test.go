package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"

	"github.com/NicolasHaas/groupchat/pkg/logging"
	"github.com/NicolasHaas/groupchat/pkg/server"
)

func load(t *testing.T, args []string, configFile string) (Settings, error) {
	t.Helper()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	ServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return Load(New(), fs, configFile)
}

func TestLoadDefaults(t *testing.T) {
	got, err := load(t, []string{"--users", "users.txt"}, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Settings{
		Server:    server.DefaultConfig(),
		Logging:   logging.Options{Level: "info", Format: "text"},
		UsersFile: "users.txt",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "chatd.yaml")
	yaml := `listen: ":7000"
max-message: 2048
idle-timeout: 5m
origins:
  - https://chat.example.org
log-level: debug
users-db: /var/lib/chatd/users.db
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CHATD_MAX_MESSAGE", "4096")
	t.Setenv("CHATD_LOG_FORMAT", "json")
	t.Setenv("CHATD_WS", ":8080")

	got, err := load(t, []string{"--listen", ":9000"}, cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, flag should win", got.Server.ListenAddr)
	}
	if got.Server.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, env should beat config", got.Server.MaxMessageSize)
	}
	if got.Server.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v, want 5m from config", got.Server.IdleTimeout)
	}
	if got.Server.WebSocketAddr != ":8080" {
		t.Errorf("WebSocketAddr = %q, want :8080 from env", got.Server.WebSocketAddr)
	}
	if diff := cmp.Diff([]string{"https://chat.example.org"}, got.Server.AllowedOrigins); diff != "" {
		t.Errorf("AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
	if got.Logging != (logging.Options{Level: "debug", Format: "json"}) {
		t.Errorf("Logging = %+v", got.Logging)
	}
	if got.UsersDB != "/var/lib/chatd/users.db" {
		t.Errorf("UsersDB = %q", got.UsersDB)
	}
}

func TestLoadOriginsFromEnv(t *testing.T) {
	t.Setenv("CHATD_ORIGINS", "https://a.example, https://b.example")
	got, err := load(t, []string{"--users", "u.txt"}, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, got.Server.AllowedOrigins); diff != "" {
		t.Errorf("AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no credential source", nil},
		{"both credential sources", []string{"--users", "u.txt", "--users-db", "u.db"}},
		{"bad log level", []string{"--users", "u.txt", "--log-level", "loud"}},
		{"bad log format", []string{"--users", "u.txt", "--log-format", "xml"}},
		{"bad max message", []string{"--users", "u.txt", "--max-message", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(t, tt.args, ""); err == nil {
				t.Fatal("Load succeeded, want error")
			}
		})
	}

	if _, err := load(t, []string{"--users", "u.txt"}, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load with missing config file succeeded")
	}
}
