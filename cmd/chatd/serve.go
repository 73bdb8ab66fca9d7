package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/groupchat/pkg/config"
	"github.com/NicolasHaas/groupchat/pkg/crypto"
	"github.com/NicolasHaas/groupchat/pkg/logging"
	"github.com/NicolasHaas/groupchat/pkg/server"
	"github.com/NicolasHaas/groupchat/pkg/userstore"
	"github.com/NicolasHaas/groupchat/pkg/version"
)

func newServeCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(config.New(), cmd.Flags(), *configFile)
			if err != nil {
				return err
			}
			if err := logging.Setup(logging.Options{
				Level:  settings.Logging.Level,
				Format: settings.Logging.Format,
				Output: os.Stdout,
			}); err != nil {
				return fmt.Errorf("invalid logging config: %w", err)
			}
			slog.Info("starting chatd", "version", version.String())

			users, err := loadUsers(settings)
			if err != nil {
				return err
			}

			srv, err := server.New(settings.Server, server.Dependencies{Users: users})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	config.ServeFlags(cmd.Flags())
	return cmd
}

// loadUsers reads the configured credential source once into memory.
func loadUsers(s config.Settings) (*userstore.Memory, error) {
	var (
		mem    *userstore.Memory
		err    error
		source string
	)
	if s.UsersDB != "" {
		source = s.UsersDB
		mem, err = snapshotDB(s.UsersDB)
	} else {
		source = s.UsersFile
		mem, err = userstore.LoadFile(s.UsersFile)
	}
	if err != nil {
		return nil, err
	}

	plain := 0
	for _, c := range mem.Credentials() {
		if !crypto.IsHashed(c.Secret) {
			plain++
		}
	}
	slog.Info("loaded credentials", "source", source, "users", mem.Len())
	if plain > 0 {
		slog.Warn("credentials stored in plain text; consider chatd hash-password", "count", plain)
	}
	return mem, nil
}

func snapshotDB(path string) (*userstore.Memory, error) {
	db, err := userstore.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	return db.Snapshot()
}
