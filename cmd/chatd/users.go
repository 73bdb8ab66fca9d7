package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/groupchat/pkg/crypto"
	"github.com/NicolasHaas/groupchat/pkg/model"
	"github.com/NicolasHaas/groupchat/pkg/userstore"
)

const timeColumn = "2006-01-02 15:04"

func newUsersCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the SQLite credential database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "chatd.db", "SQLite credential database")

	open := func() (*userstore.SQLite, error) {
		return userstore.OpenSQLite(dbPath)
	}

	cmd.AddCommand(
		newUsersAddCmd(open),
		newUsersRemoveCmd(open),
		newUsersListCmd(open),
		newUsersImportCmd(open),
		newUsersExportCmd(open),
	)
	return cmd
}

type openDB func() (*userstore.SQLite, error)

func newUsersAddCmd(open openDB) *cobra.Command {
	var plain, update bool

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Add a user; the password is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if err := model.ValidateUsername(username); err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			secret, err := secretFor(password, plain)
			if err != nil {
				return err
			}

			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			err = db.CreateUser(username, secret)
			if errors.Is(err, userstore.ErrDuplicateUser) && update {
				err = db.SetSecret(username, secret)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", username)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "store the password without hashing")
	cmd.Flags().BoolVar(&update, "update", false, "replace the password if the user exists")
	return cmd
}

func newUsersRemoveCmd(open openDB) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <username>",
		Aliases: []string{"rm"},
		Short:   "Remove a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.DeleteUser(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s removed\n", args[0])
			return nil
		},
	}
}

func newUsersListCmd(open openDB) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			users, err := db.ListUsers()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USERNAME\tHASHED\tCREATED\tUPDATED")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", u.Username, u.Hashed,
					u.CreatedAt.Format(timeColumn), u.UpdatedAt.Format(timeColumn))
			}
			return tw.Flush()
		},
	}
}

func newUsersImportCmd(open openDB) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import users from a username:password or YAML file, replacing existing passwords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, err := userstore.LoadFile(args[0])
			if err != nil {
				return err
			}
			creds := mem.Credentials()
			for i, c := range creds {
				if plain || crypto.IsHashed(c.Secret) {
					continue
				}
				if creds[i].Secret, err = crypto.HashPassword(c.Secret); err != nil {
					return err
				}
			}

			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			n, err := db.Import(creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d users\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "keep plain-text passwords as they are")
	return cmd
}

func newUsersExportCmd(open openDB) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print usernames as YAML (passwords are never exported)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			mem, err := db.Snapshot()
			if err != nil {
				return err
			}
			data, err := userstore.ExportYAML(mem.Credentials())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its argon2id hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := crypto.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("read password: %w", model.ErrEmptyArgument)
	}
	return password, nil
}

func secretFor(password string, plain bool) (string, error) {
	if plain {
		return password, nil
	}
	return crypto.HashPassword(password)
}
