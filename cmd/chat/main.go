// Command chat is a terminal client for a groupchat server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/NicolasHaas/groupchat/pkg/client"
	"github.com/NicolasHaas/groupchat/pkg/logging"
	"github.com/NicolasHaas/groupchat/pkg/protocol"
	"github.com/NicolasHaas/groupchat/pkg/transport"
)

const defaultAddr = "localhost:12345"

func main() {
	addr := pflag.String("addr", "", "server address (default: last used server, else "+defaultAddr+")")
	bookmarks := pflag.String("bookmarks", client.DefaultBookmarkPath(), "saved servers file")
	maxMessage := pflag.Int("max-message", protocol.DefaultMaxMessage, "maximum message size in bytes")
	logFile := pflag.String("log-file", "", "write logs to this file (default: discard)")
	logLevel := pflag.String("log-level", "info", "log level: "+logging.LevelNames())
	pflag.Parse()

	if err := run(*addr, *bookmarks, *maxMessage, *logFile, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "chat:", err)
		os.Exit(1)
	}
}

func run(addr, bookmarkPath string, maxMessage int, logFile, logLevel string) error {
	var logOut io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path from CLI flag
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	if err := logging.Setup(logging.Options{Level: logLevel, Output: logOut}); err != nil {
		return err
	}

	store := client.NewBookmarkStore(bookmarkPath)
	if err := store.Load(); err != nil {
		slog.Warn("load bookmarks", "err", err)
	}
	if addr == "" {
		addr = defaultAddr
		if recent := store.Recent(); recent != nil {
			addr = recent.Addr
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, addr, transport.Options{MaxMessageSize: maxMessage, WriteTimeout: 10 * time.Second})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	slog.Info("connected", "addr", addr)

	m := newModel(addr, c)
	m.onLogin = func(username string) {
		store.Add(client.Bookmark{Addr: addr, Username: username, LastUsed: time.Now().Unix()})
		if err := store.Save(); err != nil {
			slog.Warn("save bookmarks", "err", err)
		}
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	c.StartReceiving(func(msg string) { p.Send(serverMsg(msg)) })
	go func() {
		<-c.Done()
		p.Send(disconnectedMsg{err: c.Err()})
	}()

	_, err = p.Run()
	return err
}
