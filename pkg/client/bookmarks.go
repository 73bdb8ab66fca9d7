package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Bookmark is a server the user has connected to before. Passwords are
// never stored.
type Bookmark struct {
	Name     string `yaml:"name,omitempty"`
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	LastUsed int64  `yaml:"last_used,omitempty"`
}

// BookmarkStore manages saved servers in a YAML file.
type BookmarkStore struct {
	path      string
	Bookmarks []Bookmark `yaml:"bookmarks"`
}

// DefaultBookmarkPath returns servers.yaml in the user's config directory,
// falling back to the working directory.
func DefaultBookmarkPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "servers.yaml"
	}
	return filepath.Join(dir, "groupchat", "servers.yaml")
}

// NewBookmarkStore creates a store backed by path.
func NewBookmarkStore(path string) *BookmarkStore {
	return &BookmarkStore{path: path}
}

// Load reads bookmarks from disk. A missing file yields an empty list.
func (bs *BookmarkStore) Load() error {
	data, err := os.ReadFile(bs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			bs.Bookmarks = nil
			return nil
		}
		return fmt.Errorf("client: read bookmarks: %w", err)
	}
	if err := yaml.Unmarshal(data, bs); err != nil {
		return fmt.Errorf("client: parse bookmarks: %w", err)
	}
	return nil
}

// Save writes bookmarks to disk, creating the directory if needed.
func (bs *BookmarkStore) Save() error {
	data, err := yaml.Marshal(bs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(bs.path), 0o700); err != nil {
		return fmt.Errorf("client: create bookmark dir: %w", err)
	}
	return os.WriteFile(bs.path, data, 0o600)
}

// Add adds or updates a bookmark. Returns true if it was a new entry.
func (bs *BookmarkStore) Add(b Bookmark) bool {
	for i, existing := range bs.Bookmarks {
		if existing.Addr == b.Addr && existing.Username == b.Username {
			bs.Bookmarks[i] = b
			return false
		}
	}
	bs.Bookmarks = append(bs.Bookmarks, b)
	return true
}

// Recent returns the most recently used bookmark, or nil.
func (bs *BookmarkStore) Recent() *Bookmark {
	if len(bs.Bookmarks) == 0 {
		return nil
	}
	sorted := make([]Bookmark, len(bs.Bookmarks))
	copy(sorted, bs.Bookmarks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LastUsed > sorted[j].LastUsed })
	return &sorted[0]
}

// FindByAddr returns a bookmark matching addr, or nil.
func (bs *BookmarkStore) FindByAddr(addr string) *Bookmark {
	for _, b := range bs.Bookmarks {
		if b.Addr == addr {
			return &b
		}
	}
	return nil
}
