package userstore

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

// UserYAML is one entry of a YAML credential file.
type UserYAML struct {
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

// UsersFile is the top-level YAML credential document.
type UsersFile struct {
	Users []UserYAML `yaml:"users"`
}

// LoadFile reads a credential file. Files ending in .yaml or .yml are parsed
// as YAML; anything else as "username:password" lines.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from server config
	if err != nil {
		return nil, oops.In("userstore").With("path", path).Wrapf(err, "read credentials")
	}

	var creds []model.Credential
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		creds, err = ParseYAML(data)
	default:
		creds, err = ParseText(data)
	}
	if err != nil {
		return nil, oops.In("userstore").With("path", path).Wrap(err)
	}

	mem, err := NewMemory(creds...)
	if err != nil {
		return nil, oops.In("userstore").With("path", path).Wrap(err)
	}
	return mem, nil
}

// ParseText parses "username:password" lines. The password is everything
// after the first colon. Blank lines and lines starting with # are skipped.
func ParseText(data []byte) ([]model.Credential, error) {
	var creds []model.Credential
	seen := make(map[string]int)

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		username, password, ok := strings.Cut(text, ":")
		username = strings.TrimSpace(username)
		password = strings.TrimSpace(password)
		if !ok || password == "" {
			return nil, oops.In("userstore").With("line", line).Wrapf(ErrMalformedLine, "expected username:password")
		}
		if err := model.ValidateUsername(username); err != nil {
			return nil, oops.In("userstore").With("line", line, "username", username).Wrap(err)
		}
		if first, dup := seen[username]; dup {
			return nil, oops.In("userstore").
				With("line", line, "first_line", first, "username", username).
				Wrap(ErrDuplicateUser)
		}
		seen[username] = line
		creds = append(creds, model.Credential{Username: username, Secret: password})
	}
	if err := sc.Err(); err != nil {
		return nil, oops.In("userstore").Wrapf(err, "scan credentials")
	}
	return creds, nil
}

// ParseYAML parses a UsersFile document.
func ParseYAML(data []byte) ([]model.Credential, error) {
	var doc UsersFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, oops.In("userstore").Wrapf(err, "parse yaml credentials")
	}

	creds := make([]model.Credential, 0, len(doc.Users))
	for i, u := range doc.Users {
		if u.Password == "" {
			return nil, oops.In("userstore").With("entry", i, "username", u.Username).Wrapf(ErrMalformedLine, "missing password")
		}
		creds = append(creds, model.Credential{Username: u.Username, Secret: u.Password})
	}
	return creds, nil
}

// ExportYAML renders usernames as a UsersFile. Secrets are never exported.
func ExportYAML(creds []model.Credential) ([]byte, error) {
	doc := UsersFile{Users: make([]UserYAML, 0, len(creds))}
	for _, c := range creds {
		doc.Users = append(doc.Users, UserYAML{Username: c.Username})
	}
	return yaml.Marshal(&doc)
}
