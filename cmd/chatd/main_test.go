package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/groupchat/pkg/config"
	"github.com/NicolasHaas/groupchat/pkg/crypto"
	"github.com/NicolasHaas/groupchat/pkg/userstore"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestUsersLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "users.db")

	out, err := run(t, "hunter2\n", "users", "--db", db, "add", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "user alice saved")

	_, err = run(t, "other\n", "users", "--db", db, "add", "alice")
	require.ErrorIs(t, err, userstore.ErrDuplicateUser)

	_, err = run(t, "changed\n", "users", "--db", db, "add", "--update", "alice")
	require.NoError(t, err)

	_, err = run(t, "pw\n", "users", "--db", db, "add", "--plain", "bob")
	require.NoError(t, err)

	out, err = run(t, "", "users", "--db", db, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "alice"))
	assert.Contains(t, lines[1], "true")
	assert.True(t, strings.HasPrefix(lines[2], "bob"))
	assert.Contains(t, lines[2], "false")

	st, err := userstore.OpenSQLite(db)
	require.NoError(t, err)
	require.NoError(t, userstore.Authenticate(st, "alice", "changed"))
	require.NoError(t, st.Close())

	out, err = run(t, "", "users", "--db", db, "export")
	require.NoError(t, err)
	assert.Contains(t, out, "username: alice")
	assert.NotContains(t, out, "changed")

	_, err = run(t, "", "users", "--db", db, "remove", "bob")
	require.NoError(t, err)
	_, err = run(t, "", "users", "--db", db, "remove", "bob")
	require.Error(t, err)
}

func TestUsersImportHashesPlainPasswords(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "users.db")
	src := filepath.Join(dir, "users.txt")
	require.NoError(t, os.WriteFile(src, []byte("alice:pw1\nbob:pw2\n"), 0o600))

	out, err := run(t, "", "users", "--db", db, "import", src)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 users")

	st, err := userstore.OpenSQLite(db)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	cred, err := st.Lookup("bob")
	require.NoError(t, err)
	assert.True(t, crypto.IsHashed(cred.Secret))
	assert.NoError(t, userstore.Authenticate(st, "bob", "pw2"))
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "s3cret\n", "hash-password")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, crypto.IsHashed(hash))
	assert.True(t, crypto.VerifyPassword(hash, "s3cret"))

	_, err = run(t, "\n", "hash-password")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "chatd "))
}

func TestServeRequiresCredentialSource(t *testing.T) {
	_, err := run(t, "", "serve", "--metrics", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--users")
}

func TestLoadUsers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice:pw1\n"), 0o600))

	mem, err := loadUsers(config.Settings{UsersFile: path})
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())

	db := filepath.Join(dir, "users.db")
	_, err = run(t, "pw\n", "users", "--db", db, "add", "carol")
	require.NoError(t, err)
	mem, err = loadUsers(config.Settings{UsersDB: db})
	require.NoError(t, err)
	assert.NoError(t, userstore.Authenticate(mem, "carol", "pw"))
}
