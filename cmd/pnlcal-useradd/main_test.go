package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pnlcal/internal/auth"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestUserAdd_PrintsStanza(t *testing.T) {
	out, err := execute(t, "s3cret\n", "--email", "Trader@Example.com", "--id", "u1", "--name", "Trader", "--password-stdin")
	require.NoError(t, err)

	var users []map[string]string
	require.NoError(t, yaml.Unmarshal([]byte(out), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0]["id"])
	assert.Equal(t, "Trader", users[0]["name"])
	assert.True(t, strings.HasPrefix(users[0]["password_hash"], "$2"))
}

func TestUserAdd_RequiresPassword(t *testing.T) {
	t.Setenv("PNLCAL_PASSWORD", "")
	_, err := execute(t, "", "--email", "a@example.com")
	assert.Error(t, err)
}

func TestUserAdd_RequiresEmail(t *testing.T) {
	_, err := execute(t, "pw\n", "--password-stdin")
	assert.Error(t, err)
}

func TestUserAdd_AppendsToUsersFile(t *testing.T) {
	t.Setenv("PNLCAL_PASSWORD", "hunter22")
	path := filepath.Join(t.TempDir(), "users.yaml")

	_, err := execute(t, "", "--email", "one@example.com", "--id", "one", "--users-file", path)
	require.NoError(t, err)
	out, err := execute(t, "", "--email", "two@example.com", "--id", "two", "--users-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "now has 2 users")

	dir, err := auth.LoadDirectory(path)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Len())

	// Duplicate ids leave the file untouched.
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = execute(t, "", "--email", "three@example.com", "--id", "one", "--users-file", path)
	assert.Error(t, err)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
