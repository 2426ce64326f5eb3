package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Posologia-Edu/pbl-virtual-sub001/config"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/catalog"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/auth"
)

// memoryEnv points the CLI at the in-memory store with no .env file.
func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("APP_ENV", "test")
	t.Setenv("BADGES_STORE", "memory")
	t.Setenv("BADGES_CATALOG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BADGES_DISABLED_RULES", "")
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHashKey(t *testing.T) {
	t.Run("argument", func(t *testing.T) {
		out, err := execute(t, "", "hash-key", "s3cret")
		require.NoError(t, err)

		key, err := auth.NewAdminKey(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.True(t, key.Verify("s3cret"))
	})

	t.Run("stdin", func(t *testing.T) {
		out, err := execute(t, "from-stdin\n", "hash-key")
		require.NoError(t, err)

		key, err := auth.NewAdminKey(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.True(t, key.Verify("from-stdin"))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := execute(t, "\n", "hash-key")
		assert.Error(t, err)
	})
}

func TestTokenIsAcceptedByVerifier(t *testing.T) {
	memoryEnv(t)
	user := uuid.NewString()

	out, err := execute(t, "", "token", "--user", user, "--ttl", "5m")
	require.NoError(t, err)

	tokens, err := auth.NewTokens(config.DevJWTSecret, "pbl-virtual")
	require.NoError(t, err)
	got, err := tokens.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, user, got.String())
}

func TestTokenRequiresUser(t *testing.T) {
	memoryEnv(t)
	_, err := execute(t, "", "token")
	assert.Error(t, err)
}

func TestCatalogCheckFallsBackToBuiltin(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "builtin:")
	assert.NotContains(t, out, "warning:")
}

func TestCatalogCheckRejectsInvalidFile(t *testing.T) {
	memoryEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("badges:\n  - slug: Not A Slug\n    name: x\n    category: participation\n"), 0o600))

	_, err := execute(t, "", "check", "--catalog", path)
	assert.Error(t, err)
}

func TestSeedUpdatesSeededDefinitions(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "", "seed", "--builtin")
	require.NoError(t, err)

	n := len(catalog.MustDefault())
	assert.Equal(t, n, strings.Count(out, "updated "))
	assert.NotContains(t, out, "created ")
}

func TestSeedCreatesFromFile(t *testing.T) {
	memoryEnv(t)
	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte("badges:\n  - slug: night_owl\n    name: Night Owl\n    category: participation\n"), 0o600))

	out, err := execute(t, "", "seed", "--catalog", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created night_owl")
	assert.Contains(t, out, "warning: rule first_contribution has no definition")
}

func TestEvaluateWithoutActivity(t *testing.T) {
	memoryEnv(t)
	user := uuid.NewString()

	out, err := execute(t, "", "evaluate", "--user", user)
	require.NoError(t, err)

	var got evaluateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, user, got.UserID)
	assert.Nil(t, got.RoomID)
	assert.Empty(t, got.Badges)
	assert.Zero(t, got.NewBadges)
}

func TestEvaluateRejectsBadUser(t *testing.T) {
	memoryEnv(t)
	_, err := execute(t, "", "evaluate", "--user", "not-a-uuid")
	assert.Error(t, err)
}

func TestSchemaCommandsNeedPostgres(t *testing.T) {
	memoryEnv(t)
	for _, name := range []string{"migrate", "rollback", "status"} {
		_, err := execute(t, "", name)
		assert.ErrorIs(t, err, errNoDatabase, name)
	}
}
