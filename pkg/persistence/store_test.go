package persistence_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardlab/pkg/persistence"
)

func openStore(t *testing.T) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionRoundTrip(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.SessionStarted("s1", "wandboard"))
	require.NoError(t, store.CommandRan("s1", "wandboard-uboot", "version", 0, "U-Boot 2020.01\n"))
	require.NoError(t, store.CommandRan("s1", "wandboard-uboot", "false", 1, ""))
	require.NoError(t, store.SessionEnded("s1", "ok"))

	sessions, err := store.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, "wandboard", sessions[0].Board)
	assert.Equal(t, "ok", sessions[0].Result)
	assert.NotEmpty(t, sessions[0].StartedAt)
	assert.NotEmpty(t, sessions[0].EndedAt)
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	store := openStore(t)

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, store.SessionStarted(id, "bench"))
	}

	sessions, err := store.RecentSessions(2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	// started_at has nanosecond precision, so insertion order holds.
	assert.Equal(t, "s3", sessions[0].ID)
	assert.Equal(t, "s2", sessions[1].ID)
}

func TestUnfinishedSessionHasEmptyResult(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.SessionStarted("s1", "bench"))
	sessions, err := store.RecentSessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Empty(t, sessions[0].EndedAt)
	assert.Empty(t, sessions[0].Result)
}

func TestDuplicateSessionIDRejected(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.SessionStarted("s1", "bench"))
	assert.Error(t, store.SessionStarted("s1", "bench"))
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := persistence.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.SessionStarted("s1", "bench"))
	require.NoError(t, store.Close())

	store, err = persistence.Open(path)
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
}
