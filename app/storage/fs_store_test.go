package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diag-agent/app/domains"
)

func TestFSStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store, err := NewFSStore(dir)
	require.NoError(t, err)

	var missing domains.Identity
	found, err := store.LoadJSON("agent-identity.json", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	id := domains.Identity{ContainerID: "t_a_p_1_abcd", TeamName: "t", HostIP: "10.0.0.1"}
	require.NoError(t, store.SaveJSON("agent-identity.json", id))

	var loaded domains.Identity
	found, err = store.LoadJSON("agent-identity.json", &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, loaded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFSStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent-identity.json"), []byte("{"), 0o644))

	var id domains.Identity
	_, err = store.LoadJSON("agent-identity.json", &id)
	assert.Error(t, err)
}
