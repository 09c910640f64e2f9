package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		st, err := New(dbPath)
		require.NoError(t, err)
		assert.NotNil(t, st)
		err = st.Close()
		require.NoError(t, err)
	})

	t.Run("invalid path", func(t *testing.T) {
		st, err := New("/invalid/path/that/does/not/exist/test.db")
		assert.Error(t, err)
		assert.Nil(t, st)
	})
}

func TestStore_TableCreated(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	var count int
	err = st.db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='kv'")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_ReadMissingKey(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	value, found, err := st.Read("never-written")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestStore_WriteAndRead(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	err = st.Write(KeyTabs, []byte(`[{"id":"1"}]`))
	require.NoError(t, err)

	value, found, err := st.Read(KeyTabs)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`[{"id":"1"}]`), value)
}

func TestStore_WriteReplacesWholesale(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Write(KeyTabs, []byte("first")))
	require.NoError(t, st.Write(KeyTabs, []byte("second")))

	value, found, err := st.Read(KeyTabs)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("second"), value)

	// only a single row for the key
	var count int
	err = st.db.Get(&count, "SELECT COUNT(*) FROM kv WHERE key = ?", KeyTabs)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_KeysIsolated(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Write(KeyTabs, []byte("live")))
	require.NoError(t, st.Write(KeyBackup, []byte("snapshot")))

	value, found, err := st.Read(KeyTabs)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("live"), value)

	value, found, err = st.Read(KeyBackup)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("snapshot"), value)
}

func TestStore_Remove(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Write(KeyTabs, []byte("data")))
	require.NoError(t, st.Remove(KeyTabs))

	_, found, err := st.Read(KeyTabs)
	require.NoError(t, err)
	assert.False(t, found)

	// removing a missing key is not an error
	require.NoError(t, st.Remove(KeyTabs))
}

func TestStore_UpdatedAt(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	ts, err := st.UpdatedAt(KeyBackup)
	require.NoError(t, err)
	assert.Zero(t, ts, "never-written key reports zero")

	require.NoError(t, st.Write(KeyBackup, []byte("snapshot")))

	ts, err = st.UpdatedAt(KeyBackup)
	require.NoError(t, err)
	assert.Positive(t, ts)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Write(KeyTabs, []byte("persisted")))
	require.NoError(t, st.Close())

	st2, err := New(dbPath)
	require.NoError(t, err)
	defer st2.Close()

	value, found, err := st2.Read(KeyTabs)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("persisted"), value)
}
