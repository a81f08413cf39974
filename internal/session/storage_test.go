package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "session")

	storage, err := NewFileStorage(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "session.json"), storage.Path())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestFileStorage_GetSetRemove(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	// Missing file reads as empty
	_, ok, err := storage.Get(TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.Set(TokenKey, "token-1"))
	require.NoError(t, storage.Set(UserKey, `{"id":1}`))

	value, ok, err := storage.Get(TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token-1", value)

	info, err := os.Stat(storage.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, storage.Remove(TokenKey))
	_, ok, err = storage.Get(TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys survive
	value, ok, err = storage.Get(UserKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":1}`, value)

	// Removing a missing key is a no-op
	require.NoError(t, storage.Remove("missing"))
}

func TestFileStorage_Persists(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStorage(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(TokenKey, "token-1"))

	second, err := NewFileStorage(dir)
	require.NoError(t, err)

	value, ok, err := second.Get(TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token-1", value)

	_, err = os.Stat(second.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should not be left behind")
}

func TestFileStorage_CorruptFile(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(storage.Path(), []byte("{not json"), 0600))

	_, _, err = storage.Get(TokenKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse session file")

	store, err := New(storage, "https://jobcrew.example.com")
	require.NoError(t, err)
	assert.False(t, store.Restore())

	// The next save replaces the unreadable file
	store.Save(User{ID: 7, MemberName: "crewmate"}, "token-1")

	reopened, err := NewFileStorage(filepath.Dir(storage.Path()))
	require.NoError(t, err)
	restored, err := New(reopened, "https://jobcrew.example.com")
	require.NoError(t, err)
	require.True(t, restored.Restore())
	assert.Equal(t, "token-1", restored.Token())

	user, ok := restored.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, int64(7), user.ID)
}

func TestFileStorage_CorruptFileRemove(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(storage.Path(), []byte("{not json"), 0600))

	require.NoError(t, storage.Remove(TokenKey))

	_, ok, err := storage.Get(TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorage(t *testing.T) {
	storage := NewMemoryStorage()

	_, ok, err := storage.Get(UserKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.Set(UserKey, "value"))
	value, ok, err := storage.Get(UserKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", value)

	require.NoError(t, storage.Remove(UserKey))
	_, ok, err = storage.Get(UserKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
