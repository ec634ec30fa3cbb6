package hydration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "state.cbor"))
	require.NoError(t, err)
	return map[string]Store{"mem": NewMemStore(), "file": fs}
}

func TestStore_Defaults(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 64, s.Int(KeyDailyGoal, 64))
			assert.True(t, s.Bool(KeyNotifications, true))
		})
	}
}

func TestStore_SetGet(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SetInt(KeyIntake, 24))
			require.NoError(t, s.SetBool(KeyNotifications, false))
			assert.Equal(t, 24, s.Int(KeyIntake, 0))
			assert.False(t, s.Bool(KeyNotifications, true))
		})
	}
}

func TestFileStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.cbor")

	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.SetInt(KeyStreak, 6))
	require.NoError(t, fs.SetBool(achievementKey("hydration_hero"), true))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 6, reopened.Int(KeyStreak, 0))
	assert.True(t, reopened.Bool(achievementKey("hydration_hero"), false))
	assert.Equal(t, path, reopened.Path())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0o600))

	_, err := OpenFileStore(path)
	assert.ErrorContains(t, err, "decode settings")
}
