package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeystoreRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "replica.key")
	require.NoError(t, SaveKey(path, "hunter2", priv))

	loaded, err := LoadKey(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, pub.Hex(), loaded.Public().Hex())
}

func TestKeystoreWrongPassword(t *testing.T) {
	priv, _, err := GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "replica.key")
	require.NoError(t, SaveKey(path, "correct", priv))

	_, err = LoadKey(path, "incorrect")
	require.Error(t, err)
}
