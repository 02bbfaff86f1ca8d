package committee

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/bftcore/crypto"
)

func writeCommitteeFile(t *testing.T, entries []authorityFile) string {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "committee.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadFile(t *testing.T) {
	_, pub1, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, pub2, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	path := writeCommitteeFile(t, []authorityFile{
		{PublicKey: pub1.Hex(), Address: "127.0.0.1:9001", Stake: 2},
		{PublicKey: pub2.Hex(), Address: "127.0.0.1:9002"},
	})

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, c.Size())
	require.True(t, c.Exists(pub1))
	require.Equal(t, uint64(2), c.Stake(pub1))
	require.Equal(t, uint64(1), c.Stake(pub2))
	addr, err := c.Address(pub2)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9002", addr)
}

func TestLoadFileRejectsEmpty(t *testing.T) {
	path := writeCommitteeFile(t, nil)
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileRejectsBadPubKey(t *testing.T) {
	path := writeCommitteeFile(t, []authorityFile{{PublicKey: "not-hex", Address: "x"}})
	_, err := LoadFile(path)
	require.Error(t, err)
}
