package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/wire"
)

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	_, ok, err := m.Read(ctx, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Write(ctx, []byte("k"), []byte("v")))
	v, ok, err := m.Read(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestBlockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := NewBlockStore(NewMemory())

	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	block := wire.Block{Author: pub, Round: 1, View: 1, Height: 1, QC: wire.GenesisQC()}

	require.NoError(t, bs.PutBlock(ctx, block))

	got, ok, err := bs.GetBlock(ctx, block.Digest())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Digest(), got.Digest())

	_, ok, err = bs.GetBlock(ctx, crypto.HashBytes([]byte("nope")))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlockStoreLastCommitted(t *testing.T) {
	ctx := context.Background()
	bs := NewBlockStore(NewMemory())

	_, ok, err := bs.GetLastCommitted(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	hash := crypto.HashBytes([]byte("block"))
	require.NoError(t, bs.SetLastCommitted(ctx, hash))

	got, ok, err := bs.GetLastCommitted(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, got)
}

func TestBlockStoreHighQC(t *testing.T) {
	ctx := context.Background()
	bs := NewBlockStore(NewMemory())

	_, ok, err := bs.GetHighQC(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	qc := wire.QC{Hash: crypto.HashBytes([]byte("block")), Round: 3}
	require.NoError(t, bs.SetHighQC(ctx, qc))

	got, ok, err := bs.GetHighQC(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, qc.Round, got.Round)
	require.Equal(t, qc.Hash, got.Hash)
}
