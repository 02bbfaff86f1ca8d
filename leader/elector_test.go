package leader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/bftcore/committee"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/wire"
)

type memBlocks struct {
	blocks map[crypto.Digest]wire.Block
}

func newMemBlocks() *memBlocks { return &memBlocks{blocks: map[crypto.Digest]wire.Block{}} }

func (m *memBlocks) GetBlock(_ context.Context, hash crypto.Digest) (wire.Block, bool, error) {
	b, ok := m.blocks[hash]
	return b, ok, nil
}

func (m *memBlocks) put(b wire.Block) { m.blocks[b.Digest()] = b }

func genCommittee(t *testing.T, n int) (*committee.Committee, []crypto.PublicKey) {
	t.Helper()
	authorities := make([]committee.Authority, n)
	pubs := make([]crypto.PublicKey, n)
	for i := 0; i < n; i++ {
		_, pub, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		authorities[i] = committee.Authority{PublicKey: pub, Address: "x"}
		pubs[i] = pub
	}
	return committee.New(authorities), pubs
}

func TestRoundRobinDeterministic(t *testing.T) {
	c, _ := genCommittee(t, 4)
	store := newMemBlocks()
	e := New(c, store)

	a := e.roundRobin(2)
	b := e.roundRobin(3)
	require.Equal(t, a.Hex(), b.Hex(), "round and round+1 (its timeout round) share a leader")

	c2 := e.roundRobin(4)
	require.NotEqual(t, a.Hex(), c2.Hex())
}

func TestNextLeaderUsesQCHint(t *testing.T) {
	c, pubs := genCommittee(t, 4)
	store := newMemBlocks()
	e := New(c, store)

	qc := wire.QC{Round: 5, NextLeader: pubs[2]}
	require.Equal(t, pubs[2].Hex(), e.NextLeader(qc, 6).Hex())

	// A non-consecutive round falls back to round robin regardless of hint.
	require.NotPanics(t, func() { e.NextLeader(qc, 9) })
}

func TestCheckBlockLeaderRejectsWrongAuthor(t *testing.T) {
	c, pubs := genCommittee(t, 4)
	store := newMemBlocks()
	e := New(c, store)

	parent := wire.Block{Author: pubs[0], Round: 1}
	expected := e.roundRobin(2)

	var wrongAuthor crypto.PublicKey
	for _, p := range pubs {
		if p.Hex() != expected.Hex() {
			wrongAuthor = p
			break
		}
	}
	block := wire.Block{Author: wrongAuthor, Round: 2}
	require.Error(t, e.CheckBlockLeader(block, parent))

	okBlock := wire.Block{Author: expected, Round: 2}
	require.NoError(t, e.CheckBlockLeader(okBlock, parent))
}

func TestElectFutureLeaderNoHintWithoutConsecutiveQC(t *testing.T) {
	c, _ := genCommittee(t, 4)
	store := newMemBlocks()
	e := New(c, store)

	qc := wire.QC{Round: 5}
	leader, ok, err := e.ElectFutureLeader(context.Background(), qc, 10)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, leader)
}

func TestElectFutureLeaderExcludesRecentAuthors(t *testing.T) {
	c, pubs := genCommittee(t, 4)
	store := newMemBlocks()
	e := New(c, store)
	// validity threshold for n=4 is f+1 = 2, so lastAuthorsSize == 2.

	genesisQC := wire.GenesisQC()
	block1 := wire.Block{Author: pubs[0], Round: 1, QC: genesisQC}
	store.put(block1)

	qcForBlock1 := wire.QC{
		Hash:       block1.Digest(),
		Round:      1,
		Signatures: map[string]crypto.Signature{pubs[0].Hex(): {}, pubs[1].Hex(): {}, pubs[2].Hex(): {}},
	}
	block2 := wire.Block{Author: pubs[1], Round: 2, QC: qcForBlock1}
	store.put(block2)

	qcForBlock2 := wire.QC{
		Hash:       block2.Digest(),
		Round:      2,
		Signatures: map[string]crypto.Signature{pubs[0].Hex(): {}, pubs[1].Hex(): {}, pubs[2].Hex(): {}},
	}

	leader, ok, err := e.ElectFutureLeader(context.Background(), qcForBlock2, 3)
	require.NoError(t, err)
	require.True(t, ok)
	// pubs[0] and pubs[1] authored the last two blocks and are excluded;
	// the only remaining active signer is pubs[2].
	require.Equal(t, pubs[2].Hex(), leader.Hex())
}
