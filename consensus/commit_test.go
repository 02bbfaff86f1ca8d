package consensus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/bftcore/wire"
)

// chainedBlock builds a block extending parent with a QC pointing at it,
// signs it, and persists it, returning the block so the next link in the
// chain can reference it.
func chainedBlock(t *testing.T, ctx context.Context, core *Core, parent wire.Block, round uint64) wire.Block {
	t.Helper()
	block := wire.Block{
		Author: core.self,
		Round:  round,
		Height: parent.Height + 1,
		QC:     wire.QC{Hash: parent.Digest(), Round: parent.Round},
	}
	require.NoError(t, block.Sign(ctx, core.signer))
	require.NoError(t, core.blocks.PutBlock(ctx, block))
	return block
}

func TestTryCommitAppliesThreeChainRule(t *testing.T) {
	privs, _, comm := clusterIdentities(t, 4)
	ctx := context.Background()
	core := buildCore(t, privs[0], comm, DefaultConfig())

	genesis := wire.Block{Author: core.self, Round: 0, QC: wire.GenesisQC()}
	require.NoError(t, genesis.Sign(ctx, core.signer))
	require.NoError(t, core.blocks.PutBlock(ctx, genesis))

	b1 := chainedBlock(t, ctx, core, genesis, 1)

	// Only genesis and b1 exist: there is no grandparent yet to commit.
	core.tryCommit(ctx, b1)
	select {
	case <-core.commits:
		t.Fatal("a chain one block deep must not commit anything")
	default:
	}

	b2 := chainedBlock(t, ctx, core, b1, 2)
	core.tryCommit(ctx, b2)
	committed := <-core.commits
	require.Equal(t, genesis.Digest(), committed.Digest(), "genesis..b1..b2 is the first complete three-chain")

	b3 := chainedBlock(t, ctx, core, b2, 3)
	core.tryCommit(ctx, b3)
	committed = <-core.commits
	require.Equal(t, b1.Digest(), committed.Digest(), "the three-chain rule commits the grandparent of the newest block")

	last, ok, err := core.blocks.GetLastCommitted(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b1.Digest(), last)
}

func TestTryCommitSkipsWhenChainIsBroken(t *testing.T) {
	privs, _, comm := clusterIdentities(t, 4)
	ctx := context.Background()
	core := buildCore(t, privs[0], comm, DefaultConfig())

	genesis := wire.Block{Author: core.self, Round: 0, QC: wire.GenesisQC()}
	require.NoError(t, genesis.Sign(ctx, core.signer))
	require.NoError(t, core.blocks.PutBlock(ctx, genesis))

	b1 := chainedBlock(t, ctx, core, genesis, 1)
	// b2 skips a round (3 instead of 2): the chain is no longer consecutive,
	// so even with a third block on top, nothing should commit.
	b2 := chainedBlock(t, ctx, core, b1, 3)
	b3 := chainedBlock(t, ctx, core, b2, 4)

	core.tryCommit(ctx, b3)
	select {
	case <-core.commits:
		t.Fatal("a non-consecutive round chain must not satisfy the three-chain rule")
	default:
	}
}

func TestCommitIsIdempotentPastLastCommitted(t *testing.T) {
	privs, _, comm := clusterIdentities(t, 4)
	ctx := context.Background()
	core := buildCore(t, privs[0], comm, DefaultConfig())

	genesis := wire.Block{Author: core.self, Round: 0, QC: wire.GenesisQC()}
	require.NoError(t, genesis.Sign(ctx, core.signer))
	require.NoError(t, core.blocks.PutBlock(ctx, genesis))

	b1 := chainedBlock(t, ctx, core, genesis, 1)
	b2 := chainedBlock(t, ctx, core, b1, 2)
	b3 := chainedBlock(t, ctx, core, b2, 3)

	core.tryCommit(ctx, b2)
	<-core.commits // genesis committed
	core.tryCommit(ctx, b3)
	<-core.commits // b1 committed

	// Re-running commit for a block that is already the last committed one
	// must not re-emit it.
	core.commit(ctx, b1)
	select {
	case <-core.commits:
		t.Fatal("committing an already-committed block must be a no-op")
	default:
	}
}
