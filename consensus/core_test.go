package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tolelom/bftcore/aggregator"
	"github.com/tolelom/bftcore/committee"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/leader"
	"github.com/tolelom/bftcore/mempool"
	"github.com/tolelom/bftcore/network"
	"github.com/tolelom/bftcore/store"
	"github.com/tolelom/bftcore/synchronizer"
	"github.com/tolelom/bftcore/wire"
)

// replica bundles one committee member's full stack for use in tests that
// run several replicas together over real TCP connections.
type replica struct {
	pub  crypto.PublicKey
	node *network.Node
	core *Core
}

// newCluster wires n replicas into one committee, each listening on its own
// loopback port, fully interconnected, and returns them alongside a cancel
// func that stops every Core.Run goroutine.
func newCluster(t *testing.T, n int) ([]*replica, *committee.Committee, context.CancelFunc) {
	t.Helper()

	type identity struct {
		priv crypto.PrivateKey
		pub  crypto.PublicKey
	}
	ids := make([]identity, n)
	authorities := make([]committee.Authority, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		ids[i] = identity{priv: priv, pub: pub}
		authorities[i] = committee.Authority{PublicKey: pub, Address: "x"}
	}
	comm := committee.New(authorities)

	replicas := make([]*replica, n)
	for i, id := range ids {
		node := network.NewNode(id.pub.Hex(), "127.0.0.1:0", nil, nil)
		require.NoError(t, node.Start())
		replicas[i] = &replica{pub: id.pub, node: node}
	}
	for i, r := range replicas {
		for j, other := range replicas {
			if i == j {
				continue
			}
			require.NoError(t, r.node.AddPeer(other.pub.Hex(), other.node.ListenAddr()))
		}
	}

	for i, id := range ids {
		blocks := store.NewBlockStore(store.NewMemory())
		elector := leader.New(comm, blocks)
		votes := aggregator.NewVoteAggregator(comm)
		timeouts := aggregator.NewTimeoutAggregator(comm)
		mp := mempool.NewSimple()
		signer := crypto.NewSignatureService(id.priv)
		sync := synchronizer.New(id.pub, comm, blocks, replicas[i].node, nil, zap.NewNop())

		cfg := DefaultConfig()
		cfg.TimeoutDelay = 2 * time.Second
		core := New(id.pub, comm, elector, votes, timeouts, mp, blocks, signer, replicas[i].node, sync, zap.NewNop(), cfg)
		sync.SetCoreFeed(core)
		replicas[i].core = core
	}

	ctx, cancel := context.WithCancel(context.Background())
	for _, r := range replicas {
		require.NoError(t, r.core.Recover(ctx))
		go func(c *Core) { _ = c.Run(ctx) }(r.core)
	}

	stop := func() {
		cancel()
		for _, r := range replicas {
			r.node.Stop()
		}
	}
	return replicas, comm, stop
}

func drainCommit(t *testing.T, replicas []*replica, round uint64, within time.Duration) wire.Block {
	t.Helper()
	deadline := time.After(within)
	for {
		for _, r := range replicas {
			select {
			case b := <-r.core.Commits():
				if b.Round == round {
					return b
				}
			default:
			}
		}
		select {
		case <-deadline:
			t.Fatalf("round %d never committed within %s", round, within)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestClusterCommitsThroughThreeChain(t *testing.T) {
	replicas, _, stop := newCluster(t, 4)
	defer stop()

	b := drainCommit(t, replicas, 1, 5*time.Second)
	require.Equal(t, uint64(1), b.Round)
}

func TestClusterAdvancesRoundsInOrder(t *testing.T) {
	replicas, _, stop := newCluster(t, 4)
	defer stop()

	drainCommit(t, replicas, 1, 5*time.Second)
	drainCommit(t, replicas, 2, 5*time.Second)
}
