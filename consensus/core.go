// Package consensus implements the §4.3 state machine: the single-threaded
// replica core that proposes, votes, aggregates, commits via the 3-chain
// rule, and falls back to a timeout-certificate view change on liveness
// failure. It replaces the teacher's round-robin Proof-of-Authority engine
// with the reputation-weighted BFT protocol described by the committee,
// leader, aggregator, mempool, store, and synchronizer packages.
package consensus

import (
	"context"
	"time"

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

// Config carries the tunables §6 names for the consensus core itself
// (transport and mempool-specific options live in their own packages).
type Config struct {
	// TimeoutDelay is how long a round runs before the pacemaker declares
	// it stalled and broadcasts a Timeout.
	TimeoutDelay time.Duration
	// InboundQueueCapacity bounds the core's inbound message channel
	// (§5: "typical capacity 1000 for data paths").
	InboundQueueCapacity int
	// CommitQueueCapacity bounds the commit channel consumers read from.
	CommitQueueCapacity int
}

// DefaultConfig returns the §6 defaults.
func DefaultConfig() Config {
	return Config{
		TimeoutDelay:         2 * time.Second,
		InboundQueueCapacity: 1000,
		CommitQueueCapacity:  1000,
	}
}

type inboundMsg struct {
	peer *network.Peer
	msg  wire.CoreMessage
}

// Core is the single-owner consensus state machine for one replica. All
// fields above the channels are mutated only from the goroutine running
// Run; every other task (network, synchronizer, mempool) reaches the core
// exclusively by sending on inbound or by being polled through the
// narrow interfaces the core holds (blocks, mempool, signer).
type Core struct {
	self      crypto.PublicKey
	committee *committee.Committee
	elector   *leader.Elector
	votes     *aggregator.VoteAggregator
	timeouts  *aggregator.TimeoutAggregator
	mempool   mempool.NodeMempool
	blocks    *store.BlockStore
	signer    *crypto.SignatureService
	node      *network.Node
	sync      *synchronizer.Synchronizer
	log       *zap.Logger
	cfg       Config

	round          uint64
	lastVotedRound uint64
	preferredRound uint64
	highQC         wire.QC
	view           uint64
	fallbackFlag   bool
	proposedRound  uint64

	pendingTCs map[uint64]*wire.TC
	pending    map[crypto.Digest][]wire.Block

	inbound chan inboundMsg
	commits chan wire.Block
	timer   *time.Timer
	fatalCh chan error
	stopCh  chan struct{}
}

// New builds a Core and registers its message handlers on node. Call
// Recover before Run to restore persisted state across a restart.
func New(
	self crypto.PublicKey,
	c *committee.Committee,
	elector *leader.Elector,
	votes *aggregator.VoteAggregator,
	timeouts *aggregator.TimeoutAggregator,
	mp mempool.NodeMempool,
	blocks *store.BlockStore,
	signer *crypto.SignatureService,
	node *network.Node,
	sync *synchronizer.Synchronizer,
	log *zap.Logger,
	cfg Config,
) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	core := &Core{
		self:           self,
		committee:      c,
		elector:        elector,
		votes:          votes,
		timeouts:       timeouts,
		mempool:        mp,
		blocks:         blocks,
		signer:         signer,
		node:           node,
		sync:           sync,
		log:            log.Named("consensus"),
		cfg:            cfg,
		round:          1,
		lastVotedRound: 0,
		preferredRound: 0,
		highQC:         wire.GenesisQC(),
		pendingTCs:     make(map[uint64]*wire.TC),
		pending:        make(map[crypto.Digest][]wire.Block),
		inbound:        make(chan inboundMsg, cfg.InboundQueueCapacity),
		commits:        make(chan wire.Block, cfg.CommitQueueCapacity),
		fatalCh:        make(chan error, 1),
		stopCh:         make(chan struct{}),
	}

	node.Handle(wire.KindBlock, core.onNetworkMessage)
	node.Handle(wire.KindVote, core.onNetworkMessage)
	node.Handle(wire.KindTimeout, core.onNetworkMessage)
	node.Handle(wire.KindTC, core.onNetworkMessage)

	return core
}

// Commits returns the channel commit blocks are emitted on, in strictly
// increasing round order (§5).
func (c *Core) Commits() <-chan wire.Block {
	return c.commits
}

func (c *Core) onNetworkMessage(peer *network.Peer, msg wire.CoreMessage) {
	select {
	case c.inbound <- inboundMsg{peer: peer, msg: msg}:
	case <-c.stopCh:
	}
}

// fatal records err as the reason Run will return and unblocks the event
// loop, mirroring §7's policy that channel closure or store unavailability
// is fatal and the replica shuts down cleanly rather than limping on.
func (c *Core) fatal(err error) {
	select {
	case c.fatalCh <- err:
	default:
	}
}

func (c *Core) resetTimer() {
	if c.timer == nil {
		c.timer = time.NewTimer(c.cfg.TimeoutDelay)
		return
	}
	if !c.timer.Stop() {
		select {
		case <-c.timer.C:
		default:
		}
	}
	c.timer.Reset(c.cfg.TimeoutDelay)
}

// Run drives the event loop until ctx is cancelled or a fatal error
// occurs. It returns nil on clean cancellation.
func (c *Core) Run(ctx context.Context) error {
	c.resetTimer()
	c.maybePropose(ctx)

	for {
		select {
		case <-ctx.Done():
			close(c.stopCh)
			return nil
		case err := <-c.fatalCh:
			close(c.stopCh)
			return err
		case m := <-c.inbound:
			c.dispatch(ctx, m)
		case <-c.timer.C:
			c.onLocalTimeout(ctx)
		}
	}
}

func (c *Core) dispatch(ctx context.Context, m inboundMsg) {
	sender := ""
	if m.peer != nil {
		sender = m.peer.ID
	}
	switch m.msg.Kind {
	case wire.KindBlock:
		block, err := wire.DecodeBlock(m.msg.Payload)
		if err != nil {
			c.log.Warn("malformed block, dropping", zap.Error(err))
			return
		}
		c.handleBlock(ctx, sender, block)
	case wire.KindVote:
		vote, err := wire.DecodeVote(m.msg.Payload)
		if err != nil {
			c.log.Warn("malformed vote, dropping", zap.Error(err))
			return
		}
		c.handleVote(ctx, vote)
	case wire.KindTimeout:
		timeout, err := wire.DecodeTimeout(m.msg.Payload)
		if err != nil {
			c.log.Warn("malformed timeout, dropping", zap.Error(err))
			return
		}
		c.handleTimeout(ctx, timeout)
	case wire.KindTC:
		tc, err := wire.DecodeTC(m.msg.Payload)
		if err != nil {
			c.log.Warn("malformed TC, dropping", zap.Error(err))
			return
		}
		c.handleTC(ctx, tc)
	default:
		c.log.Debug("ignoring message kind in core", zap.Stringer("kind", m.msg.Kind))
	}
}

// maybePropose proposes for c.round if self is its elected leader and no
// proposal has gone out for this round yet.
func (c *Core) maybePropose(ctx context.Context) {
	if c.proposedRound >= c.round {
		return
	}
	expected := c.elector.NextLeader(c.highQC, c.round)
	if expected == nil || expected.Hex() != c.self.Hex() {
		return
	}
	c.propose(ctx)
}
