package consensus

import (
	"context"

	"go.uber.org/zap"

	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/mempool"
	"github.com/tolelom/bftcore/wire"
)

// handleBlock validates a proposal (self-authored or received) and, if it
// passes every check, persists it, applies the voting rule, and attempts
// the 3-chain commit rule. senderHex identifies who delivered the block,
// used as the synchronizer's first fetch target when an ancestor is
// missing.
func (c *Core) handleBlock(ctx context.Context, senderHex string, block wire.Block) {
	if err := block.VerifySignature(); err != nil {
		c.log.Debug("block signature invalid, dropping", zap.Error(err))
		return
	}
	if !c.committee.Exists(block.Author) {
		c.log.Debug("block from non-committee author, dropping", zap.String("author", block.Author.Hex()))
		return
	}

	if block.QC.IsGenesis() {
		expected := c.elector.NextLeader(block.QC, block.Round)
		if block.Author.Hex() != expected.Hex() {
			c.log.Debug("wrong leader for genesis-parented block, dropping")
			return
		}
	} else {
		if err := block.QC.Verify(c.committee.QuorumThreshold(), c.committee.ByHex); err != nil {
			c.log.Debug("block QC invalid, dropping", zap.Error(err))
			return
		}
		parent, ok, err := c.blocks.GetBlock(ctx, block.QC.Hash)
		if err != nil {
			c.fatal(err)
			return
		}
		if !ok {
			c.suspend(block)
			if err := c.sync.FetchAncestor(ctx, block.QC.Hash, senderHex); err != nil {
				c.log.Debug("ancestor fetch request failed", zap.Error(err))
			}
			return
		}
		if block.Round == parent.Round+1 {
			if err := c.elector.CheckBlockLeader(block, parent); err != nil {
				c.log.Debug("wrong leader, dropping", zap.Error(err))
				return
			}
		} else {
			// Non-consecutive round: only reachable via a fallback/TC view
			// change. The TC travels as its own KindTC message (see
			// propose.go); require it to already be on file and to justify
			// exactly this block's parent QC.
			tc, ok := c.pendingTCs[block.Round-1]
			if !ok || tc.HighestQC().Hash != block.QC.Hash {
				c.log.Debug("fallback block without a matching TC, dropping",
					zap.Uint64("round", block.Round))
				return
			}
			expected := c.elector.NextLeader(block.QC, block.Round)
			if block.Author.Hex() != expected.Hex() {
				c.log.Debug("wrong fallback leader, dropping")
				return
			}
		}
	}

	status, err := c.mempool.Verify(ctx, block.Payload)
	if err != nil {
		c.log.Debug("mempool verify failed, dropping block", zap.Error(err))
		return
	}
	switch status {
	case mempool.Reject:
		c.log.Debug("block payload rejected by mempool, dropping permanently")
		return
	case mempool.Wait:
		c.log.Debug("block payload not yet available, suspending", zap.String("digest", block.Digest().Hex()))
		c.suspend(block)
		return
	}

	if err := c.blocks.PutBlock(ctx, block); err != nil {
		c.fatal(err)
		return
	}
	c.resumeDependents(block.Digest())

	c.adoptQC(ctx, block.QC)

	if c.shouldVote(block) {
		c.castVote(ctx, block)
	}

	c.tryCommit(ctx, block)
}

// suspend parks block until the ancestor it depends on (its parent QC's
// block) becomes available, per §4.5.
func (c *Core) suspend(block wire.Block) {
	key := block.QC.Hash
	c.pending[key] = append(c.pending[key], block)
}

// resumeDependents re-injects every block that was waiting on digest, now
// that it has arrived, so they run back through handleBlock's full
// validation instead of being trusted blindly.
func (c *Core) resumeDependents(digest crypto.Digest) {
	waiting, ok := c.pending[digest]
	if !ok {
		return
	}
	delete(c.pending, digest)
	for _, b := range waiting {
		c.onNetworkMessage(nil, wire.WrapBlock(&b))
	}
}

// DeliverBlock implements synchronizer.CoreFeed: a block fetched from a
// peer re-enters the core through the same inbound path a network message
// would, so it receives identical validation.
func (c *Core) DeliverBlock(ctx context.Context, block wire.Block) error {
	c.onNetworkMessage(nil, wire.WrapBlock(&block))
	return nil
}
