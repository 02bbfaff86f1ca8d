package consensus

import (
	"context"

	"go.uber.org/zap"

	"github.com/tolelom/bftcore/wire"
)

// adoptQC updates the replica's high QC and derived safety state whenever
// a newer certificate is observed, whether formed locally, carried on an
// incoming block, or embedded in a Timeout/TC. It is always safe to call
// with a QC no newer than c.highQC; the call is then a no-op.
func (c *Core) adoptQC(ctx context.Context, qc wire.QC) {
	if qc.IsGenesis() && !c.highQC.IsGenesis() {
		return
	}
	if !qc.IsGenesis() && qc.Round <= c.highQC.Round && !c.highQC.IsGenesis() {
		return
	}
	c.highQC = qc
	if err := c.blocks.SetHighQC(ctx, qc); err != nil {
		c.fatal(err)
		return
	}

	if !qc.IsGenesis() {
		if parent, ok, err := c.blocks.GetBlock(ctx, qc.Hash); err != nil {
			c.fatal(err)
			return
		} else if ok && parent.QC.Round > c.preferredRound {
			c.preferredRound = parent.QC.Round
		}
	}

	if qc.Round >= c.round {
		c.round = qc.Round + 1
		c.fallbackFlag = false
		c.resetTimer()
	}
	c.maybePropose(ctx)
}

// tryCommit applies the 3-chain rule: head, its parent, and its
// grandparent must occupy three strictly consecutive rounds for the
// grandparent to commit. §4.3.
func (c *Core) tryCommit(ctx context.Context, head wire.Block) {
	if head.QC.IsGenesis() {
		return
	}
	parent, ok, err := c.blocks.GetBlock(ctx, head.QC.Hash)
	if err != nil {
		c.fatal(err)
		return
	}
	if !ok || parent.QC.IsGenesis() {
		return
	}
	grandparent, ok, err := c.blocks.GetBlock(ctx, parent.QC.Hash)
	if err != nil {
		c.fatal(err)
		return
	}
	if !ok {
		return
	}

	if head.Round == parent.Round+1 && parent.Round == grandparent.Round+1 {
		c.commit(ctx, grandparent)
	}
}

// commit walks back from head to the last committed block (exclusive),
// then replays forward, oldest first, emitting each block on c.commits and
// garbage-collecting everything below it.
func (c *Core) commit(ctx context.Context, head wire.Block) {
	lastCommitted, hasLast, err := c.blocks.GetLastCommitted(ctx)
	if err != nil {
		c.fatal(err)
		return
	}
	if hasLast && head.Digest() == lastCommitted {
		return
	}

	var chain []wire.Block
	cur := head
	for {
		if hasLast && cur.Digest() == lastCommitted {
			break
		}
		chain = append(chain, cur)
		if cur.QC.IsGenesis() {
			break
		}
		parent, ok, err := c.blocks.GetBlock(ctx, cur.QC.Hash)
		if err != nil {
			c.fatal(err)
			return
		}
		if !ok {
			c.log.Warn("commit walk hit a missing ancestor, stopping short",
				zap.String("digest", cur.QC.Hash.Hex()))
			break
		}
		cur = parent
	}

	for i := len(chain) - 1; i >= 0; i-- {
		b := chain[i]
		if err := c.blocks.SetLastCommitted(ctx, b.Digest()); err != nil {
			c.fatal(err)
			return
		}
		c.log.Info("committed block", zap.Uint64("round", b.Round), zap.String("digest", b.Digest().Hex()))

		select {
		case c.commits <- b:
		case <-c.stopCh:
			return
		}

		c.mempool.GarbageCollect(b.Payload)
		c.votes.Cleanup(b.Round)
		c.timeouts.Cleanup(b.Round)
	}
}
