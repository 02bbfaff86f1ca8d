package consensus

import (
	"context"

	"go.uber.org/zap"

	"github.com/tolelom/bftcore/wire"
)

// propose builds, signs, persists, and broadcasts a new block for c.round,
// extending c.highQC. If the round is a fallback round (entered via a TC),
// the TC justifying it is broadcast alongside the block so followers can
// verify the non-consecutive parent link without a separate fetch.
func (c *Core) propose(ctx context.Context) {
	payload, err := c.mempool.Get(ctx)
	if err != nil {
		c.log.Warn("mempool get failed, proposing empty payload", zap.Error(err))
	}

	block := wire.Block{
		Author:   c.self,
		Round:    c.round,
		View:     c.view,
		Height:   c.highQC.Height + 1,
		Fallback: c.fallbackFlag,
		QC:       c.highQC,
		Payload:  payload,
	}
	if err := block.Sign(ctx, c.signer); err != nil {
		c.fatal(err)
		return
	}
	c.proposedRound = c.round

	if err := c.blocks.PutBlock(ctx, block); err != nil {
		c.fatal(err)
		return
	}

	if block.Fallback {
		if tc, ok := c.pendingTCs[block.Round-1]; ok {
			c.node.Broadcast(wire.WrapTC(tc))
		}
	}
	c.node.Broadcast(wire.WrapBlock(&block))
	c.log.Info("proposed block", zap.Uint64("round", block.Round), zap.String("digest", block.Digest().Hex()))

	// The proposer processes its own block like any other replica, so its
	// vote counts toward the quorum the same way a follower's would.
	c.handleBlock(ctx, c.self.Hex(), block)
}

// shouldVote implements the safety voting rule of §4.3: vote for block iff
// it extends a round past our last vote and its parent QC is not locked
// out by our preferred round.
func (c *Core) shouldVote(block wire.Block) bool {
	if block.Round <= c.lastVotedRound {
		return false
	}
	return block.QC.Round >= c.preferredRound
}

// castVote signs and routes a vote for block to the authority expected to
// aggregate round block.Round+1 — not to block's own author.
func (c *Core) castVote(ctx context.Context, block wire.Block) {
	vote := wire.Vote{
		Hash:     block.Digest(),
		Round:    block.Round,
		View:     block.View,
		Height:   block.Height,
		Fallback: block.Fallback,
		Author:   c.self,
	}
	sig, err := c.signer.SignDigest(ctx, vote.Digest())
	if err != nil {
		c.fatal(err)
		return
	}
	vote.Signature = sig
	c.lastVotedRound = block.Round

	recipient := c.elector.NextLeader(block.QC, block.Round+1)
	if recipient.Hex() == c.self.Hex() {
		c.handleVote(ctx, vote)
		return
	}

	msg := wire.WrapVote(&vote)
	if err := c.node.SendTo(recipient.Hex(), msg); err != nil {
		c.log.Debug("vote send failed, broadcasting instead", zap.Error(err))
		c.node.Broadcast(msg)
	}
}
