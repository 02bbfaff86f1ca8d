package consensus

import (
	"context"

	"go.uber.org/zap"

	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/wire"
)

// handleVote validates an incoming vote, aggregates it, and — once it
// clears quorum — adopts the freshly-formed QC and advances toward the
// next round.
func (c *Core) handleVote(ctx context.Context, vote wire.Vote) {
	if err := vote.VerifySignature(); err != nil {
		c.log.Debug("vote signature invalid, dropping", zap.Error(err))
		return
	}
	if !c.committee.Exists(vote.Author) {
		c.log.Debug("vote from non-committee author, dropping", zap.String("author", vote.Author.Hex()))
		return
	}

	block, ok, err := c.blocks.GetBlock(ctx, vote.Hash)
	if err != nil {
		c.fatal(err)
		return
	}
	if !ok {
		c.log.Debug("vote for unknown block, dropping", zap.String("digest", vote.Hash.Hex()))
		return
	}
	if err := c.elector.CheckVoteLeader(vote, block.QC, c.self); err != nil {
		c.log.Debug("vote misdirected, dropping", zap.Error(err))
		return
	}

	var nextLeaderHint crypto.PublicKey
	provisional := wire.QC{Hash: vote.Hash, Round: vote.Round, View: vote.View, Height: vote.Height, Fallback: vote.Fallback, Proposer: block.Author}
	if hint, ok, err := c.elector.ElectFutureLeader(ctx, provisional, vote.Round+1); err != nil {
		c.log.Debug("future leader election failed, proceeding without a hint", zap.Error(err))
	} else if ok {
		nextLeaderHint = hint
	}

	qc, err := c.votes.Add(vote, block.Author, nextLeaderHint)
	if err != nil {
		c.log.Debug("vote rejected", zap.Error(err))
		return
	}
	if qc == nil {
		return
	}

	c.log.Info("quorum reached, QC formed", zap.Uint64("round", qc.Round))
	c.adoptQC(ctx, *qc)
}
