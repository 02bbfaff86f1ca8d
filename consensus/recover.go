package consensus

import (
	"context"

	"github.com/tolelom/bftcore/wire"
)

// Recover restores round/lastVotedRound/preferredRound from the persisted
// high QC after a restart, per §4.3's crash-recovery requirement. Call
// once before Run; a no-op on a fresh store.
func (c *Core) Recover(ctx context.Context) error {
	qc, ok, err := c.blocks.GetHighQC(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	c.highQC = qc
	c.round = qc.Round + 1

	var chain []wire.Block
	cur := qc
	for !cur.IsGenesis() {
		block, ok, err := c.blocks.GetBlock(ctx, cur.Hash)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		chain = append(chain, block)
		cur = block.QC
	}

	for i := len(chain) - 1; i >= 0; i-- {
		b := chain[i]
		if b.Round > c.lastVotedRound {
			c.lastVotedRound = b.Round
		}
		if !b.QC.IsGenesis() && b.QC.Round > c.preferredRound {
			c.preferredRound = b.QC.Round
		}
	}

	return nil
}
