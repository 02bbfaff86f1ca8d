package consensus

import (
	"context"

	"go.uber.org/zap"

	"github.com/tolelom/bftcore/wire"
)

// onLocalTimeout fires when c.round's timer expires without a commit. It
// broadcasts (and locally counts) a Timeout carrying the replica's highest
// known QC, per the pacemaker described in §4.3.
func (c *Core) onLocalTimeout(ctx context.Context) {
	timeout := wire.Timeout{HighQC: c.highQC, Round: c.round, Voter: c.self}
	sig, err := c.signer.SignDigest(ctx, timeout.Digest())
	if err != nil {
		c.fatal(err)
		return
	}
	timeout.Signature = sig

	c.log.Info("round timed out, broadcasting timeout", zap.Uint64("round", c.round))
	c.node.Broadcast(wire.WrapTimeout(&timeout))
	c.handleTimeout(ctx, timeout)
	c.resetTimer()
}

// handleTimeout validates and aggregates a Timeout, forming and acting on
// a TC once quorum is reached.
func (c *Core) handleTimeout(ctx context.Context, timeout wire.Timeout) {
	if err := timeout.VerifySignature(); err != nil {
		c.log.Debug("timeout signature invalid, dropping", zap.Error(err))
		return
	}
	if !c.committee.Exists(timeout.Voter) {
		c.log.Debug("timeout from non-committee voter, dropping", zap.String("voter", timeout.Voter.Hex()))
		return
	}
	if !timeout.HighQC.IsGenesis() {
		if err := timeout.HighQC.Verify(c.committee.QuorumThreshold(), c.committee.ByHex); err != nil {
			c.log.Debug("timeout's high QC invalid, dropping", zap.Error(err))
			return
		}
	}
	c.adoptQC(ctx, timeout.HighQC)

	tc, err := c.timeouts.Add(timeout)
	if err != nil {
		c.log.Debug("timeout rejected", zap.Error(err))
		return
	}
	if tc == nil {
		return
	}
	c.log.Info("timeout quorum reached, TC formed", zap.Uint64("round", tc.Round))
	c.onTC(ctx, tc)
}

// handleTC processes a TC received directly over the wire (as opposed to
// one this replica aggregated itself), after verifying its signatures.
func (c *Core) handleTC(ctx context.Context, tc wire.TC) {
	if err := tc.Verify(c.committee.QuorumThreshold(), c.committee.ByHex); err != nil {
		c.log.Debug("TC invalid, dropping", zap.Error(err))
		return
	}
	c.onTC(ctx, &tc)
}

// onTC applies a freshly-formed-or-received TC: it enters the fallback
// view, advances the round past the TC's, and gives the fallback leader a
// chance to propose with the TC attached. A second TC for a round already
// on file replaces the stored one and has its high QC adopted, but does not
// advance the view again.
func (c *Core) onTC(ctx context.Context, tc *wire.TC) {
	_, seen := c.pendingTCs[tc.Round]
	c.pendingTCs[tc.Round] = tc
	c.adoptQC(ctx, tc.HighestQC())
	if seen {
		return
	}

	if tc.Round+1 > c.round {
		c.round = tc.Round + 1
	}
	c.view++
	c.fallbackFlag = true
	c.resetTimer()
	c.maybePropose(ctx)
}
