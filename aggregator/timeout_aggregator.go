package aggregator

import (
	"github.com/tolelom/bftcore/committee"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/errs"
	"github.com/tolelom/bftcore/wire"
)

type roundTimeouts struct {
	highQCs    map[string]wire.QC
	signatures map[string]crypto.Signature
	done       bool
}

// TimeoutAggregator tallies Timeout messages by round, producing a TC the
// first time a round clears quorum. Unlike votes, timeouts for a round
// carry no shared payload hash to agree on — only the round itself — so
// there is no hash/view mismatch rejection here.
type TimeoutAggregator struct {
	committee *committee.Committee
	rounds    map[uint64]*roundTimeouts
}

// NewTimeoutAggregator builds an empty aggregator over committee.
func NewTimeoutAggregator(c *committee.Committee) *TimeoutAggregator {
	return &TimeoutAggregator{committee: c, rounds: make(map[uint64]*roundTimeouts)}
}

// Add records timeout, returning the freshly-formed TC once its round
// clears quorum, and (nil, nil) before quorum or on repeat calls after.
func (a *TimeoutAggregator) Add(timeout wire.Timeout) (*wire.TC, error) {
	if !a.committee.Exists(timeout.Voter) {
		return nil, errs.UnknownAuthority(timeout.Voter)
	}

	rt, ok := a.rounds[timeout.Round]
	if !ok {
		rt = &roundTimeouts{
			highQCs:    make(map[string]wire.QC),
			signatures: make(map[string]crypto.Signature),
		}
		a.rounds[timeout.Round] = rt
	}
	if rt.done {
		return nil, nil
	}
	if _, dup := rt.signatures[timeout.Voter.Hex()]; dup {
		return nil, errs.VoteFromAuthority(errs.ErrAuthorityReuse, timeout.Voter)
	}
	rt.highQCs[timeout.Voter.Hex()] = timeout.HighQC
	rt.signatures[timeout.Voter.Hex()] = timeout.Signature

	if len(rt.signatures) < a.committee.QuorumThreshold() {
		return nil, nil
	}
	rt.done = true

	return &wire.TC{
		Round:      timeout.Round,
		HighQCs:    rt.highQCs,
		Signatures: rt.signatures,
	}, nil
}

// Cleanup discards every round strictly below round.
func (a *TimeoutAggregator) Cleanup(round uint64) {
	for r := range a.rounds {
		if r < round {
			delete(a.rounds, r)
		}
	}
}
