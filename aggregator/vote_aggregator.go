// Package aggregator implements the vote and timeout aggregators of §4.4:
// per-round tallies that turn 2f+1 matching Votes into a QC, or 2f+1
// Timeouts into a TC, and refuse to double-count an authority.
package aggregator

import (
	"github.com/tolelom/bftcore/committee"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/errs"
	"github.com/tolelom/bftcore/wire"
)

type roundVotes struct {
	hash       crypto.Digest
	view       uint64
	height     uint64
	fallback   bool
	proposer   crypto.PublicKey
	signatures map[string]crypto.Signature
	done       bool // a QC was already formed and returned for this round
}

// VoteAggregator tallies Votes by round, producing a QC the first time a
// round clears the committee's quorum threshold. One instance is meant to
// live for the lifetime of a consensus core; rounds are never revisited
// once the round has advanced, so old entries are dropped via Cleanup.
type VoteAggregator struct {
	committee *committee.Committee
	rounds    map[uint64]*roundVotes
}

// NewVoteAggregator builds an empty aggregator over committee.
func NewVoteAggregator(c *committee.Committee) *VoteAggregator {
	return &VoteAggregator{committee: c, rounds: make(map[uint64]*roundVotes)}
}

// Add records vote from proposer's round, returning the freshly-formed QC
// once the round clears quorum. It returns (nil, nil) both before quorum is
// reached and on every call after the QC was already returned once.
//
// proposer is the author of the certified block (not the replica doing the
// aggregating); nextLeader is the caller's choice of whom to nominate next.
// Both are supplied by the caller rather than derived from the vote itself.
func (a *VoteAggregator) Add(vote wire.Vote, proposer crypto.PublicKey, nextLeader crypto.PublicKey) (*wire.QC, error) {
	if !a.committee.Exists(vote.Author) {
		return nil, errs.UnknownAuthority(vote.Author)
	}

	rv, ok := a.rounds[vote.Round]
	if !ok {
		rv = &roundVotes{
			hash:       vote.Hash,
			view:       vote.View,
			height:     vote.Height,
			fallback:   vote.Fallback,
			proposer:   proposer,
			signatures: make(map[string]crypto.Signature),
		}
		a.rounds[vote.Round] = rv
	}
	if rv.done {
		return nil, nil
	}
	if rv.hash != vote.Hash || rv.view != vote.View {
		return nil, errs.VoteFromAuthority(errs.ErrUnexpectedOrLateVote, vote.Author)
	}
	if _, dup := rv.signatures[vote.Author.Hex()]; dup {
		return nil, errs.VoteFromAuthority(errs.ErrAuthorityReuse, vote.Author)
	}
	rv.signatures[vote.Author.Hex()] = vote.Signature

	if len(rv.signatures) < a.committee.QuorumThreshold() {
		return nil, nil
	}
	rv.done = true

	qc := &wire.QC{
		Hash:       rv.hash,
		Round:      vote.Round,
		View:       rv.view,
		Height:     rv.height,
		Fallback:   rv.fallback,
		Proposer:   rv.proposer,
		Signatures: rv.signatures,
		NextLeader: nextLeader,
	}
	return qc, nil
}

// Cleanup discards every round strictly below round, freeing memory for
// rounds the consensus core has moved past.
func (a *VoteAggregator) Cleanup(round uint64) {
	for r := range a.rounds {
		if r < round {
			delete(a.rounds, r)
		}
	}
}
