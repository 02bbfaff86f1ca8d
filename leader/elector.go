// Package leader implements the reputation-based leader elector of §4.2: a
// deterministic, committee-wide function from round number to the
// authority expected to propose that round's block, falling back to round
// robin when no QC-embedded hint or activity history is available.
package leader

import (
	"context"
	"fmt"
	"sort"

	"github.com/tolelom/bftcore/committee"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/errs"
	"github.com/tolelom/bftcore/wire"
)

// BlockReader is the narrow slice of the store the elector needs: looking
// up the block a QC certifies so it can walk the parent chain in
// ElectFutureLeader.
type BlockReader interface {
	GetBlock(ctx context.Context, hash crypto.Digest) (wire.Block, bool, error)
}

// Elector assigns rounds to leaders. The zero value is not usable; build
// one with New.
type Elector struct {
	committee       *committee.Committee
	store           BlockReader
	windowSize      int
	lastAuthorsSize int
}

// New builds an Elector over committee, consulting store to replay recent
// activity. lastAuthorsSize follows the committee's validity threshold
// (f+1), matching the original reputation scheme's window.
func New(c *committee.Committee, store BlockReader) *Elector {
	return &Elector{
		committee:       c,
		store:           store,
		windowSize:      1,
		lastAuthorsSize: c.ValidityThreshold(),
	}
}

// roundRobin deterministically maps a round to a committee member, walking
// the sorted authority list two rounds at a time (each round number is
// shared by a proposal round and its immediately following timeout round).
func (e *Elector) roundRobin(round uint64) crypto.PublicKey {
	keys := e.committee.Authorities()
	return keys[(round/2)%uint64(len(keys))]
}

// NextLeader returns the authority expected to propose round, given the
// highest QC known to the caller. When qc directly precedes round and
// names a NextLeader (set by the aggregator that built it, from
// ElectFutureLeader), that hint is used; otherwise round robin decides.
func (e *Elector) NextLeader(qc wire.QC, round uint64) crypto.PublicKey {
	if qc.Round+1 == round && qc.NextLeader != nil {
		return qc.NextLeader
	}
	return e.roundRobin(round)
}

// ElectFutureLeader looks back through the parent-QC chain from qc to pick
// a leader for round (which must be qc.Round+1) by reputation: committee
// members active in the last windowSize QCs, excluding the authors of the
// last lastAuthorsSize blocks, are candidates; the round of the QC at which
// the walk stops selects among them. It returns (nil, false, nil) when qc does not immediately precede
// round or no candidate remains after exclusion, in which case the caller
// should fall back to round robin.
func (e *Elector) ElectFutureLeader(ctx context.Context, qc wire.QC, round uint64) (crypto.PublicKey, bool, error) {
	if qc.Round+1 != round {
		return nil, false, nil
	}

	active := make(map[string]struct{})
	lastAuthors := make(map[string]struct{})
	current := qc

	for i := 0; i < e.windowSize || len(lastAuthors) < e.lastAuthorsSize; i++ {
		if current.IsGenesis() {
			break
		}
		block, ok, err := e.store.GetBlock(ctx, current.Hash)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, errs.ErrStoreNotFound
		}
		if i < e.windowSize {
			for hex := range current.Signatures {
				active[hex] = struct{}{}
			}
		}
		if len(lastAuthors) < e.lastAuthorsSize {
			lastAuthors[block.Author.Hex()] = struct{}{}
		}
		current = block.QC
	}

	candidates := make([]string, 0, len(active))
	for hex := range active {
		if _, excluded := lastAuthors[hex]; !excluded {
			candidates = append(candidates, hex)
		}
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	sort.Strings(candidates)
	chosenHex := candidates[current.Round%uint64(len(candidates))]
	pk, ok := e.committee.ByHex(chosenHex)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", errs.ErrUnknownAuthority, chosenHex)
	}
	return pk, true, nil
}

// CheckBlockLeader verifies that block was proposed by the authority this
// elector would pick for block.Round given parent, the block it extends.
func (e *Elector) CheckBlockLeader(block wire.Block, parent wire.Block) error {
	var expected crypto.PublicKey
	if parent.Round+1 == block.Round {
		expected = e.NextLeader(parent.QC, block.Round)
	} else {
		expected = e.roundRobin(block.Round)
	}
	if block.Author.Hex() != expected.Hex() {
		return errs.WrongLeader(block.Digest(), block.Author, block.Round)
	}
	return nil
}

// CheckVoteLeader verifies that self, who received vote, is indeed the
// leader expected to aggregate votes for the round following vote.Round:
// next_leader(parentQC, vote.Round+1), where parentQC is the QC the voted
// block itself extends (the caller looks this up from its local copy of
// that block). The hint embedded in a QC only ever predicts the author of
// the very next round (see CheckBlockLeader), so this lookup falls back to
// round robin in practice — it is still expressed through NextLeader so
// both call sites share one source of truth.
func (e *Elector) CheckVoteLeader(vote wire.Vote, parentQC wire.QC, self crypto.PublicKey) error {
	expected := e.NextLeader(parentQC, vote.Round+1)
	if self.Hex() != expected.Hex() {
		return errs.UnexpectedMessage(wire.KindVote)
	}
	return nil
}
