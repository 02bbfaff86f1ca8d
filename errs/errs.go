// Package errs collects the sentinel errors shared across the consensus,
// network, and mempool layers, so callers can classify a failure with
// errors.Is instead of string matching.
package errs

import (
	"errors"
	"fmt"

	"github.com/tolelom/bftcore/crypto"
)

var (
	// ErrInvalidSignature is returned by any verification path when a
	// signature does not validate.
	ErrInvalidSignature = errors.New("errs: invalid signature")
	// ErrQCRequiresQuorum is returned when an aggregated certificate does
	// not carry enough signatures to clear the committee's quorum
	// threshold.
	ErrQCRequiresQuorum = errors.New("errs: QC does not carry a quorum")
	// ErrUnexpectedOrLateVote is returned when a vote's block hash or view
	// differs from the one the aggregator is already tallying for that
	// round.
	ErrUnexpectedOrLateVote = errors.New("errs: unexpected or late vote")
	// ErrAuthorityReuse is returned when the same authority casts a second
	// vote for a round that already has one on file.
	ErrAuthorityReuse = errors.New("errs: authority voted twice")
	// ErrUnknownAuthority is returned when a message is signed by a key
	// outside the active committee.
	ErrUnknownAuthority = errors.New("errs: unknown authority")
	// ErrUnexpectedMessage is returned when a core message arrives that
	// the receiving state does not know how to handle (e.g. this replica
	// is not the expected leader).
	ErrUnexpectedMessage = errors.New("errs: unexpected message")
	// ErrWrongLeader is returned when a proposed block's author does not
	// match the elected leader for its round.
	ErrWrongLeader = errors.New("errs: wrong leader")
	// ErrStoreNotFound is returned when a digest is looked up and not
	// present in the store.
	ErrStoreNotFound = errors.New("errs: not found in store")
)

// VoteFromAuthority wraps ErrUnexpectedOrLateVote or ErrAuthorityReuse with
// the offending authority's key, so log lines and error messages carry the
// identity without every caller re-deriving the format string.
func VoteFromAuthority(base error, author crypto.PublicKey) error {
	return fmt.Errorf("%w: from %s", base, author.Hex())
}

// UnknownAuthority wraps ErrUnknownAuthority with the offending key.
func UnknownAuthority(author crypto.PublicKey) error {
	return fmt.Errorf("%w: %s", ErrUnknownAuthority, author.Hex())
}

// UnexpectedMessage wraps ErrUnexpectedMessage with a description of what
// arrived, e.g. a wire.Kind.String().
func UnexpectedMessage(kind fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedMessage, kind)
}

// WrongLeader wraps ErrWrongLeader with the block digest, the proposing
// author, and the round, mirroring the original ConsensusError::WrongLeader
// variant's fields.
func WrongLeader(digest crypto.Digest, author crypto.PublicKey, round uint64) error {
	return fmt.Errorf("%w: block %s proposed by %s at round %d", ErrWrongLeader, digest.Hex(), author.Hex(), round)
}
