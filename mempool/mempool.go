// Package mempool implements the §4.6 mempool integration: the consensus
// core never inspects transaction bytes directly, it only asks a
// NodeMempool for a payload (a set of batch digests) to propose and asks it
// to verify a payload a peer proposed.
package mempool

import (
	"context"

	"github.com/tolelom/bftcore/crypto"
)

// PayloadStatus is the verdict a NodeMempool returns when asked whether it
// holds every batch named in a proposed payload.
type PayloadStatus int

const (
	// Accept means every digest in the payload is already known locally;
	// the block may be voted on immediately.
	Accept PayloadStatus = iota
	// Wait means at least one digest is missing locally; the core should
	// hold the block back until the mempool reports it has caught up.
	Wait
	// Reject means the payload is structurally invalid (e.g. malformed
	// digest) and the block must never be voted on.
	Reject
)

func (s PayloadStatus) String() string {
	switch s {
	case Accept:
		return "Accept"
	case Wait:
		return "Wait"
	case Reject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// NodeMempool is the interface the consensus core depends on (§4.6). It
// never sees transaction bytes, only batch digests.
type NodeMempool interface {
	// Get returns a batch of digests to carry as the next block's payload.
	Get(ctx context.Context) ([]crypto.Digest, error)
	// Verify reports whether every digest in payload is locally known.
	Verify(ctx context.Context, payload []crypto.Digest) (PayloadStatus, error)
	// GarbageCollect releases any bookkeeping the mempool kept for a
	// committed block's payload.
	GarbageCollect(payload []crypto.Digest)
}
