package mempool

import (
	"context"

	"github.com/tolelom/bftcore/crypto"
)

const maxPayloadBatches = 500

type getRequest struct {
	reply chan []crypto.Digest
}

type verifyRequest struct {
	payload []crypto.Digest
	reply   chan PayloadStatus
}

// Simple is the actor-based NodeMempool grounded on the reference
// SimpleMempool: transaction batches arrive only through AddBatch (no
// network handler calls it), and the consensus core's Get/Verify calls round-trip
// through a single internal goroutine, so the pending set is never shared
// across goroutines directly.
type Simple struct {
	gets      chan getRequest
	verifies  chan verifyRequest
	additions chan crypto.Digest
	removals  chan []crypto.Digest
	done      chan struct{}
}

// NewSimple starts the mempool actor and returns a handle to it.
func NewSimple() *Simple {
	s := &Simple{
		gets:      make(chan getRequest, 100),
		verifies:  make(chan verifyRequest, 100),
		additions: make(chan crypto.Digest, 1000),
		removals:  make(chan []crypto.Digest, 100),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Simple) run() {
	known := make(map[crypto.Digest]struct{})
	pending := make([]crypto.Digest, 0, maxPayloadBatches)

	for {
		select {
		case d := <-s.additions:
			if _, ok := known[d]; !ok {
				known[d] = struct{}{}
				pending = append(pending, d)
			}
		case ids := <-s.removals:
			for _, d := range ids {
				delete(known, d)
			}
			filtered := pending[:0]
			for _, d := range pending {
				if _, ok := known[d]; ok {
					filtered = append(filtered, d)
				}
			}
			pending = filtered
		case req := <-s.gets:
			n := len(pending)
			if n > maxPayloadBatches {
				n = maxPayloadBatches
			}
			batch := make([]crypto.Digest, n)
			copy(batch, pending[:n])
			req.reply <- batch
		case req := <-s.verifies:
			status := Accept
			for _, d := range req.payload {
				if _, ok := known[d]; !ok {
					status = Wait
					break
				}
			}
			req.reply <- status
		case <-s.done:
			return
		}
	}
}

// AddBatch registers a transaction batch's digest as locally known, making
// it eligible to be proposed or to satisfy a pending Verify.
func (s *Simple) AddBatch(digest crypto.Digest) {
	select {
	case s.additions <- digest:
	case <-s.done:
	}
}

// Get implements NodeMempool.
func (s *Simple) Get(ctx context.Context) ([]crypto.Digest, error) {
	reply := make(chan []crypto.Digest, 1)
	select {
	case s.gets <- getRequest{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case batch := <-reply:
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Verify implements NodeMempool.
func (s *Simple) Verify(ctx context.Context, payload []crypto.Digest) (PayloadStatus, error) {
	if len(payload) == 0 {
		return Accept, nil
	}
	reply := make(chan PayloadStatus, 1)
	select {
	case s.verifies <- verifyRequest{payload: payload, reply: reply}:
	case <-ctx.Done():
		return Reject, ctx.Err()
	}
	select {
	case status := <-reply:
		return status, nil
	case <-ctx.Done():
		return Reject, ctx.Err()
	}
}

// GarbageCollect implements NodeMempool.
func (s *Simple) GarbageCollect(payload []crypto.Digest) {
	select {
	case s.removals <- payload:
	case <-s.done:
	}
}

// Close stops the actor goroutine.
func (s *Simple) Close() {
	close(s.done)
}
