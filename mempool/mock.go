package mempool

import (
	"context"
	"sync"

	"github.com/tolelom/bftcore/crypto"
)

// Mock is a NodeMempool that always accepts any payload and returns a fixed
// (possibly empty) payload from Get, for consensus-layer tests that don't
// want to exercise real batch propagation.
type Mock struct {
	mu      sync.Mutex
	payload []crypto.Digest
}

// NewMock returns a Mock that proposes payload (nil is fine) from Get.
func NewMock(payload []crypto.Digest) *Mock {
	return &Mock{payload: payload}
}

// SetPayload changes the batch Get will return on subsequent calls.
func (m *Mock) SetPayload(payload []crypto.Digest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = payload
}

func (m *Mock) Get(_ context.Context) ([]crypto.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]crypto.Digest, len(m.payload))
	copy(out, m.payload)
	return out, nil
}

func (m *Mock) Verify(_ context.Context, _ []crypto.Digest) (PayloadStatus, error) {
	return Accept, nil
}

func (m *Mock) GarbageCollect(_ []crypto.Digest) {}
