package mempool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/bftcore/crypto"
)

const (
	waitTimeout = time.Second
	waitTick    = time.Millisecond
)

// waitForVisible polls Get until digest shows up in the pending batch set,
// since AddBatch only enqueues a message to the actor goroutine.
func waitForVisible(t *testing.T, m *Simple, digest crypto.Digest) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := m.Get(context.Background())
		require.NoError(t, err)
		for _, d := range got {
			if d == digest {
				return true
			}
		}
		return false
	}, waitTimeout, waitTick, "batch never became visible")
}

func TestSimpleGetReturnsKnownBatches(t *testing.T) {
	m := NewSimple()
	defer m.Close()

	ctx := context.Background()
	empty, err := m.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	d1 := crypto.HashBytes([]byte("batch1"))
	m.AddBatch(d1)
	waitForVisible(t, m, d1)
}

func TestSimpleVerify(t *testing.T) {
	m := NewSimple()
	defer m.Close()
	ctx := context.Background()

	d1 := crypto.HashBytes([]byte("batch1"))
	status, err := m.Verify(ctx, []crypto.Digest{d1})
	require.NoError(t, err)
	require.Equal(t, Wait, status)

	m.AddBatch(d1)
	waitForVisible(t, m, d1)

	status, err = m.Verify(ctx, []crypto.Digest{d1})
	require.NoError(t, err)
	require.Equal(t, Accept, status)
}

func TestSimpleVerifyEmptyPayloadAccepts(t *testing.T) {
	m := NewSimple()
	defer m.Close()
	status, err := m.Verify(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, Accept, status)
}

func TestSimpleGarbageCollectRemovesBatch(t *testing.T) {
	m := NewSimple()
	defer m.Close()
	ctx := context.Background()

	d1 := crypto.HashBytes([]byte("batch1"))
	m.AddBatch(d1)
	waitForVisible(t, m, d1)

	m.GarbageCollect([]crypto.Digest{d1})
	require.Eventually(t, func() bool {
		got, err := m.Get(ctx)
		require.NoError(t, err)
		return len(got) == 0
	}, waitTimeout, waitTick)
}

func TestMockAlwaysAccepts(t *testing.T) {
	payload := []crypto.Digest{crypto.HashBytes([]byte("x"))}
	m := NewMock(payload)
	ctx := context.Background()

	got, err := m.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	status, err := m.Verify(ctx, []crypto.Digest{crypto.HashBytes([]byte("anything"))})
	require.NoError(t, err)
	require.Equal(t, Accept, status)
}
