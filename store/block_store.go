package store

import (
	"context"

	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/wire"
)

// BlockStore wraps a Store to read and write wire.Block values keyed by
// their digest, and to track the committed head separately from the
// block bodies themselves. It satisfies leader.BlockReader.
type BlockStore struct {
	store Store
}

// NewBlockStore wraps store as a BlockStore.
func NewBlockStore(store Store) *BlockStore {
	return &BlockStore{store: store}
}

func blockKey(hash crypto.Digest) []byte {
	return append([]byte("block:"), hash[:]...)
}

// PutBlock persists block under its own digest.
func (s *BlockStore) PutBlock(ctx context.Context, block wire.Block) error {
	return s.store.Write(ctx, blockKey(block.Digest()), block.Encode())
}

// GetBlock fetches the block identified by hash. ok is false when the
// block is not present, with a nil error (absence is not itself an
// error — the synchronizer decides what to do about it).
func (s *BlockStore) GetBlock(ctx context.Context, hash crypto.Digest) (wire.Block, bool, error) {
	data, ok, err := s.store.Read(ctx, blockKey(hash))
	if err != nil || !ok {
		return wire.Block{}, false, err
	}
	block, err := wire.DecodeBlock(data)
	if err != nil {
		return wire.Block{}, false, err
	}
	return block, true, nil
}

var lastCommittedKey = []byte("chain:last-committed")

// SetLastCommitted records hash as the most recently committed block.
func (s *BlockStore) SetLastCommitted(ctx context.Context, hash crypto.Digest) error {
	return s.store.Write(ctx, lastCommittedKey, hash[:])
}

// GetLastCommitted returns the most recently committed block's digest, and
// false if the replica has not committed anything yet (a fresh chain).
func (s *BlockStore) GetLastCommitted(ctx context.Context) (crypto.Digest, bool, error) {
	data, ok, err := s.store.Read(ctx, lastCommittedKey)
	if err != nil || !ok {
		return crypto.Digest{}, false, err
	}
	digest, err := crypto.DigestFromBytes(data)
	if err != nil {
		return crypto.Digest{}, false, err
	}
	return digest, true, nil
}

var highQCKey = []byte("chain:high-qc")

// SetHighQC persists qc as the replica's highest adopted certificate, so a
// restarted replica can recover round/last_voted_round/preferred_round by
// walking back from it through the stored ancestor chain.
func (s *BlockStore) SetHighQC(ctx context.Context, qc wire.QC) error {
	return s.store.Write(ctx, highQCKey, qc.Encode())
}

// GetHighQC returns the persisted high QC, and false on a fresh store.
func (s *BlockStore) GetHighQC(ctx context.Context) (wire.QC, bool, error) {
	data, ok, err := s.store.Read(ctx, highQCKey)
	if err != nil || !ok {
		return wire.QC{}, false, err
	}
	qc, err := wire.DecodeQC(data)
	if err != nil {
		return wire.QC{}, false, err
	}
	return qc, true, nil
}

// Close releases the underlying store.
func (s *BlockStore) Close() error {
	return s.store.Close()
}
