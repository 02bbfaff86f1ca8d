// Package synchronizer implements §4.5: when the consensus core receives a
// block or QC referencing an ancestor it does not have, the synchronizer
// fetches the missing chain from a peer before the core is allowed to
// proceed, so the single-threaded core never blocks directly on the
// network.
package synchronizer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/bftcore/committee"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/network"
	"github.com/tolelom/bftcore/store"
	"github.com/tolelom/bftcore/wire"
)

// CoreFeed is how the synchronizer hands a recovered block back to the
// consensus core, mirroring the core's own network-message channel so a
// synced block re-enters the same `CoreMessage` handling path as one that
// arrived directly over the network (the core cannot tell the difference
// and does not need to).
type CoreFeed interface {
	DeliverBlock(ctx context.Context, block wire.Block) error
}

const retryDelay = 5 * time.Second

// pendingRequest tracks one outstanding fetch so a second request for the
// same digest (e.g. two different blocks both missing the same ancestor)
// does not double up on network traffic.
type pendingRequest struct {
	requestedAt time.Time
}

// Synchronizer serves and issues block-by-digest requests.
type Synchronizer struct {
	self      crypto.PublicKey
	committee *committee.Committee
	blocks    *store.BlockStore
	node      *network.Node
	core      CoreFeed
	log       *zap.Logger

	mu      sync.Mutex
	pending map[crypto.Digest]pendingRequest
}

// SetCoreFeed attaches (or replaces) the CoreFeed a recovered block is
// delivered to. It exists because the consensus core and its synchronizer
// are co-dependent at construction time: build the Synchronizer with a nil
// feed, construct the Core that needs it, then call SetCoreFeed(core).
func (s *Synchronizer) SetCoreFeed(core CoreFeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.core = core
}

// New builds a Synchronizer and registers its network handlers on node.
// core may be nil if the caller will attach it later via SetCoreFeed.
func New(self crypto.PublicKey, c *committee.Committee, blocks *store.BlockStore, node *network.Node, core CoreFeed, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Synchronizer{
		self:      self,
		committee: c,
		blocks:    blocks,
		node:      node,
		core:      core,
		log:       log.Named("synchronizer"),
		pending:   make(map[crypto.Digest]pendingRequest),
	}
	node.Handle(wire.KindSyncRequest, s.handleSyncRequest)
	node.Handle(wire.KindSyncReply, s.handleSyncReply)
	return s
}

// FetchAncestor ensures hash is present locally, requesting it from
// sender if not. It returns immediately if the block is already known.
func (s *Synchronizer) FetchAncestor(ctx context.Context, hash crypto.Digest, sender string) error {
	if hash.IsZero() {
		return nil
	}
	_, ok, err := s.blocks.GetBlock(ctx, hash)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	s.mu.Lock()
	if req, inFlight := s.pending[hash]; inFlight && time.Since(req.requestedAt) < retryDelay {
		s.mu.Unlock()
		return nil
	}
	s.pending[hash] = pendingRequest{requestedAt: time.Now()}
	s.mu.Unlock()

	if !s.committee.Exists(mustPubKey(sender)) {
		// sender isn't a resolvable authority; broadcast the request instead.
		s.node.Broadcast(wire.WrapSyncRequest(&wire.SyncRequest{Hash: hash, Requestor: s.self}))
		return nil
	}
	// Peers are registered under their authority's hex public key (see
	// cmd/replica's wiring), so sender doubles as the Node peer ID.
	s.log.Debug("requesting missing ancestor", zap.String("digest", hash.Hex()), zap.String("from", sender))
	if err := s.node.SendTo(sender, wire.WrapSyncRequest(&wire.SyncRequest{Hash: hash, Requestor: s.self})); err != nil {
		s.log.Debug("direct sync request failed, broadcasting instead", zap.Error(err))
		s.node.Broadcast(wire.WrapSyncRequest(&wire.SyncRequest{Hash: hash, Requestor: s.self}))
	}
	return nil
}

func (s *Synchronizer) handleSyncRequest(peer *network.Peer, msg wire.CoreMessage) {
	req, err := wire.DecodeSyncRequest(msg.Payload)
	if err != nil {
		s.log.Warn("malformed sync request", zap.Error(err))
		return
	}
	block, ok, err := s.blocks.GetBlock(context.Background(), req.Hash)
	if err != nil {
		s.log.Warn("store read failed serving sync request", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := peer.Send(wire.WrapSyncReply(&block)); err != nil {
		s.log.Warn("failed to send sync reply", zap.Error(err))
	}
}

func (s *Synchronizer) handleSyncReply(_ *network.Peer, msg wire.CoreMessage) {
	block, err := wire.DecodeBlock(msg.Payload)
	if err != nil {
		s.log.Warn("malformed sync reply", zap.Error(err))
		return
	}
	if err := block.VerifySignature(); err != nil {
		s.log.Warn("sync reply signature invalid", zap.Error(err))
		return
	}

	s.mu.Lock()
	delete(s.pending, block.Digest())
	s.mu.Unlock()

	s.mu.Lock()
	feed := s.core
	s.mu.Unlock()
	if feed == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := feed.DeliverBlock(ctx, block); err != nil {
		s.log.Warn("core rejected synced block", zap.Error(err))
	}
}

// mustPubKey decodes sender's hex public key, returning nil on malformed
// input so the Exists check in FetchAncestor simply reports the sender as
// unknown.
func mustPubKey(hex string) crypto.PublicKey {
	pk, err := crypto.PubKeyFromHex(hex)
	if err != nil {
		return nil
	}
	return pk
}
