package network

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/bftcore/wire"
)

// MessageHandler is called for each received message of a given Kind.
type MessageHandler func(peer *Peer, msg wire.CoreMessage)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming replicas and manages outgoing connections. It
// is the transport the consensus core and synchronizer multiplex their
// messages through; it carries no mempool batch messages.
type Node struct {
	nodeID     string
	listenAddr string
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int
	log        *zap.Logger

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[wire.Kind]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr. If tlsCfg is
// non-nil the listener and outgoing connections use TLS.
func NewNode(nodeID, listenAddr string, tlsCfg *tls.Config, log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		log:        log.Named("network"),
		peers:      make(map[string]*Peer),
		handlers:   make(map[wire.Kind]MessageHandler),
		stopCh:     make(chan struct{}),
	}
}

// ListenAddr returns the address the node is actually bound to, useful
// when listenAddr was "host:0" and the OS picked the port.
func (n *Node) ListenAddr() string {
	if n.listener == nil {
		return n.listenAddr
	}
	return n.listener.Addr().String()
}

// Handle registers a handler for messages of the given Kind.
func (n *Node) Handle(kind wire.Kind, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[kind] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("network: listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node and every connected peer.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the resulting connection under id.
func (n *Node) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Broadcast sends msg to every connected peer.
func (n *Node) Broadcast(msg wire.CoreMessage) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			n.log.Warn("broadcast failed", zap.String("peer", p.ID), zap.Error(err))
		}
	}
}

// SendTo sends msg to a single named peer, used for vote delivery (each
// vote goes only to the next leader) and sync replies.
func (n *Node) SendTo(peerID string, msg wire.CoreMessage) error {
	peer := n.Peer(peerID)
	if peer == nil {
		return fmt.Errorf("network: unknown peer %s", peerID)
	}
	return peer.Send(msg)
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.Warn("accept error", zap.Error(err))
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			n.log.Warn("max peers reached, rejecting connection",
				zap.Int("max_peers", n.maxPeers), zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("readLoop panic", zap.String("peer", peer.ID), zap.Any("recover", r))
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Kind]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		} else {
			n.log.Debug("no handler for message kind", zap.Stringer("kind", msg.Kind))
		}
	}
}
