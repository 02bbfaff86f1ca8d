package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/wire"
)

func TestPeerSendReceiveRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewPeer("server", "pipe", clientConn)
	server := NewPeer("client", "pipe", serverConn)

	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	vote := wire.Vote{Hash: crypto.HashBytes([]byte("x")), Round: 1, Author: pub}
	msg := wire.WrapVote(&vote)

	done := make(chan error, 1)
	go func() { done <- client.Send(msg) }()

	got, err := server.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, wire.KindVote, got.Kind)

	decoded, err := wire.DecodeVote(got.Payload)
	require.NoError(t, err)
	require.Equal(t, vote.Digest(), decoded.Digest())
}

func TestNodeBroadcastDeliversToHandler(t *testing.T) {
	serverNode := NewNode("server", "127.0.0.1:0", nil, nil)
	require.NoError(t, serverNode.Start())
	defer serverNode.Stop()

	received := make(chan wire.CoreMessage, 1)
	serverNode.Handle(wire.KindVote, func(_ *Peer, msg wire.CoreMessage) {
		received <- msg
	})

	clientNode := NewNode("client", "127.0.0.1:0", nil, nil)
	require.NoError(t, clientNode.Start())
	defer clientNode.Stop()

	require.NoError(t, clientNode.AddPeer("server", serverNode.listener.Addr().String()))

	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	vote := wire.Vote{Hash: crypto.HashBytes([]byte("x")), Round: 1, Author: pub}
	clientNode.Broadcast(wire.WrapVote(&vote))

	select {
	case msg := <-received:
		require.Equal(t, wire.KindVote, msg.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
}
