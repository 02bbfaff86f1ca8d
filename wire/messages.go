package wire

import (
	"fmt"

	"github.com/tolelom/bftcore/crypto"
)

// Kind tags the payload carried by a CoreMessage envelope.
type Kind byte

const (
	KindBlock Kind = iota + 1
	KindVote
	KindTimeout
	KindTC
	KindSyncRequest
	KindSyncReply
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "Block"
	case KindVote:
		return "Vote"
	case KindTimeout:
		return "Timeout"
	case KindTC:
		return "TC"
	case KindSyncRequest:
		return "SyncRequest"
	case KindSyncReply:
		return "SyncReply"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// CoreMessage is the single envelope type exchanged between replicas, so the
// network layer need frame and route only one kind of packet. Callers switch
// on Kind and decode Payload with the matching Decode* function.
type CoreMessage struct {
	Kind    Kind
	Payload []byte
}

// WrapBlock frames a Block as a CoreMessage.
func WrapBlock(b *Block) CoreMessage {
	return CoreMessage{Kind: KindBlock, Payload: b.Encode()}
}

// WrapVote frames a Vote as a CoreMessage.
func WrapVote(v *Vote) CoreMessage {
	return CoreMessage{Kind: KindVote, Payload: v.Encode()}
}

// WrapTimeout frames a Timeout as a CoreMessage.
func WrapTimeout(t *Timeout) CoreMessage {
	return CoreMessage{Kind: KindTimeout, Payload: t.Encode()}
}

// WrapTC frames a TC as a CoreMessage.
func WrapTC(tc *TC) CoreMessage {
	return CoreMessage{Kind: KindTC, Payload: tc.Encode()}
}

// SyncRequest asks a peer for the block identified by Hash (§4.5).
type SyncRequest struct {
	Hash     crypto.Digest
	Requestor crypto.PublicKey
}

// WrapSyncRequest frames a SyncRequest as a CoreMessage.
func WrapSyncRequest(req *SyncRequest) CoreMessage {
	w := NewWriter()
	w.WriteDigest(req.Hash)
	w.WritePublicKey(req.Requestor)
	return CoreMessage{Kind: KindSyncRequest, Payload: w.Bytes()}
}

func DecodeSyncRequest(data []byte) (SyncRequest, error) {
	r := NewReader(data)
	var req SyncRequest
	req.Hash = r.ReadDigest()
	req.Requestor = r.ReadPublicKey()
	if r.Err() != nil {
		return SyncRequest{}, r.Err()
	}
	return req, nil
}

// WrapSyncReply frames a requested block as a CoreMessage reply.
func WrapSyncReply(b *Block) CoreMessage {
	return CoreMessage{Kind: KindSyncReply, Payload: b.Encode()}
}

// Encode serializes the envelope: a one-byte kind tag followed by the
// length-prefixed payload.
func (m *CoreMessage) Encode() []byte {
	w := NewWriter()
	w.buf.WriteByte(byte(m.Kind))
	w.WriteBytes(m.Payload)
	return w.Bytes()
}

// DecodeCoreMessage parses the canonical encoding produced by
// CoreMessage.Encode.
func DecodeCoreMessage(data []byte) (CoreMessage, error) {
	if len(data) < 1 {
		return CoreMessage{}, fmt.Errorf("wire: empty message")
	}
	kind := Kind(data[0])
	r := NewReader(data[1:])
	payload := r.ReadBytes()
	if r.Err() != nil {
		return CoreMessage{}, r.Err()
	}
	return CoreMessage{Kind: kind, Payload: payload}, nil
}
