package wire

import (
	"context"
	"sort"

	"github.com/tolelom/bftcore/crypto"
)

// Block is a proposed unit of the log: a round/view-numbered vertex carrying
// a payload (transaction-batch digests) and the QC that justifies extending
// its parent.
type Block struct {
	Author    crypto.PublicKey
	Round     uint64
	View      uint64
	Height    uint64
	Fallback  bool
	QC        QC
	Payload   []crypto.Digest
	Signature crypto.Signature
}

// signingBytes returns the canonical encoding of the fields that are hashed
// to produce the block digest and that are signed by the author. It
// excludes Signature itself.
func (b *Block) signingBytes() []byte {
	w := NewWriter()
	w.WritePublicKey(b.Author)
	w.WriteUint64(b.Round)
	w.WriteUint64(b.View)
	w.WriteUint64(b.Height)
	w.WriteBool(b.Fallback)
	w.WriteDigest(b.QC.ContentHash())
	w.WriteDigests(b.Payload)
	return w.Bytes()
}

// Digest returns the content-addressed hash of the block.
func (b *Block) Digest() crypto.Digest {
	return crypto.HashBytes(b.signingBytes())
}

// Sign computes the block digest and signs it through svc, setting
// Signature.
func (b *Block) Sign(ctx context.Context, svc *crypto.SignatureService) error {
	sig, err := svc.SignDigest(ctx, b.Digest())
	if err != nil {
		return err
	}
	b.Signature = sig
	return nil
}

// VerifySignature checks that Signature is a valid signature by Author over
// the block digest.
func (b *Block) VerifySignature() error {
	return crypto.Verify(b.Author, b.Digest(), b.Signature)
}

// Encode serializes the block for network transmission: the signed prefix
// (whose QC component is just the parent QC's content hash), the author's
// signature over that prefix, and finally the full parent QC so a follower
// can verify it without a separate fetch.
func (b *Block) Encode() []byte {
	w := NewWriter()
	w.buf.Write(b.signingBytes())
	w.WriteSignature(b.Signature)
	w.WriteBytes(b.QC.Encode())
	return w.Bytes()
}

// DecodeBlock parses the canonical encoding produced by Block.Encode.
func DecodeBlock(data []byte) (Block, error) {
	r := NewReader(data)
	var b Block
	b.Author = r.ReadPublicKey()
	b.Round = r.ReadUint64()
	b.View = r.ReadUint64()
	b.Height = r.ReadUint64()
	b.Fallback = r.ReadBool()
	_ = r.ReadDigest() // parent QC content hash; recomputed below from the full QC
	b.Payload = r.ReadDigests()
	b.Signature = r.ReadSignature()
	qcBytes := r.ReadBytes()
	if r.Err() != nil {
		return Block{}, r.Err()
	}
	qc, err := DecodeQC(qcBytes)
	if err != nil {
		return Block{}, err
	}
	b.QC = qc
	return b, nil
}

// Vote is a single replica's endorsement of a block.
type Vote struct {
	Hash      crypto.Digest
	Round     uint64
	View      uint64
	Height    uint64
	Fallback  bool
	Author    crypto.PublicKey
	Signature crypto.Signature
}

func (v *Vote) signingBytes() []byte {
	w := NewWriter()
	w.WriteDigest(v.Hash)
	w.WriteUint64(v.Round)
	w.WriteUint64(v.View)
	w.WriteUint64(v.Height)
	w.WriteBool(v.Fallback)
	w.WritePublicKey(v.Author)
	return w.Bytes()
}

// Digest returns the hash of the vote's signed fields.
func (v *Vote) Digest() crypto.Digest {
	return crypto.HashBytes(v.signingBytes())
}

// VerifySignature checks Signature is a valid signature by Author.
func (v *Vote) VerifySignature() error {
	return crypto.Verify(v.Author, v.Digest(), v.Signature)
}

func (v *Vote) Encode() []byte {
	w := NewWriter()
	w.buf.Write(v.signingBytes())
	w.WriteSignature(v.Signature)
	return w.Bytes()
}

func DecodeVote(data []byte) (Vote, error) {
	r := NewReader(data)
	var v Vote
	v.Hash = r.ReadDigest()
	v.Round = r.ReadUint64()
	v.View = r.ReadUint64()
	v.Height = r.ReadUint64()
	v.Fallback = r.ReadBool()
	v.Author = r.ReadPublicKey()
	v.Signature = r.ReadSignature()
	if r.Err() != nil {
		return Vote{}, r.Err()
	}
	return v, nil
}

// QC is a quorum certificate: 2f+1 votes for the same (hash, round, view,
// height, fallback) tuple. The zero QC (QC{}) is the genesis sentinel
// referenced by the genesis block's parent pointer.
type QC struct {
	Hash       crypto.Digest
	Round      uint64
	View       uint64
	Height     uint64
	Fallback   bool
	Proposer   crypto.PublicKey // author of the certified block, not the replica that aggregated the quorum
	Signatures map[string]crypto.Signature // authority hex -> signature over Vote bytes
	NextLeader crypto.PublicKey
}

// IsGenesis reports whether this is the sentinel QC preceding the genesis
// block (round 0, zero hash, no signatures).
func (qc *QC) IsGenesis() bool {
	return qc.Round == 0 && qc.Hash.IsZero() && len(qc.Signatures) == 0
}

// GenesisQC returns the sentinel QC that justifies the genesis block.
func GenesisQC() QC {
	return QC{}
}

func (qc *QC) signingBytes() []byte {
	w := NewWriter()
	w.WriteDigest(qc.Hash)
	w.WriteUint64(qc.Round)
	w.WriteUint64(qc.View)
	w.WriteUint64(qc.Height)
	w.WriteBool(qc.Fallback)
	w.WritePublicKey(qc.Proposer)
	return w.Bytes()
}

// voteDigest reconstructs the exact digest author signed when casting their
// vote for this QC: the same (hash, round, view, height, fallback, author)
// tuple Vote.Digest hashes, built through Vote.signingBytes so the two can
// never drift apart.
func (qc *QC) voteDigest(author crypto.PublicKey) crypto.Digest {
	v := Vote{Hash: qc.Hash, Round: qc.Round, View: qc.View, Height: qc.Height, Fallback: qc.Fallback, Author: author}
	return v.Digest()
}

// Verify checks that every signature in qc.Signatures validates against the
// voted-for tuple under its claimed authority's public key (looked up via
// resolve), and that the set of signers clears quorumThreshold.
func (qc *QC) Verify(quorumThreshold int, resolve func(hex string) (crypto.PublicKey, bool)) error {
	if qc.IsGenesis() {
		return nil
	}
	if len(qc.Signatures) < quorumThreshold {
		return ErrQCNoQuorum
	}
	for hex, sig := range qc.Signatures {
		pk, ok := resolve(hex)
		if !ok {
			return ErrQCUnknownAuthority
		}
		if err := crypto.Verify(pk, qc.voteDigest(pk), sig); err != nil {
			return ErrQCInvalidSignature
		}
	}
	return nil
}

// ContentHash computes the digest of the QC itself, used as a parent pointer.
func (qc *QC) ContentHash() crypto.Digest {
	w := NewWriter()
	w.buf.Write(qc.signingBytes())
	hexKeys := make([]string, 0, len(qc.Signatures))
	for k := range qc.Signatures {
		hexKeys = append(hexKeys, k)
	}
	sort.Strings(hexKeys)
	w.WriteUint64(uint64(len(hexKeys)))
	for _, k := range hexKeys {
		w.WriteBytes([]byte(k))
		w.WriteSignature(qc.Signatures[k])
	}
	w.WritePublicKey(qc.NextLeader)
	return crypto.HashBytes(w.Bytes())
}

func (qc *QC) Encode() []byte {
	w := NewWriter()
	w.buf.Write(qc.signingBytes())
	hexKeys := make([]string, 0, len(qc.Signatures))
	for k := range qc.Signatures {
		hexKeys = append(hexKeys, k)
	}
	sort.Strings(hexKeys)
	w.WriteUint64(uint64(len(hexKeys)))
	for _, k := range hexKeys {
		w.WriteBytes([]byte(k))
		w.WriteSignature(qc.Signatures[k])
	}
	w.WritePublicKey(qc.NextLeader)
	return w.Bytes()
}

func DecodeQC(data []byte) (QC, error) {
	r := NewReader(data)
	var qc QC
	qc.Hash = r.ReadDigest()
	qc.Round = r.ReadUint64()
	qc.View = r.ReadUint64()
	qc.Height = r.ReadUint64()
	qc.Fallback = r.ReadBool()
	qc.Proposer = r.ReadPublicKey()
	n := r.ReadUint64()
	if n > 0 {
		qc.Signatures = make(map[string]crypto.Signature, n)
	}
	for i := uint64(0); i < n; i++ {
		k := string(r.ReadBytes())
		v := r.ReadSignature()
		if r.Err() != nil {
			break
		}
		qc.Signatures[k] = v
	}
	qc.NextLeader = r.ReadPublicKey()
	if r.Err() != nil {
		return QC{}, r.Err()
	}
	return qc, nil
}

// Timeout is a replica's signed declaration that round r has expired without
// a commit, carrying the replica's highest known QC so the next round's
// leader can recover liveness.
type Timeout struct {
	HighQC    QC
	Round     uint64
	Voter     crypto.PublicKey
	Signature crypto.Signature
}

func (t *Timeout) signingBytes() []byte {
	w := NewWriter()
	w.WriteDigest(t.HighQC.ContentHash())
	w.WriteUint64(t.HighQC.Round)
	w.WriteUint64(t.Round)
	w.WritePublicKey(t.Voter)
	return w.Bytes()
}

func (t *Timeout) Digest() crypto.Digest {
	return crypto.HashBytes(t.signingBytes())
}

func (t *Timeout) VerifySignature() error {
	return crypto.Verify(t.Voter, t.Digest(), t.Signature)
}

func (t *Timeout) Encode() []byte {
	w := NewWriter()
	w.WriteBytes(t.HighQC.Encode())
	w.WriteUint64(t.Round)
	w.WritePublicKey(t.Voter)
	w.WriteSignature(t.Signature)
	return w.Bytes()
}

// DecodeTimeout parses the canonical encoding produced by Timeout.Encode.
func DecodeTimeout(data []byte) (Timeout, error) {
	r := NewReader(data)
	var t Timeout
	qcBytes := r.ReadBytes()
	t.Round = r.ReadUint64()
	t.Voter = r.ReadPublicKey()
	t.Signature = r.ReadSignature()
	if r.Err() != nil {
		return Timeout{}, r.Err()
	}
	qc, err := DecodeQC(qcBytes)
	if err != nil {
		return Timeout{}, err
	}
	t.HighQC = qc
	return t, nil
}

// TC is a timeout certificate: 2f+1 Timeout messages for the same round,
// aggregated to drive the pacemaker into the next round.
type TC struct {
	Round      uint64
	HighQCs    map[string]QC // authority hex -> that authority's reported high QC
	Signatures map[string]crypto.Signature
}

// HighestQC returns the QC with the greatest round among HighQCs, used as
// the justification for the fallback block proposed after a timeout.
func (tc *TC) HighestQC() QC {
	var best QC
	first := true
	for _, qc := range tc.HighQCs {
		if first || qc.Round > best.Round {
			best = qc
			first = false
		}
	}
	return best
}

// Encode serializes the TC: round, then the sorted (authority hex -> high
// QC, signature) pairs. A TC has no single author signature of its own; its
// authenticity rests entirely on the individual Timeout signatures it
// aggregates.
func (tc *TC) Encode() []byte {
	w := NewWriter()
	w.WriteUint64(tc.Round)
	hexKeys := make([]string, 0, len(tc.Signatures))
	for k := range tc.Signatures {
		hexKeys = append(hexKeys, k)
	}
	sort.Strings(hexKeys)
	w.WriteUint64(uint64(len(hexKeys)))
	for _, k := range hexKeys {
		w.WriteBytes([]byte(k))
		w.WriteBytes(tc.HighQCs[k].Encode())
		w.WriteSignature(tc.Signatures[k])
	}
	return w.Bytes()
}

// Verify checks that every signature in tc.Signatures validates as a
// Timeout over (its reported HighQCs entry, tc.Round, that authority's own
// key), and that the signer set clears quorumThreshold. Unlike QC, a TC has
// no single shared tuple: each signer may report a different HighQC, so
// verification reconstructs Timeout.signingBytes per signer.
func (tc *TC) Verify(quorumThreshold int, resolve func(hex string) (crypto.PublicKey, bool)) error {
	if len(tc.Signatures) < quorumThreshold {
		return ErrQCNoQuorum
	}
	for hex, sig := range tc.Signatures {
		pk, ok := resolve(hex)
		if !ok {
			return ErrQCUnknownAuthority
		}
		qc, ok := tc.HighQCs[hex]
		if !ok {
			return ErrQCInvalidSignature
		}
		t := Timeout{HighQC: qc, Round: tc.Round, Voter: pk}
		if err := crypto.Verify(pk, t.Digest(), sig); err != nil {
			return ErrQCInvalidSignature
		}
	}
	return nil
}

// DecodeTC parses the canonical encoding produced by TC.Encode.
func DecodeTC(data []byte) (TC, error) {
	r := NewReader(data)
	var tc TC
	tc.Round = r.ReadUint64()
	n := r.ReadUint64()
	if n > 0 {
		tc.HighQCs = make(map[string]QC, n)
		tc.Signatures = make(map[string]crypto.Signature, n)
	}
	for i := uint64(0); i < n; i++ {
		k := string(r.ReadBytes())
		qcBytes := r.ReadBytes()
		sig := r.ReadSignature()
		if r.Err() != nil {
			break
		}
		qc, err := DecodeQC(qcBytes)
		if err != nil {
			return TC{}, err
		}
		tc.HighQCs[k] = qc
		tc.Signatures[k] = sig
	}
	if r.Err() != nil {
		return TC{}, r.Err()
	}
	return tc, nil
}
