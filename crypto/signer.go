package crypto

import "context"

// signRequest is one pending sign operation for the SignatureService actor.
type signRequest struct {
	digest Digest
	reply  chan Signature
}

// SignatureService signs digests one at a time on a dedicated goroutine, so
// that no two signing operations ever overlap (ed25519 private key material
// is read but never mutated, but the actor shape keeps this true even if a
// future backend needs serialized access, e.g. an HSM).
type SignatureService struct {
	priv PrivateKey
	pub  PublicKey
	reqs chan signRequest
}

// NewSignatureService starts the signer actor for the given identity.
func NewSignatureService(priv PrivateKey) *SignatureService {
	s := &SignatureService{
		priv: priv,
		pub:  priv.Public(),
		reqs: make(chan signRequest, 1),
	}
	go s.run()
	return s
}

func (s *SignatureService) run() {
	for req := range s.reqs {
		req.reply <- Sign(s.priv, req.digest)
	}
}

// PublicKey returns the identity this service signs for.
func (s *SignatureService) PublicKey() PublicKey {
	return s.pub
}

// SignDigest requests a signature over digest and blocks until it is produced
// or ctx is cancelled.
func (s *SignatureService) SignDigest(ctx context.Context, digest Digest) (Signature, error) {
	reply := make(chan Signature, 1)
	select {
	case s.reqs <- signRequest{digest: digest, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case sig := <-reply:
		return sig, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the actor goroutine. Safe to call once.
func (s *SignatureService) Close() {
	close(s.reqs)
}
