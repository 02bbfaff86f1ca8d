package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
)

// Signature is a raw ed25519 signature over a Digest.
type Signature []byte

// Hex returns the hex encoding of sig.
func (sig Signature) Hex() string {
	return hex.EncodeToString(sig)
}

// ErrInvalidSignature is returned by Verify when a signature does not match.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Sign signs digest with priv.
func Sign(priv PrivateKey, digest Digest) Signature {
	return Signature(ed25519.Sign(ed25519.PrivateKey(priv), digest[:]))
}

// Verify checks sig against digest using pub.
func Verify(pub PublicKey, digest Digest, sig Signature) error {
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("crypto: invalid public key length")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}
