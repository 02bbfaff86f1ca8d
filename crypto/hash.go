package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest is a content-addressed SHA-256 hash. The zero Digest identifies the
// genesis QC sentinel.
type Digest [32]byte

// Hex returns the lowercase hex encoding of d.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}

// IsZero reports whether d is the all-zero digest used by QC::genesis().
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// HashBytes returns the raw SHA-256 digest of data.
func HashBytes(data []byte) Digest {
	return sha256.Sum256(data)
}

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	d := HashBytes(data)
	return d.Hex()
}

// DigestFromBytes copies a 32-byte slice into a Digest.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != len(d) {
		return d, fmt.Errorf("crypto: invalid digest length %d, want %d", len(b), len(d))
	}
	copy(d[:], b)
	return d, nil
}
