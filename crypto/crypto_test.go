package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	digest := HashBytes([]byte("block contents"))
	sig := Sign(priv, digest)
	require.NoError(t, Verify(pub, digest, sig))

	other := HashBytes([]byte("tampered"))
	require.ErrorIs(t, Verify(pub, other, sig), ErrInvalidSignature)
}

func TestSignatureService(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	svc := NewSignatureService(priv)
	defer svc.Close()
	require.Equal(t, pub.Hex(), svc.PublicKey().Hex())

	digest := HashBytes([]byte("payload"))
	sig, err := svc.SignDigest(context.Background(), digest)
	require.NoError(t, err)
	require.NoError(t, Verify(pub, digest, sig))
}

func TestDigestBytesRoundTrip(t *testing.T) {
	d := HashBytes([]byte("x"))
	back, err := DigestFromBytes(d[:])
	require.NoError(t, err)
	require.Equal(t, d, back)
	require.True(t, Digest{}.IsZero())
	require.False(t, d.IsZero())
}
