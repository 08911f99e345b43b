package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taekion-org/tfslite-go/crypto"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	data := []byte("some transaction header bytes")
	sig, err := key.Sign(data)
	require.NoError(t, err)

	pub, err := key.PublicKey()
	require.NoError(t, err)

	var verifier crypto.StandardVerifier
	ok, err := verifier.Verify(data, sig, pub)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	data := []byte("original data")
	sig, err := key.Sign(data)
	require.NoError(t, err)

	pub, err := key.PublicKey()
	require.NoError(t, err)

	var verifier crypto.StandardVerifier
	ok, err := verifier.Verify([]byte("tampered data"), sig, pub)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignIsFixedLengthCompactEncoding(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	sig, err := key.Sign([]byte("some transaction header bytes"))
	require.NoError(t, err)

	require.Len(t, sig.AsBytes(), 64)
	require.Len(t, sig.AsHex(), 128)
}

func TestPublicKeyHexRoundTrip(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	pub, err := key.PublicKey()
	require.NoError(t, err)

	loaded, err := crypto.LoadPublicKeyFromHex(pub.AsHex())
	require.NoError(t, err)
	require.Equal(t, pub.AsBytes(), loaded.AsBytes())
}

func TestSignatureHexRoundTrip(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	sig, err := key.Sign([]byte("data"))
	require.NoError(t, err)

	loaded, err := crypto.NewSignatureFromHex(sig.AsHex())
	require.NoError(t, err)
	require.Equal(t, sig.AsBytes(), loaded.AsBytes())
}

func TestLoadPrivateKeyFromHexRoundTrip(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	loaded, err := crypto.LoadPrivateKeyFromHex(key.AsHex())
	require.NoError(t, err)
	require.Equal(t, key.AsHex(), loaded.AsHex())
}

func TestCallbackSigner(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	signer := crypto.CallbackSigner{
		SignFunc:      key.Sign,
		PublicKeyFunc: key.PublicKey,
	}

	data := []byte("payload")
	sig, err := signer.Sign(data)
	require.NoError(t, err)

	pub, err := signer.PublicKey()
	require.NoError(t, err)

	var verifier crypto.StandardVerifier
	ok, err := verifier.Verify(data, sig, pub)
	require.NoError(t, err)
	require.True(t, ok)
}
