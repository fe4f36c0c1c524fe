package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) (*Signer, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewSigner("test-key-id", key), key
}

func TestSignerHeaders(t *testing.T) {
	signer, key := testSigner(t)
	now := time.UnixMilli(1700000000123)

	headers, err := signer.headersAt(now, "GET", "/trade-api/v2/portfolio/balance")
	require.NoError(t, err)

	require.Equal(t, "test-key-id", headers[headerAccessKey])
	require.Equal(t, "1700000000123", headers[headerAccessTimestamp])

	sig, err := base64.StdEncoding.DecodeString(headers[headerAccessSignature])
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("1700000000123GET/trade-api/v2/portfolio/balance"))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	require.NoError(t, err)
}

func TestSignerStripsQuery(t *testing.T) {
	signer, key := testSigner(t)
	now := time.UnixMilli(42)

	headers, err := signer.headersAt(now, "GET", "/trade-api/v2/markets?status=open&limit=5")
	require.NoError(t, err)

	sig, err := base64.StdEncoding.DecodeString(headers[headerAccessSignature])
	require.NoError(t, err)

	// The query string must not be part of the signed message.
	digest := sha256.Sum256([]byte("42GET/trade-api/v2/markets"))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	require.NoError(t, err)
}

func TestSignerFromPEMRejectsGarbage(t *testing.T) {
	_, err := NewSignerFromPEM("id", []byte("not a pem"))
	require.Error(t, err)
}
