// Package kalshi implements the contract venue protocol: RSA-PSS request
// signing, the REST API surface the bot consumes, and the authenticated
// market-data websocket.
package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Auth header names required by the venue.
const (
	headerAccessKey       = "KALSHI-ACCESS-KEY"
	headerAccessTimestamp = "KALSHI-ACCESS-TIMESTAMP"
	headerAccessSignature = "KALSHI-ACCESS-SIGNATURE"
)

// Signer produces the venue's asymmetric-signature auth headers. Every
// request signs {timestamp_ms}{METHOD}{path_without_query} with the account
// RSA key under PSS.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewSigner wraps an already-parsed private key.
func NewSigner(keyID string, key *rsa.PrivateKey) *Signer {
	return &Signer{keyID: keyID, key: key}
}

// NewSignerFromPEM parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func NewSignerFromPEM(keyID string, pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Signer{keyID: keyID, key: key}, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("unsupported private key type %T", parsed)
	}
	return &Signer{keyID: keyID, key: rsaKey}, nil
}

// Headers signs method+path at the current time.
func (s *Signer) Headers(method, path string) (map[string]string, error) {
	return s.headersAt(time.Now(), method, path)
}

func (s *Signer) headersAt(now time.Time, method, path string) (map[string]string, error) {
	timestamp := fmt.Sprintf("%d", now.UnixMilli())
	cleanPath := strings.SplitN(path, "?", 2)[0]

	digest := sha256.Sum256([]byte(timestamp + method + cleanPath))
	signature, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sign request")
	}

	return map[string]string{
		headerAccessKey:       s.keyID,
		headerAccessTimestamp: timestamp,
		headerAccessSignature: base64.StdEncoding.EncodeToString(signature),
	}, nil
}
