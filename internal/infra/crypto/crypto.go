package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// SignatureMessage builds the exact byte string record signatures cover:
// the content hash bound to the actor that asserted it. The payload itself
// is not signed; integrity is checked separately by recomputing the hash.
func SignatureMessage(contentHash, author string) []byte {
	return []byte(contentHash + ":" + author)
}

func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return pub, priv, nil
}

// Sign produces the base64 record signature for contentHash asserted by
// author.
func Sign(priv ed25519.PrivateKey, contentHash, author string) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", errors.New("invalid ed25519 private key length")
	}
	if contentHash == "" {
		return "", errors.New("content hash is required")
	}
	if author == "" {
		return "", errors.New("author is required")
	}
	sig := ed25519.Sign(priv, SignatureMessage(contentHash, author))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether sig is a valid record signature by author over
// contentHash. Malformed input of any sort yields false, never a panic.
func Verify(pub ed25519.PublicKey, contentHash, author, sig string) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	if contentHash == "" || author == "" || sig == "" {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	if len(raw) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, SignatureMessage(contentHash, author), raw)
}
