// Package signing provides the opaque payload-signing capability attached
// to canonical events via clientData.signature.
package signing

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/vitalbridge/go-healthsync/core"
)

var (
	ErrSignatureMismatch = errors.New("signing: signature mismatch")
	ErrUnsupportedKey    = errors.New("signing: unsupported key type (expected Ed25519)")
	ErrKeyEncrypted      = errors.New("signing: key is encrypted (passphrase required)")
)

// EventPayload returns the canonical byte representation signed for an
// event: the (streamIds, type, content) triple in deterministic JSON.
func EventPayload(event core.CanonicalEvent) ([]byte, error) {
	return json.Marshal(struct {
		StreamIDs []string `json:"streamIds"`
		Type      string   `json:"type"`
		Content   any      `json:"content"`
	}{
		StreamIDs: event.StreamIDs,
		Type:      event.Type,
		Content:   event.Content.JSON(),
	})
}

// HMACSigner signs with HMAC-SHA256; verification recomputes the digest
// and compares in constant time.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) (*HMACSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("signing: hmac secret is required")
	}
	return &HMACSigner{secret: []byte(secret)}, nil
}

func (s *HMACSigner) Sign(payload []byte) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", fmt.Errorf("signing: hmac signer is not configured")
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) Verify(payload []byte, signature string) error {
	expected, err := s.Sign(payload)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}

// Ed25519Signer signs with an Ed25519 private key loaded from a file:
// raw 32-byte seed, raw 64-byte private key, or OpenSSH PEM.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func NewEd25519Signer(key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing: invalid ed25519 private key length %d", len(key))
	}
	return &Ed25519Signer{key: key}, nil
}

func LoadEd25519Signer(path string) (*Ed25519Signer, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signing: read key: %w", err)
	}

	if len(keyData) == ed25519.SeedSize {
		return NewEd25519Signer(ed25519.NewKeyFromSeed(keyData))
	}
	if len(keyData) == ed25519.PrivateKeySize {
		return NewEd25519Signer(ed25519.PrivateKey(keyData))
	}

	parsed, err := ssh.ParseRawPrivateKey(keyData)
	if err != nil {
		if _, ok := err.(*ssh.PassphraseMissingError); ok {
			return nil, ErrKeyEncrypted
		}
		return nil, fmt.Errorf("signing: parse key: %w", err)
	}
	switch key := parsed.(type) {
	case ed25519.PrivateKey:
		return NewEd25519Signer(key)
	case *ed25519.PrivateKey:
		return NewEd25519Signer(*key)
	default:
		return nil, ErrUnsupportedKey
	}
}

func (s *Ed25519Signer) Sign(payload []byte) (string, error) {
	if s == nil || len(s.key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("signing: ed25519 signer is not configured")
	}
	return hex.EncodeToString(ed25519.Sign(s.key, payload)), nil
}

func (s *Ed25519Signer) Verify(payload []byte, signature string) error {
	if s == nil || len(s.key) != ed25519.PrivateKeySize {
		return fmt.Errorf("signing: ed25519 signer is not configured")
	}
	raw, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("signing: decode signature: %w", err)
	}
	public := s.key.Public().(ed25519.PublicKey)
	if !ed25519.Verify(public, payload, raw) {
		return ErrSignatureMismatch
	}
	return nil
}

var (
	_ core.Signer = (*HMACSigner)(nil)
	_ core.Signer = (*Ed25519Signer)(nil)
)
