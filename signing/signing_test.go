package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"testing"

	"github.com/vitalbridge/go-healthsync/core"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}

func TestHMACSigner_SignAndVerify(t *testing.T) {
	signer, err := NewHMACSigner("local-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	payload, err := EventPayload(core.CanonicalEvent{
		StreamIDs: []string{"body-mass"},
		Type:      "mass/kg",
		Content:   core.NumberValue(72.5),
	})
	if err != nil {
		t.Fatalf("event payload: %v", err)
	}

	signature, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signature == "" {
		t.Fatalf("expected non-empty signature")
	}
	if err := signer.Verify(payload, signature); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := signer.Verify(append(payload, 'x'), signature); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected mismatch for tampered payload, got %v", err)
	}
}

func TestHMACSigner_Deterministic(t *testing.T) {
	signer, err := NewHMACSigner("local-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	payload := []byte("payload")
	first, _ := signer.Sign(payload)
	second, _ := signer.Sign(payload)
	if first != second {
		t.Fatalf("hmac signatures must be deterministic: %q vs %q", first, second)
	}
}

func TestEventPayload_Deterministic(t *testing.T) {
	event := core.CanonicalEvent{
		StreamIDs: []string{"blood-pressure"},
		Type:      "blood-pressure/mmhg-bpm",
		Content: core.ObjectValue(map[string]any{
			"systolic":  120.0,
			"diastolic": 80.0,
		}),
	}
	first, err := EventPayload(event)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	second, _ := EventPayload(event)
	if string(first) != string(second) {
		t.Fatalf("payload serialization must be deterministic")
	}
}

func TestEd25519Signer_SignAndVerify(t *testing.T) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewEd25519Signer(private)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	payload := []byte("canonical event bytes")
	signature, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := signer.Verify(payload, signature); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := signer.Verify([]byte("other"), signature); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestLoadEd25519Signer_RawSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	path := t.TempDir() + "/key"
	if err := writeFile(path, seed); err != nil {
		t.Fatalf("write key: %v", err)
	}
	signer, err := LoadEd25519Signer(path)
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	signature, err := signer.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := signer.Verify([]byte("payload"), signature); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
