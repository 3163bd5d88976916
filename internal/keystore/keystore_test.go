package keystore

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, chacha20poly1305.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealOpenRoundTripOneShot(t *testing.T) {
	s, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := Plaintext{
		IrohSecretKey: []byte("iroh-secret"),
		Keys: map[string]KeyStack{
			"group-1": {{KeyHash: "hash-a", SecretKey: []byte("secret-a")}},
		},
	}

	sealed, err := s.Seal(p)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		t.Fatalf("sealed blob shorter than one nonce")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got.IrohSecretKey, p.IrohSecretKey) {
		t.Fatalf("iroh secret key mismatch")
	}
	if string(got.Keys["group-1"][0].SecretKey) != "secret-a" {
		t.Fatalf("got keys %+v", got.Keys)
	}
}

func TestSealOpenRoundTripStreamed(t *testing.T) {
	s, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stack := make(KeyStack, 0, 5000)
	for i := 0; i < 5000; i++ {
		stack = append(stack, KeyEntry{KeyHash: "hash", SecretKey: bytes.Repeat([]byte{byte(i)}, 32)})
	}
	p := Plaintext{Keys: map[string]KeyStack{"group-1": stack}}

	sealed, err := s.Seal(p)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) < OneShotLimit {
		t.Fatalf("expected a streamed (large) sealed blob, got %d bytes", len(sealed))
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(got.Keys["group-1"]) != 5000 {
		t.Fatalf("got %d keys, want 5000", len(got.Keys["group-1"]))
	}
	if !bytes.Equal(got.Keys["group-1"][4999].SecretKey, stack[4999].SecretKey) {
		t.Fatal("last key entry corrupted across block boundary")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	s, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sealed, err := s.Seal(Plaintext{Keys: map[string]KeyStack{}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := s.Open(sealed); err == nil {
		t.Fatal("expected tampered ciphertext to fail to open")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	s1, _ := New(testKey(t))
	wrongKey := testKey(t)
	wrongKey[0] ^= 0xFF
	s2, _ := New(wrongKey)

	sealed, err := s1.Seal(Plaintext{Keys: map[string]KeyStack{}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := s2.Open(sealed); err == nil {
		t.Fatal("expected wrong key to fail to open")
	}
}
