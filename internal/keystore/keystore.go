// Package keystore implements the encrypted key store (spec.md §6,
// "<lib>/keys/<group>.keystore"): plaintext that deserializes to
// {iroh_secret_key, keys: map<group_uuid, stack<(key_hash, secret_key)>>},
// sealed as nonce || ciphertext. One-shot sealing is used when the
// plaintext fits in one 64 KiB block; larger plaintext is split into
// fixed-size blocks, each sealed under its own nonce derived from a
// per-file base nonce plus an incrementing block counter, the same
// nonce-increment discipline the teacher's crypt backend uses for
// streamed block encryption (backend/crypt/cipher.go's nonce.increment).
package keystore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// OneShotLimit is the plaintext size above which Seal switches from a
// single AEAD call to block streaming (spec.md §6: "One-shot if
// ciphertext ≤ 64 KiB, otherwise streamed").
const OneShotLimit = 64 * 1024

// BlockSize is the plaintext size of one streamed block.
const BlockSize = 32 * 1024

// KeyStack is a group's stack of (key_hash, secret_key) pairs, most
// recent last — spec.md §6's "stack<(key_hash, secret_key)>", letting a
// group rotate keys while old ones remain available to decrypt content
// sealed under them.
type KeyStack []KeyEntry

// KeyEntry is one entry in a KeyStack.
type KeyEntry struct {
	KeyHash   string `json:"key_hash"`
	SecretKey []byte `json:"secret_key"`
}

// Plaintext is the keystore's decrypted payload (spec.md §6).
type Plaintext struct {
	IrohSecretKey []byte              `json:"iroh_secret_key"`
	Keys          map[string]KeyStack `json:"keys"`
}

// Store seals and opens one group's keystore file under a single
// passphrase-derived or otherwise provisioned 32-byte key. It holds no
// file handle and no global state — callers own reading/writing the
// sealed bytes via volume.Backend, matching how sidecar.Store and
// entrystore.Store are both handed their I/O surface rather than owning
// a fixed path internally.
type Store struct {
	aead cipher.AEAD
}

// New builds a Store over a 32-byte key (chacha20poly1305.KeySize).
func New(key []byte) (*Store, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "build aead", err)
	}
	return &Store{aead: aead}, nil
}

// Seal encrypts plaintext's JSON encoding, returning nonce || ciphertext.
func (s *Store) Seal(p Plaintext) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errs.Wrap(errs.SerializationForm, "marshal keystore plaintext", err)
	}
	if len(raw) <= OneShotLimit {
		return s.sealOneShot(raw)
	}
	return s.sealStreamed(raw)
}

// Open decrypts a nonce || ciphertext blob produced by Seal back to its
// Plaintext.
func (s *Store) Open(sealed []byte) (Plaintext, error) {
	raw, err := s.open(sealed)
	if err != nil {
		return Plaintext{}, err
	}
	var p Plaintext
	if err := json.Unmarshal(raw, &p); err != nil {
		return Plaintext{}, errs.Wrap(errs.SerializationForm, "unmarshal keystore plaintext", err)
	}
	return p, nil
}

func (s *Store) sealOneShot(raw []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(errs.Crypto, "generate nonce", err)
	}
	return s.aead.Seal(nonce, nonce, raw, nil), nil
}

// sealStreamed splits raw into BlockSize plaintext blocks, sealing each
// under baseNonce with its block index XORed into the low 8 bytes (any
// bytes of an XChaChaPoly1305 nonce are free for this since the
// cipher only requires the full 24-byte nonce be unique per key, not
// that its structure carry any particular meaning).
func (s *Store) sealStreamed(raw []byte) ([]byte, error) {
	baseNonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, baseNonce); err != nil {
		return nil, errs.Wrap(errs.Crypto, "generate base nonce", err)
	}

	out := append([]byte{}, baseNonce...)
	var block uint64
	for off := 0; off < len(raw); off += BlockSize {
		end := off + BlockSize
		if end > len(raw) {
			end = len(raw)
		}
		nonce := blockNonce(baseNonce, block)
		sealed := s.aead.Seal(nil, nonce, raw[off:end], nil)
		out = appendLenPrefixed(out, sealed)
		block++
	}
	return out, nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errs.New(errs.Validation, "sealed keystore shorter than one nonce")
	}
	baseNonce, rest := sealed[:nonceSize], sealed[nonceSize:]

	if raw, err := s.aead.Open(nil, baseNonce, rest, nil); err == nil {
		return raw, nil
	}

	var out []byte
	var block uint64
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, errs.New(errs.Validation, "truncated streamed keystore block length")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(len(rest)) < uint64(n) {
			return nil, errs.New(errs.Validation, "truncated streamed keystore block")
		}
		chunk := rest[:n]
		rest = rest[n:]

		nonce := blockNonce(baseNonce, block)
		plain, err := s.aead.Open(nil, nonce, chunk, nil)
		if err != nil {
			return nil, errs.Wrap(errs.Crypto, fmt.Sprintf("open keystore block %d", block), err)
		}
		out = append(out, plain...)
		block++
	}
	if out == nil {
		return nil, errs.New(errs.Validation, "empty keystore ciphertext")
	}
	return out, nil
}

func blockNonce(base []byte, block uint64) []byte {
	nonce := append([]byte{}, base...)
	binary.BigEndian.PutUint64(nonce[len(nonce)-8:], binary.BigEndian.Uint64(nonce[len(nonce)-8:])^block)
	return nonce
}

func appendLenPrefixed(out []byte, chunk []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
	out = append(out, lenBuf[:]...)
	return append(out, chunk...)
}
