// Package trust implements the verification fabric: the compiled-in
// public key ring, offline license verification, and the integrity
// gate for the optional premium evaluation module.
//
// Trust model: the package trusts only the cryptographic primitives
// (Ed25519, SHA-256) and the compiled-in key ring. It performs no
// network I/O; every check works fully offline.
package trust

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TrustedKey is a single entry in the public key ring.
type TrustedKey struct {
	ID  string
	Key ed25519.PublicKey
}

// KeyRing is the ordered, immutable set of trusted keys: the current
// key plus a bounded history kept for rotation. It is fixed at process
// start; rotation ships a new build with an expanded ring.
type KeyRing struct {
	keys           []TrustedKey
	revokedSerials map[string]bool
}

// NewKeyRing creates a ring from an ordered key list. An empty ring is
// a configuration error, never a valid state.
func NewKeyRing(keys []TrustedKey, revokedSerials []string) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keyring: must contain at least one trusted key")
	}
	ring := &KeyRing{
		keys:           make([]TrustedKey, 0, len(keys)),
		revokedSerials: make(map[string]bool, len(revokedSerials)),
	}
	for _, k := range keys {
		if len(k.Key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("keyring: key %s has invalid size %d", k.ID, len(k.Key))
		}
		ring.keys = append(ring.keys, TrustedKey{ID: k.ID, Key: append(ed25519.PublicKey(nil), k.Key...)})
	}
	for _, s := range revokedSerials {
		ring.revokedSerials[s] = true
	}
	return ring, nil
}

// Keys returns a copy of the ordered key list.
func (r *KeyRing) Keys() []TrustedKey {
	out := make([]TrustedKey, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of trusted keys.
func (r *KeyRing) Len() int { return len(r.keys) }

// IsRevoked reports whether a license serial is on the compiled-in
// revocation list.
func (r *KeyRing) IsRevoked(serial string) bool {
	return serial != "" && r.revokedSerials[serial]
}

// VerifyDetached checks a detached Ed25519 signature over the SHA-256
// digest of message against every key in the ring, in ring order.
// Returns the ID of the first key that verifies.
func (r *KeyRing) VerifyDetached(message, signature []byte) (string, bool) {
	digest := sha256.Sum256(message)
	for _, k := range r.keys {
		if ed25519.Verify(k.Key, digest[:], signature) {
			return k.ID, true
		}
	}
	return "", false
}

// Fingerprint returns a short stable identifier for the ring contents,
// used only in audit records.
func (r *KeyRing) Fingerprint() string {
	h := sha256.New()
	for _, k := range r.keys {
		h.Write([]byte(k.ID))
		h.Write(k.Key)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// mustDecodeKey converts a compiled-in hex constant into a public key.
// Panics at init: a malformed embedded key is a build defect.
func mustDecodeKey(id, hexKey string) TrustedKey {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		panic(fmt.Sprintf("embedded key %s is malformed", id))
	}
	return TrustedKey{ID: id, Key: raw}
}
