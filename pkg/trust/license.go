package trust

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/planguard-io/planguard/pkg/tiers"
)

// LicenseClaims is the signed content of a license file: an EdDSA JWT
// in compact form. The serial (jti) feeds the revocation list.
type LicenseClaims struct {
	jwt.RegisteredClaims
	Licensee string `json:"licensee"`
	Tier     string `json:"tier"`
}

// Reason classifies why a license resolved to its edition. The
// functional outcome of every failure is the same (Free); the reason
// exists only for the audit trail and the license-status command.
type Reason string

const (
	ReasonValid        Reason = "valid"
	ReasonMissing      Reason = "missing"
	ReasonMalformed    Reason = "malformed"
	ReasonBadSignature Reason = "bad_signature"
	ReasonExpired      Reason = "expired"
	ReasonRevoked      Reason = "revoked"
)

// LicenseStatus is the outcome of a license check.
type LicenseStatus struct {
	Edition  tiers.Edition
	Reason   Reason
	Licensee string
	// ExpiresAt is populated only when the signature verified.
	ExpiresAt time.Time
}

// AuditSink receives trust events. Payloads never contain key material
// or license contents, only the resulting edition and reason code.
type AuditSink interface {
	Append(actor, action string, payload any) error
}

// LicenseVerifier resolves license bytes to an edition. It is a pure
// function of (license bytes, ring, clock): identical inputs always
// yield the identical edition, and no failure path errors or crashes —
// every problem silently degrades to Free.
type LicenseVerifier struct {
	ring  *KeyRing
	now   func() time.Time
	audit AuditSink
}

// NewLicenseVerifier creates a verifier over the given ring.
func NewLicenseVerifier(ring *KeyRing, now func() time.Time, audit AuditSink) *LicenseVerifier {
	if now == nil {
		now = time.Now
	}
	return &LicenseVerifier{ring: ring, now: now, audit: audit}
}

// Check resolves license bytes to an edition. Degradation order:
// missing/malformed -> Free, unverifiable signature -> Free,
// expired -> Free, revoked serial -> Free. A verified license yields
// its declared tier.
func (v *LicenseVerifier) Check(licenseBytes []byte) LicenseStatus {
	status := v.check(licenseBytes)
	if v.audit != nil {
		_ = v.audit.Append("license", "check", map[string]any{
			"edition": string(status.Edition),
			"reason":  string(status.Reason),
		})
	}
	return status
}

func (v *LicenseVerifier) check(licenseBytes []byte) LicenseStatus {
	token := strings.TrimSpace(string(licenseBytes))
	if token == "" {
		return LicenseStatus{Edition: tiers.EditionFree, Reason: ReasonMissing}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)

	sawBadSignature := false
	for _, trusted := range v.ring.Keys() {
		claims := &LicenseClaims{}
		key := trusted.Key
		_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return ed25519.PublicKey(key), nil
		})
		switch {
		case err == nil:
			return v.resolve(claims)
		case errors.Is(err, jwt.ErrTokenExpired):
			// Signature verified under this key; only the validity
			// window failed.
			return LicenseStatus{
				Edition:   tiers.EditionFree,
				Reason:    ReasonExpired,
				Licensee:  claims.Licensee,
				ExpiresAt: expiryOf(claims),
			}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			sawBadSignature = true
		case errors.Is(err, jwt.ErrTokenMalformed):
			return LicenseStatus{Edition: tiers.EditionFree, Reason: ReasonMalformed}
		default:
			// Other validation failures (nbf, missing exp) leave the
			// license unusable regardless of key.
			sawBadSignature = true
		}
	}

	reason := ReasonMalformed
	if sawBadSignature {
		reason = ReasonBadSignature
	}
	return LicenseStatus{Edition: tiers.EditionFree, Reason: reason}
}

func (v *LicenseVerifier) resolve(claims *LicenseClaims) LicenseStatus {
	if v.ring.IsRevoked(claims.ID) {
		return LicenseStatus{
			Edition:   tiers.EditionFree,
			Reason:    ReasonRevoked,
			Licensee:  claims.Licensee,
			ExpiresAt: expiryOf(claims),
		}
	}
	edition := tiers.Edition(claims.Tier)
	if !tiers.Valid(edition) {
		return LicenseStatus{Edition: tiers.EditionFree, Reason: ReasonMalformed}
	}
	return LicenseStatus{
		Edition:   edition,
		Reason:    ReasonValid,
		Licensee:  claims.Licensee,
		ExpiresAt: expiryOf(claims),
	}
}

func expiryOf(claims *LicenseClaims) time.Time {
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Time{}
}
