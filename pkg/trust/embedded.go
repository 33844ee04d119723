package trust

// The release key ring is compiled into the binary. Rotation ships a
// new build with an expanded ring: the old key stays for a grace
// window, then is dropped. The ring is never configurable at runtime,
// which forecloses key substitution via configuration or environment.

const (
	// release-2025 is the current signing key.
	releaseKey2025 = "84784f099bab2916c27747aa8c98abbd93733b4eecf7b0f581b2b33bd9ba912c"
	// release-2024 is retained for the rotation grace window.
	releaseKey2024 = "50369d896ab649ebfdd9e5f8e93b94ab9e03b3800026ba6006e5263407fbd055"
)

// revokedLicenseSerials lists license serials withdrawn before expiry.
// Like the ring itself, revocation ships as a new build.
var revokedLicenseSerials = []string{}

// EmbeddedRing returns the compiled-in release key ring.
func EmbeddedRing() *KeyRing {
	ring, err := NewKeyRing([]TrustedKey{
		mustDecodeKey("release-2025", releaseKey2025),
		mustDecodeKey("release-2024", releaseKey2024),
	}, revokedLicenseSerials)
	if err != nil {
		panic("embedded key ring invalid: " + err.Error())
	}
	return ring
}
