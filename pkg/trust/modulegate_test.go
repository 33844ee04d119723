package trust_test

import (
	"context"
	"testing"

	"github.com/planguard-io/planguard/pkg/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalWasm is the smallest valid WebAssembly module: magic + version.
var minimalWasm = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestModuleGate_LoadsValidArtifact(t *testing.T) {
	pub, priv := newTestKeypair(t)
	ring := newTestRing(t, nil, pub)
	gate := trust.NewModuleGate(ring, nil)

	sig := signDetached(priv, minimalWasm)
	mod, err := gate.Load(context.Background(), minimalWasm, sig, "1.4.0")
	require.NoError(t, err)
	defer func() { _ = mod.Close(context.Background()) }()

	assert.Equal(t, "1.4.0", mod.Version())
	assert.Equal(t, keyID(0), mod.KeyID())
}

func TestModuleGate_RejectsEverySingleByteMutation(t *testing.T) {
	pub, priv := newTestKeypair(t)
	ring := newTestRing(t, nil, pub)
	gate := trust.NewModuleGate(ring, nil)

	artifact := append([]byte(nil), minimalWasm...)
	artifact = append(artifact, []byte("premium evaluator payload")...)
	sig := signDetached(priv, artifact)

	for i := range artifact {
		mutated := append([]byte(nil), artifact...)
		mutated[i] ^= 0x01
		_, err := gate.Load(context.Background(), mutated, sig, "2.0.0")
		var ierr *trust.IntegrityError
		require.ErrorAs(t, err, &ierr, "byte %d", i)
		assert.Equal(t, trust.IntegrityCodeSignature, ierr.Code, "byte %d", i)
	}
}

func TestModuleGate_RejectsMutatedSignature(t *testing.T) {
	pub, priv := newTestKeypair(t)
	ring := newTestRing(t, nil, pub)
	gate := trust.NewModuleGate(ring, nil)

	sig := signDetached(priv, minimalWasm)
	sig[3] ^= 0x80
	_, err := gate.Load(context.Background(), minimalWasm, sig, "2.0.0")
	var ierr *trust.IntegrityError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, trust.IntegrityCodeSignature, ierr.Code)
}

func TestModuleGate_RejectsVersionBelowFloor(t *testing.T) {
	pub, priv := newTestKeypair(t)
	ring := newTestRing(t, nil, pub)
	gate := trust.NewModuleGate(ring, nil)

	// Validly signed, but a deprecated version: replay protection.
	sig := signDetached(priv, minimalWasm)
	_, err := gate.Load(context.Background(), minimalWasm, sig, "1.1.9")
	var ierr *trust.IntegrityError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, trust.IntegrityCodeVersion, ierr.Code)
}

func TestModuleGate_RejectsNonSemverVersion(t *testing.T) {
	pub, priv := newTestKeypair(t)
	ring := newTestRing(t, nil, pub)
	gate := trust.NewModuleGate(ring, nil)

	sig := signDetached(priv, minimalWasm)
	_, err := gate.Load(context.Background(), minimalWasm, sig, "latest")
	var ierr *trust.IntegrityError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, trust.IntegrityCodeMalformed, ierr.Code)
}

func TestModuleGate_RejectsUncompilableArtifact(t *testing.T) {
	pub, priv := newTestKeypair(t)
	ring := newTestRing(t, nil, pub)
	gate := trust.NewModuleGate(ring, nil)

	junk := []byte("validly signed but not wasm")
	sig := signDetached(priv, junk)
	_, err := gate.Load(context.Background(), junk, sig, "2.0.0")
	var ierr *trust.IntegrityError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, trust.IntegrityCodeMalformed, ierr.Code)
}

func TestModuleGate_RejectsEmptyArtifact(t *testing.T) {
	pub, _ := newTestKeypair(t)
	ring := newTestRing(t, nil, pub)
	gate := trust.NewModuleGate(ring, nil)

	_, err := gate.Load(context.Background(), nil, nil, "2.0.0")
	var ierr *trust.IntegrityError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, trust.IntegrityCodeEmpty, ierr.Code)
}
