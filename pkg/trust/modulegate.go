package trust

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// moduleVersionFloor is the minimum accepted premium module version.
// Raising the floor in a release invalidates every older artifact,
// including ones that still carry a valid signature (anti-replay).
const moduleVersionFloor = "1.2.0"

// IntegrityError reports a module artifact that failed verification.
// The caller must fall back to the built-in evaluator; the premium
// path is categorically unreachable after this error.
type IntegrityError struct {
	Code   string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("module integrity: %s: %s", e.Code, e.Detail)
}

const (
	IntegrityCodeSignature = "SIGNATURE_INVALID"
	IntegrityCodeVersion   = "VERSION_BELOW_FLOOR"
	IntegrityCodeMalformed = "ARTIFACT_MALFORMED"
	IntegrityCodeEmpty     = "ARTIFACT_EMPTY"
)

// VerifiedModule is an opaque handle to a premium evaluation module
// whose complete byte sequence verified against the ring before any
// byte was interpreted. Once constructed it is immutable trusted input
// for the process lifetime: there is no re-verification window.
type VerifiedModule struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	version  *semver.Version
	keyID    string
}

// ModuleGate verifies and loads premium module artifacts.
type ModuleGate struct {
	ring  *KeyRing
	floor *semver.Version
	audit AuditSink
}

// NewModuleGate creates a gate over the given ring with the compiled-in
// version floor.
func NewModuleGate(ring *KeyRing, audit AuditSink) *ModuleGate {
	return &ModuleGate{ring: ring, floor: semver.MustParse(moduleVersionFloor), audit: audit}
}

// Load verifies the artifact as a single atomic operation and, on
// success, compiles it into an invokable handle.
//
// Order is load-bearing: the detached signature covers the complete
// byte sequence and is checked before wazero sees a single byte, and
// the version floor is checked before compilation as well. No partial
// load path exists.
func (g *ModuleGate) Load(ctx context.Context, moduleBytes, signature []byte, declaredVersion string) (*VerifiedModule, error) {
	vm, err := g.load(ctx, moduleBytes, signature, declaredVersion)
	if g.audit != nil {
		payload := map[string]any{"version": declaredVersion, "verified": err == nil}
		if ierr, ok := err.(*IntegrityError); ok {
			payload["code"] = ierr.Code
		}
		_ = g.audit.Append("modulegate", "load", payload)
	}
	return vm, err
}

func (g *ModuleGate) load(ctx context.Context, moduleBytes, signature []byte, declaredVersion string) (*VerifiedModule, error) {
	if len(moduleBytes) == 0 {
		return nil, &IntegrityError{Code: IntegrityCodeEmpty, Detail: "module artifact is empty"}
	}

	keyID, ok := g.ring.VerifyDetached(moduleBytes, signature)
	if !ok {
		return nil, &IntegrityError{Code: IntegrityCodeSignature, Detail: "no ring key verifies the artifact signature"}
	}

	version, err := semver.NewVersion(declaredVersion)
	if err != nil {
		return nil, &IntegrityError{Code: IntegrityCodeMalformed, Detail: fmt.Sprintf("declared version %q is not semver", declaredVersion)}
	}
	if version.LessThan(g.floor) {
		return nil, &IntegrityError{
			Code:   IntegrityCodeVersion,
			Detail: fmt.Sprintf("version %s is below the floor %s", version, g.floor),
		}
	}

	// Interpreter mode keeps execution identical across architectures.
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	compiled, err := runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, &IntegrityError{Code: IntegrityCodeMalformed, Detail: fmt.Sprintf("compilation failed: %v", err)}
	}

	return &VerifiedModule{runtime: runtime, compiled: compiled, version: version, keyID: keyID}, nil
}

// Version returns the verified declared version.
func (m *VerifiedModule) Version() string { return m.version.String() }

// KeyID returns the ring key that verified the artifact.
func (m *VerifiedModule) KeyID() string { return m.keyID }

// Invoke runs the module once with input on stdin and returns stdout.
// Deny-by-default: no filesystem, no network, no environment, no
// clock, no randomness — the module is a pure function of its input.
func (m *VerifiedModule) Invoke(ctx context.Context, input []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_start").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := m.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("module invoke failed: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return nil, fmt.Errorf("module reported error: %s", stderr.String())
	}
	return stdout.Bytes(), nil
}

// Close releases the runtime.
func (m *VerifiedModule) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}
