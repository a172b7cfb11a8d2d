package security

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"

	"github.com/pofara/identity-service/internal/core/port"
)

func testHasher(t *testing.T) *Argon2Hasher {
	t.Helper()

	// Low-cost parameters keep the test fast while staying above the
	// validation floor.
	hasher, err := NewArgon2Hasher(port.Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("failed to create hasher: %v", err)
	}
	return hasher
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher := testHasher(t)

	encoded, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	if !strings.HasPrefix(encoded, "argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := hasher.Verify("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected matching password to verify")
	}

	ok, err = hasher.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestArgon2HashesAreSalted(t *testing.T) {
	hasher := testHasher(t)

	first, err := hasher.Hash("same password")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	second, err := hasher.Hash("same password")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	if first == second {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestArgon2VerifyHonoursEmbeddedParams(t *testing.T) {
	// Hash with one parameter set, verify with another: the encoded
	// parameters must win.
	origin := testHasher(t)
	encoded, err := origin.Hash("parameter drift")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	verifier, err := NewArgon2Hasher(port.Argon2Params{
		Memory:      16 * 1024,
		Iterations:  2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	ok, err := verifier.Verify("parameter drift", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected verification against embedded parameters to succeed")
	}
}

func TestArgon2VerifyLegacyFormat(t *testing.T) {
	hasher := testHasher(t)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}
	sum := argon2.IDKey([]byte("legacy password"), salt, 1, 64*1024, 4, 32)

	legacy := base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(sum)

	ok, err := hasher.Verify("legacy password", legacy)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected legacy salt:hash format to verify")
	}
}

func TestArgon2VerifyRejectsMalformedHash(t *testing.T) {
	hasher := testHasher(t)

	if _, err := hasher.Verify("password", "not-a-valid-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
	if _, err := hasher.Verify("password", "argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA"); err == nil {
		t.Fatal("expected error for unexpected variant")
	}
}

func TestArgon2VerifyEmptyInputs(t *testing.T) {
	hasher := testHasher(t)

	if ok, err := hasher.Verify("", "anything"); err != nil || ok {
		t.Fatalf("expected empty password to fail without error, got ok=%v err=%v", ok, err)
	}
	if ok, err := hasher.Verify("password", ""); err != nil || ok {
		t.Fatalf("expected empty hash to fail without error, got ok=%v err=%v", ok, err)
	}
}

func TestNewArgon2HasherValidatesParams(t *testing.T) {
	cases := []struct {
		name   string
		params port.Argon2Params
	}{
		{"low memory", port.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}},
		{"zero iterations", port.Argon2Params{Memory: 8192, Iterations: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32}},
		{"zero parallelism", port.Argon2Params{Memory: 8192, Iterations: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32}},
		{"short salt", port.Argon2Params{Memory: 8192, Iterations: 1, Parallelism: 1, SaltLength: 4, KeyLength: 32}},
		{"short key", port.Argon2Params{Memory: 8192, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewArgon2Hasher(tc.params); err == nil {
				t.Fatal("expected parameter validation error")
			}
		})
	}
}
