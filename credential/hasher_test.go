package credential

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() HashConfig {
	return HashConfig{
		Memory:           8 * 1024,
		Time:             1,
		Parallelism:      1,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: 64,
	}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed: ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("expected wrong password to fail: ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify(strings.Repeat("a", 65), hash)
	if err != nil || ok {
		t.Fatalf("expected oversized password to fail: ok=%v err=%v", ok, err)
	}
}

func TestHashRejectsBadLengths(t *testing.T) {
	h := newTestHasher(t)

	if _, err := h.Hash("short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); err == nil {
		t.Fatal("expected long password to be rejected")
	}
	if _, err := h.Hash(strings.Repeat("b", 64)); err != nil {
		t.Fatalf("expected max-length password to be accepted: %v", err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newTestHasher(t)
	hash, err := h.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	bad := []string{
		"not-a-phc-hash",
		strings.Replace(hash, "$v=19$", "$v=18$", 1),
		strings.Replace(hash, "argon2id", "argon2i", 1),
		strings.Replace(hash, "m=8192", "m=1", 1),
		strings.Replace(hash, ",p=1", "", 1),
	}
	for _, enc := range bad {
		if _, err := h.Verify("version-test", enc); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("Verify(%q) expected ErrMalformedHash, got %v", enc, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newTestHasher(t)
	hash, err := weak.Hash("upgrade-me-please")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	strong, err := NewHasher(stronger)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	if need, err := strong.NeedsRehash(hash); err != nil || !need {
		t.Fatalf("expected rehash for weaker parameters: need=%v err=%v", need, err)
	}
	if need, err := weak.NeedsRehash(hash); err != nil || need {
		t.Fatalf("expected no rehash for current parameters: need=%v err=%v", need, err)
	}
}

func TestHashConfigValidate(t *testing.T) {
	if err := DefaultHashConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := fastConfig()
	cfg.Memory = 1024
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected low memory to be rejected")
	}
	cfg = fastConfig()
	cfg.SaltLength = 8
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected short salt to be rejected")
	}
}
