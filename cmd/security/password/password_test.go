package password

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify_OK(t *testing.T) {
	cfg := FastConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if Identify(h) != SchemeArgon2id {
		t.Fatalf("expected argon2id hash, got %s", Identify(h))
	}

	ok, err := cfg.Verify(h, "this is a strong password 123!")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := FastConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "wrong password")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := FastConfig()

	ok, err := cfg.Verify("not-a-hash", "whatever")
	if err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if ok {
		t.Fatalf("expected false")
	}
}

func TestVerify_RefusesOversizedParams(t *testing.T) {
	cfg := FastConfig()
	// m is far above 2x the fast config.
	h := "$argon2id$v=19$m=1048576,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5"
	if _, err := cfg.Verify(h, "whatever"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestCheck_LegacySHA256(t *testing.T) {
	cfg := FastConfig()
	sum := sha256.Sum256([]byte("pw1"))
	stored := hex.EncodeToString(sum[:])

	res, err := cfg.Check(stored, "pw1")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !res.Match || !res.NeedsRehash {
		t.Fatalf("expected match with rehash, got %+v", res)
	}

	res, err = cfg.Check(stored, "pw2")
	if err != nil || res.Match {
		t.Fatalf("expected mismatch, got %+v err=%v", res, err)
	}
}

func TestCheck_LegacyBcrypt(t *testing.T) {
	cfg := FastConfig()
	b, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	res, err := cfg.Check(string(b), "hunter2hunter2")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !res.Match || !res.NeedsRehash {
		t.Fatalf("expected match with rehash, got %+v", res)
	}

	res, err = cfg.Check(string(b), "nope")
	if err != nil || res.Match {
		t.Fatalf("expected mismatch, got %+v err=%v", res, err)
	}
}

func TestCheck_CurrentArgonNeedsNoRehash(t *testing.T) {
	cfg := FastConfig()
	h, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	res, err := cfg.Check(h, "correct horse battery")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !res.Match || res.NeedsRehash {
		t.Fatalf("expected match without rehash, got %+v", res)
	}

	stronger := cfg
	stronger.Params.Iterations = 2
	res, err = stronger.Check(h, "correct horse battery")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !res.Match || !res.NeedsRehash {
		t.Fatalf("expected rehash after cost increase, got %+v", res)
	}
}

func TestCheck_Unknown(t *testing.T) {
	if _, err := FastConfig().Check("$md5$abc", "x"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true

	for _, pw := range []string{"password", "11111111", "Passwort", "aaaaaaaaaa"} {
		if err := cfg.Validate(pw); err != ErrWeakPassword {
			t.Fatalf("%q: expected ErrWeakPassword, got %v", pw, err)
		}
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
