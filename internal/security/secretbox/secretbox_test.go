package secretbox_test

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"

	"github.com/dropDatabas3/signon/internal/security/secretbox"
)

func setTestKey(t *testing.T, seed byte) {
	t.Helper()
	secretbox.UnsafeResetForTests()

	raw := make([]byte, 32)
	for i := 0; i < 32; i++ {
		raw[i] = byte(i) + seed
	}
	os.Setenv("SECRETBOX_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))
	t.Cleanup(func() {
		os.Unsetenv("SECRETBOX_MASTER_KEY")
		secretbox.UnsafeResetForTests()
	})
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	// Sin t.Parallel() por el reset global
	setTestKey(t, 1)

	msg := "hola mundo ✓ — secreto"
	ct, err := secretbox.Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	if !secretbox.LooksEncrypted(ct) {
		t.Fatalf("LooksEncrypted(%q) = false", ct)
	}
	pt, err := secretbox.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt err: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	setTestKey(t, 100)

	ct, err := secretbox.Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	// corromper un byte del ciphertext (base64 -> bytes -> flip -> base64)
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := secretbox.Decrypt(corrupted); err == nil {
		t.Fatalf("expected auth error, got nil")
	}
}

func TestLooksEncrypted_PlainText(t *testing.T) {
	if secretbox.LooksEncrypted("just-a-plain-secret") {
		t.Fatalf("plain secret flagged as encrypted")
	}
}
