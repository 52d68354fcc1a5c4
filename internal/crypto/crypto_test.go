// Package crypto tests the token-at-rest cipher.
package crypto

import (
	"strings"
	"testing"
)

// TestEncryptDecryptRoundTrip tests a token survives the round trip.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := DeriveKey("device-1234")
	token := "eyJhbGciOiJIUzI1NiJ9.access-token-body.signature"

	ciphertext, err := EncryptString(token, key)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if strings.Contains(ciphertext, "access-token-body") {
		t.Fatal("Ciphertext leaks plaintext")
	}

	plaintext, err := DecryptString(ciphertext, key)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if plaintext != token {
		t.Errorf("Round trip changed the token: %q", plaintext)
	}
}

// TestEncryptionIsRandomized tests two encryptions of the same plaintext
// differ (fresh nonce per call).
func TestEncryptionIsRandomized(t *testing.T) {
	key := DeriveKey("device-1234")

	a, err := EncryptString("refresh-token", key)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	b, err := EncryptString("refresh-token", key)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if a == b {
		t.Error("Expected distinct ciphertexts for the same plaintext")
	}
}

// TestWrongKeyFails tests decryption with another device's key fails
// cleanly instead of yielding garbage.
func TestWrongKeyFails(t *testing.T) {
	ciphertext, err := EncryptString("refresh-token", DeriveKey("device-a"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	if _, err := DecryptString(ciphertext, DeriveKey("device-b")); err != ErrInvalidCiphertext {
		t.Errorf("Expected ErrInvalidCiphertext, got %v", err)
	}
}

// TestTamperedCiphertextFails tests GCM authentication rejects modified
// ciphertext.
func TestTamperedCiphertextFails(t *testing.T) {
	key := DeriveKey("device-1234")
	ciphertext, err := EncryptString("refresh-token", key)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	tampered := "A" + ciphertext[1:]
	if tampered == ciphertext {
		tampered = "B" + ciphertext[1:]
	}
	if _, err := DecryptString(tampered, key); err != ErrInvalidCiphertext {
		t.Errorf("Expected ErrInvalidCiphertext, got %v", err)
	}
}

// TestEmptyKeyRejected tests the cipher refuses an empty key rather than
// silently using a weak one.
func TestEmptyKeyRejected(t *testing.T) {
	if _, err := EncryptString("token", nil); err != ErrInvalidKey {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
	if _, err := DecryptString("whatever", nil); err != ErrInvalidKey {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

// TestDeriveKeyStable tests key derivation is deterministic per device and
// distinct across devices.
func TestDeriveKeyStable(t *testing.T) {
	a := DeriveKey("device-a")
	if len(a) != 32 {
		t.Fatalf("Expected 32-byte key, got %d", len(a))
	}
	if string(a) != string(DeriveKey("device-a")) {
		t.Error("Expected stable derivation")
	}
	if string(a) == string(DeriveKey("device-b")) {
		t.Error("Expected distinct keys per device")
	}
}
