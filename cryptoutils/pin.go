package cryptoutils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for PIN digests: time=1, memory=64MiB, threads=4,
// keyLen=32. Shared by every backend so digests remain portable.
const (
	pinTime    = 1
	pinMemory  = 64 * 1024
	pinThreads = 4
	pinKeyLen  = 32

	pinSaltLen = 16
)

// HashPIN derives an Argon2id digest for a PIN with a fresh random salt.
// The result is a self-describing string "argon2id$<salt-hex>$<key-hex>"
// suitable for storage outside the secure element.
func HashPIN(pin string) (string, error) {
	salt := make([]byte, pinSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating PIN salt: %w", err)
	}

	key := argon2.IDKey([]byte(pin), salt, pinTime, pinMemory, pinThreads, pinKeyLen)
	return fmt.Sprintf("argon2id$%s$%s", hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

// VerifyPIN checks a PIN against a digest produced by HashPIN. The key
// comparison is constant time.
func VerifyPIN(digest, pin string) (bool, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return false, errors.New("malformed PIN digest")
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("malformed PIN digest salt: %w", err)
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("malformed PIN digest key: %w", err)
	}

	got := argon2.IDKey([]byte(pin), salt, pinTime, pinMemory, pinThreads, uint32(len(want)))
	defer Zeroize(got)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// Zeroize overwrites a sensitive buffer. PIN and decoded secret buffers are
// zeroed before their operation frame is released.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
