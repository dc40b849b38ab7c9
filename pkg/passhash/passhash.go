// Package passhash derives and verifies one-way passcode hashes for the chat
// lock using Argon2id.
//
// The original client-side feature stored the passcode with a reversible text
// encoding. This package deliberately replaces that with a salted one-way hash
// following OWASP parameter recommendations, even though the passcode space is
// small (10,000 four-digit combinations).
package passhash

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// HashLength is the length of the derived hash in bytes.
	HashLength = 32

	// SaltLength is the length of salts in bytes (128 bits).
	SaltLength = 16
)

// ErrInvalidSaltLength indicates the salt is not 16 bytes.
var ErrInvalidSaltLength = errors.New("passhash: invalid salt length, must be 16 bytes")

// Hash derives a salted Argon2id hash from a passcode. A fresh random salt is
// generated for every call and must be stored alongside the hash.
func Hash(passcode string) (hash, salt []byte, err error) {
	salt = make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("passhash: failed to generate salt: %w", err)
	}
	hash = argon2.IDKey([]byte(passcode), salt, Argon2Time, Argon2Memory, Argon2Threads, HashLength)
	return hash, salt, nil
}

// Verify reports whether the passcode matches the stored hash/salt pair.
// The comparison is constant-time.
func Verify(passcode string, salt, hash []byte) (bool, error) {
	if len(salt) != SaltLength {
		return false, ErrInvalidSaltLength
	}
	derived := argon2.IDKey([]byte(passcode), salt, Argon2Time, Argon2Memory, Argon2Threads, HashLength)
	defer SecureWipe(derived)
	return subtle.ConstantTimeCompare(derived, hash) == 1, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
