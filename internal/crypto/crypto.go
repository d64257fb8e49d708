// Package crypto wraps per-user database keys in envelope encryption.
//
// Each user database is encrypted with a random DEK. The DEK is stored in
// shared.db sealed with AES-256-GCM under a KEK that is derived from the
// server master key with HKDF-SHA256, so rotating a KEK never rewrites the
// user database itself.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DEKSize is the size of a data encryption key in bytes.
	DEKSize = 32

	// KEKSize is the size of a key encryption key in bytes.
	KEKSize = 32

	// NonceSize is the AES-GCM nonce size.
	NonceSize = 12

	gcmTagSize = 16
)

// DeriveKEK derives the KEK for (userID, version). Output is deterministic.
func DeriveKEK(masterKey []byte, userID string, version int) []byte {
	info := fmt.Sprintf("notefold:user:%s:kek:v%d", userID, version)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	kek := make([]byte, KEKSize)
	if _, err := io.ReadFull(r, kek); err != nil {
		panic(fmt.Sprintf("hkdf: %v", err))
	}
	return kek
}

// GenerateDEK returns a fresh random DEK.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("failed to generate DEK: %w", err)
	}
	return dek, nil
}

func newGCM(kek []byte) (cipher.AEAD, error) {
	if len(kek) != KEKSize {
		return nil, fmt.Errorf("KEK must be %d bytes, got %d", KEKSize, len(kek))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptDEK seals dek under kek. Output is nonce || ciphertext || tag.
func EncryptDEK(kek, dek []byte) ([]byte, error) {
	if len(dek) != DEKSize {
		return nil, fmt.Errorf("DEK must be %d bytes, got %d", DEKSize, len(dek))
	}
	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+DEKSize+gcmTagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, dek, nil), nil
}

// DecryptDEK opens a value produced by EncryptDEK.
func DecryptDEK(kek, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+gcmTagSize {
		return nil, fmt.Errorf("encrypted DEK too short: got %d bytes, need at least %d", len(sealed), NonceSize+gcmTagSize)
	}

	dek, err := gcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt DEK: %w", err)
	}
	return dek, nil
}
