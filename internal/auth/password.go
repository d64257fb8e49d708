package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/kuitang/notefold/internal/errs"
)

// Argon2id parameters (OWASP: m=19456, t=2, p=1). Parameters are encoded in
// each hash, so changing them here does not break existing hashes.
const (
	argon2Time    = 2
	argon2Memory  = 19 * 1024
	argon2Threads = 1
	argon2KeyLen  = 32
	argon2SaltLen = 16

	// MinPasswordLength is counted in characters, not bytes.
	MinPasswordLength = 8
	maxPasswordLength = 1024
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, encodedHash string) bool
}

// Argon2Hasher is the production PasswordHasher.
type Argon2Hasher struct{}

func (Argon2Hasher) HashPassword(password string) (string, error) { return HashPassword(password) }

func (Argon2Hasher) VerifyPassword(password, encodedHash string) bool {
	return VerifyPassword(password, encodedHash)
}

// ValidatePasswordStrength enforces the length bounds.
func ValidatePasswordStrength(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return errs.New(errs.InvalidArgument, "password is too long")
	}
	return nil
}

// HashPassword hashes a password with Argon2id into
// $argon2id$v=19$m=..,t=..,p=..$<salt>$<hash>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyPassword checks password against an encoded Argon2id hash.
func VerifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return false
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	if memory == 0 || time == 0 || threads == 0 || memory > 256*1024 || time > 16 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > argon2KeyLen*2 {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1
}
