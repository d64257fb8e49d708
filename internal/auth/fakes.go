package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// FakeClock is a controllable Clock. Safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock frozen at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const fakeHashPrefix = "$fake-sha256$"

// FakeInsecureHasher is an unsalted SHA-256 PasswordHasher that skips the
// Argon2 cost. Tests only.
type FakeInsecureHasher struct{}

func (FakeInsecureHasher) HashPassword(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return fakeHashPrefix + hex.EncodeToString(sum[:]), nil
}

func (h FakeInsecureHasher) VerifyPassword(password, encodedHash string) bool {
	if !strings.HasPrefix(encodedHash, fakeHashPrefix) {
		return false
	}
	want, _ := h.HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(want), []byte(encodedHash)) == 1
}
