package auth

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func drawSeed(t *rapid.T, label string) []byte {
	return rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, label)
}

func testTokenIssuer_Roundtrip_Properties(t *rapid.T) {
	seed := drawSeed(t, "seed")
	ttl := time.Duration(rapid.IntRange(60, 30*24*3600).Draw(t, "ttl_seconds")) * time.Second
	userID := rapid.StringMatching(`user-[a-f0-9-]{1,36}`).Draw(t, "userID")
	email := rapid.StringMatching(`[a-z]{1,10}@[a-z]{1,10}\.com`).Draw(t, "email")

	issuer, err := NewTokenIssuer(seed, "https://notes.test", ttl)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	clock := NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer.SetClock(clock)

	token, issued, err := issuer.Issue(userID, email)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != userID || claims.Email != email || claims.TokenID != issued.TokenID {
		t.Fatalf("claims mismatch: got %+v want %+v", claims, issued)
	}
	if !claims.ExpiresAt.Equal(issued.ExpiresAt) {
		t.Fatalf("exp mismatch: %v vs %v", claims.ExpiresAt, issued.ExpiresAt)
	}

	clock.Advance(ttl)
	if _, err := issuer.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at exp, got %v", err)
	}
}

func TestTokenIssuer_Roundtrip_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testTokenIssuer_Roundtrip_Properties)
}

func FuzzTokenIssuer_Roundtrip_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testTokenIssuer_Roundtrip_Properties))
}

func testTokenIssuer_RejectsForeignKeys_Properties(t *rapid.T) {
	seedA := drawSeed(t, "seedA")
	seedB := drawSeed(t, "seedB")
	if bytes.Equal(seedA, seedB) {
		t.Skip("identical seeds")
	}
	a, err := NewTokenIssuer(seedA, "iss", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	b, err := NewTokenIssuer(seedB, "iss", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	token, _, err := a.Issue("user-1", "a@b.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestTokenIssuer_RejectsForeignKeys_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testTokenIssuer_RejectsForeignKeys_Properties)
}

func FuzzTokenIssuer_RejectsForeignKeys_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testTokenIssuer_RejectsForeignKeys_Properties))
}

func testTokenIssuer_RejectsGarbage_Properties(t *rapid.T) {
	issuer, err := NewTokenIssuer(bytes.Repeat([]byte{7}, 32), "iss", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	raw := rapid.OneOf(
		rapid.String(),
		rapid.StringMatching(`[A-Za-z0-9_-]{1,40}\.[A-Za-z0-9_-]{1,40}\.[A-Za-z0-9_-]{1,40}`),
	).Draw(t, "raw")
	if _, err := issuer.Verify(raw); err == nil {
		t.Fatalf("garbage token %q verified", raw)
	}
}

func TestTokenIssuer_RejectsGarbage_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testTokenIssuer_RejectsGarbage_Properties)
}

func FuzzTokenIssuer_RejectsGarbage_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testTokenIssuer_RejectsGarbage_Properties))
}

func TestTokenIssuer_TamperedPayload(t *testing.T) {
	t.Parallel()
	issuer, err := NewTokenIssuer(bytes.Repeat([]byte{1}, 32), "iss", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	token, _, err := issuer.Issue("user-1", "a@b.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other, _, err := issuer.Issue("user-2", "c@d.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p1 := strings.Split(token, ".")
	p2 := strings.Split(other, ".")
	spliced := p1[0] + "." + p2[1] + "." + p1[2]
	if _, err := issuer.Verify(spliced); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for spliced token, got %v", err)
	}
}

func TestTokenIssuer_WrongIssuer(t *testing.T) {
	t.Parallel()
	seed := bytes.Repeat([]byte{3}, 32)
	a, _ := NewTokenIssuer(seed, "https://a.test", time.Hour)
	b, _ := NewTokenIssuer(seed, "https://b.test", time.Hour)
	token, _, err := a.Issue("user-1", "a@b.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidIssuer) {
		t.Fatalf("expected ErrInvalidIssuer, got %v", err)
	}
}

func TestNewTokenIssuer_RejectsBadInput(t *testing.T) {
	t.Parallel()
	if _, err := NewTokenIssuer(make([]byte, 16), "iss", time.Hour); err == nil {
		t.Fatal("expected error for short seed")
	}
	if _, err := NewTokenIssuer(make([]byte, 32), "iss", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
