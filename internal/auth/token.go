package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"
)

// Token verification errors.
var (
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrInvalidIssuer    = errors.New("auth: invalid token issuer")
	ErrTokenRevoked     = errors.New("auth: token revoked")
)

// Claims are the verified contents of a bearer token.
type Claims struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

type tokenClaims struct {
	jwt.Claims
	Email string `json:"email"`
}

// TokenIssuer signs and verifies EdDSA JWTs.
type TokenIssuer struct {
	issuer     string
	signingKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
	clock      Clock
}

// NewTokenIssuer derives an Ed25519 key from a 32-byte seed.
func NewTokenIssuer(seed []byte, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	key := ed25519.NewKeyFromSeed(seed)
	return &TokenIssuer{
		issuer:     issuer,
		signingKey: key,
		publicKey:  key.Public().(ed25519.PublicKey),
		ttl:        ttl,
		clock:      realClock{},
	}, nil
}

// SetClock replaces the clock. Intended for testing.
func (ti *TokenIssuer) SetClock(c Clock) {
	ti.clock = c
}

// TTL returns the lifetime of issued tokens.
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}

// Issue signs a new token for the user.
func (ti *TokenIssuer) Issue(userID, email string) (string, *Claims, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: ti.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", nil, fmt.Errorf("auth: create signer: %w", err)
	}

	now := ti.clock.Now().Truncate(time.Second)
	claims := tokenClaims{
		Claims: jwt.Claims{
			Issuer:   ti.issuer,
			Subject:  userID,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ti.ttl)),
		},
		Email: email,
	}

	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, &Claims{
		UserID:    userID,
		Email:     email,
		TokenID:   claims.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ti.ttl),
	}, nil
}

// Verify checks signature, issuer and expiry. Revocation is the caller's job.
func (ti *TokenIssuer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(parsed.Headers) != 1 || parsed.Headers[0].Algorithm != string(jose.EdDSA) {
		return nil, fmt.Errorf("%w: unexpected algorithm", ErrMalformedToken)
	}

	var claims tokenClaims
	if err := parsed.Claims(ti.publicKey, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if claims.Issuer != ti.issuer {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidIssuer, claims.Issuer)
	}
	if claims.Expiry == nil || claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrMalformedToken)
	}
	expiresAt := claims.Expiry.Time()
	if !ti.clock.Now().Before(expiresAt) {
		return nil, fmt.Errorf("%w: at %v", ErrTokenExpired, expiresAt)
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time()
	}
	return &Claims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		TokenID:   claims.ID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// generateSecureToken returns n random bytes, base64url encoded.
func generateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken is how one-time tokens are stored at rest.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
