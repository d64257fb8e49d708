package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/obs"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	userDBKey contextKey = "userDB"
	claimsKey contextKey = "claims"
)

// Middleware authenticates requests by bearer token or token cookie.
type Middleware struct {
	issuer    *TokenIssuer
	blacklist Blacklist
	users     *UserService
}

func NewMiddleware(issuer *TokenIssuer, blacklist Blacklist, users *UserService) *Middleware {
	return &Middleware{issuer: issuer, blacklist: blacklist, users: users}
}

// Authenticate verifies a raw token, checks revocation, and opens the
// caller's database.
func (m *Middleware) Authenticate(ctx context.Context, token string) (*Claims, *db.UserDB, error) {
	if token == "" {
		return nil, nil, errs.New(errs.Unauthenticated, "authentication required")
	}
	claims, err := m.issuer.Verify(token)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, ErrTokenExpired) {
			msg = "token expired"
		}
		return nil, nil, errs.Wrap(errs.Unauthenticated, msg, err)
	}
	revoked, err := m.blacklist.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, nil, errs.Wrap(errs.Unavailable, "token check unavailable", err)
	}
	if revoked {
		return nil, nil, errs.Wrap(errs.Unauthenticated, "token revoked", ErrTokenRevoked)
	}
	udb, err := m.users.OpenUserDB(ctx, claims.UserID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, nil, errs.Wrap(errs.Unauthenticated, "account no longer exists", err)
		}
		return nil, nil, err
	}
	return claims, udb, nil
}

// RequireAuth rejects unauthenticated requests with 401.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, udb, err := m.Authenticate(r.Context(), TokenFromRequest(r))
		if err != nil {
			code := errs.CodeOf(err)
			if code == errs.Unauthenticated {
				w.Header().Set("WWW-Authenticate", `Bearer realm="notefold"`)
			} else {
				obs.From(r.Context()).Error("auth_middleware_failed", "pkg", "auth", "error", err)
			}
			writeError(w, err)
			return
		}
		ctx := WithUser(r.Context(), claims, udb)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithUser stores the authenticated identity in ctx.
func WithUser(ctx context.Context, claims *Claims, udb *db.UserDB) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	ctx = context.WithValue(ctx, userIDKey, udb.UserID())
	ctx = context.WithValue(ctx, userDBKey, udb)
	return obs.WithUserID(ctx, udb.UserID())
}

// GetUserID returns "" when the request is unauthenticated.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// GetUserDB returns nil when the request is unauthenticated.
func GetUserDB(ctx context.Context) *db.UserDB {
	userDB, _ := ctx.Value(userDBKey).(*db.UserDB)
	return userDB
}

// GetClaims returns the verified token claims, or nil.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	writeJSON(w, errs.HTTPStatus(code), map[string]string{
		"error": errs.MessageOf(err),
		"code":  string(code),
	})
}
