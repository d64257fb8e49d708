package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/notefold/internal/crypto"
	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/db/shareddb"
	"github.com/kuitang/notefold/internal/db/userdb"
	"github.com/kuitang/notefold/internal/email"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/obs"
)

const (
	// ResetTokenExpiry bounds how long a password reset link stays valid.
	ResetTokenExpiry = 15 * time.Minute

	maxNameLength = 200
)

var errInvalidCredentials = errs.New(errs.Unauthenticated, "invalid email or password")

// User is the public view of an account.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func userFromAccount(a userdb.Account) *User {
	u := &User{
		ID:        a.UserID,
		Email:     a.Email,
		Name:      a.Name,
		CreatedAt: time.UnixMilli(a.CreatedAt).UTC(),
	}
	if a.LastLogin.Valid {
		t := time.UnixMilli(a.LastLogin.Int64).UTC()
		u.LastLogin = &t
	}
	return u
}

// UserService owns account lifecycle: registration, credentials, profile and
// deletion. Account rows live in each user's encrypted database; the shared
// database only knows user ids.
type UserService struct {
	shared     *db.SharedDB
	keyManager *crypto.KeyManager
	email      email.EmailService
	hasher     PasswordHasher
	baseURL    string
	clock      Clock
	openUserDB func(userID string, dek []byte) (*db.UserDB, error)
	onDelete   []func(ctx context.Context, userID string) error
}

// NewUserService creates a user service backed by Argon2id hashing.
func NewUserService(shared *db.SharedDB, keyManager *crypto.KeyManager, emailSvc email.EmailService, baseURL string) *UserService {
	return &UserService{
		shared:     shared,
		keyManager: keyManager,
		email:      emailSvc,
		hasher:     Argon2Hasher{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		clock:      realClock{},
		openUserDB: db.OpenUserDBWithDEK,
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *UserService) SetClock(c Clock) {
	s.clock = c
}

// OnDelete registers cleanup that runs after an account is deleted. Hook
// errors are logged; the account is gone either way.
func (s *UserService) OnDelete(hook func(ctx context.Context, userID string) error) {
	s.onDelete = append(s.onDelete, hook)
}

// SetHasher replaces the password hasher. Intended for testing.
func (s *UserService) SetHasher(h PasswordHasher) {
	s.hasher = h
}

// NormalizeEmail trims and lower-cases an address and checks its syntax.
func NormalizeEmail(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return "", errs.New(errs.InvalidArgument, "email is required")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", errs.New(errs.InvalidArgument, "invalid email address")
	}
	return addr, nil
}

// generateUserID derives a stable id from the normalized email, so login can
// find the user's database without a lookup table.
func generateUserID(normalizedEmail string) string {
	return "user-" + uuid.NewSHA1(uuid.NameSpaceDNS, []byte(normalizedEmail)).String()
}

// Register creates an account. A DEK left behind by an interrupted
// registration is reused.
func (s *UserService) Register(ctx context.Context, emailAddr, password, name string) (*User, error) {
	addr, err := NormalizeEmail(emailAddr)
	if err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		return nil, errs.New(errs.InvalidArgument, "name is too long")
	}

	userID := generateUserID(addr)
	dek, err := s.keyManager.GetOrCreateUserDEK(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create user key", err)
	}
	udb, err := s.openUserDB(userID, dek)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "open user database", err)
	}

	if _, err := udb.Queries().GetAccount(ctx, userID); err == nil {
		return nil, errs.New(errs.AlreadyExists, "an account with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrap(errs.Internal, "check account", err)
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "hash password", err)
	}

	now := s.clock.Now()
	if err := udb.Queries().CreateAccount(ctx, userdb.CreateAccountParams{
		UserID:       userID,
		Email:        addr,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now.UnixMilli(),
	}); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, errs.New(errs.AlreadyExists, "an account with this email already exists")
		}
		return nil, errs.Wrap(errs.Internal, "create account", err)
	}

	logger := obs.From(ctx).With("pkg", "auth", "user_id", userID)
	logger.Info("user_registered")

	if err := s.email.Send(ctx, addr, email.TemplateWelcome, email.WelcomeData{Name: name, BaseURL: s.baseURL}); err != nil {
		logger.Warn("welcome_email_failed", "error", err)
	}

	return &User{ID: userID, Email: addr, Name: name, CreatedAt: time.UnixMilli(now.UnixMilli()).UTC()}, nil
}

// Authenticate checks credentials and records the login time. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (*User, error) {
	addr, err := NormalizeEmail(emailAddr)
	if err != nil {
		return nil, errInvalidCredentials
	}
	userID := generateUserID(addr)

	udb, err := s.OpenUserDB(ctx, userID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	account, err := udb.Queries().GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errInvalidCredentials
		}
		return nil, errs.Wrap(errs.Internal, "load account", err)
	}
	if !s.hasher.VerifyPassword(password, account.PasswordHash) {
		obs.From(ctx).Info("login_failed", "pkg", "auth", "user_id", userID)
		return nil, errInvalidCredentials
	}

	now := s.clock.Now().UnixMilli()
	if err := udb.Queries().UpdateLastLogin(ctx, userID, now); err != nil {
		obs.From(ctx).Warn("update_last_login_failed", "pkg", "auth", "user_id", userID, "error", err)
	}
	account.LastLogin = sql.NullInt64{Int64: now, Valid: true}
	return userFromAccount(account), nil
}

// OpenUserDB opens the database of an existing user. Returns not_found when
// the user has no key.
func (s *UserService) OpenUserDB(ctx context.Context, userID string) (*db.UserDB, error) {
	dek, err := s.keyManager.GetUserDEK(ctx, userID)
	if err != nil {
		if errors.Is(err, crypto.ErrUserKeyNotFound) {
			return nil, errs.Wrap(errs.NotFound, "user not found", err)
		}
		return nil, errs.Wrap(errs.Internal, "load user key", err)
	}
	udb, err := s.openUserDB(userID, dek)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "open user database", err)
	}
	return udb, nil
}

// GetUser loads the account from the user's database.
func (s *UserService) GetUser(ctx context.Context, udb *db.UserDB) (*User, error) {
	account, err := udb.Queries().GetAccount(ctx, udb.UserID())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "account not found")
		}
		return nil, errs.Wrap(errs.Internal, "load account", err)
	}
	return userFromAccount(account), nil
}

// UpdateName changes the display name.
func (s *UserService) UpdateName(ctx context.Context, udb *db.UserDB, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		return nil, errs.New(errs.InvalidArgument, "name is too long")
	}
	if err := udb.Queries().UpdateAccountName(ctx, udb.UserID(), name, s.clock.Now().UnixMilli()); err != nil {
		return nil, errs.Wrap(errs.Internal, "update name", err)
	}
	return s.GetUser(ctx, udb)
}

// ChangePassword requires the current password.
func (s *UserService) ChangePassword(ctx context.Context, udb *db.UserDB, current, next string) error {
	account, err := udb.Queries().GetAccount(ctx, udb.UserID())
	if err != nil {
		return errs.Wrap(errs.Internal, "load account", err)
	}
	if !s.hasher.VerifyPassword(current, account.PasswordHash) {
		return errs.New(errs.PermissionDenied, "current password is incorrect")
	}
	return s.setPassword(ctx, udb, next)
}

func (s *UserService) setPassword(ctx context.Context, udb *db.UserDB, password string) error {
	if err := ValidatePasswordStrength(password); err != nil {
		return err
	}
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return errs.Wrap(errs.Internal, "hash password", err)
	}
	n, err := udb.Queries().UpdateAccountPasswordHash(ctx, udb.UserID(), hash, s.clock.Now().UnixMilli())
	if err != nil {
		return errs.Wrap(errs.Internal, "update password", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "account not found")
	}
	return nil
}

// DeleteAccount removes the user's database file, key, share links and
// pending reset tokens. The user's tokens stay valid until they expire but
// no longer open a database.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	q := s.shared.Queries()
	if err := q.DeleteShareLinksForUser(ctx, userID); err != nil {
		return errs.Wrap(errs.Internal, "delete share links", err)
	}
	if err := q.DeleteResetTokensForUser(ctx, userID); err != nil {
		return errs.Wrap(errs.Internal, "delete reset tokens", err)
	}
	if err := db.RemoveUserDB(userID); err != nil {
		return errs.Wrap(errs.Internal, "remove user database", err)
	}
	if err := s.keyManager.DeleteUserKey(ctx, userID); err != nil {
		return errs.Wrap(errs.Internal, "delete user key", err)
	}
	for _, hook := range s.onDelete {
		if err := hook(ctx, userID); err != nil {
			obs.From(ctx).Warn("account_cleanup_failed", "pkg", "auth", "user_id", userID, "error", err)
		}
	}
	obs.From(ctx).Info("account_deleted", "pkg", "auth", "user_id", userID)
	return nil
}

// RequestPasswordReset emails a one-time link when the account exists. It
// reports success either way so callers cannot probe for accounts.
func (s *UserService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	addr, err := NormalizeEmail(emailAddr)
	if err != nil {
		return nil
	}
	userID := generateUserID(addr)
	logger := obs.From(ctx).With("pkg", "auth", "user_id", userID)

	udb, err := s.OpenUserDB(ctx, userID)
	if err != nil {
		if !errs.Is(err, errs.NotFound) {
			logger.Warn("password_reset_lookup_failed", "error", err)
		}
		return nil
	}
	if _, err := udb.Queries().GetAccount(ctx, userID); err != nil {
		return nil
	}

	token, err := generateSecureToken(32)
	if err != nil {
		return errs.Wrap(errs.Internal, "generate reset token", err)
	}
	now := s.clock.Now()
	if err := s.shared.Queries().UpsertResetToken(ctx, shareddb.UpsertResetTokenParams{
		TokenHash: hashToken(token),
		UserID:    userID,
		Email:     addr,
		ExpiresAt: now.Add(ResetTokenExpiry).UnixMilli(),
		CreatedAt: now.UnixMilli(),
	}); err != nil {
		return errs.Wrap(errs.Internal, "store reset token", err)
	}

	link := fmt.Sprintf("%s/reset?token=%s", s.baseURL, token)
	if err := s.email.Send(ctx, addr, email.TemplatePasswordReset, email.PasswordResetData{
		Link:      link,
		ExpiresIn: "15 minutes",
	}); err != nil {
		logger.Error("password_reset_email_failed", "error", err)
		return errs.Wrap(errs.Unavailable, "could not send reset email", err)
	}
	logger.Info("password_reset_requested")
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return errs.New(errs.InvalidArgument, "token is required")
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return err
	}

	q := s.shared.Queries()
	hashed := hashToken(token)
	rt, err := q.GetResetToken(ctx, hashed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.InvalidArgument, "invalid or expired token")
		}
		return errs.Wrap(errs.Internal, "load reset token", err)
	}
	if s.clock.Now().UnixMilli() >= rt.ExpiresAt {
		_ = q.DeleteResetToken(ctx, hashed)
		return errs.New(errs.InvalidArgument, "invalid or expired token")
	}

	udb, err := s.OpenUserDB(ctx, rt.UserID)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, udb, password); err != nil {
		return err
	}
	if err := q.DeleteResetTokensForUser(ctx, rt.UserID); err != nil {
		return errs.Wrap(errs.Internal, "consume reset token", err)
	}
	obs.From(ctx).Info("password_reset_completed", "pkg", "auth", "user_id", rt.UserID)
	return nil
}
