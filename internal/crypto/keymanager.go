package crypto

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/db/shareddb"
)

// ErrUserKeyNotFound is returned when a user has no stored DEK.
var ErrUserKeyNotFound = errors.New("user key not found")

// KeyManager stores and unwraps per-user DEKs.
type KeyManager struct {
	masterKey []byte
	shared    *db.SharedDB
	now       func() time.Time
}

// NewKeyManager returns a KeyManager backed by shared.db.
func NewKeyManager(masterKey []byte, shared *db.SharedDB) *KeyManager {
	return &KeyManager{
		masterKey: masterKey,
		shared:    shared,
		now:       time.Now,
	}
}

// GetOrCreateUserDEK returns the user's DEK, generating and storing one on
// first use.
func (km *KeyManager) GetOrCreateUserDEK(ctx context.Context, userID string) ([]byte, error) {
	dek, err := km.GetUserDEK(ctx, userID)
	if err == nil {
		return dek, nil
	}
	if !errors.Is(err, ErrUserKeyNotFound) {
		return nil, err
	}

	dek, err = GenerateDEK()
	if err != nil {
		return nil, err
	}

	const kekVersion = 1
	sealed, err := EncryptDEK(DeriveKEK(km.masterKey, userID, kekVersion), dek)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt DEK: %w", err)
	}

	err = km.shared.Queries().CreateUserKey(ctx, shareddb.CreateUserKeyParams{
		UserID:       userID,
		KekVersion:   kekVersion,
		EncryptedDek: sealed,
		CreatedAt:    km.now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store user key: %w", err)
	}
	return dek, nil
}

// GetUserDEK returns ErrUserKeyNotFound when the user has no key.
func (km *KeyManager) GetUserDEK(ctx context.Context, userID string) ([]byte, error) {
	key, err := km.shared.Queries().GetUserKey(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserKeyNotFound
		}
		return nil, fmt.Errorf("failed to get user key: %w", err)
	}

	kek := DeriveKEK(km.masterKey, userID, int(key.KekVersion))
	return DecryptDEK(kek, key.EncryptedDek)
}

// RotateUserKEK re-seals the user's DEK under the next KEK version. The DEK
// itself is unchanged.
func (km *KeyManager) RotateUserKEK(ctx context.Context, userID string) error {
	key, err := km.shared.Queries().GetUserKey(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserKeyNotFound
		}
		return fmt.Errorf("failed to get user key: %w", err)
	}

	dek, err := DecryptDEK(DeriveKEK(km.masterKey, userID, int(key.KekVersion)), key.EncryptedDek)
	if err != nil {
		return fmt.Errorf("failed to decrypt current DEK: %w", err)
	}

	next := key.KekVersion + 1
	sealed, err := EncryptDEK(DeriveKEK(km.masterKey, userID, int(next)), dek)
	if err != nil {
		return fmt.Errorf("failed to encrypt DEK with new KEK: %w", err)
	}

	err = km.shared.Queries().UpdateUserKey(ctx, shareddb.UpdateUserKeyParams{
		UserID:       userID,
		KekVersion:   next,
		EncryptedDek: sealed,
		RotatedAt:    sql.NullInt64{Int64: km.now().UnixMilli(), Valid: true},
	})
	if err != nil {
		return fmt.Errorf("failed to update user key: %w", err)
	}
	return nil
}

// DeleteUserKey forgets the user's DEK. Without it the user database is
// unreadable.
func (km *KeyManager) DeleteUserKey(ctx context.Context, userID string) error {
	if err := km.shared.Queries().DeleteUserKey(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user key: %w", err)
	}
	return nil
}
