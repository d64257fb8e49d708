package shareddb

import (
	"context"
	"database/sql"
)

// -- user_keys ---------------------------------------------------------------

const createUserKey = `INSERT INTO user_keys (user_id, kek_version, encrypted_dek, created_at) VALUES (?, ?, ?, ?)`

type CreateUserKeyParams struct {
	UserID       string
	KekVersion   int64
	EncryptedDek []byte
	CreatedAt    int64
}

func (q *Queries) CreateUserKey(ctx context.Context, arg CreateUserKeyParams) error {
	_, err := q.db.ExecContext(ctx, createUserKey, arg.UserID, arg.KekVersion, arg.EncryptedDek, arg.CreatedAt)
	return err
}

const getUserKey = `SELECT user_id, kek_version, encrypted_dek, created_at, rotated_at FROM user_keys WHERE user_id = ?`

func (q *Queries) GetUserKey(ctx context.Context, userID string) (UserKey, error) {
	var k UserKey
	err := q.db.QueryRowContext(ctx, getUserKey, userID).Scan(
		&k.UserID, &k.KekVersion, &k.EncryptedDek, &k.CreatedAt, &k.RotatedAt,
	)
	return k, err
}

const updateUserKey = `UPDATE user_keys SET kek_version = ?, encrypted_dek = ?, rotated_at = ? WHERE user_id = ?`

type UpdateUserKeyParams struct {
	UserID       string
	KekVersion   int64
	EncryptedDek []byte
	RotatedAt    sql.NullInt64
}

func (q *Queries) UpdateUserKey(ctx context.Context, arg UpdateUserKeyParams) error {
	_, err := q.db.ExecContext(ctx, updateUserKey, arg.KekVersion, arg.EncryptedDek, arg.RotatedAt, arg.UserID)
	return err
}

const deleteUserKey = `DELETE FROM user_keys WHERE user_id = ?`

func (q *Queries) DeleteUserKey(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteUserKey, userID)
	return err
}

// -- share_links -------------------------------------------------------------

const createShareLink = `INSERT INTO share_links (token, user_id, note_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`

type CreateShareLinkParams struct {
	Token     string
	UserID    string
	NoteID    string
	ExpiresAt sql.NullInt64
	CreatedAt int64
}

func (q *Queries) CreateShareLink(ctx context.Context, arg CreateShareLinkParams) error {
	_, err := q.db.ExecContext(ctx, createShareLink, arg.Token, arg.UserID, arg.NoteID, arg.ExpiresAt, arg.CreatedAt)
	return err
}

const getShareLink = `SELECT token, user_id, note_id, expires_at, created_at FROM share_links WHERE token = ?`

func (q *Queries) GetShareLink(ctx context.Context, token string) (ShareLink, error) {
	var l ShareLink
	err := q.db.QueryRowContext(ctx, getShareLink, token).Scan(
		&l.Token, &l.UserID, &l.NoteID, &l.ExpiresAt, &l.CreatedAt,
	)
	return l, err
}

const listShareLinksForNote = `SELECT token, user_id, note_id, expires_at, created_at
FROM share_links WHERE user_id = ? AND note_id = ? ORDER BY created_at DESC`

func (q *Queries) ListShareLinksForNote(ctx context.Context, userID, noteID string) ([]ShareLink, error) {
	rows, err := q.db.QueryContext(ctx, listShareLinksForNote, userID, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ShareLink
	for rows.Next() {
		var l ShareLink
		if err := rows.Scan(&l.Token, &l.UserID, &l.NoteID, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

const deleteShareLink = `DELETE FROM share_links WHERE token = ? AND user_id = ?`

// DeleteShareLink removes a link owned by userID and reports whether it existed.
func (q *Queries) DeleteShareLink(ctx context.Context, token, userID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, deleteShareLink, token, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const deleteShareLinksForNote = `DELETE FROM share_links WHERE user_id = ? AND note_id = ?`

func (q *Queries) DeleteShareLinksForNote(ctx context.Context, userID, noteID string) error {
	_, err := q.db.ExecContext(ctx, deleteShareLinksForNote, userID, noteID)
	return err
}

const deleteShareLinksForUser = `DELETE FROM share_links WHERE user_id = ?`

func (q *Queries) DeleteShareLinksForUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteShareLinksForUser, userID)
	return err
}

const deleteExpiredShareLinks = `DELETE FROM share_links WHERE expires_at IS NOT NULL AND expires_at < ?`

func (q *Queries) DeleteExpiredShareLinks(ctx context.Context, before int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredShareLinks, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// -- reset_tokens ------------------------------------------------------------

const upsertResetToken = `INSERT INTO reset_tokens (token_hash, user_id, email, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(token_hash) DO UPDATE SET expires_at = excluded.expires_at`

type UpsertResetTokenParams struct {
	TokenHash string
	UserID    string
	Email     string
	ExpiresAt int64
	CreatedAt int64
}

func (q *Queries) UpsertResetToken(ctx context.Context, arg UpsertResetTokenParams) error {
	_, err := q.db.ExecContext(ctx, upsertResetToken, arg.TokenHash, arg.UserID, arg.Email, arg.ExpiresAt, arg.CreatedAt)
	return err
}

const getResetToken = `SELECT token_hash, user_id, email, expires_at, created_at FROM reset_tokens WHERE token_hash = ?`

func (q *Queries) GetResetToken(ctx context.Context, tokenHash string) (ResetToken, error) {
	var t ResetToken
	err := q.db.QueryRowContext(ctx, getResetToken, tokenHash).Scan(
		&t.TokenHash, &t.UserID, &t.Email, &t.ExpiresAt, &t.CreatedAt,
	)
	return t, err
}

const deleteResetToken = `DELETE FROM reset_tokens WHERE token_hash = ?`

func (q *Queries) DeleteResetToken(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx, deleteResetToken, tokenHash)
	return err
}

const deleteResetTokensForUser = `DELETE FROM reset_tokens WHERE user_id = ?`

func (q *Queries) DeleteResetTokensForUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteResetTokensForUser, userID)
	return err
}
