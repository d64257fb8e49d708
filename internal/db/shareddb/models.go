package shareddb

import "database/sql"

type UserKey struct {
	UserID       string
	KekVersion   int64
	EncryptedDek []byte
	CreatedAt    int64
	RotatedAt    sql.NullInt64
}

type ShareLink struct {
	Token     string
	UserID    string
	NoteID    string
	ExpiresAt sql.NullInt64
	CreatedAt int64
}

type ResetToken struct {
	TokenHash string
	UserID    string
	Email     string
	ExpiresAt int64
	CreatedAt int64
}
