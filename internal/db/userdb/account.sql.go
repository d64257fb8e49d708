package userdb

import (
	"context"
	"database/sql"
)

const accountColumns = `user_id, email, name, password_hash, created_at, updated_at, last_login`

func scanAccount(row interface{ Scan(...interface{}) error }) (Account, error) {
	var a Account
	err := row.Scan(&a.UserID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt, &a.LastLogin)
	return a, err
}

const createAccount = `INSERT INTO account (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, NULL)`

type CreateAccountParams struct {
	UserID       string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    int64
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) error {
	_, err := q.db.ExecContext(ctx, createAccount,
		arg.UserID, arg.Email, arg.Name, arg.PasswordHash, arg.CreatedAt, arg.CreatedAt)
	return err
}

const getAccount = `SELECT ` + accountColumns + ` FROM account WHERE user_id = ?`

func (q *Queries) GetAccount(ctx context.Context, userID string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccount, userID))
}

const getAccountByEmail = `SELECT ` + accountColumns + ` FROM account WHERE email = ?`

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccountByEmail, email))
}

const updateAccountName = `UPDATE account SET name = ?, updated_at = ? WHERE user_id = ?`

func (q *Queries) UpdateAccountName(ctx context.Context, userID, name string, updatedAt int64) error {
	_, err := q.db.ExecContext(ctx, updateAccountName, name, updatedAt, userID)
	return err
}

const updateAccountPasswordHash = `UPDATE account SET password_hash = ?, updated_at = ? WHERE user_id = ?`

func (q *Queries) UpdateAccountPasswordHash(ctx context.Context, userID, passwordHash string, updatedAt int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, updateAccountPasswordHash, passwordHash, updatedAt, userID))
}

const updateLastLogin = `UPDATE account SET last_login = ? WHERE user_id = ?`

func (q *Queries) UpdateLastLogin(ctx context.Context, userID string, at int64) error {
	_, err := q.db.ExecContext(ctx, updateLastLogin, sql.NullInt64{Int64: at, Valid: true}, userID)
	return err
}
