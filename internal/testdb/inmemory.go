// Package testdb opens throwaway in-memory databases with the production
// schemas, for tests in any package.
package testdb

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/kuitang/notefold/internal/db"
)

// DEK is the fixed data encryption key of every in-memory user database.
var DEK = bytes.Repeat([]byte{0x42}, 32)

var seq atomic.Int64

// Durability is irrelevant in memory; these keep property tests fast.
var fastPragmas = []string{
	"PRAGMA journal_mode=MEMORY",
	"PRAGMA synchronous=OFF",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA secure_delete=OFF",
}

// NewUserDBInMemory opens a fresh encrypted UserDB. Names are uniquified,
// so two calls with the same userID never share data.
func NewUserDBInMemory(userID string) (*db.UserDB, error) {
	if userID == "" {
		userID = "test-user"
	}
	params := url.Values{}
	params.Set("mode", "memory")
	params.Set("cache", "shared")
	params.Set("_pragma_cipher_page_size", "4096")
	params.Set("_foreign_keys", "on")
	// The key literal must not be percent-encoded.
	dsn := fmt.Sprintf("file:%s-%d?%s&_pragma_key=x'%s'", url.PathEscape(userID), seq.Add(1), params.Encode(), hex.EncodeToString(DEK))

	sqlDB, err := open(dsn, db.UserDBSchema)
	if err != nil {
		return nil, fmt.Errorf("in-memory user database: %w", err)
	}
	udb := db.NewUserDBFromSQL(userID, sqlDB)
	if err := udb.MigrateUserDB(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("in-memory user database: %w", err)
	}
	return udb, nil
}

// NewSharedDBInMemory opens a fresh unencrypted SharedDB.
func NewSharedDBInMemory() (*db.SharedDB, error) {
	sqlDB, err := open(fmt.Sprintf("file:shared-%d?mode=memory&cache=shared&_foreign_keys=on", seq.Add(1)), db.SharedDBSchema)
	if err != nil {
		return nil, fmt.Errorf("in-memory shared database: %w", err)
	}
	return db.NewSharedDBFromSQL(sqlDB), nil
}

// UserDB is NewUserDBInMemory for tests: it fails t on error and closes the
// database at cleanup.
func UserDB(t testing.TB, userID string) *db.UserDB {
	t.Helper()
	udb, err := NewUserDBInMemory(userID)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = udb.DB().Close() })
	return udb
}

// SharedDB is NewSharedDBInMemory for tests.
func SharedDB(t testing.TB) *db.SharedDB {
	t.Helper()
	shared, err := NewSharedDBInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = shared.DB().Close() })
	return shared
}

func open(dsn, schema string) (*sql.DB, error) {
	sqlDB, err := sql.Open(db.SQLiteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	// A shared-cache memory database is dropped with its last connection.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(0)

	// With SQLCipher a bad key only shows up on the first query.
	var version string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("verify: %w", err)
	}
	for _, pragma := range fastPragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return sqlDB, nil
}
