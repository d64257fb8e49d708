package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kuitang/notefold/internal/db/shareddb"
	"github.com/kuitang/notefold/internal/db/userdb"
)

const (
	// DefaultDataDirectory is the default root directory for all database files
	DefaultDataDirectory = "./data"

	// SharedDBName is the filename for the shared bootstrap database
	SharedDBName = "shared.db"

	// MaxOpenConns is the maximum number of open connections for the shared database.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections for the shared database
	MaxIdleConns = 2

	// UserDBMaxOpenConns is the maximum open connections per user database.
	UserDBMaxOpenConns = 2

	// UserDBMaxIdleConns is the maximum idle connections per user database
	UserDBMaxIdleConns = 1
)

// ErrInvalidUserID is returned for user ids that are unsafe as file names.
var ErrInvalidUserID = errors.New("invalid user id")

var (
	// DataDirectory is the actual data directory being used (can be overridden for tests)
	DataDirectory = DefaultDataDirectory
)

var (
	sharedDB     *sql.DB
	sharedDBOnce sync.Once
	sharedDBErr  error

	// userDBs caches per-user database connections
	userDBs   = make(map[string]*sql.DB)
	userDBsMu sync.RWMutex
)

// SharedDB wraps the shared bootstrap database.
type SharedDB struct {
	db      *sql.DB
	queries *shareddb.Queries
}

// UserDB wraps one user's encrypted database.
type UserDB struct {
	db      *sql.DB
	queries *userdb.Queries
	userID  string
}

// NewSharedDBFromSQL wraps an existing sql.DB as SharedDB.
func NewSharedDBFromSQL(sqlDB *sql.DB) *SharedDB {
	return &SharedDB{
		db:      sqlDB,
		queries: shareddb.New(sqlDB),
	}
}

// NewUserDBFromSQL wraps an existing sql.DB as UserDB.
func NewUserDBFromSQL(userID string, sqlDB *sql.DB) *UserDB {
	return &UserDB{
		db:      sqlDB,
		queries: userdb.New(sqlDB),
		userID:  userID,
	}
}

// DB returns the underlying sql.DB for direct access when needed
func (s *SharedDB) DB() *sql.DB {
	return s.db
}

// Queries returns the typed queries for the shared database.
func (s *SharedDB) Queries() *shareddb.Queries {
	return s.queries
}

// DB returns the underlying sql.DB for direct access when needed
func (u *UserDB) DB() *sql.DB {
	return u.db
}

// Queries returns the typed queries for the user database.
func (u *UserDB) Queries() *userdb.Queries {
	return u.queries
}

// UserID returns the user ID for this database
func (u *UserDB) UserID() string {
	return u.userID
}

// MigrateUserDB applies idempotent schema migrations to an existing user database.
func (u *UserDB) MigrateUserDB() error {
	return migrate(u.db, UserDBMigrations)
}

func migrate(sqlDB *sql.DB, migrations string) error {
	for _, stmt := range strings.Split(migrations, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := sqlDB.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// OpenSharedDB opens the shared database (unencrypted).
// The connection is cached as a singleton and reused across calls.
func OpenSharedDB() (*SharedDB, error) {
	sharedDBOnce.Do(func() {
		if err := os.MkdirAll(DataDirectory, 0750); err != nil {
			sharedDBErr = fmt.Errorf("failed to create data directory: %w", err)
			return
		}

		dbPath := filepath.Join(DataDirectory, SharedDBName)
		dsn := appendSQLiteParams(dbPath, sqliteCommonParams())

		db, err := sql.Open(SQLiteDriverName, dsn)
		if err != nil {
			sharedDBErr = fmt.Errorf("failed to open shared database: %w", err)
			return
		}

		db.SetMaxOpenConns(MaxOpenConns)
		db.SetMaxIdleConns(MaxIdleConns)

		if err := db.Ping(); err != nil {
			db.Close()
			sharedDBErr = fmt.Errorf("failed to ping shared database: %w", err)
			return
		}

		if _, err := db.Exec(SharedDBSchema); err != nil {
			db.Close()
			sharedDBErr = fmt.Errorf("failed to initialize shared schema: %w", err)
			return
		}

		sharedDB = db
	})

	if sharedDBErr != nil {
		return nil, sharedDBErr
	}
	return NewSharedDBFromSQL(sharedDB), nil
}

// ValidateUserID rejects ids that could escape DataDirectory.
func ValidateUserID(userID string) error {
	if userID == "" || strings.ContainsAny(userID, "/\\\x00") || strings.Contains(userID, "..") {
		return ErrInvalidUserID
	}
	return nil
}

// UserDBPath returns the on-disk location of a user's database.
func UserDBPath(userID string) string {
	return filepath.Join(DataDirectory, userID+".db")
}

// OpenUserDBWithDEK opens a per-user encrypted database with the DEK from the KeyManager.
// Connections are cached per user.
func OpenUserDBWithDEK(userID string, dek []byte) (*UserDB, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if len(dek) != 32 {
		return nil, fmt.Errorf("DEK must be exactly 32 bytes, got %d", len(dek))
	}

	userDBsMu.RLock()
	if db, exists := userDBs[userID]; exists {
		userDBsMu.RUnlock()
		return NewUserDBFromSQL(userID, db), nil
	}
	userDBsMu.RUnlock()

	userDBsMu.Lock()
	defer userDBsMu.Unlock()

	if db, exists := userDBs[userID]; exists {
		return NewUserDBFromSQL(userID, db), nil
	}

	if err := os.MkdirAll(DataDirectory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dekHex := hex.EncodeToString(dek)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", UserDBPath(userID), dekHex)
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	db, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open user database for %s: %w", userID, err)
	}

	db.SetMaxOpenConns(UserDBMaxOpenConns)
	db.SetMaxIdleConns(UserDBMaxIdleConns)

	// A wrong key surfaces here, not at Open.
	var sqliteVersion string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify user database connection for %s: %w", userID, err)
	}

	if _, err := db.Exec(UserDBSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize user schema for %s: %w", userID, err)
	}

	udb := NewUserDBFromSQL(userID, db)
	if err := udb.MigrateUserDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate user schema for %s: %w", userID, err)
	}

	userDBs[userID] = db
	return udb, nil
}

// RemoveUserDB closes the cached connection for userID and deletes its files.
func RemoveUserDB(userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	userDBsMu.Lock()
	if db, ok := userDBs[userID]; ok {
		_ = db.Close()
		delete(userDBs, userID)
	}
	userDBsMu.Unlock()

	path := UserDBPath(userID)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// CloseAll closes all open database connections.
// This should be called during graceful shutdown.
func CloseAll() error {
	var firstErr error

	if sharedDB != nil {
		if err := sharedDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close shared database: %w", err)
		}
		sharedDB = nil
	}

	userDBsMu.Lock()
	defer userDBsMu.Unlock()

	for userID, db := range userDBs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close user database for %s: %w", userID, err)
		}
	}
	userDBs = make(map[string]*sql.DB)

	return firstErr
}

// ResetForTesting closes all connections and resets the singleton state.
func ResetForTesting() {
	CloseAll()

	sharedDBOnce = sync.Once{}
	sharedDB = nil
	sharedDBErr = nil
}

func sqliteCommonParams() string {
	// WAL + NORMAL gives good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// Close closes the SharedDB connection.
func (s *SharedDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Close closes the UserDB connection. Only needed for in-memory databases
// that are not cached by the package.
func (u *UserDB) Close() error {
	if u.db != nil {
		return u.db.Close()
	}
	return nil
}

// WithTx runs fn inside a transaction on the user database. The transaction
// commits when fn returns nil and rolls back otherwise.
func (u *UserDB) WithTx(ctx context.Context, fn func(q *userdb.Queries) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(u.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
