package db

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/kuitang/notefold/internal/db/shareddb"
	"github.com/kuitang/notefold/internal/db/testutil"
	"github.com/kuitang/notefold/internal/db/userdb"
	"pgregory.net/rapid"
)

var testDataRoot string
var testDEKCounter uint64

func testDEK() []byte {
	n := atomic.AddUint64(&testDEKCounter, 1)
	return bytes.Repeat([]byte{byte(n%250) + 1}, 32)
}

// TestMain runs before all tests and cleans up after.
func TestMain(m *testing.M) {
	root, err := os.MkdirTemp("", "notefold-db-testdata-")
	if err != nil {
		panic(fmt.Sprintf("failed to create db test temp root: %v", err))
	}
	testDataRoot = root

	code := m.Run()

	CloseAll()
	_ = os.RemoveAll(testDataRoot)
	os.Exit(code)
}

func setupTestDir(t testing.TB) string {
	ResetForTesting()
	testDir, err := os.MkdirTemp(testDataRoot, "test-")
	if err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}
	DataDirectory = testDir
	return testDir
}

func setupTestDirRapid(t *rapid.T) string {
	ResetForTesting()
	testDir, err := os.MkdirTemp(testDataRoot, "rapid-")
	if err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}
	DataDirectory = testDir
	return testDir
}

// =============================================================================
// Property: SharedDB is a singleton with the expected tables
// =============================================================================

func testSharedDB_Singleton_Properties(t *rapid.T) {
	setupTestDirRapid(t)
	ctx := context.Background()

	db1, err := OpenSharedDB()
	if err != nil {
		t.Fatalf("OpenSharedDB failed: %v", err)
	}
	db2, err := OpenSharedDB()
	if err != nil {
		t.Fatalf("second OpenSharedDB failed: %v", err)
	}
	if db1.DB() != db2.DB() {
		t.Fatal("OpenSharedDB returned different connections")
	}

	for _, table := range []string{"user_keys", "share_links", "reset_tokens"} {
		var name string
		err := db1.DB().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}

	userID := testutil.ValidUserID().Draw(t, "userID")
	token := rapid.StringMatching(`[A-Za-z0-9_-]{22}`).Draw(t, "token")
	err = db1.Queries().CreateShareLink(ctx, shareddb.CreateShareLinkParams{
		Token:     token,
		UserID:    userID,
		NoteID:    "note-1",
		CreatedAt: 1,
	})
	if err != nil {
		t.Fatalf("CreateShareLink failed: %v", err)
	}
	got, err := db2.Queries().GetShareLink(ctx, token)
	if err != nil {
		t.Fatalf("GetShareLink through second handle failed: %v", err)
	}
	if got.UserID != userID || got.ExpiresAt.Valid {
		t.Fatalf("share link mismatch: %+v", got)
	}
}

func TestSharedDB_Singleton_Properties(t *testing.T) {
	rapid.Check(t, testSharedDB_Singleton_Properties)
}

// =============================================================================
// Property: user ids that could escape the data directory are rejected
// =============================================================================

func testValidateUserID_Properties(t *rapid.T) {
	id := testutil.ArbitraryUserID().Draw(t, "userID")
	err := ValidateUserID(id)

	unsafe := id == "" || bytes.ContainsAny([]byte(id), "/\\\x00") || bytes.Contains([]byte(id), []byte(".."))
	if unsafe && err == nil {
		t.Fatalf("ValidateUserID(%q) accepted an unsafe id", id)
	}
	if !unsafe && err != nil {
		t.Fatalf("ValidateUserID(%q) rejected a safe id: %v", id, err)
	}
	if err == nil && filepath.Dir(UserDBPath(id)) != filepath.Clean(DataDirectory) {
		t.Fatalf("UserDBPath(%q) escaped the data directory", id)
	}
}

func TestValidateUserID_Properties(t *testing.T) {
	rapid.Check(t, testValidateUserID_Properties)
}

func FuzzValidateUserID_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testValidateUserID_Properties))
}

// =============================================================================
// Property: user databases are cached, isolated, and reopen with the same DEK
// =============================================================================

func testUserDB_Isolation_Properties(t *rapid.T) {
	setupTestDirRapid(t)
	ctx := context.Background()

	n := rapid.IntRange(2, 4).Draw(t, "users")
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%d", i)
		udb, err := OpenUserDBWithDEK(ids[i], testDEK())
		if err != nil {
			t.Fatalf("OpenUserDBWithDEK(%s) failed: %v", ids[i], err)
		}
		err = udb.Queries().CreateNote(ctx, userdb.CreateNoteParams{
			ID:        "note-" + ids[i],
			Title:     ids[i],
			NoteType:  "text",
			CreatedAt: int64(i),
		})
		if err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	for i, id := range ids {
		udb, err := OpenUserDBWithDEK(id, testDEK())
		if err != nil {
			t.Fatalf("reopen %s failed: %v", id, err)
		}
		notes, err := udb.Queries().ListNotes(ctx, userdb.ListNotesParams{})
		if err != nil {
			t.Fatalf("ListNotes failed: %v", err)
		}
		if len(notes) != 1 || notes[0].Title != ids[i] {
			t.Fatalf("user %s sees %d notes, want only its own", id, len(notes))
		}
	}
}

func TestUserDB_Isolation_Properties(t *testing.T) {
	rapid.Check(t, testUserDB_Isolation_Properties)
}

func TestOpenUserDBWithDEK_RejectsBadInput(t *testing.T) {
	setupTestDir(t)

	if _, err := OpenUserDBWithDEK("../escape", testDEK()); err != ErrInvalidUserID {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := OpenUserDBWithDEK("user-short", []byte("short")); err == nil {
		t.Fatal("expected error for short DEK")
	}
}

func TestOpenUserDBWithDEK_WrongKeyFails(t *testing.T) {
	setupTestDir(t)

	key := bytes.Repeat([]byte{0x01}, 32)
	if _, err := OpenUserDBWithDEK("user-wrongkey", key); err != nil {
		t.Fatalf("initial open failed: %v", err)
	}
	CloseAll()

	wrong := bytes.Repeat([]byte{0x02}, 32)
	if _, err := OpenUserDBWithDEK("user-wrongkey", wrong); err == nil {
		t.Fatal("opening with the wrong DEK should fail")
	}
}

func TestRemoveUserDB(t *testing.T) {
	dir := setupTestDir(t)

	if _, err := OpenUserDBWithDEK("user-gone", testDEK()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "user-gone.db")); err != nil {
		t.Fatalf("db file missing: %v", err)
	}

	if err := RemoveUserDB("user-gone"); err != nil {
		t.Fatalf("RemoveUserDB failed: %v", err)
	}
	for _, suffix := range []string{".db", ".db-wal", ".db-shm"} {
		if _, err := os.Stat(filepath.Join(dir, "user-gone"+suffix)); !os.IsNotExist(err) {
			t.Fatalf("%s still present after RemoveUserDB", suffix)
		}
	}
	// Removing twice is not an error.
	if err := RemoveUserDB("user-gone"); err != nil {
		t.Fatalf("second RemoveUserDB failed: %v", err)
	}
}

func TestMigrateUserDB_Idempotent(t *testing.T) {
	setupTestDir(t)

	udb, err := OpenUserDBWithDEK("user-migrate", testDEK())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := udb.MigrateUserDB(); err != nil {
			t.Fatalf("MigrateUserDB pass %d failed: %v", i, err)
		}
	}
}

// =============================================================================
// Property: REGEXP matches literal, case-insensitive substrings
// =============================================================================

func testCaseInsensitiveLiteral_Properties(t *rapid.T) {
	needle := testutil.ArbitrarySearchQuery().Draw(t, "needle")
	prefix := rapid.StringMatching(`[a-z ]{0,10}`).Draw(t, "prefix")
	suffix := rapid.StringMatching(`[a-z ]{0,10}`).Draw(t, "suffix")

	pattern := CaseInsensitiveLiteral(needle)
	ok, err := sqliteRegexp(pattern, prefix+needle+suffix)
	if err != nil {
		t.Fatalf("sqliteRegexp(%q) failed: %v", pattern, err)
	}
	if !ok {
		t.Fatalf("pattern %q did not match a string containing %q", pattern, needle)
	}

	ok, err = sqliteRegexp(pattern, nil)
	if err != nil || ok {
		t.Fatalf("NULL value must not match: ok=%v err=%v", ok, err)
	}
}

func TestCaseInsensitiveLiteral_Properties(t *testing.T) {
	rapid.Check(t, testCaseInsensitiveLiteral_Properties)
}

func FuzzCaseInsensitiveLiteral_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testCaseInsensitiveLiteral_Properties))
}

func TestSQLiteRegexp_CaseFolding(t *testing.T) {
	ok, err := sqliteRegexp(CaseInsensitiveLiteral("HeLLo"), "say hello world")
	if err != nil || !ok {
		t.Fatalf("expected case-insensitive match, ok=%v err=%v", ok, err)
	}
	if _, err := sqliteRegexp("(", "x"); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}
