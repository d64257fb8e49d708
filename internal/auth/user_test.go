package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notefold/internal/crypto"
	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/email"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/testdb"
)

var emailSeq atomic.Int64

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "notefold-auth-test-")
	if err != nil {
		panic(err)
	}
	db.DataDirectory = dir
	code := m.Run()
	_ = db.CloseAll()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type fataler interface {
	Fatalf(format string, args ...any)
}

type testEnv struct {
	shared *db.SharedDB
	users  *UserService
	mail   *email.MockEmailService
	clock  *FakeClock
}

func newTestEnv(t fataler) *testEnv {
	shared, err := testdb.NewSharedDBInMemory()
	if err != nil {
		t.Fatalf("NewSharedDBInMemory: %v", err)
	}
	mail := email.NewMockEmailService()
	km := crypto.NewKeyManager(make([]byte, 32), shared)
	users := NewUserService(shared, km, mail, "https://notes.test/")
	users.SetHasher(FakeInsecureHasher{})
	clock := NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	users.SetClock(clock)
	return &testEnv{shared: shared, users: users, mail: mail, clock: clock}
}

func uniqueEmail() string {
	return fmt.Sprintf("person%d@example.com", emailSeq.Add(1))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	addr := uniqueEmail()

	user, err := env.users.Register(ctx, "  "+strings.ToUpper(addr)+" ", "hunter2hunter2", "Ada")
	require.NoError(t, err)
	require.Equal(t, addr, user.Email)
	require.Equal(t, "Ada", user.Name)
	require.Equal(t, generateUserID(addr), user.ID)

	require.Equal(t, 1, env.mail.Count())
	require.Equal(t, email.TemplateWelcome, env.mail.LastEmail().Template)

	_, err = env.users.Register(ctx, addr, "another-password", "")
	require.True(t, errs.Is(err, errs.AlreadyExists), "got %v", err)

	got, err := env.users.Authenticate(ctx, addr, "hunter2hunter2")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotNil(t, got.LastLogin)

	_, err = env.users.Authenticate(ctx, addr, "wrong-password")
	require.True(t, errs.Is(err, errs.Unauthenticated), "got %v", err)

	_, err = env.users.Authenticate(ctx, uniqueEmail(), "hunter2hunter2")
	require.True(t, errs.Is(err, errs.Unauthenticated), "got %v", err)
	require.Equal(t, "invalid email or password", errs.MessageOf(err))
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.users.Register(ctx, "not-an-email", "longenough", "")
	require.True(t, errs.Is(err, errs.InvalidArgument))

	_, err = env.users.Register(ctx, uniqueEmail(), "short", "")
	require.True(t, errs.Is(err, errs.InvalidArgument))

	_, err = env.users.Register(ctx, uniqueEmail(), "longenough", strings.Repeat("n", maxNameLength+1))
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func testNormalizeEmail_Properties(t *rapid.T) {
	local := rapid.StringMatching(`[a-zA-Z0-9._]{1,20}`).Filter(func(s string) bool {
		return !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".") && !strings.Contains(s, "..")
	}).Draw(t, "local")
	domain := rapid.StringMatching(`[a-zA-Z]{1,10}\.[a-zA-Z]{2,5}`).Draw(t, "domain")
	pad := rapid.StringMatching(`[ \t]{0,3}`).Draw(t, "pad")

	raw := pad + local + "@" + domain + pad
	got, err := NormalizeEmail(raw)
	if err != nil {
		t.Fatalf("NormalizeEmail(%q): %v", raw, err)
	}
	if got != strings.ToLower(local+"@"+domain) {
		t.Fatalf("NormalizeEmail(%q) = %q", raw, got)
	}
	again, err := NormalizeEmail(got)
	if err != nil || again != got {
		t.Fatalf("NormalizeEmail not idempotent: %q -> %q (%v)", got, again, err)
	}
	if generateUserID(got) != generateUserID(again) {
		t.Fatal("user id not stable")
	}
}

func TestNormalizeEmail_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testNormalizeEmail_Properties)
}

func FuzzNormalizeEmail_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testNormalizeEmail_Properties))
}

func TestProfile_UpdateNameAndChangePassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	addr := uniqueEmail()
	user, err := env.users.Register(ctx, addr, "first-password", "")
	require.NoError(t, err)

	udb, err := env.users.OpenUserDB(ctx, user.ID)
	require.NoError(t, err)

	updated, err := env.users.UpdateName(ctx, udb, "  Grace ")
	require.NoError(t, err)
	require.Equal(t, "Grace", updated.Name)

	err = env.users.ChangePassword(ctx, udb, "not-the-password", "second-password")
	require.True(t, errs.Is(err, errs.PermissionDenied), "got %v", err)

	err = env.users.ChangePassword(ctx, udb, "first-password", "short")
	require.True(t, errs.Is(err, errs.InvalidArgument), "got %v", err)

	require.NoError(t, env.users.ChangePassword(ctx, udb, "first-password", "second-password"))
	_, err = env.users.Authenticate(ctx, addr, "first-password")
	require.Error(t, err)
	_, err = env.users.Authenticate(ctx, addr, "second-password")
	require.NoError(t, err)
}

func resetTokenFromMail(t *testing.T, mail *email.MockEmailService) string {
	t.Helper()
	sent := mail.LastEmail()
	require.Equal(t, email.TemplatePasswordReset, sent.Template)
	data, ok := sent.Data.(email.PasswordResetData)
	require.True(t, ok)
	u, err := url.Parse(data.Link)
	require.NoError(t, err)
	require.Equal(t, "/reset", u.Path)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestPasswordReset_Flow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	addr := uniqueEmail()
	_, err := env.users.Register(ctx, addr, "original-pw", "")
	require.NoError(t, err)
	env.mail.Clear()

	// Unknown accounts succeed silently and send nothing.
	require.NoError(t, env.users.RequestPasswordReset(ctx, uniqueEmail()))
	require.Equal(t, 0, env.mail.Count())

	require.NoError(t, env.users.RequestPasswordReset(ctx, strings.ToUpper(addr)))
	token := resetTokenFromMail(t, env.mail)

	err = env.users.ResetPassword(ctx, token, "tiny")
	require.True(t, errs.Is(err, errs.InvalidArgument))

	require.NoError(t, env.users.ResetPassword(ctx, token, "brand-new-pw"))
	_, err = env.users.Authenticate(ctx, addr, "brand-new-pw")
	require.NoError(t, err)

	// Tokens are single use.
	err = env.users.ResetPassword(ctx, token, "another-new-pw")
	require.True(t, errs.Is(err, errs.InvalidArgument), "got %v", err)
}

func TestPasswordReset_Expires(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	addr := uniqueEmail()
	_, err := env.users.Register(ctx, addr, "original-pw", "")
	require.NoError(t, err)

	require.NoError(t, env.users.RequestPasswordReset(ctx, addr))
	token := resetTokenFromMail(t, env.mail)

	env.clock.Advance(ResetTokenExpiry)
	err = env.users.ResetPassword(ctx, token, "brand-new-pw")
	require.True(t, errs.Is(err, errs.InvalidArgument), "got %v", err)

	_, err = env.users.Authenticate(ctx, addr, "original-pw")
	require.NoError(t, err)
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	addr := uniqueEmail()
	user, err := env.users.Register(ctx, addr, "original-pw", "")
	require.NoError(t, err)
	require.NoError(t, env.users.RequestPasswordReset(ctx, addr))

	require.NoError(t, env.users.DeleteAccount(ctx, user.ID))

	_, err = os.Stat(db.UserDBPath(user.ID))
	require.True(t, os.IsNotExist(err), "user db file should be gone: %v", err)

	_, err = env.users.OpenUserDB(ctx, user.ID)
	require.True(t, errs.Is(err, errs.NotFound), "got %v", err)

	_, err = env.users.Authenticate(ctx, addr, "original-pw")
	require.True(t, errs.Is(err, errs.Unauthenticated))

	// The address can register again from scratch.
	_, err = env.users.Register(ctx, addr, "replacement-pw", "")
	require.NoError(t, err)
}

func TestDeleteAccount_RunsHooks(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.users.Register(ctx, uniqueEmail(), "original-pw", "")
	require.NoError(t, err)

	var seen []string
	env.users.OnDelete(func(_ context.Context, userID string) error {
		seen = append(seen, userID)
		return errors.New("storage offline")
	})
	env.users.OnDelete(func(_ context.Context, userID string) error {
		seen = append(seen, "second:"+userID)
		return nil
	})

	require.NoError(t, env.users.DeleteAccount(ctx, user.ID))
	require.Equal(t, []string{user.ID, "second:" + user.ID}, seen)
}
