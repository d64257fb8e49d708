package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/folders"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/s3client"
	"github.com/kuitang/notefold/internal/tags"
	"github.com/kuitang/notefold/internal/testdb"
)

var seq atomic.Int64

func newUserDB(t *testing.T) *db.UserDB {
	t.Helper()
	return testdb.UserDB(t, fmt.Sprintf("export-user-%d", seq.Add(1)))
}

func TestExport_UploadsAccountSnapshot(t *testing.T) {
	ctx := context.Background()
	userDB := newUserDB(t)
	store := s3client.TestClient(t, "notefold-exports")

	folder, err := folders.NewService(userDB, nil).Create(ctx, folders.CreateFolderParams{Name: "Work"})
	require.NoError(t, err)
	_, err = tags.NewService(userDB).Create(ctx, tags.CreateTagParams{Name: "plans"})
	require.NoError(t, err)

	noteSvc := notes.NewService(userDB, notes.DefaultQuota, nil)
	kept, err := noteSvc.Create(ctx, notes.CreateNoteParams{
		Title: "Roadmap", Content: "ship it", FolderID: folder.ID, Tags: []string{"plans"},
	})
	require.NoError(t, err)
	binned, err := noteSvc.Create(ctx, notes.CreateNoteParams{Title: "Old", Content: "stale"})
	require.NoError(t, err)
	_, err = noteSvc.Trash(ctx, binned.ID)
	require.NoError(t, err)

	svc := NewService(store)
	at := time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)
	svc.SetClock(func() time.Time { return at })

	res, err := svc.Export(ctx, userDB)
	require.NoError(t, err)
	require.Equal(t, "exports/"+userDB.UserID()+"/20260304T050607.890Z.json", res.Key)
	require.Equal(t, store.GetPublicURL(res.Key), res.URL)
	require.Equal(t, 2, res.Notes)
	require.Equal(t, 1, res.Folders)
	require.Equal(t, 1, res.Tags)

	data, err := store.GetObject(ctx, res.Key)
	require.NoError(t, err)
	require.Equal(t, res.Size, int64(len(data)))

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, FormatVersion, doc.Version)
	require.Equal(t, userDB.UserID(), doc.UserID)
	require.True(t, doc.ExportedAt.Equal(at))
	require.Len(t, doc.Notes, 2)
	require.Equal(t, kept.ID, doc.Notes[0].ID)
	require.Equal(t, []string{"plans"}, doc.Notes[0].Tags)
	require.Equal(t, folder.ID, *doc.Notes[0].FolderID)
	require.True(t, doc.Notes[1].IsTrashed)
	require.Equal(t, "Work", doc.Folders[0].Name)
	require.Equal(t, "plans", doc.Tags[0].Name)

	list, err := svc.List(ctx, userDB.UserID())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, res.Key, list[0].Key)
}

func TestExport_EmptyAccount(t *testing.T) {
	ctx := context.Background()
	userDB := newUserDB(t)
	svc := NewService(s3client.TestClient(t, "notefold-exports"))

	res, err := svc.Export(ctx, userDB)
	require.NoError(t, err)
	require.Zero(t, res.Notes)

	list, err := svc.List(ctx, "someone-else")
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func TestDeleteAll_RemovesOnlyThatUser(t *testing.T) {
	ctx := context.Background()
	store := s3client.TestClient(t, "notefold-exports")
	svc := NewService(store)

	a, b := newUserDB(t), newUserDB(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { at = at.Add(time.Second); return at })
	for _, u := range []*db.UserDB{a, a, b} {
		_, err := svc.Export(ctx, u)
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteAll(ctx, a.UserID()))
	listA, err := svc.List(ctx, a.UserID())
	require.NoError(t, err)
	require.Empty(t, listA)
	listB, err := svc.List(ctx, b.UserID())
	require.NoError(t, err)
	require.Len(t, listB, 1)
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	svc := NewService(s3client.TestClient(t, "notefold-exports"))
	u := newUserDB(t)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { at = at.Add(time.Minute); return at })
	var keys []string
	for range 3 {
		res, err := svc.Export(ctx, u)
		require.NoError(t, err)
		keys = append(keys, res.Key)
	}

	list, err := svc.List(ctx, u.UserID())
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, obj := range list {
		require.Equal(t, keys[len(keys)-1-i], obj.Key)
	}
}

type failingStore struct{ *s3client.Client }

func (failingStore) PutObject(context.Context, string, []byte, string) error {
	return fmt.Errorf("connection refused")
}

func TestExport_StoreFailureIsUnavailable(t *testing.T) {
	svc := NewService(failingStore{})
	_, err := svc.Export(context.Background(), newUserDB(t))
	require.True(t, errs.Is(err, errs.Unavailable), "got %v", err)
}

func testKey_Properties(t *rapid.T) {
	userID := rapid.StringMatching(`[a-f0-9-]{1,36}`).Draw(t, "user")
	ms := rapid.Int64Range(0, 4102444800000).Draw(t, "ms")
	at := time.UnixMilli(ms)

	key := Key(userID, at)
	if !strings.HasPrefix(key, "exports/"+userID+"/") || !strings.HasSuffix(key, ".json") {
		t.Fatalf("bad key layout: %q", key)
	}
	later := Key(userID, at.Add(time.Millisecond))
	if later <= key {
		t.Fatalf("keys must sort by time: %q then %q", key, later)
	}
}

func TestKey_Properties(t *testing.T) {
	rapid.Check(t, testKey_Properties)
}

func FuzzKey_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testKey_Properties))
}
