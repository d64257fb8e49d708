package tags

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notefold/internal/db/testutil"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/testdb"
)

var counter atomic.Int64

func setup(t require.TestingT) (*Service, *notes.Service) {
	userDB, err := testdb.NewUserDBInMemory(fmt.Sprintf("tags-%d", counter.Add(1)))
	require.NoError(t, err)
	return NewService(userDB), notes.NewService(userDB, notes.DefaultQuota, nil)
}

func ptr(s string) *string { return &s }

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	svc, noteSvc := setup(t)

	tag, err := svc.Create(ctx, CreateTagParams{Name: " Work ", Color: "#FF0000"})
	require.NoError(t, err)
	require.Equal(t, "work", tag.Name)
	require.Equal(t, "#ff0000", tag.Color)

	_, err = svc.Create(ctx, CreateTagParams{Name: "WORK"})
	require.True(t, errs.Is(err, errs.AlreadyExists), "%v", err)
	_, err = svc.Create(ctx, CreateTagParams{Name: "  "})
	require.True(t, errs.Is(err, errs.InvalidArgument), "%v", err)

	// Tags written through notes show up in the catalogue with counts.
	_, err = noteSvc.Create(ctx, notes.CreateNoteParams{Title: "a", Tags: []string{"work", "home"}})
	require.NoError(t, err)
	trashed, err := noteSvc.Create(ctx, notes.CreateNoteParams{Title: "b", Tags: []string{"work"}})
	require.NoError(t, err)
	_, err = noteSvc.Trash(ctx, trashed.ID)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "home", list[0].Name)
	require.Equal(t, 1, list[0].NoteCount)
	require.Equal(t, "work", list[1].Name)
	require.Equal(t, 1, list[1].NoteCount, "trashed notes are not counted")
}

func TestRename_PropagatesToNotes(t *testing.T) {
	ctx := context.Background()
	svc, noteSvc := setup(t)

	n1, err := noteSvc.Create(ctx, notes.CreateNoteParams{Title: "a", Tags: []string{"draft", "x"}})
	require.NoError(t, err)
	n2, err := noteSvc.Create(ctx, notes.CreateNoteParams{Title: "b", Tags: []string{"draft"}})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	var draftID, xID string
	for _, tag := range list {
		switch tag.Name {
		case "draft":
			draftID = tag.ID
		case "x":
			xID = tag.ID
		}
	}
	require.NotEmpty(t, draftID)

	renamed, err := svc.Update(ctx, draftID, UpdateTagParams{Name: ptr("Final")})
	require.NoError(t, err)
	require.Equal(t, "final", renamed.Name)
	require.Equal(t, 2, renamed.NoteCount)

	got, err := noteSvc.Get(ctx, n1.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"final", "x"}, got.Tags)
	got, err = noteSvc.Get(ctx, n2.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"final"}, got.Tags)

	_, err = svc.Update(ctx, draftID, UpdateTagParams{Name: ptr("X")})
	require.True(t, errs.Is(err, errs.AlreadyExists), "merge rejected: %v", err)

	// Renaming to its own name with different case is allowed.
	_, err = svc.Update(ctx, xID, UpdateTagParams{Name: ptr("X"), Color: ptr("#123456")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "missing", UpdateTagParams{Name: ptr("y")})
	require.True(t, errs.Is(err, errs.NotFound), "%v", err)
}

func TestDelete_StripsNotes(t *testing.T) {
	ctx := context.Background()
	svc, noteSvc := setup(t)

	n, err := noteSvc.Create(ctx, notes.CreateNoteParams{Title: "a", Tags: []string{"gone", "kept"}})
	require.NoError(t, err)
	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, "gone", list[0].Name)

	require.NoError(t, svc.Delete(ctx, list[0].ID))
	got, err := noteSvc.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"kept"}, got.Tags)

	err = svc.Delete(ctx, list[0].ID)
	require.True(t, errs.Is(err, errs.NotFound), "%v", err)
}

func testNormalizeName_Properties(t *rapid.T) {
	raw := testutil.ArbitraryTagName().Draw(t, "raw")
	name, err := NormalizeName(raw)
	if err != nil {
		if !errs.Is(err, errs.InvalidArgument) {
			t.Fatalf("unexpected error code: %v", err)
		}
		return
	}
	again, err := NormalizeName(name)
	if err != nil || again != name {
		t.Fatalf("NormalizeName not idempotent: %q -> %q -> %q (%v)", raw, name, again, err)
	}
}

func TestNormalizeName_Properties(t *testing.T) {
	rapid.Check(t, testNormalizeName_Properties)
}

func FuzzNormalizeName_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testNormalizeName_Properties))
}
