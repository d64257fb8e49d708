package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/notefold/internal/folders"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/testdb"
)

func TestStats_EmptyAccount(t *testing.T) {
	userDB, err := testdb.NewUserDBInMemory("dashboard-empty")
	require.NoError(t, err)

	st, err := NewService(userDB, notes.DefaultStorageLimitBytes).Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, st.Notes)
	require.Equal(t, map[string]int{"text": 0, "markdown": 0, "code": 0}, st.NotesByType)
	require.Empty(t, st.RecentNotes)
	require.NotNil(t, st.RecentNotes)
	require.Equal(t, notes.DefaultStorageLimitBytes, st.Storage.LimitBytes)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	userDB, err := testdb.NewUserDBInMemory("dashboard")
	require.NoError(t, err)
	noteSvc := notes.NewService(userDB, notes.DefaultQuota, nil)
	folderSvc := folders.NewService(userDB, nil)

	for i, p := range []notes.CreateNoteParams{
		{Title: "a", Content: "12345", Tags: []string{"go", "db"}},
		{Title: "b", Content: "abc", Type: notes.TypeMarkdown, Tags: []string{"go"}, IsFavorite: true},
		{Title: "c", Type: notes.TypeCode, Tags: []string{"go"}},
		{Title: "d", Content: "trashed"},
		{Title: "e"}, {Title: "f"},
	} {
		n, err := noteSvc.Create(ctx, p)
		require.NoError(t, err)
		if i == 3 {
			_, err = noteSvc.Trash(ctx, n.ID)
			require.NoError(t, err)
		}
		if i == 0 {
			changed := "completely new"
			_, err = noteSvc.Update(ctx, n.ID, notes.UpdateNoteParams{Content: &changed})
			require.NoError(t, err)
		}
	}
	_, err = folderSvc.Create(ctx, folders.CreateFolderParams{Name: "live"})
	require.NoError(t, err)
	dead, err := folderSvc.Create(ctx, folders.CreateFolderParams{Name: "dead"})
	require.NoError(t, err)
	_, err = folderSvc.Trash(ctx, dead.ID)
	require.NoError(t, err)

	st, err := NewService(userDB, 1000).Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, st.Notes)
	require.Equal(t, 1, st.Favorites)
	require.Equal(t, 1, st.TrashedNotes)
	require.Equal(t, 1, st.Folders)
	require.Equal(t, 1, st.TrashedFolders)
	require.Equal(t, 2, st.Tags)
	require.Equal(t, 1, st.Versions)
	require.Equal(t, map[string]int{"text": 3, "markdown": 1, "code": 1}, st.NotesByType)
	require.EqualValues(t, len("completely new")+len("abc"), st.Storage.UsedBytes)
	require.Len(t, st.RecentNotes, 5)
	require.Equal(t, []TagUsage{{Name: "go", Count: 3}, {Name: "db", Count: 1}}, st.TopTags)
}
