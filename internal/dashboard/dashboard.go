// Package dashboard aggregates per-user statistics.
package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/notes"
)

const (
	recentNotes = 5
	topTags     = 5
)

type RecentNote struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TagUsage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Stats struct {
	Notes          int                    `json:"notes"`
	Favorites      int                    `json:"favorites"`
	TrashedNotes   int                    `json:"trashed_notes"`
	Folders        int                    `json:"folders"`
	TrashedFolders int                    `json:"trashed_folders"`
	Tags           int                    `json:"tags"`
	Versions       int                    `json:"versions"`
	NotesByType    map[string]int         `json:"notes_by_type"`
	Storage        notes.StorageUsageInfo `json:"storage"`
	RecentNotes    []RecentNote           `json:"recent_notes"`
	TopTags        []TagUsage             `json:"top_tags"`
}

type Service struct {
	userDB     *db.UserDB
	quotaBytes int64
}

func NewService(userDB *db.UserDB, quotaBytes int64) *Service {
	return &Service{userDB: userDB, quotaBytes: quotaBytes}
}

// Stats gathers every figure concurrently. Counts exclude trashed items
// unless the field says otherwise.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	q := s.userDB.Queries()
	out := &Stats{
		NotesByType: map[string]int{
			string(notes.TypeText):     0,
			string(notes.TypeMarkdown): 0,
			string(notes.TypeCode):     0,
		},
		RecentNotes: []RecentNote{},
		TopTags:     []TagUsage{},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := q.NoteStats(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, "note stats", err)
		}
		out.Notes, out.Favorites, out.TrashedNotes = int(st.Total), int(st.Favorites), int(st.Trashed)
		return nil
	})
	g.Go(func() error {
		st, err := q.FolderStats(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, "folder stats", err)
		}
		out.Folders, out.TrashedFolders = int(st.Total), int(st.Trashed)
		return nil
	})
	g.Go(func() error {
		n, err := q.CountTags(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, "count tags", err)
		}
		out.Tags = int(n)
		return nil
	})
	g.Go(func() error {
		n, err := q.CountAllVersions(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, "count versions", err)
		}
		out.Versions = int(n)
		return nil
	})
	g.Go(func() error {
		rows, err := q.CountNotesByType(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, "count notes by type", err)
		}
		for _, tc := range rows {
			out.NotesByType[tc.NoteType] = int(tc.Count)
		}
		return nil
	})
	g.Go(func() error {
		used, err := q.StorageUsed(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, "storage usage", err)
		}
		out.Storage = notes.NewStorageUsageInfo(used, s.quotaBytes)
		return nil
	})
	g.Go(func() error {
		rows, err := q.ListRecentNotes(ctx, recentNotes)
		if err != nil {
			return errs.Wrap(errs.Internal, "recent notes", err)
		}
		for _, n := range rows {
			out.RecentNotes = append(out.RecentNotes, RecentNote{
				ID:        n.ID,
				Title:     n.Title,
				Type:      n.NoteType,
				Preview:   notes.ContentPreview(n.Content, 2),
				UpdatedAt: time.UnixMilli(n.UpdatedAt).UTC(),
			})
		}
		return nil
	})
	g.Go(func() error {
		rows, err := q.TopTags(ctx, topTags)
		if err != nil {
			return errs.Wrap(errs.Internal, "top tags", err)
		}
		for _, t := range rows {
			out.TopTags = append(out.TopTags, TagUsage{Name: t.Name, Count: int(t.Count)})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
