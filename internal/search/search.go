// Package search runs the notes, folders and tags queries of a global
// search concurrently.
package search

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/errs"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	snippetRadius = 60
)

// Result type discriminators used by the flat form.
const (
	TypeNote   = "note"
	TypeFolder = "folder"
	TypeTag    = "tag"
)

type NoteHit struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"note_type"`
	FolderID  *string   `json:"folder_id"`
	Snippet   string    `json:"snippet"`
	UpdatedAt time.Time `json:"updated_at"`
}

type FolderHit struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TagHit struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Results is the grouped response.
type Results struct {
	Query   string      `json:"query"`
	Notes   []NoteHit   `json:"notes"`
	Folders []FolderHit `json:"folders"`
	Tags    []TagHit    `json:"tags"`
}

// FlatResult is one entry of the flat response.
type FlatResult struct {
	Type      string     `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Service struct {
	userDB *db.UserDB
}

func NewService(userDB *db.UserDB) *Service {
	return &Service{userDB: userDB}
}

// Search matches q literally and case-insensitively: note titles and
// content, folder names and tag names. Trashed notes and folders are skipped.
func (s *Service) Search(ctx context.Context, q string, limit int) (*Results, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errs.New(errs.InvalidArgument, "q is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	pattern := db.CaseInsensitiveLiteral(q)
	re := regexp.MustCompile(pattern)
	queries := s.userDB.Queries()
	res := &Results{Query: q, Notes: []NoteHit{}, Folders: []FolderHit{}, Tags: []TagHit{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := queries.SearchNotes(gctx, pattern, int64(limit))
		if err != nil {
			return errs.Wrap(errs.Internal, "search notes", err)
		}
		for _, n := range rows {
			hit := NoteHit{
				ID:        n.ID,
				Title:     n.Title,
				Type:      n.NoteType,
				Snippet:   Snippet(n.Content, re),
				UpdatedAt: time.UnixMilli(n.UpdatedAt).UTC(),
			}
			if n.FolderID.Valid {
				f := n.FolderID.String
				hit.FolderID = &f
			}
			res.Notes = append(res.Notes, hit)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := queries.SearchFolders(gctx, pattern, int64(limit))
		if err != nil {
			return errs.Wrap(errs.Internal, "search folders", err)
		}
		for _, f := range rows {
			hit := FolderHit{ID: f.ID, Name: f.Name, UpdatedAt: time.UnixMilli(f.UpdatedAt).UTC()}
			if f.ParentID.Valid {
				p := f.ParentID.String
				hit.ParentID = &p
			}
			res.Folders = append(res.Folders, hit)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := queries.SearchTags(gctx, pattern, int64(limit))
		if err != nil {
			return errs.Wrap(errs.Internal, "search tags", err)
		}
		for _, t := range rows {
			res.Tags = append(res.Tags, TagHit{ID: t.ID, Name: t.Name, Color: t.Color})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// Flatten lists notes, then folders, then tags, each tagged with its type.
func (r *Results) Flatten() []FlatResult {
	out := make([]FlatResult, 0, len(r.Notes)+len(r.Folders)+len(r.Tags))
	for _, n := range r.Notes {
		at := n.UpdatedAt
		out = append(out, FlatResult{Type: TypeNote, ID: n.ID, Title: n.Title, Snippet: n.Snippet, UpdatedAt: &at})
	}
	for _, f := range r.Folders {
		at := f.UpdatedAt
		out = append(out, FlatResult{Type: TypeFolder, ID: f.ID, Title: f.Name, UpdatedAt: &at})
	}
	for _, t := range r.Tags {
		out = append(out, FlatResult{Type: TypeTag, ID: t.ID, Title: t.Name})
	}
	return out
}

// Snippet returns a single-line excerpt of content around the first match
// of re, or the start of content when only the title matched.
func Snippet(content string, re *regexp.Regexp) string {
	if content == "" {
		return ""
	}
	start, end := 0, 0
	if loc := re.FindStringIndex(content); loc != nil {
		start, end = loc[0], loc[1]
	}

	from := start
	for i := 0; i < snippetRadius && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(content[:from])
		from -= size
	}
	to := end
	for i := 0; i < snippetRadius && to < len(content); i++ {
		_, size := utf8.DecodeRuneInString(content[to:])
		to += size
	}

	out := strings.Join(strings.Fields(content[from:to]), " ")
	if from > 0 {
		out = "…" + out
	}
	if to < len(content) {
		out += "…"
	}
	return out
}
