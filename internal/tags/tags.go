// Package tags manages the user's tag catalogue. Notes reference tags by
// name; renames and deletes are propagated to every note.
package tags

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/db/userdb"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/folders"
)

const maxNameLength = 64

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	NoteCount int       `json:"note_count"`
}

type CreateTagParams struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type UpdateTagParams struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

type Service struct {
	userDB *db.UserDB
	now    func() time.Time
}

func NewService(userDB *db.UserDB) *Service {
	return &Service{userDB: userDB, now: time.Now}
}

// NormalizeName trims and lower-cases a tag name, the same way notes store
// their tags.
func NormalizeName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", errs.New(errs.InvalidArgument, "tag name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", errs.New(errs.InvalidArgument, "tag name is too long")
	}
	return name, nil
}

func fromRow(t userdb.Tag, count int64) Tag {
	return Tag{
		ID:        t.ID,
		Name:      t.Name,
		Color:     t.Color,
		CreatedAt: time.UnixMilli(t.CreatedAt).UTC(),
		NoteCount: int(count),
	}
}

func (s *Service) Create(ctx context.Context, params CreateTagParams) (*Tag, error) {
	name, err := NormalizeName(params.Name)
	if err != nil {
		return nil, err
	}
	color, err := folders.ValidateColor(params.Color)
	if err != nil {
		return nil, err
	}

	q := s.userDB.Queries()
	if _, err := q.GetTagByName(ctx, name); err == nil {
		return nil, errs.New(errs.AlreadyExists, "tag already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrap(errs.Internal, "load tag", err)
	}

	row := userdb.Tag{ID: uuid.NewString(), Name: name, Color: color, CreatedAt: s.now().UnixMilli()}
	if err := q.CreateTag(ctx, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, errs.New(errs.AlreadyExists, "tag already exists")
		}
		return nil, errs.Wrap(errs.Internal, "create tag", err)
	}
	out := fromRow(row, 0)
	return &out, nil
}

// List returns all tags by name with counts over non-trashed notes.
func (s *Service) List(ctx context.Context) ([]Tag, error) {
	rows, err := s.userDB.Queries().ListTagsWithCounts(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list tags", err)
	}
	out := make([]Tag, 0, len(rows))
	for _, t := range rows {
		out = append(out, fromRow(t.Tag, t.NoteCount))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Tag, error) {
	tags, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		if tags[i].ID == id {
			return &tags[i], nil
		}
	}
	return nil, errs.New(errs.NotFound, "tag not found")
}

// Update renames and/or recolors a tag. A rename is applied to every note
// carrying the old name; renaming onto another existing tag is rejected.
func (s *Service) Update(ctx context.Context, id string, params UpdateTagParams) (*Tag, error) {
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		current, err := q.GetTag(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.NotFound, "tag not found")
		}
		if err != nil {
			return errs.Wrap(errs.Internal, "load tag", err)
		}

		name, color := current.Name, current.Color
		if params.Color != nil {
			if color, err = folders.ValidateColor(*params.Color); err != nil {
				return err
			}
		}
		if params.Name != nil {
			if name, err = NormalizeName(*params.Name); err != nil {
				return err
			}
			other, err := q.GetTagByName(ctx, name)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return errs.Wrap(errs.Internal, "load tag", err)
			case other.ID != id:
				return errs.New(errs.AlreadyExists, "a tag with that name already exists")
			}
		}

		if _, err := q.UpdateTag(ctx, id, name, color); err != nil {
			return errs.Wrap(errs.Internal, "update tag", err)
		}
		if name != current.Name {
			if _, err := q.RenameNoteTag(ctx, current.Name, name); err != nil {
				return errs.Wrap(errs.Internal, "rename tag on notes", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes the tag and strips it from every note.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		t, err := q.GetTag(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.NotFound, "tag not found")
		}
		if err != nil {
			return errs.Wrap(errs.Internal, "load tag", err)
		}
		if _, err := q.DeleteNoteTag(ctx, t.Name); err != nil {
			return errs.Wrap(errs.Internal, "remove tag from notes", err)
		}
		if _, err := q.DeleteTag(ctx, id); err != nil {
			return errs.Wrap(errs.Internal, "delete tag", err)
		}
		return nil
	})
}
