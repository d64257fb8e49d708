package notes

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kuitang/notefold/internal/db/userdb"
	"github.com/kuitang/notefold/internal/errs"
)

const versionPreviewLines = 3

func versionFromRow(v userdb.NoteVersion) Version {
	return Version{
		ID:        v.ID,
		NoteID:    v.NoteID,
		Content:   v.Content,
		CreatedAt: time.UnixMilli(v.CreatedAt).UTC(),
	}
}

// ListVersions returns the stored versions of a note, newest first.
func (s *Service) ListVersions(ctx context.Context, noteID string) ([]VersionSummary, error) {
	q := s.userDB.Queries()
	if _, err := loadNote(ctx, q, noteID); err != nil {
		return nil, err
	}
	rows, err := q.ListNoteVersions(ctx, noteID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list versions", err)
	}
	out := make([]VersionSummary, 0, len(rows))
	for _, v := range rows {
		out = append(out, VersionSummary{
			ID:        v.ID,
			NoteID:    v.NoteID,
			Preview:   ContentPreview(v.Content, versionPreviewLines),
			Size:      len(v.Content),
			CreatedAt: time.UnixMilli(v.CreatedAt).UTC(),
		})
	}
	return out, nil
}

func (s *Service) GetVersion(ctx context.Context, noteID string, versionID int64) (*Version, error) {
	q := s.userDB.Queries()
	if _, err := loadNote(ctx, q, noteID); err != nil {
		return nil, err
	}
	v, err := q.GetNoteVersion(ctx, noteID, versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "version not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load version", err)
	}
	out := versionFromRow(v)
	return &out, nil
}

// RestoreVersion writes a version's content back through Update, so the
// current content may itself be snapshotted first.
func (s *Service) RestoreVersion(ctx context.Context, noteID string, versionID int64) (*Note, error) {
	v, err := s.GetVersion(ctx, noteID, versionID)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, noteID, UpdateNoteParams{Content: &v.Content})
}

func (s *Service) DeleteVersion(ctx context.Context, noteID string, versionID int64) error {
	q := s.userDB.Queries()
	if _, err := loadNote(ctx, q, noteID); err != nil {
		return err
	}
	n, err := q.DeleteNoteVersion(ctx, noteID, versionID)
	if err != nil {
		return errs.Wrap(errs.Internal, "delete version", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "version not found")
	}
	return nil
}
