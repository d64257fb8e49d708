// Package export writes a JSON snapshot of an account to object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/folders"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/obs"
	"github.com/kuitang/notefold/internal/s3client"
	"github.com/kuitang/notefold/internal/tags"
)

// FormatVersion is bumped when Document changes shape.
const FormatVersion = 1

// Store is the object storage an export is written to.
type Store interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	GetPublicURL(key string) string
	List(ctx context.Context, prefix string) ([]s3client.ObjectInfo, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Document is the exported file.
type Document struct {
	Version    int              `json:"version"`
	UserID     string           `json:"user_id"`
	ExportedAt time.Time        `json:"exported_at"`
	Folders    []folders.Folder `json:"folders"`
	Notes      []notes.Note     `json:"notes"`
	Tags       []tags.Tag       `json:"tags"`
}

type Result struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	ExportedAt time.Time `json:"exported_at"`
	Notes      int       `json:"notes"`
	Folders    int       `json:"folders"`
	Tags       int       `json:"tags"`
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func prefix(userID string) string {
	return "exports/" + userID + "/"
}

// Key is the object key of an export taken at t.
func Key(userID string, t time.Time) string {
	return prefix(userID) + t.UTC().Format("20060102T150405.000Z") + ".json"
}

// Build collects every folder, note and tag of the account, trashed items included.
func (s *Service) Build(ctx context.Context, userDB *db.UserDB) (*Document, error) {
	doc := &Document{
		Version:    FormatVersion,
		UserID:     userDB.UserID(),
		ExportedAt: s.now().UTC(),
	}

	var err error
	if doc.Folders, err = folders.NewService(userDB, nil).List(ctx, nil); err != nil {
		return nil, err
	}
	if doc.Tags, err = tags.NewService(userDB).List(ctx); err != nil {
		return nil, err
	}

	noteSvc := notes.NewService(userDB, notes.DefaultQuota, nil)
	doc.Notes = []notes.Note{}
	for _, trashed := range []bool{false, true} {
		for offset := 0; ; {
			page, err := noteSvc.List(ctx, notes.ListNotesParams{
				Trashed: trashed,
				Limit:   notes.MaxLimit,
				Offset:  offset,
			})
			if err != nil {
				return nil, err
			}
			doc.Notes = append(doc.Notes, page.Notes...)
			offset += len(page.Notes)
			if len(page.Notes) == 0 || offset >= page.TotalCount {
				break
			}
		}
	}
	return doc, nil
}

// Export builds the document and uploads it to exports/{user_id}/{timestamp}.json.
func (s *Service) Export(ctx context.Context, userDB *db.UserDB) (*Result, error) {
	doc, err := s.Build(ctx, userDB)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "encode export", err)
	}

	key := Key(doc.UserID, doc.ExportedAt)
	if err := s.store.PutObject(ctx, key, data, "application/json"); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "object storage is unavailable", err)
	}

	obs.From(ctx).Info("export_written", "pkg", "export",
		"key", key,
		"bytes", len(data),
		"notes", len(doc.Notes),
		"folders", len(doc.Folders),
		"tags", len(doc.Tags),
	)
	return &Result{
		Key:        key,
		URL:        s.store.GetPublicURL(key),
		Size:       int64(len(data)),
		ExportedAt: doc.ExportedAt,
		Notes:      len(doc.Notes),
		Folders:    len(doc.Folders),
		Tags:       len(doc.Tags),
	}, nil
}

// List returns the caller's previous exports, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]s3client.ObjectInfo, error) {
	objs, err := s.store.List(ctx, prefix(userID))
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "object storage is unavailable", err)
	}
	if objs == nil {
		return []s3client.ObjectInfo{}, nil
	}
	return objs, nil
}

// DeleteAll removes every export of a user. Used on account deletion.
func (s *Service) DeleteAll(ctx context.Context, userID string) error {
	n, err := s.store.DeletePrefix(ctx, prefix(userID))
	if err != nil {
		return fmt.Errorf("delete exports: %w", err)
	}
	obs.From(ctx).Info("exports_deleted", "pkg", "export", "count", n)
	return nil
}
