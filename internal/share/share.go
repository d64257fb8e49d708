// Package share issues public read-only links to notes.
package share

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/db/shareddb"
	"github.com/kuitang/notefold/internal/db/userdb"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/obs"
	"github.com/kuitang/notefold/internal/urlutil"
)

const (
	// tokenBytes gives 128 bits, 22 characters of unpadded base64url.
	tokenBytes = 16

	// MaxExpiresInHours caps link lifetime at one year.
	MaxExpiresInHours = 24 * 365

	// ExpiredRetention is how long an expired link keeps answering gone
	// before PurgeExpired removes it and it reads as unknown.
	ExpiredRetention = 30 * 24 * time.Hour
)

// Link is a share link as returned to the note owner.
type Link struct {
	Token     string     `json:"token"`
	NoteID    string     `json:"note_id"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// PublicNote is what an anonymous reader of a link sees.
type PublicNote struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Language  string    `json:"language,omitempty"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserDBOpener opens the database of a link owner.
type UserDBOpener interface {
	OpenUserDB(ctx context.Context, userID string) (*db.UserDB, error)
}

type Service struct {
	shared  *db.SharedDB
	baseURL string
	now     func() time.Time
}

func NewService(shared *db.SharedDB, baseURL string) *Service {
	return &Service{shared: shared, baseURL: baseURL, now: time.Now}
}

// SetClock replaces the time source. Intended for testing.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// NewToken returns a random URL-safe token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Service) linkFromRow(l shareddb.ShareLink) Link {
	out := Link{
		Token:     l.Token,
		NoteID:    l.NoteID,
		URL:       urlutil.ShareURL(s.baseURL, l.Token, false),
		CreatedAt: time.UnixMilli(l.CreatedAt).UTC(),
	}
	if l.ExpiresAt.Valid {
		t := time.UnixMilli(l.ExpiresAt.Int64).UTC()
		out.ExpiresAt = &t
	}
	return out
}

func requireNote(ctx context.Context, userDB *db.UserDB, noteID string) (userdb.Note, error) {
	n, err := userDB.Queries().GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return n, errs.New(errs.NotFound, "note not found")
	}
	if err != nil {
		return n, errs.Wrap(errs.Internal, "load note", err)
	}
	return n, nil
}

// Create issues a link to a non-trashed note. expiresInHours of 0 means the
// link never expires.
func (s *Service) Create(ctx context.Context, userDB *db.UserDB, noteID string, expiresInHours int) (*Link, error) {
	if expiresInHours < 0 || expiresInHours > MaxExpiresInHours {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("expires_in_hours must be between 1 and %d", MaxExpiresInHours))
	}
	n, err := requireNote(ctx, userDB, noteID)
	if err != nil {
		return nil, err
	}
	if n.IsTrashed != 0 {
		return nil, errs.New(errs.FailedPrecondition, "cannot share a trashed note")
	}

	token, err := NewToken()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "generate share token", err)
	}
	now := s.now()
	row := shareddb.ShareLink{
		Token:     token,
		UserID:    userDB.UserID(),
		NoteID:    noteID,
		CreatedAt: now.UnixMilli(),
	}
	if expiresInHours > 0 {
		row.ExpiresAt = sql.NullInt64{Int64: now.Add(time.Duration(expiresInHours) * time.Hour).UnixMilli(), Valid: true}
	}
	if err := s.shared.Queries().CreateShareLink(ctx, shareddb.CreateShareLinkParams{
		Token:     row.Token,
		UserID:    row.UserID,
		NoteID:    row.NoteID,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}); err != nil {
		return nil, errs.Wrap(errs.Internal, "create share link", err)
	}
	obs.From(ctx).Info("share_link_created", "pkg", "share", "note_id", noteID, "expires_in_hours", expiresInHours)
	out := s.linkFromRow(row)
	return &out, nil
}

// List returns the note's links, newest first, expired ones included.
func (s *Service) List(ctx context.Context, userDB *db.UserDB, noteID string) ([]Link, error) {
	if _, err := requireNote(ctx, userDB, noteID); err != nil {
		return nil, err
	}
	rows, err := s.shared.Queries().ListShareLinksForNote(ctx, userDB.UserID(), noteID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list share links", err)
	}
	out := make([]Link, 0, len(rows))
	for _, l := range rows {
		out = append(out, s.linkFromRow(l))
	}
	return out, nil
}

// Revoke deletes a link owned by userID.
func (s *Service) Revoke(ctx context.Context, userID, token string) error {
	ok, err := s.shared.Queries().DeleteShareLink(ctx, token, userID)
	if err != nil {
		return errs.Wrap(errs.Internal, "revoke share link", err)
	}
	if !ok {
		return errs.New(errs.NotFound, "share link not found")
	}
	return nil
}

// DeleteShareLinksForNote drops every link of a note. Called when the note is
// permanently deleted.
func (s *Service) DeleteShareLinksForNote(ctx context.Context, userID, noteID string) error {
	return s.shared.Queries().DeleteShareLinksForNote(ctx, userID, noteID)
}

// Resolve looks a token up for an anonymous reader.
func (s *Service) Resolve(ctx context.Context, opener UserDBOpener, token string) (*PublicNote, error) {
	link, err := s.shared.Queries().GetShareLink(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "share link not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load share link", err)
	}
	if link.ExpiresAt.Valid && !s.now().Before(time.UnixMilli(link.ExpiresAt.Int64)) {
		return nil, errs.New(errs.Gone, "share link has expired")
	}

	userDB, err := opener.OpenUserDB(ctx, link.UserID)
	if errs.Is(err, errs.NotFound) {
		return nil, errs.New(errs.NotFound, "note not found")
	}
	if err != nil {
		return nil, err
	}
	n, err := requireNote(ctx, userDB, link.NoteID)
	if err != nil {
		return nil, err
	}
	if n.IsTrashed != 0 {
		return nil, errs.New(errs.NotFound, "note not found")
	}
	tags, err := userDB.Queries().GetNoteTags(ctx, n.ID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load note tags", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return &PublicNote{
		Title:     n.Title,
		Content:   n.Content,
		Type:      n.NoteType,
		Language:  n.Language,
		Tags:      tags,
		UpdatedAt: time.UnixMilli(n.UpdatedAt).UTC(),
	}, nil
}

// PurgeExpired deletes links that expired more than ExpiredRetention ago.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.shared.Queries().DeleteExpiredShareLinks(ctx, s.now().Add(-ExpiredRetention).UnixMilli())
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "purge expired share links", err)
	}
	return n, nil
}

// RunPurgeLoop calls PurgeExpired every interval until ctx is done.
func (s *Service) RunPurgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				obs.From(ctx).Warn("share_link_purge_failed", "pkg", "share", "error", err)
				continue
			}
			if n > 0 {
				obs.From(ctx).Info("share_links_purged", "pkg", "share", "count", n)
			}
		}
	}
}
