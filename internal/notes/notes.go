package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/db/userdb"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/folders"
	"github.com/kuitang/notefold/internal/obs"
)

// LinkRemover drops the share links of a permanently deleted note.
type LinkRemover interface {
	DeleteShareLinksForNote(ctx context.Context, userID, noteID string) error
}

// Service handles note operations for one user.
type Service struct {
	userDB *db.UserDB
	quota  Quota
	links  LinkRemover
	now    func() time.Time
}

// NewService creates a notes service. links may be nil when share links are
// not in use.
func NewService(userDB *db.UserDB, quota Quota, links LinkRemover) *Service {
	return &Service{userDB: userDB, quota: quota, links: links, now: time.Now}
}

// SetClock replaces the time source. Intended for testing.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// UserID returns the owner of the notes this service operates on.
func (s *Service) UserID() string {
	return s.userDB.UserID()
}

// NormalizeTags trims, lower-cases and deduplicates tags, dropping empty ones.
// The result is sorted.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > maxTagLength {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("tag %q is too long", tag))
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > maxTags {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("a note can have at most %d tags", maxTags))
	}
	sort.Strings(out)
	return out, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errs.New(errs.InvalidArgument, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("title exceeds %d characters", MaxTitleLength))
	}
	return title, nil
}

func validateType(t NoteType) (NoteType, error) {
	if t == "" {
		return TypeText, nil
	}
	if !t.Valid() {
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("unknown note type %q", t))
	}
	return t, nil
}

func validateLanguage(lang string) (string, error) {
	lang = strings.TrimSpace(lang)
	if utf8.RuneCountInString(lang) > maxLanguageLength {
		return "", errs.New(errs.InvalidArgument, "language is too long")
	}
	return lang, nil
}

func fromRow(n userdb.Note, tags []string, versions int64) Note {
	if tags == nil {
		tags = []string{}
	}
	out := Note{
		ID:           n.ID,
		Title:        n.Title,
		Content:      n.Content,
		Type:         NoteType(n.NoteType),
		Language:     n.Language,
		Tags:         tags,
		IsFavorite:   n.IsFavorite != 0,
		IsTrashed:    n.IsTrashed != 0,
		CreatedAt:    time.UnixMilli(n.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(n.UpdatedAt).UTC(),
		RevisionHash: RevisionHash(n.Title, n.Content),
		VersionCount: int(versions),
	}
	if n.FolderID.Valid {
		f := n.FolderID.String
		out.FolderID = &f
	}
	if n.TrashedAt.Valid {
		t := time.UnixMilli(n.TrashedAt.Int64).UTC()
		out.TrashedAt = &t
	}
	return out
}

func loadNote(ctx context.Context, q *userdb.Queries, id string) (userdb.Note, error) {
	if id == "" {
		return userdb.Note{}, errs.New(errs.InvalidArgument, "note id is required")
	}
	n, err := q.GetNote(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return n, errs.New(errs.NotFound, "note not found")
	}
	if err != nil {
		return n, errs.Wrap(errs.Internal, "load note", err)
	}
	return n, nil
}

func writeTags(ctx context.Context, q *userdb.Queries, noteID string, tags []string, now int64) error {
	for _, tag := range tags {
		if err := q.EnsureTag(ctx, uuid.NewString(), tag, now); err != nil {
			return errs.Wrap(errs.Internal, "ensure tag", err)
		}
	}
	if err := q.ReplaceNoteTags(ctx, noteID, tags); err != nil {
		return errs.Wrap(errs.Internal, "set note tags", err)
	}
	return nil
}

// StorageUsage reports content bytes of non-trashed notes against the quota.
func (s *Service) StorageUsage(ctx context.Context) (StorageUsageInfo, error) {
	used, err := s.userDB.Queries().StorageUsed(ctx)
	if err != nil {
		return StorageUsageInfo{}, errs.Wrap(errs.Internal, "storage usage", err)
	}
	return NewStorageUsageInfo(used, s.quota.LimitBytes), nil
}

// Create validates params, applies the quota gate and inserts the note.
func (s *Service) Create(ctx context.Context, params CreateNoteParams) (*Note, error) {
	title, err := validateTitle(params.Title)
	if err != nil {
		return nil, err
	}
	noteType, err := validateType(params.Type)
	if err != nil {
		return nil, err
	}
	lang, err := validateLanguage(params.Language)
	if err != nil {
		return nil, err
	}
	tags, err := NormalizeTags(params.Tags)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := s.now().UnixMilli()
	err = s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		if params.FolderID != "" {
			if _, err := folders.RequireActive(ctx, q, params.FolderID); err != nil {
				return err
			}
		}
		used, err := q.StorageUsed(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, "storage usage", err)
		}
		if err := CheckStorageLimit(used, int64(len(params.Content)), s.quota.LimitBytes); err != nil {
			return err
		}
		if err := q.CreateNote(ctx, userdb.CreateNoteParams{
			ID:         id,
			Title:      title,
			Content:    params.Content,
			NoteType:   string(noteType),
			Language:   lang,
			FolderID:   userdb.NullString(params.FolderID),
			IsFavorite: boolInt(params.IsFavorite),
			CreatedAt:  now,
		}); err != nil {
			return errs.Wrap(errs.Internal, "create note", err)
		}
		return writeTags(ctx, q, id, tags, now)
	})
	if err != nil {
		return nil, err
	}
	obs.From(ctx).Debug("note_created", "pkg", "notes", "note_id", id, "bytes", len(params.Content))
	return s.Get(ctx, id)
}

// Get returns a note with its tags and version count, trashed or not.
func (s *Service) Get(ctx context.Context, id string) (*Note, error) {
	q := s.userDB.Queries()
	n, err := loadNote(ctx, q, id)
	if err != nil {
		return nil, err
	}
	tags, err := q.GetNoteTags(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load note tags", err)
	}
	versions, err := q.CountNoteVersions(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "count versions", err)
	}
	out := fromRow(n, tags, versions)
	return &out, nil
}

// List filters and pages notes, newest update first. A folder filter covers
// the folder and all its descendants.
func (s *Service) List(ctx context.Context, params ListNotesParams) (*NoteListResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	q := s.userDB.Queries()
	trashed := params.Trashed
	arg := userdb.ListNotesParams{
		Tag:      strings.ToLower(strings.TrimSpace(params.Tag)),
		Favorite: params.Favorite,
		Trashed:  &trashed,
		Limit:    int64(limit),
		Offset:   int64(offset),
	}
	if params.Type != "" {
		if !params.Type.Valid() {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown note type %q", params.Type))
		}
		arg.NoteType = string(params.Type)
	}
	if params.FolderID != "" {
		if _, err := q.GetFolder(ctx, params.FolderID); errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "folder not found")
		} else if err != nil {
			return nil, errs.Wrap(errs.Internal, "load folder", err)
		}
		ids, err := folders.Descendants(ctx, q, params.FolderID)
		if err != nil {
			return nil, err
		}
		arg.FolderIDs = ids
	}
	if query := strings.TrimSpace(params.Query); query != "" {
		arg.Pattern = db.CaseInsensitiveLiteral(query)
	}

	rows, err := q.ListNotes(ctx, arg)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list notes", err)
	}
	total, err := q.CountNotes(ctx, arg)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "count notes", err)
	}

	ids := make([]string, len(rows))
	for i, n := range rows {
		ids[i] = n.ID
	}
	tags, err := q.ListTagsForNotes(ctx, ids)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load note tags", err)
	}
	versions, err := q.CountVersionsForNotes(ctx, ids)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "count versions", err)
	}

	result := &NoteListResult{
		Notes:      make([]Note, 0, len(rows)),
		TotalCount: int(total),
		Limit:      limit,
		Offset:     offset,
	}
	for _, n := range rows {
		result.Notes = append(result.Notes, fromRow(n, tags[n.ID], versions[n.ID]))
	}
	return result, nil
}

// Update applies the non-nil fields of params. A content change snapshots the
// previous content when it differs enough from the last stored version.
func (s *Service) Update(ctx context.Context, id string, params UpdateNoteParams) (*Note, error) {
	var priorHash string
	if params.PriorHash != nil {
		h, ok := normalizePriorHash(*params.PriorHash)
		if !ok {
			return nil, errs.New(errs.InvalidArgument, "prior_hash must be a 64 character hex string")
		}
		priorHash = h
	}

	var tags []string
	if params.Tags != nil {
		var err error
		if tags, err = NormalizeTags(*params.Tags); err != nil {
			return nil, err
		}
	}

	now := s.now().UnixMilli()
	snapshotted := false
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		current, err := loadNote(ctx, q, id)
		if err != nil {
			return err
		}
		if current.IsTrashed != 0 {
			return errs.New(errs.FailedPrecondition, "note is in the trash; restore it first")
		}
		if priorHash != "" && priorHash != RevisionHash(current.Title, current.Content) {
			return errs.New(errs.FailedPrecondition, "note was modified since prior_hash was read")
		}

		arg := userdb.UpdateNoteParams{
			ID:        id,
			Title:     current.Title,
			Content:   current.Content,
			NoteType:  current.NoteType,
			Language:  current.Language,
			FolderID:  current.FolderID,
			UpdatedAt: now,
		}
		if params.Title != nil {
			if arg.Title, err = validateTitle(*params.Title); err != nil {
				return err
			}
		}
		if params.Type != nil {
			t, err := validateType(*params.Type)
			if err != nil {
				return err
			}
			arg.NoteType = string(t)
		}
		if params.Language != nil {
			if arg.Language, err = validateLanguage(*params.Language); err != nil {
				return err
			}
		}
		if params.FolderID != nil {
			if *params.FolderID != "" {
				if _, err := folders.RequireActive(ctx, q, *params.FolderID); err != nil {
					return err
				}
			}
			arg.FolderID = userdb.NullString(*params.FolderID)
		}
		if params.Content != nil {
			arg.Content = *params.Content
		}

		if arg.Content != current.Content {
			if s.quota.EnforceOnUpdate {
				used, err := q.StorageUsed(ctx)
				if err != nil {
					return errs.Wrap(errs.Internal, "storage usage", err)
				}
				if err := CheckStorageLimitForUpdate(used, int64(len(current.Content)), int64(len(arg.Content)), s.quota.LimitBytes); err != nil {
					return err
				}
			}
			if snapshotted, err = s.snapshot(ctx, q, current, arg.Content, now); err != nil {
				return err
			}
		}

		if _, err := q.UpdateNote(ctx, arg); err != nil {
			return errs.Wrap(errs.Internal, "update note", err)
		}
		if params.Tags != nil {
			return writeTags(ctx, q, id, tags, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if snapshotted {
		obs.From(ctx).Debug("note_version_created", "pkg", "notes", "note_id", id)
	}
	return s.Get(ctx, id)
}

// snapshot stores current.Content as a version when the change against the
// last snapshot is significant, then prunes to MaxVersions.
func (s *Service) snapshot(ctx context.Context, q *userdb.Queries, current userdb.Note, newContent string, now int64) (bool, error) {
	var last *string
	v, err := q.GetLatestNoteVersion(ctx, current.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, errs.Wrap(errs.Internal, "load latest version", err)
	default:
		last = &v.Content
	}
	if !ShouldSnapshot(last, newContent) {
		return false, nil
	}
	if _, err := q.CreateNoteVersion(ctx, current.ID, current.Content, now); err != nil {
		return false, errs.Wrap(errs.Internal, "create version", err)
	}
	if _, err := q.PruneNoteVersions(ctx, current.ID, MaxVersions); err != nil {
		return false, errs.Wrap(errs.Internal, "prune versions", err)
	}
	return true, nil
}

// SetFavorite sets the favorite flag.
func (s *Service) SetFavorite(ctx context.Context, id string, favorite bool) (*Note, error) {
	q := s.userDB.Queries()
	if _, err := loadNote(ctx, q, id); err != nil {
		return nil, err
	}
	if _, err := q.SetNoteFavorite(ctx, id, favorite, s.now().UnixMilli()); err != nil {
		return nil, errs.Wrap(errs.Internal, "set favorite", err)
	}
	return s.Get(ctx, id)
}

// ToggleFavorite flips the favorite flag.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (*Note, error) {
	n, err := loadNote(ctx, s.userDB.Queries(), id)
	if err != nil {
		return nil, err
	}
	return s.SetFavorite(ctx, id, n.IsFavorite == 0)
}

// Trash moves a note to the trash. Trashing a trashed note is a no-op.
func (s *Service) Trash(ctx context.Context, id string) (*Note, error) {
	q := s.userDB.Queries()
	if _, err := loadNote(ctx, q, id); err != nil {
		return nil, err
	}
	if _, err := q.TrashNote(ctx, id, s.now().UnixMilli()); err != nil {
		return nil, errs.Wrap(errs.Internal, "trash note", err)
	}
	return s.Get(ctx, id)
}

// Restore takes a note out of the trash. When its folder is trashed or gone
// the note lands at the root.
func (s *Service) Restore(ctx context.Context, id string) (*Note, error) {
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		n, err := loadNote(ctx, q, id)
		if err != nil {
			return err
		}
		if n.IsTrashed == 0 {
			return nil
		}
		folderID := n.FolderID
		if folderID.Valid {
			f, err := q.GetFolder(ctx, folderID.String)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				folderID = sql.NullString{}
			case err != nil:
				return errs.Wrap(errs.Internal, "load folder", err)
			case f.IsTrashed != 0:
				folderID = sql.NullString{}
			}
		}
		if _, err := q.RestoreNote(ctx, id, folderID, s.now().UnixMilli()); err != nil {
			return errs.Wrap(errs.Internal, "restore note", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// PermanentDelete removes a note, its versions, tags and share links.
func (s *Service) PermanentDelete(ctx context.Context, id string) error {
	q := s.userDB.Queries()
	if _, err := loadNote(ctx, q, id); err != nil {
		return err
	}
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		if _, err := q.DeleteNote(ctx, id); err != nil {
			return errs.Wrap(errs.Internal, "delete note", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.dropLinks(ctx, []string{id})
	return nil
}

// EmptyTrash permanently deletes every trashed note and returns the count.
func (s *Service) EmptyTrash(ctx context.Context) (int, error) {
	var ids []string
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		var err error
		if ids, err = q.ListTrashedNoteIDs(ctx); err != nil {
			return errs.Wrap(errs.Internal, "list trashed notes", err)
		}
		for _, id := range ids {
			if _, err := q.DeleteNote(ctx, id); err != nil {
				return errs.Wrap(errs.Internal, "delete note", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.dropLinks(ctx, ids)
	return len(ids), nil
}

// Duplicate copies a note's title, content, type, language, folder and tags
// into a new note. It is quota-gated like Create.
func (s *Service) Duplicate(ctx context.Context, id string) (*Note, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.IsTrashed {
		return nil, errs.New(errs.FailedPrecondition, "cannot duplicate a trashed note")
	}
	title := src.Title + " (copy)"
	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = src.Title
	}
	params := CreateNoteParams{
		Title:    title,
		Content:  src.Content,
		Type:     src.Type,
		Language: src.Language,
		Tags:     src.Tags,
	}
	if src.FolderID != nil {
		params.FolderID = *src.FolderID
	}
	return s.Create(ctx, params)
}

func (s *Service) dropLinks(ctx context.Context, noteIDs []string) {
	if s.links == nil {
		return
	}
	for _, id := range noteIDs {
		if err := s.links.DeleteShareLinksForNote(ctx, s.userDB.UserID(), id); err != nil {
			obs.From(ctx).Warn("share_link_cleanup_failed", "pkg", "notes", "note_id", id, "error", err)
		}
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
