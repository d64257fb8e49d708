package userdb

import (
	"context"
	"database/sql"
	"strings"
)

const noteColumns = `id, title, content, note_type, language, folder_id, is_favorite, is_trashed, trashed_at, created_at, updated_at`

func scanNote(row interface{ Scan(...interface{}) error }) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.Title, &n.Content, &n.NoteType, &n.Language, &n.FolderID,
		&n.IsFavorite, &n.IsTrashed, &n.TrashedAt, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

func scanNotes(rows *sql.Rows, err error) ([]Note, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

const createNote = `INSERT INTO notes (` + noteColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`

type CreateNoteParams struct {
	ID         string
	Title      string
	Content    string
	NoteType   string
	Language   string
	FolderID   sql.NullString
	IsFavorite int64
	CreatedAt  int64
}

func (q *Queries) CreateNote(ctx context.Context, arg CreateNoteParams) error {
	_, err := q.db.ExecContext(ctx, createNote,
		arg.ID, arg.Title, arg.Content, arg.NoteType, arg.Language, arg.FolderID, arg.IsFavorite,
		arg.CreatedAt, arg.CreatedAt)
	return err
}

const getNote = `SELECT ` + noteColumns + ` FROM notes WHERE id = ?`

func (q *Queries) GetNote(ctx context.Context, id string) (Note, error) {
	return scanNote(q.db.QueryRowContext(ctx, getNote, id))
}

const updateNote = `UPDATE notes SET title = ?, content = ?, note_type = ?, language = ?, folder_id = ?, updated_at = ? WHERE id = ?`

type UpdateNoteParams struct {
	ID        string
	Title     string
	Content   string
	NoteType  string
	Language  string
	FolderID  sql.NullString
	UpdatedAt int64
}

func (q *Queries) UpdateNote(ctx context.Context, arg UpdateNoteParams) (int64, error) {
	return affected(q.db.ExecContext(ctx, updateNote,
		arg.Title, arg.Content, arg.NoteType, arg.Language, arg.FolderID, arg.UpdatedAt, arg.ID))
}

const setNoteFavorite = `UPDATE notes SET is_favorite = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SetNoteFavorite(ctx context.Context, id string, favorite bool, updatedAt int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, setNoteFavorite, boolInt(favorite), updatedAt, id))
}

const trashNote = `UPDATE notes SET is_trashed = 1, trashed_at = ?, updated_at = ? WHERE id = ? AND is_trashed = 0`

func (q *Queries) TrashNote(ctx context.Context, id string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, trashNote, now, now, id))
}

const restoreNote = `UPDATE notes SET is_trashed = 0, trashed_at = NULL, folder_id = ?, updated_at = ? WHERE id = ?`

func (q *Queries) RestoreNote(ctx context.Context, id string, folderID sql.NullString, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, restoreNote, folderID, now, id))
}

const trashNotesInFolder = `UPDATE notes SET is_trashed = 1, trashed_at = ?, updated_at = ? WHERE folder_id = ? AND is_trashed = 0`

// TrashNotesInFolder trashes the notes directly inside folderID.
func (q *Queries) TrashNotesInFolder(ctx context.Context, folderID string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, trashNotesInFolder, now, now, folderID))
}

const restoreNotesInFolder = `UPDATE notes SET is_trashed = 0, trashed_at = NULL, updated_at = ? WHERE folder_id = ? AND is_trashed = 1`

// RestoreNotesInFolder restores the trashed notes directly inside folderID.
func (q *Queries) RestoreNotesInFolder(ctx context.Context, folderID string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, restoreNotesInFolder, now, folderID))
}

const moveFolderNotesToRoot = `UPDATE notes SET folder_id = NULL, updated_at = ? WHERE folder_id = ?`

func (q *Queries) MoveFolderNotesToRoot(ctx context.Context, folderID string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, moveFolderNotesToRoot, now, folderID))
}

const listTrashedNoteIDsInFolder = `SELECT id FROM notes WHERE folder_id = ? AND is_trashed = 1`

func (q *Queries) ListTrashedNoteIDsInFolder(ctx context.Context, folderID string) ([]string, error) {
	return scanStrings(q.db.QueryContext(ctx, listTrashedNoteIDsInFolder, folderID))
}

const listTrashedNoteIDs = `SELECT id FROM notes WHERE is_trashed = 1`

func (q *Queries) ListTrashedNoteIDs(ctx context.Context) ([]string, error) {
	return scanStrings(q.db.QueryContext(ctx, listTrashedNoteIDs))
}

const deleteNote = `DELETE FROM notes WHERE id = ?`

// DeleteNote removes a note with its tags and versions.
func (q *Queries) DeleteNote(ctx context.Context, id string) (int64, error) {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, id); err != nil {
		return 0, err
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM note_versions WHERE note_id = ?`, id); err != nil {
		return 0, err
	}
	return affected(q.db.ExecContext(ctx, deleteNote, id))
}

const storageUsed = `SELECT COALESCE(SUM(length(CAST(content AS BLOB))), 0) FROM notes WHERE is_trashed = 0`

// StorageUsed returns the UTF-8 byte length of content summed over non-trashed notes.
func (q *Queries) StorageUsed(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, storageUsed).Scan(&n)
	return n, err
}

const noteStats = `SELECT
    COALESCE(SUM(CASE WHEN is_trashed = 0 THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN is_trashed = 0 AND is_favorite = 1 THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN is_trashed = 1 THEN 1 ELSE 0 END), 0)
FROM notes`

func (q *Queries) NoteStats(ctx context.Context) (NoteStats, error) {
	var s NoteStats
	err := q.db.QueryRowContext(ctx, noteStats).Scan(&s.Total, &s.Favorites, &s.Trashed)
	return s, err
}

const countNotesByType = `SELECT note_type, COUNT(*) FROM notes WHERE is_trashed = 0 GROUP BY note_type ORDER BY note_type`

func (q *Queries) CountNotesByType(ctx context.Context) ([]TypeCount, error) {
	rows, err := q.db.QueryContext(ctx, countNotesByType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.NoteType, &tc.Count); err != nil {
			return nil, err
		}
		items = append(items, tc)
	}
	return items, rows.Err()
}

const countNotesPerFolder = `SELECT folder_id, COUNT(*) FROM notes WHERE is_trashed = 0 AND folder_id IS NOT NULL GROUP BY folder_id`

func (q *Queries) CountNotesPerFolder(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countNotesPerFolder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

const listRecentNotes = `SELECT ` + noteColumns + ` FROM notes WHERE is_trashed = 0 ORDER BY updated_at DESC, id LIMIT ?`

func (q *Queries) ListRecentNotes(ctx context.Context, limit int64) ([]Note, error) {
	return scanNotes(q.db.QueryContext(ctx, listRecentNotes, limit))
}

const searchNotes = `SELECT ` + noteColumns + ` FROM notes
WHERE is_trashed = 0 AND (title REGEXP ? OR content REGEXP ?)
ORDER BY updated_at DESC, id LIMIT ?`

// SearchNotes matches pattern against title or content of non-trashed notes.
func (q *Queries) SearchNotes(ctx context.Context, pattern string, limit int64) ([]Note, error) {
	return scanNotes(q.db.QueryContext(ctx, searchNotes, pattern, pattern, limit))
}

// ListNotesParams filters ListNotes and CountNotes. Zero values mean "no filter",
// except Trashed which must be set explicitly to include trashed notes.
type ListNotesParams struct {
	FolderIDs []string
	Tag       string
	NoteType  string
	Favorite  *bool
	Trashed   *bool
	Pattern   string
	Limit     int64
	Offset    int64
}

func (p ListNotesParams) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if p.Trashed != nil {
		clauses = append(clauses, "is_trashed = ?")
		args = append(args, boolInt(*p.Trashed))
	}
	if len(p.FolderIDs) > 0 {
		clauses = append(clauses, "folder_id IN ("+placeholders(len(p.FolderIDs))+")")
		args = append(args, stringArgs(p.FolderIDs)...)
	}
	if p.Tag != "" {
		clauses = append(clauses, "id IN (SELECT note_id FROM note_tags WHERE tag = ?)")
		args = append(args, p.Tag)
	}
	if p.NoteType != "" {
		clauses = append(clauses, "note_type = ?")
		args = append(args, p.NoteType)
	}
	if p.Favorite != nil {
		clauses = append(clauses, "is_favorite = ?")
		args = append(args, boolInt(*p.Favorite))
	}
	if p.Pattern != "" {
		clauses = append(clauses, "(title REGEXP ? OR content REGEXP ?)")
		args = append(args, p.Pattern, p.Pattern)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (q *Queries) ListNotes(ctx context.Context, arg ListNotesParams) ([]Note, error) {
	where, args := arg.where()
	query := `SELECT ` + noteColumns + ` FROM notes` + where + ` ORDER BY updated_at DESC, id`
	if arg.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, arg.Limit, arg.Offset)
	}
	return scanNotes(q.db.QueryContext(ctx, query, args...))
}

func (q *Queries) CountNotes(ctx context.Context, arg ListNotesParams) (int64, error) {
	where, args := arg.where()
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+where, args...).Scan(&n)
	return n, err
}

func scanStrings(rows *sql.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
