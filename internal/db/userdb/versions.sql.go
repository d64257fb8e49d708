package userdb

import "context"

const versionColumns = `id, note_id, content, created_at`

func scanVersion(row interface{ Scan(...interface{}) error }) (NoteVersion, error) {
	var v NoteVersion
	err := row.Scan(&v.ID, &v.NoteID, &v.Content, &v.CreatedAt)
	return v, err
}

const createNoteVersion = `INSERT INTO note_versions (note_id, content, created_at) VALUES (?, ?, ?)`

func (q *Queries) CreateNoteVersion(ctx context.Context, noteID, content string, createdAt int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, createNoteVersion, noteID, content, createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getLatestNoteVersion = `SELECT ` + versionColumns + ` FROM note_versions WHERE note_id = ? ORDER BY id DESC LIMIT 1`

// GetLatestNoteVersion returns sql.ErrNoRows when the note has no versions.
func (q *Queries) GetLatestNoteVersion(ctx context.Context, noteID string) (NoteVersion, error) {
	return scanVersion(q.db.QueryRowContext(ctx, getLatestNoteVersion, noteID))
}

const getNoteVersion = `SELECT ` + versionColumns + ` FROM note_versions WHERE note_id = ? AND id = ?`

func (q *Queries) GetNoteVersion(ctx context.Context, noteID string, id int64) (NoteVersion, error) {
	return scanVersion(q.db.QueryRowContext(ctx, getNoteVersion, noteID, id))
}

const listNoteVersions = `SELECT ` + versionColumns + ` FROM note_versions WHERE note_id = ? ORDER BY id DESC`

// ListNoteVersions returns versions newest first.
func (q *Queries) ListNoteVersions(ctx context.Context, noteID string) ([]NoteVersion, error) {
	rows, err := q.db.QueryContext(ctx, listNoteVersions, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []NoteVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

const countNoteVersions = `SELECT COUNT(*) FROM note_versions WHERE note_id = ?`

func (q *Queries) CountNoteVersions(ctx context.Context, noteID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countNoteVersions, noteID).Scan(&n)
	return n, err
}

// CountVersionsForNotes returns the version count of each listed note that has any.
func (q *Queries) CountVersionsForNotes(ctx context.Context, noteIDs []string) (map[string]int64, error) {
	out := make(map[string]int64)
	if len(noteIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT note_id, COUNT(*) FROM note_versions WHERE note_id IN (`+placeholders(len(noteIDs))+`) GROUP BY note_id`,
		stringArgs(noteIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

const countAllVersions = `SELECT COUNT(*) FROM note_versions`

func (q *Queries) CountAllVersions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countAllVersions).Scan(&n)
	return n, err
}

const pruneNoteVersions = `DELETE FROM note_versions
WHERE note_id = ? AND id NOT IN (
    SELECT id FROM note_versions WHERE note_id = ? ORDER BY id DESC LIMIT ?
)`

// PruneNoteVersions keeps the newest keep versions of a note and deletes the rest.
func (q *Queries) PruneNoteVersions(ctx context.Context, noteID string, keep int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, pruneNoteVersions, noteID, noteID, keep))
}

const deleteNoteVersion = `DELETE FROM note_versions WHERE note_id = ? AND id = ?`

func (q *Queries) DeleteNoteVersion(ctx context.Context, noteID string, id int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, deleteNoteVersion, noteID, id))
}
