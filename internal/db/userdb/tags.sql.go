package userdb

import (
	"context"
	"sort"
)

const tagColumns = `id, name, color, created_at`

func scanTag(row interface{ Scan(...interface{}) error }) (Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt)
	return t, err
}

const createTag = `INSERT INTO tags (` + tagColumns + `) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateTag(ctx context.Context, arg Tag) error {
	_, err := q.db.ExecContext(ctx, createTag, arg.ID, arg.Name, arg.Color, arg.CreatedAt)
	return err
}

const ensureTag = `INSERT INTO tags (` + tagColumns + `) VALUES (?, ?, '', ?) ON CONFLICT(name) DO NOTHING`

// EnsureTag creates a tag row for name unless one already exists.
func (q *Queries) EnsureTag(ctx context.Context, id, name string, createdAt int64) error {
	_, err := q.db.ExecContext(ctx, ensureTag, id, name, createdAt)
	return err
}

const getTag = `SELECT ` + tagColumns + ` FROM tags WHERE id = ?`

func (q *Queries) GetTag(ctx context.Context, id string) (Tag, error) {
	return scanTag(q.db.QueryRowContext(ctx, getTag, id))
}

const getTagByName = `SELECT ` + tagColumns + ` FROM tags WHERE name = ?`

// GetTagByName matches case-insensitively via the column collation.
func (q *Queries) GetTagByName(ctx context.Context, name string) (Tag, error) {
	return scanTag(q.db.QueryRowContext(ctx, getTagByName, name))
}

const listTagsWithCounts = `SELECT t.id, t.name, t.color, t.created_at, COUNT(n.id)
FROM tags t
LEFT JOIN note_tags nt ON nt.tag = t.name
LEFT JOIN notes n ON n.id = nt.note_id AND n.is_trashed = 0
GROUP BY t.id
ORDER BY t.name`

func (q *Queries) ListTagsWithCounts(ctx context.Context) ([]TagWithCount, error) {
	rows, err := q.db.QueryContext(ctx, listTagsWithCounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TagWithCount
	for rows.Next() {
		var t TagWithCount
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt, &t.NoteCount); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const updateTag = `UPDATE tags SET name = ?, color = ? WHERE id = ?`

func (q *Queries) UpdateTag(ctx context.Context, id, name, color string) (int64, error) {
	return affected(q.db.ExecContext(ctx, updateTag, name, color, id))
}

const deleteTag = `DELETE FROM tags WHERE id = ?`

func (q *Queries) DeleteTag(ctx context.Context, id string) (int64, error) {
	return affected(q.db.ExecContext(ctx, deleteTag, id))
}

const searchTags = `SELECT ` + tagColumns + ` FROM tags WHERE name REGEXP ? ORDER BY name LIMIT ?`

func (q *Queries) SearchTags(ctx context.Context, pattern string, limit int64) ([]Tag, error) {
	rows, err := q.db.QueryContext(ctx, searchTags, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const countTags = `SELECT COUNT(*) FROM tags`

func (q *Queries) CountTags(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTags).Scan(&n)
	return n, err
}

// -- note_tags ---------------------------------------------------------------

const getNoteTags = `SELECT tag FROM note_tags WHERE note_id = ? ORDER BY tag`

func (q *Queries) GetNoteTags(ctx context.Context, noteID string) ([]string, error) {
	return scanStrings(q.db.QueryContext(ctx, getNoteTags, noteID))
}

// ListTagsForNotes returns the sorted tag list of each note id that has tags.
func (q *Queries) ListTagsForNotes(ctx context.Context, noteIDs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	if len(noteIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT note_id, tag FROM note_tags WHERE note_id IN (`+placeholders(len(noteIDs))+`)`,
		stringArgs(noteIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var noteID, tag string
		if err := rows.Scan(&noteID, &tag); err != nil {
			return nil, err
		}
		out[noteID] = append(out[noteID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, tags := range out {
		sort.Strings(tags)
	}
	return out, nil
}

// ReplaceNoteTags sets the tag list of a note. Run inside a transaction.
func (q *Queries) ReplaceNoteTags(ctx context.Context, noteID string, tags []string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, noteID); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO note_tags (note_id, tag) VALUES (?, ?) ON CONFLICT DO NOTHING`, noteID, tag); err != nil {
			return err
		}
	}
	return nil
}

// RenameNoteTag rewrites oldName to newName on every note.
func (q *Queries) RenameNoteTag(ctx context.Context, oldName, newName string) (int64, error) {
	n, err := affected(q.db.ExecContext(ctx,
		`UPDATE OR IGNORE note_tags SET tag = ? WHERE tag = ?`, newName, oldName))
	if err != nil {
		return 0, err
	}
	// Notes that already carried newName keep a stale oldName row after IGNORE.
	if _, err := q.db.ExecContext(ctx, `DELETE FROM note_tags WHERE tag = ?`, oldName); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteNoteTag removes tag from every note.
func (q *Queries) DeleteNoteTag(ctx context.Context, tag string) (int64, error) {
	return affected(q.db.ExecContext(ctx, `DELETE FROM note_tags WHERE tag = ?`, tag))
}

const topTags = `SELECT nt.tag, COUNT(*) AS c FROM note_tags nt
JOIN notes n ON n.id = nt.note_id AND n.is_trashed = 0
GROUP BY nt.tag ORDER BY c DESC, nt.tag LIMIT ?`

type TagUsage struct {
	Name  string
	Count int64
}

func (q *Queries) TopTags(ctx context.Context, limit int64) ([]TagUsage, error) {
	rows, err := q.db.QueryContext(ctx, topTags, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TagUsage
	for rows.Next() {
		var u TagUsage
		if err := rows.Scan(&u.Name, &u.Count); err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}
