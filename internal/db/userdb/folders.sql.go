package userdb

import (
	"context"
	"database/sql"
)

const folderColumns = `id, name, parent_id, color, is_trashed, trashed_at, created_at, updated_at`

func scanFolder(row interface{ Scan(...interface{}) error }) (Folder, error) {
	var f Folder
	err := row.Scan(&f.ID, &f.Name, &f.ParentID, &f.Color, &f.IsTrashed, &f.TrashedAt, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func scanFolders(rows *sql.Rows, err error) ([]Folder, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

const createFolder = `INSERT INTO folders (` + folderColumns + `) VALUES (?, ?, ?, ?, 0, NULL, ?, ?)`

type CreateFolderParams struct {
	ID        string
	Name      string
	ParentID  sql.NullString
	Color     string
	CreatedAt int64
}

func (q *Queries) CreateFolder(ctx context.Context, arg CreateFolderParams) error {
	_, err := q.db.ExecContext(ctx, createFolder, arg.ID, arg.Name, arg.ParentID, arg.Color, arg.CreatedAt, arg.CreatedAt)
	return err
}

const getFolder = `SELECT ` + folderColumns + ` FROM folders WHERE id = ?`

func (q *Queries) GetFolder(ctx context.Context, id string) (Folder, error) {
	return scanFolder(q.db.QueryRowContext(ctx, getFolder, id))
}

// ListFolders returns folders ordered by name. A nil trashed lists everything.
func (q *Queries) ListFolders(ctx context.Context, trashed *bool) ([]Folder, error) {
	if trashed == nil {
		return scanFolders(q.db.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY name, id`))
	}
	return scanFolders(q.db.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE is_trashed = ? ORDER BY name, id`, boolInt(*trashed)))
}

// ListChildFolderIDs returns the ids of folders whose parent is one of parentIDs.
func (q *Queries) ListChildFolderIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	return scanStrings(q.db.QueryContext(ctx,
		`SELECT id FROM folders WHERE parent_id IN (`+placeholders(len(parentIDs))+`)`,
		stringArgs(parentIDs)...))
}

const updateFolder = `UPDATE folders SET name = ?, parent_id = ?, color = ?, updated_at = ? WHERE id = ?`

type UpdateFolderParams struct {
	ID        string
	Name      string
	ParentID  sql.NullString
	Color     string
	UpdatedAt int64
}

func (q *Queries) UpdateFolder(ctx context.Context, arg UpdateFolderParams) (int64, error) {
	return affected(q.db.ExecContext(ctx, updateFolder, arg.Name, arg.ParentID, arg.Color, arg.UpdatedAt, arg.ID))
}

const trashFolder = `UPDATE folders SET is_trashed = 1, trashed_at = ?, updated_at = ? WHERE id = ? AND is_trashed = 0`

func (q *Queries) TrashFolder(ctx context.Context, id string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, trashFolder, now, now, id))
}

const trashChildFolders = `UPDATE folders SET is_trashed = 1, trashed_at = ?, updated_at = ? WHERE parent_id = ? AND is_trashed = 0`

func (q *Queries) TrashChildFolders(ctx context.Context, parentID string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, trashChildFolders, now, now, parentID))
}

const restoreFolder = `UPDATE folders SET is_trashed = 0, trashed_at = NULL, parent_id = ?, updated_at = ? WHERE id = ?`

func (q *Queries) RestoreFolder(ctx context.Context, id string, parentID sql.NullString, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, restoreFolder, parentID, now, id))
}

const restoreChildFolders = `UPDATE folders SET is_trashed = 0, trashed_at = NULL, updated_at = ? WHERE parent_id = ? AND is_trashed = 1`

func (q *Queries) RestoreChildFolders(ctx context.Context, parentID string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, restoreChildFolders, now, parentID))
}

const deleteFolder = `DELETE FROM folders WHERE id = ?`

func (q *Queries) DeleteFolder(ctx context.Context, id string) (int64, error) {
	return affected(q.db.ExecContext(ctx, deleteFolder, id))
}

const deleteTrashedChildFolders = `DELETE FROM folders WHERE parent_id = ? AND is_trashed = 1`

func (q *Queries) DeleteTrashedChildFolders(ctx context.Context, parentID string) (int64, error) {
	return affected(q.db.ExecContext(ctx, deleteTrashedChildFolders, parentID))
}

const moveChildFoldersToRoot = `UPDATE folders SET parent_id = NULL, updated_at = ? WHERE parent_id = ?`

func (q *Queries) MoveChildFoldersToRoot(ctx context.Context, parentID string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, moveChildFoldersToRoot, now, parentID))
}

const listTrashedFolderIDs = `SELECT id FROM folders WHERE is_trashed = 1`

func (q *Queries) ListTrashedFolderIDs(ctx context.Context) ([]string, error) {
	return scanStrings(q.db.QueryContext(ctx, listTrashedFolderIDs))
}

const folderStats = `SELECT
    COALESCE(SUM(CASE WHEN is_trashed = 0 THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN is_trashed = 1 THEN 1 ELSE 0 END), 0)
FROM folders`

func (q *Queries) FolderStats(ctx context.Context) (FolderStats, error) {
	var s FolderStats
	err := q.db.QueryRowContext(ctx, folderStats).Scan(&s.Total, &s.Trashed)
	return s, err
}

const searchFolders = `SELECT ` + folderColumns + ` FROM folders WHERE is_trashed = 0 AND name REGEXP ? ORDER BY updated_at DESC, id LIMIT ?`

func (q *Queries) SearchFolders(ctx context.Context, pattern string, limit int64) ([]Folder, error) {
	return scanFolders(q.db.QueryContext(ctx, searchFolders, pattern, limit))
}
