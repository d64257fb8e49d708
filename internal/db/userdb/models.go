package userdb

import "database/sql"

type Account struct {
	UserID       string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    int64
	UpdatedAt    int64
	LastLogin    sql.NullInt64
}

type Folder struct {
	ID        string
	Name      string
	ParentID  sql.NullString
	Color     string
	IsTrashed int64
	TrashedAt sql.NullInt64
	CreatedAt int64
	UpdatedAt int64
}

type Note struct {
	ID         string
	Title      string
	Content    string
	NoteType   string
	Language   string
	FolderID   sql.NullString
	IsFavorite int64
	IsTrashed  int64
	TrashedAt  sql.NullInt64
	CreatedAt  int64
	UpdatedAt  int64
}

type NoteVersion struct {
	ID        int64
	NoteID    string
	Content   string
	CreatedAt int64
}

type Tag struct {
	ID        string
	Name      string
	Color     string
	CreatedAt int64
}

type TagWithCount struct {
	Tag
	NoteCount int64
}

type TypeCount struct {
	NoteType string
	Count    int64
}

type NoteStats struct {
	Total     int64
	Favorites int64
	Trashed   int64
}

type FolderStats struct {
	Total   int64
	Trashed int64
}
