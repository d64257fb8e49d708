package notes

import (
	"bytes"
	"encoding/json"
	"time"
)

// NoteType selects how content is rendered.
type NoteType string

const (
	TypeText     NoteType = "text"
	TypeMarkdown NoteType = "markdown"
	TypeCode     NoteType = "code"
)

// Valid reports whether t is a known note type.
func (t NoteType) Valid() bool {
	switch t {
	case TypeText, TypeMarkdown, TypeCode:
		return true
	}
	return false
}

const (
	// MaxTitleLength is counted in characters.
	MaxTitleLength = 500

	// DefaultLimit is the default number of notes to return in a list
	DefaultLimit = 50

	// MaxLimit is the maximum number of notes to return in a list
	MaxLimit = 1000

	maxLanguageLength = 50
	maxTags           = 50
	maxTagLength      = 64
)

// Note is a user's note with its tags and derived metadata.
type Note struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Type         NoteType   `json:"type"`
	Language     string     `json:"language,omitempty"`
	FolderID     *string    `json:"folder_id"`
	Tags         []string   `json:"tags"`
	IsFavorite   bool       `json:"is_favorite"`
	IsTrashed    bool       `json:"is_trashed"`
	TrashedAt    *time.Time `json:"trashed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RevisionHash string     `json:"revision_hash"`
	VersionCount int        `json:"version_count"`
}

// CreateNoteParams contains parameters for creating a note
type CreateNoteParams struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Type       NoteType `json:"type"`
	Language   string   `json:"language"`
	FolderID   string   `json:"folder_id"`
	Tags       []string `json:"tags"`
	IsFavorite bool     `json:"is_favorite"`
}

// UpdateNoteParams contains parameters for updating a note. Nil fields are
// left unchanged. FolderID set to "" moves the note to the root; in JSON,
// "folder_id": null does the same.
type UpdateNoteParams struct {
	Title     *string   `json:"title,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Type      *NoteType `json:"type,omitempty"`
	Language  *string   `json:"language,omitempty"`
	FolderID  *string   `json:"folder_id,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	PriorHash *string   `json:"prior_hash,omitempty"`
}

func (p *UpdateNoteParams) UnmarshalJSON(data []byte) error {
	type plain UpdateNoteParams
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.FolderID == nil {
		var present struct {
			FolderID json.RawMessage `json:"folder_id"`
		}
		if err := json.Unmarshal(data, &present); err != nil {
			return err
		}
		if bytes.Equal(present.FolderID, []byte("null")) {
			root := ""
			v.FolderID = &root
		}
	}
	*p = UpdateNoteParams(v)
	return nil
}

// ListNotesParams filters and pages a note listing.
type ListNotesParams struct {
	FolderID string
	Tag      string
	Type     NoteType
	Favorite *bool
	Trashed  bool
	Query    string
	Limit    int
	Offset   int
}

// NoteListResult represents a paginated list of notes
type NoteListResult struct {
	Notes      []Note `json:"notes"`
	TotalCount int    `json:"total_count"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

// Version is a stored prior value of a note's content.
type Version struct {
	ID        int64     `json:"id"`
	NoteID    string    `json:"note_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// VersionSummary omits content for listings.
type VersionSummary struct {
	ID        int64     `json:"id"`
	NoteID    string    `json:"note_id"`
	Preview   string    `json:"preview"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// EmptyTrashResult reports what EmptyTrash removed.
type EmptyTrashResult struct {
	Notes   int `json:"notes"`
	Folders int `json:"folders"`
}
