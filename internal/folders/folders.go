// Package folders manages the folder tree and its one-level trash lifecycle.
package folders

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/db/userdb"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/obs"
)

const maxNameLength = 100

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Folder is a node of the user's folder tree.
type Folder struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	ParentID  *string    `json:"parent_id"`
	Color     string     `json:"color,omitempty"`
	IsTrashed bool       `json:"is_trashed"`
	TrashedAt *time.Time `json:"trashed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	NoteCount int        `json:"note_count"`
}

// TreeNode is a folder with its non-trashed children.
type TreeNode struct {
	Folder
	Children []*TreeNode `json:"children"`
}

type CreateFolderParams struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
	Color    string `json:"color"`
}

// UpdateFolderParams leaves nil fields unchanged. ParentID "" moves the
// folder to the root.
type UpdateFolderParams struct {
	Name     *string `json:"name,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
	Color    *string `json:"color,omitempty"`
}

// LinkRemover drops share links of permanently deleted notes.
type LinkRemover interface {
	DeleteShareLinksForNote(ctx context.Context, userID, noteID string) error
}

// Service handles folder operations for one user.
type Service struct {
	userDB *db.UserDB
	links  LinkRemover
	now    func() time.Time
}

// NewService creates a folder service. links may be nil.
func NewService(userDB *db.UserDB, links LinkRemover) *Service {
	return &Service{userDB: userDB, links: links, now: time.Now}
}

// SetClock replaces the time source. Intended for testing.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func fromRow(f userdb.Folder, counts map[string]int64) Folder {
	out := Folder{
		ID:        f.ID,
		Name:      f.Name,
		Color:     f.Color,
		IsTrashed: f.IsTrashed != 0,
		CreatedAt: time.UnixMilli(f.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(f.UpdatedAt).UTC(),
		NoteCount: int(counts[f.ID]),
	}
	if f.ParentID.Valid {
		p := f.ParentID.String
		out.ParentID = &p
	}
	if f.TrashedAt.Valid {
		t := time.UnixMilli(f.TrashedAt.Int64).UTC()
		out.TrashedAt = &t
	}
	return out
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.New(errs.InvalidArgument, "folder name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", errs.New(errs.InvalidArgument, "folder name is too long")
	}
	return name, nil
}

// ValidateColor accepts "" or #RRGGBB.
func ValidateColor(color string) (string, error) {
	color = strings.TrimSpace(color)
	if color != "" && !colorPattern.MatchString(color) {
		return "", errs.New(errs.InvalidArgument, "color must look like #RRGGBB")
	}
	return strings.ToLower(color), nil
}

// RequireActive returns the folder when it exists and is not trashed. It is
// shared with the notes service to validate folder references.
func RequireActive(ctx context.Context, q *userdb.Queries, id string) (userdb.Folder, error) {
	f, err := q.GetFolder(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return f, errs.New(errs.InvalidArgument, "folder not found")
	}
	if err != nil {
		return f, errs.Wrap(errs.Internal, "load folder", err)
	}
	if f.IsTrashed != 0 {
		return f, errs.New(errs.InvalidArgument, "folder is in the trash")
	}
	return f, nil
}

func (s *Service) load(ctx context.Context, q *userdb.Queries, id string) (userdb.Folder, error) {
	f, err := q.GetFolder(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return f, errs.New(errs.NotFound, "folder not found")
	}
	if err != nil {
		return f, errs.Wrap(errs.Internal, "load folder", err)
	}
	return f, nil
}

func (s *Service) Create(ctx context.Context, params CreateFolderParams) (*Folder, error) {
	name, err := validateName(params.Name)
	if err != nil {
		return nil, err
	}
	color, err := ValidateColor(params.Color)
	if err != nil {
		return nil, err
	}
	q := s.userDB.Queries()
	if params.ParentID != "" {
		if _, err := RequireActive(ctx, q, params.ParentID); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	if err := q.CreateFolder(ctx, userdb.CreateFolderParams{
		ID:        id,
		Name:      name,
		ParentID:  userdb.NullString(params.ParentID),
		Color:     color,
		CreatedAt: s.now().UnixMilli(),
	}); err != nil {
		return nil, errs.Wrap(errs.Internal, "create folder", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Folder, error) {
	q := s.userDB.Queries()
	f, err := s.load(ctx, q, id)
	if err != nil {
		return nil, err
	}
	counts, err := q.CountNotesPerFolder(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "count notes", err)
	}
	out := fromRow(f, counts)
	return &out, nil
}

// List returns folders flat, ordered by name. A nil trashed lists all.
func (s *Service) List(ctx context.Context, trashed *bool) ([]Folder, error) {
	q := s.userDB.Queries()
	rows, err := q.ListFolders(ctx, trashed)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list folders", err)
	}
	counts, err := q.CountNotesPerFolder(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "count notes", err)
	}
	out := make([]Folder, 0, len(rows))
	for _, f := range rows {
		out = append(out, fromRow(f, counts))
	}
	return out, nil
}

// Tree nests the non-trashed folders. Folders whose parent is trashed or
// missing appear at the top level.
func (s *Service) Tree(ctx context.Context) ([]*TreeNode, error) {
	active := false
	folders, err := s.List(ctx, &active)
	if err != nil {
		return nil, err
	}
	return BuildTree(folders), nil
}

// BuildTree links folders by parent id. Children keep the input order.
func BuildTree(folders []Folder) []*TreeNode {
	nodes := make(map[string]*TreeNode, len(folders))
	for _, f := range folders {
		nodes[f.ID] = &TreeNode{Folder: f, Children: []*TreeNode{}}
	}
	roots := []*TreeNode{}
	for _, f := range folders {
		n := nodes[f.ID]
		if f.ParentID != nil {
			if parent, ok := nodes[*f.ParentID]; ok && parent != n && !isAncestor(nodes, n, parent) {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	sort.SliceStable(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })
	return roots
}

// isAncestor reports whether n is already above candidate, which would make
// attaching n under candidate a cycle.
func isAncestor(nodes map[string]*TreeNode, n, candidate *TreeNode) bool {
	seen := map[string]bool{}
	for cur := candidate; cur != nil && cur.ParentID != nil; {
		if seen[cur.ID] {
			return true
		}
		seen[cur.ID] = true
		if *cur.ParentID == n.ID {
			return true
		}
		cur = nodes[*cur.ParentID]
	}
	return false
}

func (s *Service) Update(ctx context.Context, id string, params UpdateFolderParams) (*Folder, error) {
	q := s.userDB.Queries()
	f, err := s.load(ctx, q, id)
	if err != nil {
		return nil, err
	}

	arg := userdb.UpdateFolderParams{
		ID:       id,
		Name:     f.Name,
		ParentID: f.ParentID,
		Color:    f.Color,
	}
	if params.Name != nil {
		if arg.Name, err = validateName(*params.Name); err != nil {
			return nil, err
		}
	}
	if params.Color != nil {
		if arg.Color, err = ValidateColor(*params.Color); err != nil {
			return nil, err
		}
	}
	if params.ParentID != nil {
		parent := *params.ParentID
		if parent == id {
			return nil, errs.New(errs.InvalidArgument, "a folder cannot be its own parent")
		}
		if parent != "" {
			if _, err := RequireActive(ctx, q, parent); err != nil {
				return nil, err
			}
			below, err := Descendants(ctx, q, id)
			if err != nil {
				return nil, err
			}
			for _, d := range below {
				if d == parent {
					return nil, errs.New(errs.InvalidArgument, "cannot move a folder into its own subfolder")
				}
			}
		}
		arg.ParentID = userdb.NullString(parent)
	}

	arg.UpdatedAt = s.now().UnixMilli()
	if _, err := q.UpdateFolder(ctx, arg); err != nil {
		return nil, errs.Wrap(errs.Internal, "update folder", err)
	}
	return s.Get(ctx, id)
}

// Descendants returns rootID followed by every folder below it, walking the
// tree one level per query. Safe against parent cycles.
func Descendants(ctx context.Context, q *userdb.Queries, rootID string) ([]string, error) {
	seen := map[string]bool{rootID: true}
	out := []string{rootID}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		children, err := q.ListChildFolderIDs(ctx, frontier)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "list child folders", err)
		}
		frontier = frontier[:0]
		for _, c := range children {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			frontier = append(frontier, c)
		}
	}
	return out, nil
}

// Descendants resolves a folder of this user and everything below it.
func (s *Service) Descendants(ctx context.Context, id string) ([]string, error) {
	q := s.userDB.Queries()
	if _, err := s.load(ctx, q, id); err != nil {
		return nil, err
	}
	return Descendants(ctx, q, id)
}

// Trash soft-deletes the folder, its direct notes and its direct child
// folders. Deeper levels are left as they are.
func (s *Service) Trash(ctx context.Context, id string) (*Folder, error) {
	now := s.now().UnixMilli()
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		f, err := s.load(ctx, q, id)
		if err != nil {
			return err
		}
		if f.IsTrashed != 0 {
			return nil
		}
		if _, err := q.TrashFolder(ctx, id, now); err != nil {
			return errs.Wrap(errs.Internal, "trash folder", err)
		}
		if _, err := q.TrashNotesInFolder(ctx, id, now); err != nil {
			return errs.Wrap(errs.Internal, "trash folder notes", err)
		}
		if _, err := q.TrashChildFolders(ctx, id, now); err != nil {
			return errs.Wrap(errs.Internal, "trash child folders", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Restore reverses Trash one level down. A folder whose parent is still
// trashed or gone is moved to the root.
func (s *Service) Restore(ctx context.Context, id string) (*Folder, error) {
	now := s.now().UnixMilli()
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		f, err := s.load(ctx, q, id)
		if err != nil {
			return err
		}
		if f.IsTrashed == 0 {
			return nil
		}
		parent := f.ParentID
		if parent.Valid {
			p, err := q.GetFolder(ctx, parent.String)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				parent = sql.NullString{}
			case err != nil:
				return errs.Wrap(errs.Internal, "load parent folder", err)
			case p.IsTrashed != 0:
				parent = sql.NullString{}
			}
		}
		if _, err := q.RestoreFolder(ctx, id, parent, now); err != nil {
			return errs.Wrap(errs.Internal, "restore folder", err)
		}
		if _, err := q.RestoreNotesInFolder(ctx, id, now); err != nil {
			return errs.Wrap(errs.Internal, "restore folder notes", err)
		}
		if _, err := q.RestoreChildFolders(ctx, id, now); err != nil {
			return errs.Wrap(errs.Internal, "restore child folders", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// PermanentDelete removes the folder with its trashed direct notes and
// trashed direct subfolders. Everything else it contained moves to the root.
func (s *Service) PermanentDelete(ctx context.Context, id string) error {
	var deletedNotes []string
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		if _, err := s.load(ctx, q, id); err != nil {
			return err
		}
		ids, _, err := s.deleteFolder(ctx, q, id)
		deletedNotes = ids
		return err
	})
	if err != nil {
		return err
	}
	s.dropLinks(ctx, deletedNotes)
	return nil
}

// EmptyTrash permanently deletes every trashed folder. Returns how many were
// removed.
func (s *Service) EmptyTrash(ctx context.Context) (int, error) {
	var deletedNotes []string
	removed := 0
	err := s.userDB.WithTx(ctx, func(q *userdb.Queries) error {
		ids, err := q.ListTrashedFolderIDs(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, "list trashed folders", err)
		}
		for _, id := range ids {
			// An earlier iteration may already have removed it as a child.
			if _, err := q.GetFolder(ctx, id); errors.Is(err, sql.ErrNoRows) {
				continue
			}
			notes, n, err := s.deleteFolder(ctx, q, id)
			if err != nil {
				return err
			}
			deletedNotes = append(deletedNotes, notes...)
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.dropLinks(ctx, deletedNotes)
	return removed, nil
}

// deleteFolder returns the deleted note ids and how many folders went.
func (s *Service) deleteFolder(ctx context.Context, q *userdb.Queries, id string) ([]string, int, error) {
	now := s.now().UnixMilli()

	trashedNotes, err := q.ListTrashedNoteIDsInFolder(ctx, id)
	if err != nil {
		return nil, 0, errs.Wrap(errs.Internal, "list trashed notes", err)
	}
	for _, noteID := range trashedNotes {
		if _, err := q.DeleteNote(ctx, noteID); err != nil {
			return nil, 0, errs.Wrap(errs.Internal, "delete note", err)
		}
	}
	if _, err := q.MoveFolderNotesToRoot(ctx, id, now); err != nil {
		return nil, 0, errs.Wrap(errs.Internal, "move notes to root", err)
	}

	children, err := q.ListChildFolderIDs(ctx, []string{id})
	if err != nil {
		return nil, 0, errs.Wrap(errs.Internal, "list child folders", err)
	}
	for _, child := range children {
		c, err := q.GetFolder(ctx, child)
		if err != nil {
			return nil, 0, errs.Wrap(errs.Internal, "load child folder", err)
		}
		if c.IsTrashed == 0 {
			continue
		}
		// Contents of a removed subfolder surface at the root.
		if _, err := q.MoveFolderNotesToRoot(ctx, child, now); err != nil {
			return nil, 0, errs.Wrap(errs.Internal, "move notes to root", err)
		}
		if _, err := q.MoveChildFoldersToRoot(ctx, child, now); err != nil {
			return nil, 0, errs.Wrap(errs.Internal, "move folders to root", err)
		}
	}
	removedChildren, err := q.DeleteTrashedChildFolders(ctx, id)
	if err != nil {
		return nil, 0, errs.Wrap(errs.Internal, "delete trashed subfolders", err)
	}
	if _, err := q.MoveChildFoldersToRoot(ctx, id, now); err != nil {
		return nil, 0, errs.Wrap(errs.Internal, "move folders to root", err)
	}
	if _, err := q.DeleteFolder(ctx, id); err != nil {
		return nil, 0, errs.Wrap(errs.Internal, "delete folder", err)
	}
	return trashedNotes, int(removedChildren) + 1, nil
}

func (s *Service) dropLinks(ctx context.Context, noteIDs []string) {
	if s.links == nil {
		return
	}
	for _, noteID := range noteIDs {
		if err := s.links.DeleteShareLinksForNote(ctx, s.userDB.UserID(), noteID); err != nil {
			obs.From(ctx).Warn("share_link_cleanup_failed", "pkg", "folders", "note_id", noteID, "error", err)
		}
	}
}
