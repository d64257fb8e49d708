// Package api serves the authenticated JSON API and the public share pages.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kuitang/notefold/internal/auth"
	"github.com/kuitang/notefold/internal/chat"
	"github.com/kuitang/notefold/internal/dashboard"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/export"
	"github.com/kuitang/notefold/internal/folders"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/obs"
	"github.com/kuitang/notefold/internal/search"
	"github.com/kuitang/notefold/internal/share"
	"github.com/kuitang/notefold/internal/tags"
)

const maxBodyBytes = 2 << 20

// Options wires the handler's collaborators. Chat and Exports may be nil, in
// which case their routes answer 503.
type Options struct {
	Quota   notes.Quota
	Shares  *share.Service
	Owners  share.UserDBOpener
	Chat    *chat.Service
	Exports *export.Service
	BaseURL string
}

// Handler serves /api and /s.
type Handler struct {
	quota   notes.Quota
	shares  *share.Service
	owners  share.UserDBOpener
	chat    *chat.Service
	exports *export.Service
	baseURL string
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		quota:   opts.Quota,
		shares:  opts.Shares,
		owners:  opts.Owners,
		chat:    opts.Chat,
		exports: opts.Exports,
		baseURL: opts.BaseURL,
	}
}

// RegisterRoutes mounts the API. Every /api route is wrapped in protect, which
// must authenticate the caller (and usually rate limit). The public share
// page and health check are mounted unwrapped.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protect(fn))
	}

	// Notes
	private("GET /api/notes", h.ListNotes)
	private("POST /api/notes", h.CreateNote)
	private("GET /api/notes/{id}", h.GetNote)
	private("PUT /api/notes/{id}", h.UpdateNote)
	private("DELETE /api/notes/{id}", h.TrashNote)
	private("POST /api/notes/{id}/favorite", h.ToggleFavorite)
	private("POST /api/notes/{id}/restore", h.RestoreNote)
	private("POST /api/notes/{id}/duplicate", h.DuplicateNote)
	private("DELETE /api/notes/{id}/permanent", h.DeleteNotePermanently)

	// Versions
	private("GET /api/notes/{id}/versions", h.ListVersions)
	private("GET /api/notes/{id}/versions/{vid}", h.GetVersion)
	private("POST /api/notes/{id}/versions/{vid}/restore", h.RestoreVersion)
	private("DELETE /api/notes/{id}/versions/{vid}", h.DeleteVersion)

	// Sharing
	private("POST /api/notes/{id}/share", h.CreateShare)
	private("GET /api/notes/{id}/shares", h.ListShares)
	private("DELETE /api/shares/{token}", h.RevokeShare)

	// Folders
	private("GET /api/folders", h.ListFolders)
	private("GET /api/folders/tree", h.FolderTree)
	private("POST /api/folders", h.CreateFolder)
	private("GET /api/folders/{id}", h.GetFolder)
	private("PUT /api/folders/{id}", h.UpdateFolder)
	private("DELETE /api/folders/{id}", h.TrashFolder)
	private("POST /api/folders/{id}/restore", h.RestoreFolder)
	private("DELETE /api/folders/{id}/permanent", h.DeleteFolderPermanently)

	// Tags
	private("GET /api/tags", h.ListTags)
	private("POST /api/tags", h.CreateTag)
	private("PUT /api/tags/{id}", h.UpdateTag)
	private("DELETE /api/tags/{id}", h.DeleteTag)

	// Trash
	private("GET /api/trash", h.ListTrash)
	private("DELETE /api/trash", h.EmptyTrash)

	private("GET /api/search", h.Search)
	private("GET /api/dashboard", h.Dashboard)

	private("POST /api/chat", h.Chat)
	private("GET /api/chat/providers", h.ChatProviders)

	private("POST /api/export", h.Export)
	private("GET /api/export", h.ListExports)

	mux.HandleFunc("GET /s/{token}", h.PublicNote)
	mux.HandleFunc("GET /healthz", h.Health)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Per-request services run against the caller's database.

func (h *Handler) notesService(r *http.Request) *notes.Service {
	var links notes.LinkRemover
	if h.shares != nil {
		links = h.shares
	}
	return notes.NewService(auth.GetUserDB(r.Context()), h.quota, links)
}

func (h *Handler) foldersService(r *http.Request) *folders.Service {
	var links folders.LinkRemover
	if h.shares != nil {
		links = h.shares
	}
	return folders.NewService(auth.GetUserDB(r.Context()), links)
}

func (h *Handler) tagsService(r *http.Request) *tags.Service {
	return tags.NewService(auth.GetUserDB(r.Context()))
}

func (h *Handler) searchService(r *http.Request) *search.Service {
	return search.NewService(auth.GetUserDB(r.Context()))
}

func (h *Handler) dashboardService(r *http.Request) *dashboard.Service {
	return dashboard.NewService(auth.GetUserDB(r.Context()), h.quota.LimitBytes)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Wrap(errs.ResourceExhausted, "request body too large", err)
		}
		return errs.Wrap(errs.InvalidArgument, "invalid JSON body", err)
	}
	return nil
}

// queryInt parses an optional non-negative integer parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errs.New(errs.InvalidArgument, name+" must be a non-negative integer")
	}
	return v, nil
}

// queryBool parses an optional boolean parameter; nil when absent.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, name+" must be true or false")
	}
	return &v, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a coded error to its status. Internal errors are logged
// with their cause and reported to the client without it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	if code == errs.Internal {
		obs.From(r.Context()).Error("api_internal_error", "pkg", "api", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, errs.HTTPStatus(code), map[string]string{
		"error": errs.MessageOf(err),
		"code":  string(code),
	})
}
