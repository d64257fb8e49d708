package api

import (
	"net/http"
	"strconv"

	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/notes"
)

// ListNotes handles GET /api/notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	favorite, err := queryBool(r, "favorite")
	if err != nil {
		writeError(w, r, err)
		return
	}
	trashed, err := queryBool(r, "trashed")
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	params := notes.ListNotesParams{
		FolderID: q.Get("folder_id"),
		Tag:      q.Get("tag"),
		Type:     notes.NoteType(q.Get("type")),
		Favorite: favorite,
		Trashed:  trashed != nil && *trashed,
		Query:    q.Get("q"),
		Limit:    limit,
		Offset:   offset,
	}
	result, err := h.notesService(r).List(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.CreateNoteParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := h.notesService(r).Create(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notesService(r).Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.UpdateNoteParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := h.notesService(r).Update(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// TrashNote handles DELETE /api/notes/{id}. The note moves to the trash.
func (h *Handler) TrashNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notesService(r).Trash(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

type favoriteRequest struct {
	IsFavorite *bool `json:"is_favorite"`
}

// ToggleFavorite handles POST /api/notes/{id}/favorite. An empty body flips
// the flag; {"is_favorite": bool} sets it.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	svc := h.notesService(r)
	id := r.PathValue("id")

	var req favoriteRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	var (
		note *notes.Note
		err  error
	)
	if req.IsFavorite != nil {
		note, err = svc.SetFavorite(r.Context(), id, *req.IsFavorite)
	} else {
		note, err = svc.ToggleFavorite(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// RestoreNote handles POST /api/notes/{id}/restore.
func (h *Handler) RestoreNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notesService(r).Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DuplicateNote handles POST /api/notes/{id}/duplicate.
func (h *Handler) DuplicateNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notesService(r).Duplicate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// DeleteNotePermanently handles DELETE /api/notes/{id}/permanent.
func (h *Handler) DeleteNotePermanently(w http.ResponseWriter, r *http.Request) {
	if err := h.notesService(r).PermanentDelete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func versionID(r *http.Request) (int64, error) {
	vid, err := strconv.ParseInt(r.PathValue("vid"), 10, 64)
	if err != nil || vid <= 0 {
		return 0, errs.New(errs.InvalidArgument, "invalid version id")
	}
	return vid, nil
}

// ListVersions handles GET /api/notes/{id}/versions.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.notesService(r).ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// GetVersion handles GET /api/notes/{id}/versions/{vid}.
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	vid, err := versionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	version, err := h.notesService(r).GetVersion(r.Context(), r.PathValue("id"), vid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// RestoreVersion handles POST /api/notes/{id}/versions/{vid}/restore.
func (h *Handler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	vid, err := versionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	note, err := h.notesService(r).RestoreVersion(r.Context(), r.PathValue("id"), vid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteVersion handles DELETE /api/notes/{id}/versions/{vid}.
func (h *Handler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	vid, err := versionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.notesService(r).DeleteVersion(r.Context(), r.PathValue("id"), vid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
