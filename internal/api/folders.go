package api

import (
	"net/http"

	"github.com/kuitang/notefold/internal/folders"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/tags"
)

// ListFolders handles GET /api/folders. ?trashed=true|false filters; absent
// lists every folder.
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	trashed, err := queryBool(r, "trashed")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.foldersService(r).List(r.Context(), trashed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": list})
}

// FolderTree handles GET /api/folders/tree.
func (h *Handler) FolderTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.foldersService(r).Tree(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": tree})
}

// CreateFolder handles POST /api/folders.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var params folders.CreateFolderParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	folder, err := h.foldersService(r).Create(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// GetFolder handles GET /api/folders/{id}.
func (h *Handler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.foldersService(r).Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// UpdateFolder handles PUT /api/folders/{id}.
func (h *Handler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	var params folders.UpdateFolderParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	folder, err := h.foldersService(r).Update(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// TrashFolder handles DELETE /api/folders/{id}.
func (h *Handler) TrashFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.foldersService(r).Trash(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// RestoreFolder handles POST /api/folders/{id}/restore.
func (h *Handler) RestoreFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.foldersService(r).Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// DeleteFolderPermanently handles DELETE /api/folders/{id}/permanent.
func (h *Handler) DeleteFolderPermanently(w http.ResponseWriter, r *http.Request) {
	if err := h.foldersService(r).PermanentDelete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTags handles GET /api/tags.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	list, err := h.tagsService(r).List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": list})
}

// CreateTag handles POST /api/tags.
func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var params tags.CreateTagParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	tag, err := h.tagsService(r).Create(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// UpdateTag handles PUT /api/tags/{id}. Renames propagate to every note.
func (h *Handler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	var params tags.UpdateTagParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	tag, err := h.tagsService(r).Update(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// DeleteTag handles DELETE /api/tags/{id}.
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.tagsService(r).Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type trashResponse struct {
	Notes   []notes.Note     `json:"notes"`
	Folders []folders.Folder `json:"folders"`
}

// ListTrash handles GET /api/trash.
func (h *Handler) ListTrash(w http.ResponseWriter, r *http.Request) {
	trashedNotes, err := h.notesService(r).List(r.Context(), notes.ListNotesParams{Trashed: true, Limit: notes.MaxLimit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	trashed := true
	trashedFolders, err := h.foldersService(r).List(r.Context(), &trashed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := trashResponse{Notes: trashedNotes.Notes, Folders: trashedFolders}
	if out.Notes == nil {
		out.Notes = []notes.Note{}
	}
	if out.Folders == nil {
		out.Folders = []folders.Folder{}
	}
	writeJSON(w, http.StatusOK, out)
}

// EmptyTrash handles DELETE /api/trash. Notes go first so that folders
// emptied afterwards only carry their remaining, non-trashed notes to the root.
func (h *Handler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	var res notes.EmptyTrashResult
	var err error
	if res.Notes, err = h.notesService(r).EmptyTrash(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	if res.Folders, err = h.foldersService(r).EmptyTrash(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
