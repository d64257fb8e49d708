package api

import (
	"net/http"

	"github.com/kuitang/notefold/internal/auth"
	"github.com/kuitang/notefold/internal/chat"
	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/obs"
	"github.com/kuitang/notefold/internal/share"
	"github.com/kuitang/notefold/internal/urlutil"
)

type createShareRequest struct {
	ExpiresInHours int `json:"expires_in_hours"`
}

// CreateShare handles POST /api/notes/{id}/share. The body is optional.
func (h *Handler) CreateShare(w http.ResponseWriter, r *http.Request) {
	if h.shares == nil {
		writeError(w, r, errs.New(errs.Unavailable, "sharing is not configured"))
		return
	}
	var req createShareRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	link, err := h.shares.Create(r.Context(), auth.GetUserDB(r.Context()), r.PathValue("id"), req.ExpiresInHours)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// ListShares handles GET /api/notes/{id}/shares.
func (h *Handler) ListShares(w http.ResponseWriter, r *http.Request) {
	if h.shares == nil {
		writeJSON(w, http.StatusOK, map[string]any{"shares": []share.Link{}})
		return
	}
	links, err := h.shares.List(r.Context(), auth.GetUserDB(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": links})
}

// RevokeShare handles DELETE /api/shares/{token}.
func (h *Handler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	if h.shares == nil {
		writeError(w, r, errs.New(errs.NotFound, "share link not found"))
		return
	}
	if err := h.shares.Revoke(r.Context(), auth.GetUserID(r.Context()), r.PathValue("token")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublicNote handles GET /s/{token}. No authentication. JSON by default,
// a rendered page with ?format=html.
func (h *Handler) PublicNote(w http.ResponseWriter, r *http.Request) {
	if h.shares == nil || h.owners == nil {
		writeError(w, r, errs.New(errs.NotFound, "share link not found"))
		return
	}
	token := r.PathValue("token")
	note, err := h.shares.Resolve(r.Context(), h.owners, token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Query().Get("format") != "html" {
		writeJSON(w, http.StatusOK, note)
		return
	}

	canonical := urlutil.ShareURL(urlutil.OriginFromRequest(r, h.baseURL), token, true)
	page, err := share.RenderHTML(note, canonical)
	if err != nil {
		writeError(w, r, errs.Wrap(errs.Internal, "render shared note", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; img-src https: data:")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// Search handles GET /api/search?q=&flat=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	flat, err := queryBool(r, "flat")
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := h.searchService(r).Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if flat != nil && *flat {
		writeJSON(w, http.StatusOK, map[string]any{"query": results.Query, "results": results.Flatten()})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Dashboard handles GET /api/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboardService(r).Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) chatService() *chat.Service {
	if h.chat == nil {
		return chat.NewService()
	}
	return h.chat
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reply, err := h.chatService().Chat(r.Context(), h.notesService(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// ChatProviders handles GET /api/chat/providers.
func (h *Handler) ChatProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": h.chatService().Providers()})
}

// Export handles POST /api/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, r, errs.New(errs.Unavailable, "export storage is not configured"))
		return
	}
	result, err := h.exports.Export(r.Context(), auth.GetUserDB(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	obs.From(r.Context()).Info("export_requested", "pkg", "api", "key", result.Key, "size", result.Size)
	writeJSON(w, http.StatusCreated, result)
}

// ListExports handles GET /api/export.
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, r, errs.New(errs.Unavailable, "export storage is not configured"))
		return
	}
	list, err := h.exports.List(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": list})
}
