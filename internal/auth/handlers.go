package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/obs"
)

const maxAuthBodyBytes = 64 << 10

// Handler serves /api/auth.
type Handler struct {
	users        *UserService
	issuer       *TokenIssuer
	blacklist    Blacklist
	middleware   *Middleware
	secureCookie bool
}

func NewHandler(users *UserService, issuer *TokenIssuer, blacklist Blacklist, middleware *Middleware, secureCookie bool) *Handler {
	return &Handler{
		users:        users,
		issuer:       issuer,
		blacklist:    blacklist,
		middleware:   middleware,
		secureCookie: secureCookie,
	}
}

// RegisterRoutes mounts the public routes on public and the account routes,
// wrapped in RequireAuth, on the same mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(fn))
	}
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(h.middleware.RequireAuth(fn)))
	}

	public("POST /api/auth/register", h.HandleRegister)
	public("POST /api/auth/login", h.HandleLogin)
	public("POST /api/auth/password/reset", h.HandlePasswordResetRequest)
	public("POST /api/auth/password/reset/confirm", h.HandlePasswordResetConfirm)

	private("POST /api/auth/logout", h.HandleLogout)
	private("GET /api/auth/me", h.HandleMe)
	private("PUT /api/auth/me", h.HandleUpdateMe)
	private("DELETE /api/auth/me", h.HandleDeleteMe)
	private("POST /api/auth/password", h.HandleChangePassword)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid JSON body", err)
	}
	return nil
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	h.issueAndRespond(w, r, user, http.StatusCreated)
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.issueAndRespond(w, r, user, http.StatusOK)
}

func (h *Handler) issueAndRespond(w http.ResponseWriter, r *http.Request, user *User, status int) {
	token, claims, err := h.issuer.Issue(user.ID, user.Email)
	if err != nil {
		obs.From(r.Context()).Error("token_issue_failed", "pkg", "auth", "user_id", user.ID, "error", err)
		writeError(w, errs.Wrap(errs.Internal, "issue token", err))
		return
	}
	SetTokenCookie(w, token, claims.ExpiresAt, h.secureCookie)
	writeJSON(w, status, TokenResponse{Token: token, ExpiresAt: claims.ExpiresAt, User: user})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims != nil {
		if err := h.blacklist.Revoke(r.Context(), claims.TokenID, claims.ExpiresAt); err != nil {
			writeError(w, errs.Wrap(errs.Unavailable, "could not revoke token", err))
			return
		}
	}
	ClearTokenCookie(w, h.secureCookie)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), GetUserDB(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMeRequest is the body of PUT /api/auth/me.
type UpdateMeRequest struct {
	Name string `json:"name"`
}

func (h *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateMeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.UpdateName(r.Context(), GetUserDB(r.Context()), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.users.DeleteAccount(ctx, GetUserID(ctx)); err != nil {
		writeError(w, err)
		return
	}
	if claims := GetClaims(ctx); claims != nil {
		if err := h.blacklist.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
			obs.From(ctx).Warn("revoke_after_delete_failed", "pkg", "auth", "error", err)
		}
	}
	ClearTokenCookie(w, h.secureCookie)
	w.WriteHeader(http.StatusNoContent)
}

// ChangePasswordRequest is the body of POST /api/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.ChangePassword(r.Context(), GetUserDB(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PasswordResetRequest is the body of POST /api/auth/password/reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (h *Handler) HandlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		obs.From(r.Context()).Error("password_reset_request_failed", "pkg", "auth", "error", err)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If that email has an account, a reset link has been sent",
	})
}

// PasswordResetConfirmRequest is the body of POST /api/auth/password/reset/confirm.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) HandlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
