package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/kuitang/notefold/internal/auth"
	"github.com/kuitang/notefold/internal/db"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/search"
)

// ServiceFactory builds the per-user services the tools run against.
type ServiceFactory func(userDB *db.UserDB) (*notes.Service, *search.Service)

// WithUserServices binds the authenticated caller's services to the request.
// It must run behind auth.Middleware.RequireAuth; a request that reaches it
// without a user gets a JSON-RPC error.
func WithUserServices(factory ServiceFactory, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userDB := auth.GetUserDB(r.Context())
		if userDB == nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="notefold"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(MCPErrorResponse(nil, ErrorCodeUnauthenticated, "authentication required"))
			return
		}
		notesSvc, searchSvc := factory(userDB)
		next.ServeHTTP(w, r.WithContext(ContextWithServices(r.Context(), notesSvc, searchSvc)))
	})
}

// MCPErrorResponse is a JSON-RPC error envelope.
func MCPErrorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

// JSON-RPC error codes. ErrorCodeUnauthenticated is in the implementation
// defined server error range.
const (
	ErrorCodeParseError      = -32700
	ErrorCodeInvalidRequest  = -32600
	ErrorCodeMethodNotFound  = -32601
	ErrorCodeInvalidParams   = -32602
	ErrorCodeInternalError   = -32603
	ErrorCodeUnauthenticated = -32001
)
