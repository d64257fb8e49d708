package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/notefold/internal/db"
)

func TestMountMCPRoute_StreamableMethodsOnly(t *testing.T) {
	mux := http.NewServeMux()
	seen := map[string]int{}
	mountMCPRoute(mux, "/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[r.Method]++
		w.WriteHeader(http.StatusAccepted)
	}))

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, "/mcp", nil))
		require.Equal(t, http.StatusAccepted, rec.Code, method)
		require.Equal(t, 1, seen[method], method)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/mcp", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Zero(t, seen[http.MethodPut])
}

func TestMCPRoute_PreflightSkipsAuth(t *testing.T) {
	db.ResetForTesting()
	t.Cleanup(db.ResetForTesting)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "https://agent.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	a.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, httptest.NewRequest(method, "/mcp", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code, method)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	}
}
