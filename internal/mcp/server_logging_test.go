package mcp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notefold/internal/auth"
	"github.com/kuitang/notefold/internal/obs"
)

func testFormatMCPHeadersForLog_Properties(t *rapid.T) {
	token := rapid.StringMatching(`[A-Za-z0-9._=-]{10,40}`).Draw(t, "token")
	session := rapid.StringMatching(`[a-f0-9]{8,32}`).Draw(t, "session")

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("Mcp-Session-Id", session)
	headers.Set("Mcp-Protocol-Version", "2025-06-18")

	formatted := formatMCPHeadersForLog(headers)
	require.NotContains(t, formatted, token)
	require.Contains(t, formatted, `mcp-session-id="`+session+`"`)
	require.Contains(t, formatted, `authorization="[REDACTED]"`)
}

func TestFormatMCPHeadersForLog_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testFormatMCPHeadersForLog_Properties)
}

func FuzzFormatMCPHeadersForLog_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testFormatMCPHeadersForLog_Properties))
}

func testIsASCII_Properties(t *rapid.T) {
	good := rapid.StringMatching(`[!-~]{1,64}`).Draw(t, "good")
	require.True(t, isASCII(good))

	bad := rapid.OneOf(
		rapid.StringMatching(`[ \t]{0,4}`),
		rapid.StringMatching(`[a-z]{1,8}[\t\n ][a-z]{1,8}`),
		rapid.StringMatching(`[a-z]{0,8}[À-ÿ][a-z]{0,8}`),
	).Draw(t, "bad")
	require.False(t, isASCII(bad))
}

func TestIsASCII_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testIsASCII_Properties)
}

func FuzzIsASCII_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testIsASCII_Properties))
}

func TestServeHTTP_OversizedBodyIs413(t *testing.T) {
	t.Parallel()
	server := &Server{
		httpHandler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("delegate must not see an oversized body")
		}),
	}
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(strings.Repeat("n", maxMCPBodyBytes+1)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestServeHTTP_GETIs405(t *testing.T) {
	t.Parallel()
	server := &Server{
		httpHandler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("delegate must not see GET")
		}),
	}
	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	require.Equal(t, "POST, DELETE, OPTIONS", resp.Header().Get("Allow"))
}

// With DEBUG on, request and response bodies are logged. Neither the bearer
// token nor the note text may appear.
func TestServeHTTP_DebugLogsKeepNoteTextOut(t *testing.T) {
	t.Setenv("DEBUG", "1")
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	userDB := newUserDB(t)
	injectUser := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), &auth.Claims{UserID: userDB.UserID()}, userDB)))
		})
	}
	ts := httptest.NewServer(injectUser(WithUserServices(userServices, NewServer())))
	defer ts.Close()

	const secretToken = "tok_0123456789abcdef"
	const noteText = "the vault code is 8675309"

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "notefold-test", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   ts.URL,
		HTTPClient: &http.Client{Transport: headerTransport{"Authorization": "Bearer " + secretToken}},
		MaxRetries: -1,
	}, nil)
	require.NoError(t, err)
	defer session.Close()

	created, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "note_create",
		Arguments: map[string]any{"title": "Vault", "content": noteText},
	})
	require.NoError(t, err)
	require.False(t, created.IsError)

	logs := buf.String()
	require.Contains(t, logs, `"msg":"mcp_request"`)
	require.Contains(t, logs, `"msg":"mcp_response"`)
	require.Contains(t, logs, "note_create")
	require.NotContains(t, logs, secretToken)
	require.NotContains(t, logs, "8675309")
}

type headerTransport map[string]string

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range h {
		r.Header.Set(k, v)
	}
	return http.DefaultTransport.RoundTrip(r)
}
