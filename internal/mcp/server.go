// Package mcp serves the caller's notes to agents over the Model Context
// Protocol (Streamable HTTP transport).
package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/notefold/internal/logutil"
	"github.com/kuitang/notefold/internal/obs"
)

const (
	maxMCPBodyBytes           = 1 << 20
	mcpDebugBodyLogLimitBytes = 8 * 1024
	serverName                = "notefold"
	serverVersion             = "1.0.0"
)

// Server answers MCP requests. A fresh mcp.Server bound to the caller's
// services is built per request; the endpoint is stateless.
type Server struct {
	handler     *Handler
	httpHandler http.Handler
}

func NewServer() *Server {
	s := &Server{handler: NewHandler()}
	s.httpHandler = mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			svc, _ := r.Context().Value(servicesKey{}).(services)
			return s.buildServer(svc)
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Stateless:    true,
		},
	)
	return s
}

func (s *Server) buildServer(svc services) *mcp.Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	for _, tool := range ToolDefinitions() {
		call := s.handler.createToolHandler(tool.Name)
		mcp.AddTool(mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			return call(context.WithValue(ctx, servicesKey{}, svc), req, args)
		})
	}
	registerPrompts(mcpServer)
	return mcpServer
}

type mcpResponseLogger struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        []byte
	truncated   bool
}

func newMCPResponseLogger(w http.ResponseWriter) *mcpResponseLogger {
	return &mcpResponseLogger{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           make([]byte, 0, 512),
	}
}

func (w *mcpResponseLogger) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *mcpResponseLogger) Write(p []byte) (int, error) {
	w.wroteHeader = true
	if remaining := mcpDebugBodyLogLimitBytes - len(w.body); remaining > 0 {
		if len(p) <= remaining {
			w.body = append(w.body, p...)
		} else {
			w.body = append(w.body, p[:remaining]...)
			w.truncated = true
		}
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *mcpResponseLogger) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func mcpDebugEnabled() bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv("DEBUG"))) {
	case "1", "true", "yes", "on", "debug":
		return true
	default:
		return false
	}
}

func formatMCPHeadersForLog(headers http.Header) string {
	return logutil.FormatHeadersForLog(headers)
}

// isASCII reports whether v is non-blank printable ASCII.
func isASCII(v string) bool {
	if strings.TrimSpace(v) == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return false
		}
	}
	return true
}

func writePlainError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Mcp-Protocol-Version, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost, http.MethodDelete:
	default:
		// Stateless: there is no server-initiated stream to GET.
		w.Header().Set("Allow", "POST, DELETE, OPTIONS")
		writePlainError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	log := obs.From(r.Context())
	if sid := r.Header.Get("Mcp-Session-Id"); sid != "" && !isASCII(sid) {
		writePlainError(w, http.StatusBadRequest, "invalid Mcp-Session-Id")
		return
	}

	var reqBody []byte
	if r.Body != nil && r.Method == http.MethodPost {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMCPBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writePlainError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxMCPBodyBytes))
				return
			}
			log.Warn("mcp_body_read_failed", "pkg", "mcp", "error", err)
			writePlainError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		reqBody = body
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	debug := mcpDebugEnabled()
	if debug {
		log.Debug("mcp_request", "pkg", "mcp",
			"method", r.Method,
			"headers", formatMCPHeadersForLog(r.Header),
			"body", logutil.FormatBodyForLog(r.Header.Get("Content-Type"), reqBody, mcpDebugBodyLogLimitBytes, false),
		)
	}

	respLogger := newMCPResponseLogger(w)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("mcp_handler_panic", "pkg", "mcp", "panic", fmt.Sprint(rec))
				if !respLogger.wroteHeader {
					writePlainError(respLogger, http.StatusInternalServerError, "Internal server error")
				}
			}
		}()
		s.httpHandler.ServeHTTP(respLogger, r)
	}()

	if !respLogger.wroteHeader {
		writePlainError(respLogger, http.StatusInternalServerError, "MCP handler returned without writing response")
	}

	if debug {
		log.Debug("mcp_response", "pkg", "mcp",
			"status", respLogger.statusCode,
			"body", logutil.FormatBodyForLog(respLogger.Header().Get("Content-Type"), respLogger.body, mcpDebugBodyLogLimitBytes, respLogger.truncated),
		)
	}
	if respLogger.statusCode >= http.StatusBadRequest {
		log.Warn("mcp_request_failed", "pkg", "mcp",
			"status", respLogger.statusCode,
			"response", logutil.TruncateForLog(string(respLogger.body), 500),
		)
	}
}
