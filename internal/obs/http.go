package obs

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxRequestIDLen = 128

// statusRecorder remembers the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.status = http.StatusOK
		r.wroteHeader = true
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Flush is a no-op when the underlying writer cannot flush.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestContextMiddleware assigns the request id (echoed as X-Request-Id)
// and copies trace headers into the request's correlation fields.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
		traceID := extractTraceID(traceparent)

		requestID := sanitizeRequestID(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = traceID
		}
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx := WithCorrelation(r.Context(), Correlation{
			RequestID:    requestID,
			TraceID:      traceID,
			Traceparent:  traceparent,
			Tracestate:   strings.TrimSpace(r.Header.Get("tracestate")),
			MCPSessionID: sanitizeRequestID(r.Header.Get("Mcp-Session-Id")),
		})
		if _, ok := ctx.Value(slotKey{}).(*requestSlot); !ok {
			ctx = contextWithSlot(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLogMiddleware logs one http_access event per request: debug for
// success, info for client errors, error for server errors. The route is
// the matched ServeMux pattern, so ids in paths do not fan out.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if _, ok := r.Context().Value(slotKey{}).(*requestSlot); !ok {
			r = r.WithContext(contextWithSlot(r.Context()))
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rec.status >= http.StatusBadRequest:
			level = slog.LevelInfo
		}
		attrs := []any{
			"pkg", pkg,
			"method", r.Method,
			"route", r.Pattern,
			"path", r.URL.Path,
			"status", rec.status,
			"dur_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"req_bytes", max(r.ContentLength, 0),
			"resp_bytes", rec.bytes,
		}
		if uid := slotUserID(r.Context()); uid != "" && CorrelationFromContext(r.Context()).UserID == "" {
			attrs = append(attrs, "user_id", uid)
		}
		From(r.Context()).Log(r.Context(), level, "http_access", attrs...)
	})
}

func contextWithSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotKey{}, &requestSlot{})
}

func slotUserID(ctx context.Context) string {
	slot, ok := ctx.Value(slotKey{}).(*requestSlot)
	if !ok {
		return ""
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.userID
}

// sanitizeRequestID accepts a caller-supplied id only if it is short
// printable ASCII without spaces, so it is safe to echo and log.
func sanitizeRequestID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxRequestIDLen {
		return ""
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return ""
		}
	}
	return v
}

// extractTraceID returns the trace-id of a W3C traceparent header, or "" if
// the header is malformed or carries the all-zero id.
func extractTraceID(traceparent string) string {
	parts := strings.Split(strings.TrimSpace(traceparent), "-")
	if len(parts) != 4 {
		return ""
	}
	id := strings.ToLower(parts[1])
	if len(id) != 32 || strings.Trim(id, "0") == "" {
		return ""
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return ""
		}
	}
	return id
}
