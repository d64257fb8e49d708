// Package obs owns the process logger and per-request correlation fields.
package obs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Correlation carries the identifiers stamped on every log line of a request.
type Correlation struct {
	RequestID    string
	TraceID      string
	Traceparent  string
	Tracestate   string
	UserID       string
	MCPSessionID string
}

type correlationKey struct{}

// requestSlot is shared by everything serving one request. Values written
// deep in the stack (the authenticated user) are visible to the access log
// wrapped around it.
type requestSlot struct {
	mu     sync.Mutex
	userID string
}

type slotKey struct{}

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger
)

// Init installs the global JSON logger. LOG_LEVEL (debug, info, warn,
// error) sets the threshold; the default is debug.
func Init() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		return
	}
	logger = newLogger(os.Stderr, levelFromEnv())
	slog.SetDefault(logger)
}

func levelFromEnv() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(os.Getenv("LOG_LEVEL")))); err != nil {
		return slog.LevelDebug
	}
	return lvl
}

// SetOutputForTests sends all logging to w at debug level and returns a
// func that restores the previous logger.
func SetOutputForTests(w io.Writer) func() {
	loggerMu.Lock()
	prev := logger
	logger = newLogger(w, slog.LevelDebug)
	slog.SetDefault(logger)
	loggerMu.Unlock()

	return func() {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		logger = prev
		if logger == nil {
			logger = newLogger(os.Stderr, slog.LevelDebug)
		}
		slog.SetDefault(logger)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}))
}

func current() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		Init()
		loggerMu.RLock()
		l = logger
		loggerMu.RUnlock()
	}
	return l
}

// Pkg returns the global logger tagged with pkg, for code with no request.
func Pkg(pkg string) *slog.Logger {
	return current().With("pkg", pkg)
}

// From returns the global logger carrying ctx's correlation fields.
func From(ctx context.Context) *slog.Logger {
	l := current()
	if attrs := CorrelationFromContext(ctx).attrs(); len(attrs) > 0 {
		return l.With(attrs...)
	}
	return l
}

// WithUserID records the authenticated user on ctx and on the request's
// access log entry.
func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if slot, ok := ctx.Value(slotKey{}).(*requestSlot); ok {
		slot.mu.Lock()
		slot.userID = userID
		slot.mu.Unlock()
	}
	return WithCorrelation(ctx, Correlation{UserID: userID})
}

// WithCorrelation merges the non-empty fields of corr into ctx.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	merged := CorrelationFromContext(ctx)
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&merged.RequestID, corr.RequestID)
	set(&merged.TraceID, corr.TraceID)
	set(&merged.Traceparent, corr.Traceparent)
	set(&merged.Tracestate, corr.Tracestate)
	set(&merged.UserID, corr.UserID)
	set(&merged.MCPSessionID, corr.MCPSessionID)
	return context.WithValue(ctx, correlationKey{}, merged)
}

// CorrelationFromContext returns ctx's correlation fields, or the zero value.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, _ := ctx.Value(correlationKey{}).(Correlation)
	return corr
}

func (c Correlation) attrs() []any {
	var attrs []any
	add := func(k, v string) {
		if v != "" {
			attrs = append(attrs, k, v)
		}
	}
	add("request_id", c.RequestID)
	add("trace_id", c.TraceID)
	add("traceparent", c.Traceparent)
	add("tracestate", c.Tracestate)
	add("user_id", c.UserID)
	add("mcp_session_id", c.MCPSessionID)
	return attrs
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "req-fallback"
	}
	return "req-" + hex.EncodeToString(buf)
}
