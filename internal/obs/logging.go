// Package obs carries the ambient observability stack around
// internal/dwn's handler methods: structured logging, Prometheus metrics,
// and OpenTelemetry tracing. None of it is consulted by any DWN pipeline
// stage itself (spec Non-goals name no observability surface, but this
// core still needs one the way any production service does) — it wraps
// *dwn.Handlers from the outside, the same separation the teacher keeps
// between internal/api's handlers and internal/middleware's logging,
// metrics, and tracing wrappers.
package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// tenantKey and messageCIDKey carry request-scoped fields that
// LogOperation picks up; InstrumentedHandlers sets both around each call.
// operationKey is declared but not used by any function in this package.
// This mirrors the teacher's middleware.userDIDKey/errorCodeKey context-key
// convention.
type tenantKey struct{}
type operationKey struct{}
type messageCIDKey struct{}

// WithTenant attaches tenant to ctx for later retrieval by LogOperation.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// Tenant retrieves the tenant attached by WithTenant, or "" if absent.
func Tenant(ctx context.Context) string {
	t, _ := ctx.Value(tenantKey{}).(string)
	return t
}

// WithMessageCID attaches a message's computed CID to ctx;
// InstrumentedHandlers sets it from the reply's record after the handler
// returns.
func WithMessageCID(ctx context.Context, cid string) context.Context {
	return context.WithValue(ctx, messageCIDKey{}, cid)
}

// MessageCID retrieves the message CID attached by WithMessageCID, or ""
// if absent.
func MessageCID(ctx context.Context) string {
	cid, _ := ctx.Value(messageCIDKey{}).(string)
	return cid
}

// NewLogger builds an slog.Logger based on env, exactly as the teacher's
// middleware.NewLogger does: JSON in production, human-readable text
// everywhere else.
func NewLogger(env string) *slog.Logger {
	return newLoggerWithWriter(env, os.Stdout)
}

func newLoggerWithWriter(env string, w io.Writer) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

// LogOperation logs the outcome of one DWN operation with the same
// status-driven level selection the teacher's Logging middleware applies
// to HTTP requests (>=500 -> Error, >=400 -> Warn, else Info), adapted
// from "request completed" to "operation completed" since this core has
// no HTTP status line of its own to log.
func LogOperation(logger *slog.Logger, ctx context.Context, iface, method, tenant string, statusCode int, latency time.Duration, detail string) {
	attrs := []slog.Attr{
		slog.String("interface", iface),
		slog.String("method", method),
		slog.String("tenant", tenant),
		slog.Int("status", statusCode),
		slog.Int64("latency_ms", latency.Milliseconds()),
	}
	if cid := MessageCID(ctx); cid != "" {
		attrs = append(attrs, slog.String("message_cid", cid))
	}
	if statusCode >= 400 && detail != "" {
		attrs = append(attrs, slog.String("detail", detail))
	}

	switch {
	case statusCode >= 500:
		logger.LogAttrs(ctx, slog.LevelError, "dwn operation completed", attrs...)
	case statusCode >= 400:
		logger.LogAttrs(ctx, slog.LevelWarn, "dwn operation completed", attrs...)
	default:
		logger.LogAttrs(ctx, slog.LevelInfo, "dwn operation completed", attrs...)
	}
}
