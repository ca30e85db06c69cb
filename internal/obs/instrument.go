package obs

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/dwnd/internal/dwn"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/eventstream"
)

// InstrumentedHandlers wraps *dwn.Handlers with logging, metrics, and
// tracing around every operation, the way the teacher wraps http.Handler
// with middleware.Logging/middleware.Metrics/middleware.Tracing — except
// here the thing being wrapped is a Go method call rather than an HTTP
// round trip, since internal/dwn has no transport of its own.
type InstrumentedHandlers struct {
	inner   *dwn.Handlers
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewInstrumentedHandlers wires logger, metrics, and tracer around inner.
// Any of the three may be nil-safe zero values: a nil *Metrics or a
// no-op tracer.Tracer still works, since cmd/dwnd may run with tracing
// disabled via TracingConfig.Enabled=false.
func NewInstrumentedHandlers(inner *dwn.Handlers, logger *slog.Logger, metrics *Metrics, tracer trace.Tracer) *InstrumentedHandlers {
	return &InstrumentedHandlers{inner: inner, logger: logger, metrics: metrics, tracer: tracer}
}

func (h *InstrumentedHandlers) wrap(ctx context.Context, iface, method, tenant string, fn func(context.Context) *dwn.Reply) *dwn.Reply {
	ctx = WithTenant(ctx, tenant)
	ctx, finish := StartOperationSpan(ctx, h.tracer, iface, method, tenant)
	start := time.Now()

	reply := fn(ctx)

	elapsed := time.Since(start)
	var detail string
	var statusErr error
	if reply.Status.Code >= 400 {
		detail = reply.Status.Detail
		statusErr = errStatus(reply.Status)
	}
	finish(statusErr)

	if reply.Record != nil {
		ctx = WithMessageCID(ctx, reply.Record.MessageCID)
	}
	if h.logger != nil {
		LogOperation(h.logger, ctx, iface, method, tenant, reply.Status.Code, elapsed, detail)
	}
	if h.metrics != nil {
		h.metrics.IncOperation(iface, method, reply.Status.Code)
		h.metrics.ObserveOperationDuration(iface, method, elapsed.Seconds())
	}
	return reply
}

// errStatus turns a failure Status into an error so StartOperationSpan's
// finish function can record it on the span, without *dwn.Handlers needing
// to export a typed error alongside each Reply.
type statusError dwn.Status

func (e statusError) Error() string { return e.Detail }

func errStatus(s dwn.Status) error {
	if s.Code < 400 {
		return nil
	}
	return statusError(s)
}

func (h *InstrumentedHandlers) RecordsWrite(ctx context.Context, tenant string, raw []byte, data io.Reader) *dwn.Reply {
	reply := h.wrap(ctx, "Records", "Write", tenant, func(ctx context.Context) *dwn.Reply {
		return h.inner.RecordsWrite(ctx, tenant, raw, data)
	})
	if h.metrics != nil && reply.Record != nil {
		if d, ok := reply.Record.Descriptor.(*dwnmodel.RecordsWriteDescriptor); ok {
			h.metrics.ObserveDataBytes("Records", "Write", d.DataSize)
		}
	}
	return reply
}

func (h *InstrumentedHandlers) RecordsRead(ctx context.Context, tenant string, raw []byte) *dwn.Reply {
	return h.wrap(ctx, "Records", "Read", tenant, func(ctx context.Context) *dwn.Reply {
		return h.inner.RecordsRead(ctx, tenant, raw)
	})
}

func (h *InstrumentedHandlers) RecordsQuery(ctx context.Context, tenant string, raw []byte) *dwn.Reply {
	return h.wrap(ctx, "Records", "Query", tenant, func(ctx context.Context) *dwn.Reply {
		reply := h.inner.RecordsQuery(ctx, tenant, raw)
		AddEvent(ctx, "records.query.results", attribute.Int("count", len(reply.Entries)))
		return reply
	})
}

func (h *InstrumentedHandlers) RecordsDelete(ctx context.Context, tenant string, raw []byte) *dwn.Reply {
	return h.wrap(ctx, "Records", "Delete", tenant, func(ctx context.Context) *dwn.Reply {
		return h.inner.RecordsDelete(ctx, tenant, raw)
	})
}

// RecordsSubscribe instruments the subscribe call itself (the
// AUTHORIZE-through-REPLY pipeline that sets up the subscription) and
// additionally tracks the subscriber gauge for the channel's
// lifetime, since a subscription's real duration extends well past the
// call that opens it.
func (h *InstrumentedHandlers) RecordsSubscribe(ctx context.Context, tenant string, raw []byte) (*dwn.Reply, <-chan eventstream.Notification, func()) {
	ctx = WithTenant(ctx, tenant)
	ctx, finish := StartOperationSpan(ctx, h.tracer, "Records", "Subscribe", tenant)
	start := time.Now()

	reply, notifications, unsubscribe := h.inner.RecordsSubscribe(ctx, tenant, raw)

	elapsed := time.Since(start)
	var detail string
	var statusErr error
	if reply.Status.Code >= 400 {
		detail = reply.Status.Detail
		statusErr = errStatus(reply.Status)
	}
	finish(statusErr)
	if h.logger != nil {
		LogOperation(h.logger, ctx, "Records", "Subscribe", tenant, reply.Status.Code, elapsed, detail)
	}
	if h.metrics != nil {
		h.metrics.IncOperation("Records", "Subscribe", reply.Status.Code)
		h.metrics.ObserveOperationDuration("Records", "Subscribe", elapsed.Seconds())
		if reply.Status.Code < 400 {
			h.metrics.EventStreamSubs.Inc()
			wrapped := unsubscribe
			unsubscribe = func() {
				h.metrics.EventStreamSubs.Dec()
				wrapped()
			}
		}
	}
	return reply, notifications, unsubscribe
}

func (h *InstrumentedHandlers) PermissionsGrant(ctx context.Context, tenant string, raw []byte) *dwn.Reply {
	reply := h.wrap(ctx, "Permissions", "Grant", tenant, func(ctx context.Context) *dwn.Reply {
		return h.inner.PermissionsGrant(ctx, tenant, raw)
	})
	if h.metrics != nil && reply.Status.Code < 400 {
		h.metrics.GrantsIssuedTotal.Inc()
	}
	return reply
}

func (h *InstrumentedHandlers) PermissionsRevoke(ctx context.Context, tenant string, raw []byte) *dwn.Reply {
	reply := h.wrap(ctx, "Permissions", "Revoke", tenant, func(ctx context.Context) *dwn.Reply {
		return h.inner.PermissionsRevoke(ctx, tenant, raw)
	})
	if h.metrics != nil && reply.Status.Code < 400 {
		h.metrics.GrantsRevokedTotal.Inc()
	}
	return reply
}

func (h *InstrumentedHandlers) ProtocolsConfigure(ctx context.Context, tenant string, raw []byte) *dwn.Reply {
	return h.wrap(ctx, "Protocols", "Configure", tenant, func(ctx context.Context) *dwn.Reply {
		return h.inner.ProtocolsConfigure(ctx, tenant, raw)
	})
}

func (h *InstrumentedHandlers) ProtocolsQuery(ctx context.Context, tenant string, raw []byte) *dwn.Reply {
	return h.wrap(ctx, "Protocols", "Query", tenant, func(ctx context.Context) *dwn.Reply {
		return h.inner.ProtocolsQuery(ctx, tenant, raw)
	})
}
