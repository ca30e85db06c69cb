package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type testLogEntry struct {
	Level      string `json:"level"`
	Msg        string `json:"msg"`
	Interface  string `json:"interface"`
	Method     string `json:"method"`
	Tenant     string `json:"tenant"`
	Status     int    `json:"status"`
	LatencyMS  int64  `json:"latency_ms"`
	MessageCID string `json:"message_cid"`
	Detail     string `json:"detail"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogOperation_SuccessFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)

	ctx := WithMessageCID(context.Background(), "bafy123")
	LogOperation(logger, ctx, "Records", "Write", "did:example:alice", 202, 12*time.Millisecond, "")

	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	if entry.Interface != "Records" || entry.Method != "Write" {
		t.Errorf("expected Records/Write, got %s/%s", entry.Interface, entry.Method)
	}
	if entry.Tenant != "did:example:alice" {
		t.Errorf("expected tenant did:example:alice, got %s", entry.Tenant)
	}
	if entry.Status != 202 {
		t.Errorf("expected status 202, got %d", entry.Status)
	}
	if entry.MessageCID != "bafy123" {
		t.Errorf("expected message_cid bafy123, got %s", entry.MessageCID)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO for a 2xx status, got %s", entry.Level)
	}
}

func TestLogOperation_ErrorLevelsByStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{401, "WARN"},
		{404, "WARN"},
		{500, "ERROR"},
	}
	for _, tc := range cases {
		buf := &bytes.Buffer{}
		logger := newTestLogger(buf)
		LogOperation(logger, context.Background(), "Records", "Read", "did:example:bob", tc.status, time.Millisecond, "boom")

		var entry testLogEntry
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
		}
		if entry.Level != tc.level {
			t.Errorf("status %d: expected level %s, got %s", tc.status, tc.level, entry.Level)
		}
		if entry.Detail != "boom" {
			t.Errorf("status %d: expected detail to be carried through, got %q", tc.status, entry.Detail)
		}
	}
}

func TestTenantContext_RoundTrips(t *testing.T) {
	ctx := WithTenant(context.Background(), "did:example:carol")
	if got := Tenant(ctx); got != "did:example:carol" {
		t.Errorf("expected tenant did:example:carol, got %s", got)
	}
	if got := Tenant(context.Background()); got != "" {
		t.Errorf("expected empty tenant on a bare context, got %q", got)
	}
}

func TestNewMetrics_RegistersAndIncrements(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncOperation("Records", "Write", 202)
	m.IncOperation("Records", "Write", 401)
	m.ObserveOperationDuration("Records", "Write", 0.01)
	m.ObserveDataBytes("Records", "Write", 1024)
	m.GrantsIssuedTotal.Inc()
	m.IncGrantCheck("allowed")
	m.EventStreamSubs.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"dwn_operations_total",
		"dwn_operation_duration_seconds",
		"dwn_operation_data_bytes",
		"dwn_grants_issued_total",
		"dwn_grant_checks_total",
		"dwn_event_stream_subscriptions",
	} {
		if !found[name] {
			t.Errorf("metric %s not found in registry", name)
		}
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 202: "2xx", 401: "4xx", 404: "4xx", 500: "5xx", 100: "other"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestNewTracingProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewTracingProvider(TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracingProvider() failed: %v", err)
	}
	if p.IsEnabled() {
		t.Error("expected a disabled provider")
	}
	tracer := p.Tracer("test")
	if tracer == nil {
		t.Fatal("expected a non-nil no-op tracer")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on a disabled provider should be a no-op, got: %v", err)
	}
}

func TestStartOperationSpan_RecordsOutcome(t *testing.T) {
	p, err := NewTracingProvider(TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracingProvider() failed: %v", err)
	}
	tracer := p.Tracer("test")

	ctx, finish := StartOperationSpan(context.Background(), tracer, "Records", "Write", "did:example:alice")
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	finish(nil)
}
