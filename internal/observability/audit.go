package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GateCheck names the webhook check an audit entry is about.
type GateCheck string

const (
	// CheckSubscribe is the GET handshake with hub.verify_token.
	CheckSubscribe GateCheck = "subscribe"
	// CheckSignature is the X-Hub-Signature check on a POST body.
	CheckSignature GateCheck = "signature"
)

// GateEntry is one line of the webhook audit trail.
type GateEntry struct {
	Check   GateCheck
	Allowed bool
	Remote  string
	Reason  string
	At      time.Time
}

func (e GateEntry) outcome() string {
	if e.Allowed {
		return "allowed"
	}
	return "denied"
}

// gateLog appends entries as JSON lines. The zero value writes to stderr.
type gateLog struct {
	mu     sync.Mutex
	out    zerolog.Logger
	closer io.Closer
	path   string
}

var (
	gateMu  sync.Mutex
	gateDst *gateLog
)

func currentGateLog() *gateLog {
	gateMu.Lock()
	defer gateMu.Unlock()
	if gateDst == nil {
		gateDst = &gateLog{out: zerolog.New(os.Stderr)}
	}
	return gateDst
}

func swapGateLog(next *gateLog) error {
	gateMu.Lock()
	prev := gateDst
	gateDst = next
	gateMu.Unlock()

	if prev == nil || prev.closer == nil {
		return nil
	}
	prev.mu.Lock()
	defer prev.mu.Unlock()
	return prev.closer.Close()
}

// OpenAuditLog sends the webhook audit trail to path, appending.
func OpenAuditLog(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return swapGateLog(&gateLog{out: zerolog.New(file), closer: file, path: path})
}

// AuditLogPath returns the file the audit trail is appended to, or "" when
// it goes elsewhere.
func AuditLogPath() string {
	gateMu.Lock()
	defer gateMu.Unlock()
	if gateDst == nil {
		return ""
	}
	return gateDst.path
}

// SetAuditOutput sends the audit trail to w. w is not closed by CloseAuditLog.
func SetAuditOutput(w io.Writer) {
	_ = swapGateLog(&gateLog{out: zerolog.New(w)})
}

// CloseAuditLog closes the audit file, if one is open, and falls back to stderr.
func CloseAuditLog() error {
	return swapGateLog(nil)
}

// AuditWebhookGate records the outcome of a webhook check. When ctx carries a
// recording span the entry is also attached to it as a span event.
func AuditWebhookGate(ctx context.Context, entry GateEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	var traceID string
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		span.AddEvent("webhook.gate", trace.WithAttributes(
			attribute.String("gate.check", string(entry.Check)),
			attribute.String("gate.outcome", entry.outcome()),
			attribute.String("gate.reason", entry.Reason),
		))
	}

	log := currentGateLog()
	log.mu.Lock()
	defer log.mu.Unlock()

	ev := log.out.Log().
		Time("at", entry.At).
		Str("check", string(entry.Check)).
		Str("outcome", entry.outcome()).
		Str("remote", entry.Remote)
	if entry.Reason != "" {
		ev = ev.Str("reason", entry.Reason)
	}
	if traceID != "" {
		ev = ev.Str("trace_id", traceID)
	}
	ev.Send()
}
