package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/tuokri/tklserver/event"
	"github.com/tuokri/tklserver/metric"
)

// Publisher is the subset of natsclient.Client the mirror uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Record is the JSON document mirrored for each dispatched line.
type Record struct {
	Ident      string       `json:"ident"`
	ReceivedAt time.Time    `json:"received_at"`
	Event      *event.Event `json:"event,omitempty"`
	Raw        string       `json:"raw"`
	Delivered  bool         `json:"delivered"`
}

// Mirror publishes dispatch records to NATS on <prefix>.<ident>.<action>,
// with action "raw" for lines that did not parse. Best effort: failures are
// logged only. A nil *Mirror does nothing.
type Mirror struct {
	publisher Publisher
	prefix    string
	logger    *slog.Logger
	metrics   *metric.Metrics
}

// NewMirror creates a mirror. It returns nil when publisher is nil.
func NewMirror(publisher Publisher, prefix string, logger *slog.Logger, metrics *metric.Metrics) *Mirror {
	if publisher == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default().With("component", "mirror")
	}
	return &Mirror{publisher: publisher, prefix: prefix, logger: logger, metrics: metrics}
}

// Subject returns the subject a record is published on.
func (m *Mirror) Subject(rec Record) string {
	action := "raw"
	if rec.Event != nil {
		action = string(rec.Event.Action)
	}
	return m.prefix + "." + SubjectToken(rec.Ident) + "." + action
}

// Publish sends rec. Errors are logged and counted.
func (m *Mirror) Publish(ctx context.Context, rec Record) {
	if m == nil {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		m.logger.Error("Failed to encode mirror record", "ident", rec.Ident, "error", err)
		m.metrics.RecordMirror("error")
		return
	}

	subject := m.Subject(rec)
	if err := m.publisher.Publish(ctx, subject, data); err != nil {
		m.logger.Warn("Failed to mirror event", "subject", subject, "error", err)
		m.metrics.RecordMirror("error")
		return
	}
	m.metrics.RecordMirror("ok")
}

// SubjectToken makes s usable as a single NATS subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.', r == '*', r == '>', r <= ' ', r == 0x7f:
			return '_'
		default:
			return r
		}
	}, s)
}
