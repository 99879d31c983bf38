// Package relay turns one routed line into a webhook delivery.
//
// Pipeline.Dispatch parses the line, builds a notification (an embed, or the
// raw line as plain text when parsing fails), executes the webhook once and
// optionally mirrors the outcome to NATS.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/tuokri/tklserver/errors"
	"github.com/tuokri/tklserver/event"
	"github.com/tuokri/tklserver/metric"
	"github.com/tuokri/tklserver/notify"
	"github.com/tuokri/tklserver/output/webhook"
	"github.com/tuokri/tklserver/registry"
)

// Delivery outcomes used as metric labels.
const (
	StatusOK        = "ok"
	StatusTransient = "transient"
	StatusInvalid   = "invalid"
)

// Deliverer executes a webhook.
type Deliverer interface {
	Execute(ctx context.Context, dest registry.Destination, msg *webhook.Message) error
}

// Config holds pipeline settings.
type Config struct {
	// Location interprets line timestamps. Defaults to time.Local.
	Location *time.Location
	// DeliveryTimeout bounds one webhook execution. Zero leaves it to the client.
	DeliveryTimeout time.Duration
}

// Deps holds runtime dependencies for the pipeline.
type Deps struct {
	Webhook Deliverer         // required
	Icons   notify.IconSource // optional
	Mirror  *Mirror           // optional
	Logger  *slog.Logger      // optional
	Metrics *metric.Metrics   // optional
}

// Pipeline dispatches lines. It holds no per-line state and is safe for
// concurrent use by every connection.
type Pipeline struct {
	loc             *time.Location
	deliveryTimeout time.Duration
	webhook         Deliverer
	builder         *notify.Builder
	mirror          *Mirror
	logger          *slog.Logger
	metrics         *metric.Metrics
}

// NewPipeline creates a dispatch pipeline.
func NewPipeline(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Webhook == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "relay", "NewPipeline", "webhook client required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "relay")
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Pipeline{
		loc:             loc,
		deliveryTimeout: cfg.DeliveryTimeout,
		webhook:         deps.Webhook,
		builder:         notify.NewBuilder(deps.Icons, logger),
		mirror:          deps.Mirror,
		logger:          logger,
		metrics:         deps.Metrics,
	}, nil
}

// Dispatch delivers body, received from ident, to dest. The returned error is
// the delivery error; callers log it and move on.
func (p *Pipeline) Dispatch(ctx context.Context, ident string, dest registry.Destination, body string) error {
	ev, err := event.Parse(body, p.loc)
	if err != nil {
		p.logger.Debug("Line not parseable, relaying as text", "ident", ident, "line", body, "error", err)
		p.metrics.RecordEvent("raw")
	} else {
		p.metrics.RecordEvent(string(ev.Action))
	}

	n := p.builder.Build(ev, body)

	deliverCtx := ctx
	if p.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		deliverCtx, cancel = context.WithTimeout(ctx, p.deliveryTimeout)
		defer cancel()
	}

	start := time.Now()
	deliveryErr := p.webhook.Execute(deliverCtx, dest, n.Message())
	status := deliveryStatus(deliveryErr)
	p.metrics.RecordDelivery(status, time.Since(start))

	if deliveryErr == nil {
		p.logger.Debug("Notification delivered", "ident", ident, "webhook_id", dest.ID,
			"fallback", n.IsFallback(), "icon", len(n.Image) > 0)
	}

	p.mirror.Publish(ctx, Record{
		Ident:      ident,
		ReceivedAt: start.UTC(),
		Event:      ev,
		Raw:        body,
		Delivered:  deliveryErr == nil,
	})

	return deliveryErr
}

func deliveryStatus(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.IsInvalid(err):
		return StatusInvalid
	default:
		return StatusTransient
	}
}
