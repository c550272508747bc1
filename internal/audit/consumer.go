package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/logging"
)

// Mirror indexes a written event for search, independent of the
// hash-chained log's integrity role.
type Mirror interface {
	Index(ctx context.Context, event Event) error
}

// Consumer subscribes to every audit.* subject, appends each event to
// the hash-chained log, and (best-effort) mirrors it to Mirror.
type Consumer struct {
	log    *Log
	mirror Mirror
	logger logging.Logger
}

// NewConsumer builds a Consumer over an already-open Log.
func NewConsumer(log *Log, mirror Mirror, logger logging.Logger) *Consumer {
	return &Consumer{log: log, mirror: mirror, logger: logger}
}

// Start subscribes on b and processes events until the subscription is
// torn down by the caller via the returned bus.Subscription.
func (c *Consumer) Start(b bus.Bus) (bus.Subscription, error) {
	return b.Subscribe(events.Sub.AuditWildcard(), c.handle)
}

func (c *Consumer) handle(subject string, data []byte) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Warn("audit: dropping malformed event", "subject", subject, "error", err)
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = StatusSuccess
	}
	if event.IPAddress == "" {
		event.IPAddress = "0.0.0.0"
	}
	if event.Metadata == nil {
		event.Metadata = map[string]interface{}{}
	}

	if err := c.log.Append(event); err != nil {
		c.logger.Error("audit: append failed", "action", event.Action, "error", err)
		return
	}
	c.logger.Info("audit: recorded", "action", event.Action, "actor", event.ActorID)

	if c.mirror != nil {
		if err := c.mirror.Index(context.Background(), event); err != nil {
			// Search mirroring is an enrichment, not a source of truth;
			// a failure here never blocks or unwinds the append above.
			c.logger.Warn("audit: mirror index failed", "action", event.Action, "error", err)
		}
	}
}
