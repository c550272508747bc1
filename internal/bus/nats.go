package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sentinel-voice/core/internal/apperr"
	"github.com/sentinel-voice/core/internal/logging"
)

// NATSBus is the production Bus implementation backed by nats.go core
// pub/sub.
type NATSBus struct {
	conn *nats.Conn
	log  logging.Logger
}

// Connect dials url and returns a ready-to-use NATSBus. Connection loss
// is handled by the underlying client's automatic reconnect; callers are
// notified via log lines, not error returns, since reconnects are
// transparent to publish/subscribe callers once established.
func Connect(url string, log logging.Logger) (*NATSBus, error) {
	b := &NATSBus{log: log}
	conn, err := nats.Connect(url,
		nats.Name("sentinel"),
		nats.MaxReconnects(-1),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			d := time.Second
			for i := 1; i < attempts && d < 30*time.Second; i++ {
				d *= 2
			}
			if d > 30*time.Second {
				d = 30 * time.Second
			}
			return d
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("bus disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("bus reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Warn("bus connection closed")
		}),
	)
	if err != nil {
		return nil, apperr.Config("bus.connect", fmt.Errorf("%s: %w", url, err))
	}
	b.conn = conn
	return b, nil
}

func (b *NATSBus) Publish(subject string, data []byte) error {
	if err := b.conn.Publish(subject, data); err != nil {
		return apperr.Transient("bus.publish", err)
	}
	return nil
}

func (b *NATSBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(m.Subject, m.Data)
	})
	if err != nil {
		return nil, apperr.Transient("bus.subscribe", err)
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSBus) QueueSubscribe(subject, queueGroup string, handler Handler) (Subscription, error) {
	sub, err := b.conn.QueueSubscribe(subject, queueGroup, func(m *nats.Msg) {
		handler(m.Subject, m.Data)
	})
	if err != nil {
		return nil, apperr.Transient("bus.queue_subscribe", err)
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSBus) Drain(ctx context.Context) error {
	if err := b.conn.Drain(); err != nil {
		return apperr.Transient("bus.drain", err)
	}
	// nats.Conn.Drain only starts draining; the connection closes once
	// in-flight handlers have finished.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !b.conn.IsClosed() {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
