// Package notify publishes order status events to the chat front-end.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// RemovedSubject is the subject suffix of events for orders that left the store.
const RemovedSubject = "removed"

// NATSNotifier publishes status events as JSON to <prefix>.<status>.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials the NATS server at url.
func Connect(url, prefix string, logger *slog.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("apk-customizer"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSNotifier(conn, prefix, logger), nil
}

// NewNATSNotifier wraps an established connection.
func NewNATSNotifier(conn *nats.Conn, prefix string, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject event is published to.
func (n *NATSNotifier) Subject(event model.StatusEvent) string {
	suffix := string(event.To)
	if event.Removed {
		suffix = RemovedSubject
	}
	if n.prefix == "" {
		return suffix
	}
	return n.prefix + "." + suffix
}

// Publish sends event. The call does not wait for delivery.
func (n *NATSNotifier) Publish(ctx context.Context, event model.StatusEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	subject := n.Subject(event)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	n.logger.Debug("status event published",
		slog.String("subject", subject),
		slog.Int64("order_id", event.OrderID),
	)
	return nil
}

// Close flushes pending events and closes the connection.
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}

// Nop discards events. It is used when no NATS server is configured.
type Nop struct{}

func (Nop) Publish(context.Context, model.StatusEvent) error { return nil }
