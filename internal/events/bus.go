// Package events announces index rebuilds over NATS so every process
// serving the same index directory can reload it.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/logging"
)

// DefaultSubject carries IndexRebuilt events.
const DefaultSubject = "filingqa.index.rebuilt"

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// IndexRebuilt is published after a new index has been persisted.
type IndexRebuilt struct {
	CreatedAt      time.Time `json:"created_at"`
	Count          int       `json:"count"`
	Dir            string    `json:"dir"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`

	// Origin identifies the publishing bus. Subscribers skip their own events.
	Origin string `json:"origin"`
}

// Handler receives decoded events.
type Handler func(ctx context.Context, ev IndexRebuilt) error

// Bus publishes and subscribes to index events on one subject.
type Bus struct {
	nc      *nats.Conn
	subject string
	origin  string
	owned   bool
	logger  *logging.Logger
}

// Connect dials cfg.URL. It returns nil, nil when no URL is configured.
func Connect(cfg config.EventsConfig, logger *logging.Logger) (*Bus, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("filingqa"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	b := New(nc, cfg.Subject, logger)
	b.owned = true
	return b, nil
}

// New wraps an existing connection. The caller keeps ownership of nc.
func New(nc *nats.Conn, subject string, logger *logging.Logger) *Bus {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		nc:      nc,
		subject: subject,
		origin:  uuid.NewString(),
		logger:  logger.Named("events"),
	}
}

// Subject returns the subject events are exchanged on.
func (b *Bus) Subject() string { return b.subject }

// PublishRebuilt announces a rebuild and flushes so the event is on the
// wire before returning.
func (b *Bus) PublishRebuilt(ctx context.Context, ev IndexRebuilt) error {
	if b.nc == nil || b.nc.IsClosed() {
		return ErrClosed
	}
	ev.Origin = b.origin
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", b.subject, err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", b.subject, err)
	}
	b.logger.Debug(ctx, "published index rebuilt", zap.Int("count", ev.Count), zap.String("dir", ev.Dir))
	return nil
}

// SubscribeRebuilt delivers events from other publishers to handler until
// ctx is cancelled. Handler errors are logged and do not stop delivery.
func (b *Bus) SubscribeRebuilt(ctx context.Context, handler Handler) error {
	if b.nc == nil || b.nc.IsClosed() {
		return ErrClosed
	}
	msgs := make(chan *nats.Msg, 16)
	sub, err := b.nc.ChanSubscribe(b.subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}

	go func() {
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case msg := <-msgs:
				var ev IndexRebuilt
				if err := json.Unmarshal(msg.Data, &ev); err != nil {
					b.logger.Warn(ctx, "dropping malformed index event", zap.Error(err))
					continue
				}
				if ev.Origin == b.origin {
					continue
				}
				if err := handler(ctx, ev); err != nil {
					b.logger.Warn(ctx, "index event handler failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close drains the connection if the bus opened it.
func (b *Bus) Close() {
	if b.owned && b.nc != nil {
		_ = b.nc.Drain()
	}
}
