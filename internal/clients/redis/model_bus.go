package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pinpung/pinpung-ai/internal/platform/logger"
)

// ModelEvent announces that the interaction data behind the serving model
// changed, or that a trainer promoted a new model version.
type ModelEvent struct {
	Kind      string    `json:"kind"` // "stale" | "promoted"
	Version   int64     `json:"version,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

const (
	ModelEventStale    = "stale"
	ModelEventPromoted = "promoted"
)

// ModelBus fans model lifecycle events out across service replicas.
type ModelBus interface {
	Publish(ctx context.Context, event ModelEvent) error
	StartForwarder(ctx context.Context, onEvent func(e ModelEvent)) error
	Close() error
}

type modelBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewModelBus(log *logger.Logger) (ModelBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_MODEL_CHANNEL"))
	if ch == "" {
		ch = "model-events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &modelBus{
		log:     log.With("service", "RedisModelBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *modelBus) Publish(ctx context.Context, event ModelEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis model bus not initialized")
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *modelBus) StartForwarder(ctx context.Context, onEvent func(e ModelEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis model bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var event ModelEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.log.Warn("bad redis model event payload", "error", err)
					continue
				}
				onEvent(event)
			}
		}
	}()

	return nil
}

func (b *modelBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
