// Package events carries store-change triggers (confession created,
// reaction created) from the gates to the notifier over a Redis stream.
// Delivery is at-least-once; consumers must be idempotent, which the
// notification eligibility gate guarantees per calendar day.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"confessly/internal/util"
)

// Event types published by the gates.
const (
	TypeConfessionCreated = "confession.created"
	TypeReactionCreated   = "reaction.created"
)

// Event is a store-change trigger.
type Event struct {
	Type         string
	ConfessionID string
	UserID       string // author for confession events, reactor for reaction events
}

// Bus publishes and consumes events on a Redis stream with a consumer
// group, so multiple service instances share the trigger work.
type Bus struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	block        time.Duration
	claimIdle    time.Duration
	maxLen       int64
	once         sync.Once
}

// Config wires the bus.
type Config struct {
	Addr      string
	Password  string
	Stream    string
	Group     string
	Consumer  string
	Block     time.Duration
	ClaimIdle time.Duration
	MaxLen    int64
}

// NewBus constructs the event bus.
func NewBus(cfg Config) (*Bus, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("event bus redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "confessly:events"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "notifier"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Bus{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		block:        block,
		claimIdle:    claimIdle,
		maxLen:       maxLen,
	}, nil
}

// Publish appends an event to the stream.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":          ev.Type,
			"confession_id": ev.ConfessionID,
			"user_id":       ev.UserID,
		},
	}).Err()
}

// Start launches consumer goroutines that invoke handler for each event.
// Handler errors are logged; the message is acknowledged either way since
// the eligibility gate makes redelivery harmless but unbounded retries of
// a poisoned event are not.
func (b *Bus) Start(ctx context.Context, concurrency int, handler func(context.Context, Event) error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	b.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", b.consumerBase, i)
		go b.consumeLoop(ctx, consumer, handler)
	}
}

func (b *Bus) ensureGroup(ctx context.Context) {
	b.once.Do(func() {
		err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("create consumer group", "stream", b.stream, "err", err)
		}
	})
}

func (b *Bus) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, Event) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := b.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				b.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: consumer,
			Streams:  []string{b.stream, ">"},
			Count:    10,
			Block:    b.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (b *Bus) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.stream,
		Group:    b.group,
		Consumer: consumer,
		MinIdle:  b.claimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (b *Bus) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, Event) error) {
	ev := Event{}
	ev.Type, _ = msg.Values["type"].(string)
	ev.ConfessionID, _ = msg.Values["confession_id"].(string)
	ev.UserID, _ = msg.Values["user_id"].(string)
	if ev.Type != "" {
		if err := handler(ctx, ev); err != nil {
			slog.Error("event handler failed", "type", ev.Type, "confession_id", ev.ConfessionID, "err", err)
		}
	}
	_, _ = b.client.XAck(ctx, b.stream, b.group, msg.ID).Result()
	_, _ = b.client.XDel(ctx, b.stream, msg.ID).Result()
}
