package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestBusPublishConsume(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	bus, err := NewBus(Config{
		Addr:   redisSrv.Addr(),
		Stream: "test:events",
		Group:  "test-group",
		Block:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	bus.Start(ctx, 1, func(_ context.Context, ev Event) error {
		received <- ev
		return nil
	})

	// Give the consumer group a moment to exist before publishing.
	time.Sleep(100 * time.Millisecond)

	want := Event{Type: TypeReactionCreated, ConfessionID: "c-1", UserID: "u-2"}
	if err := bus.Publish(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got != want {
			t.Fatalf("event = %+v, want %+v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestNewBusRequiresAddr(t *testing.T) {
	if _, err := NewBus(Config{}); err == nil {
		t.Fatalf("expected error for missing redis addr")
	}
}
