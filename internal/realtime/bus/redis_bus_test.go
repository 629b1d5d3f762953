package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/genflow-backend/internal/platform/logger"
	"github.com/yungbote/genflow-backend/internal/realtime"
)

func TestRedisBusPublishForward(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := NewRedisBusWithClient(logger.Nop(), rdb, "generations-test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan realtime.Event, 1)
	if err := b.StartForwarder(ctx, func(ev realtime.Event) { got <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	want := realtime.Event{
		Channel:      uuid.New().String(),
		Event:        realtime.EventGenerationCompleted,
		GenerationID: uuid.New(),
		Status:       "completed",
		Progress:     100,
		At:           time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := b.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-got:
		if ev.GenerationID != want.GenerationID || ev.Event != want.Event || ev.Progress != 100 {
			t.Fatalf("event: want=%+v got=%+v", want, ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for forwarded event")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("shared client closed by bus: %v", err)
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected missing addr error")
	}
}
