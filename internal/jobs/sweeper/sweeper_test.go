package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/genflow-backend/internal/platform/logger"
	"github.com/yungbote/genflow-backend/internal/services"
)

type fakeReaper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeReaper) Reap(ctx context.Context) (services.ReapResult, error) {
	f.calls.Add(1)
	return services.ReapResult{ReapedCount: 1, GenerationIDs: []uuid.UUID{uuid.New()}}, f.err
}

type fakeReconciler struct {
	services.StatusReconciler
	calls      atomic.Int32
	staleAfter time.Duration
	limit      int
}

func (f *fakeReconciler) PollStale(ctx context.Context, staleAfter time.Duration, limit int) (services.PollSummary, error) {
	f.calls.Add(1)
	f.staleAfter = staleAfter
	f.limit = limit
	return services.PollSummary{Polled: 2, Finished: 1}, nil
}

type brokenLocker struct{}

func (brokenLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, errors.New("redis down")
}

func newRedis(t *testing.T) goredis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	a := NewRedisLocker(logger.Nop(), rdb, "test:")
	b := NewRedisLocker(logger.Nop(), rdb, "test:")

	release, ok, err := a.TryLock(ctx, "reap", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock(a): ok=%v err=%v", ok, err)
	}
	if _, ok, err := b.TryLock(ctx, "reap", time.Minute); err != nil || ok {
		t.Fatalf("TryLock(b) while held: want ok=false got ok=%v err=%v", ok, err)
	}
	if _, ok, err := b.TryLock(ctx, "poll", time.Minute); err != nil || !ok {
		t.Fatalf("TryLock(b, other key): ok=%v err=%v", ok, err)
	}
	release()
	if _, ok, err := b.TryLock(ctx, "reap", time.Minute); err != nil || !ok {
		t.Fatalf("TryLock(b) after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	l := NewRedisLocker(logger.Nop(), rdb, "test:")

	release, ok, err := l.TryLock(ctx, "reap", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	// Simulate expiry followed by another instance taking the key.
	if err := rdb.Set(ctx, "test:reap", "other-token", time.Minute).Err(); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	release()
	got, err := rdb.Get(ctx, "test:reap").Result()
	if err != nil || got != "other-token" {
		t.Fatalf("foreign lock: want other-token got %q err=%v", got, err)
	}
}

func TestRunReapSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	locker := NewRedisLocker(logger.Nop(), rdb, "")
	reaper := &fakeReaper{}
	s, err := New(logger.Nop(), Config{}, reaper, nil, locker)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	release, ok, _ := locker.TryLock(ctx, reapLockKey, time.Minute)
	if !ok {
		t.Fatalf("pre-lock not acquired")
	}
	res, err := s.RunReap(ctx)
	if err != nil || res.ReapedCount != 0 || reaper.calls.Load() != 0 {
		t.Fatalf("RunReap while locked: res=%+v err=%v calls=%d", res, err, reaper.calls.Load())
	}
	release()

	res, err = s.RunReap(ctx)
	if err != nil || res.ReapedCount != 1 || reaper.calls.Load() != 1 {
		t.Fatalf("RunReap: res=%+v err=%v calls=%d", res, err, reaper.calls.Load())
	}
}

func TestRunReapProceedsWhenLockStoreDown(t *testing.T) {
	reaper := &fakeReaper{}
	s, err := New(logger.Nop(), Config{}, reaper, nil, brokenLocker{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.RunReap(context.Background()); err != nil {
		t.Fatalf("RunReap: %v", err)
	}
	if got := reaper.calls.Load(); got != 1 {
		t.Fatalf("reaper calls: want=1 got=%d", got)
	}
}

func TestRunPollPassesConfig(t *testing.T) {
	rec := &fakeReconciler{}
	s, err := New(logger.Nop(), Config{PollStaleAfter: 3 * time.Minute, PollBatch: 7}, &fakeReaper{}, rec, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sum, err := s.RunPoll(context.Background())
	if err != nil || sum.Polled != 2 {
		t.Fatalf("RunPoll: sum=%+v err=%v", sum, err)
	}
	if rec.staleAfter != 3*time.Minute || rec.limit != 7 {
		t.Fatalf("PollStale args: staleAfter=%v limit=%d", rec.staleAfter, rec.limit)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(logger.Nop(), Config{ReapSchedule: "every minute please"}, &fakeReaper{}, nil, nil); err == nil {
		t.Fatalf("New: want schedule error")
	}
	if _, err := New(logger.Nop(), Config{}, nil, nil, nil); err == nil {
		t.Fatalf("New: want missing reaper error")
	}
}

func TestScheduledReapRuns(t *testing.T) {
	reaper := &fakeReaper{}
	s, err := New(logger.Nop(), Config{ReapSchedule: "@every 1s", PollSchedule: "off"}, reaper, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	deadline := time.Now().Add(5 * time.Second)
	for reaper.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if reaper.calls.Load() == 0 {
		t.Fatalf("scheduled reap never ran")
	}
}
