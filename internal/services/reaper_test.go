package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/genflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/domain/generation"
)

func TestReapStuckProcessingRefundsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 70)
	stuck := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationProcessing, 30, 20*time.Minute)

	res, err := h.reaper.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if res.ReapedCount != 1 || len(res.GenerationIDs) != 1 || res.GenerationIDs[0] != stuck.ID {
		t.Fatalf("Reap: want [%s] got %+v", stuck.ID, res)
	}
	row := testutil.Reload(t, ctx, h.db, stuck.ID)
	if row.Status != types.GenerationFailed || row.ErrorMessage != TimeoutFailureMessage {
		t.Fatalf("reaped row: status=%s error=%q", row.Status, row.ErrorMessage)
	}
	if got := testutil.Balance(t, ctx, h.db, acct.OwnerID); got != 100 {
		t.Fatalf("balance: want=100 got=%d", got)
	}

	again, err := h.reaper.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap(second): %v", err)
	}
	if again.ReapedCount != 0 || again.GenerationIDs == nil {
		t.Fatalf("Reap(second): want 0 with empty ids got %+v", again)
	}
	if n := testutil.CountEvents(t, ctx, h.db, stuck.ID, types.UsageEventRefund); n != 1 {
		t.Fatalf("refund events: want=1 got=%d", n)
	}
	if got := testutil.Balance(t, ctx, h.db, acct.OwnerID); got != 100 {
		t.Fatalf("balance after second pass: want=100 got=%d", got)
	}
}

func TestReapUsesCreatedAtForQueuedAndUpdatedAtForProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "pro", 100)
	staleQueued := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationQueued, 20, 20*time.Minute)
	freshQueued := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationQueued, 20, time.Minute)
	// Old but recently touched by a progress update.
	active := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationProcessing, 20, time.Hour)
	if err := h.db.WithContext(ctx).Model(&types.Generation{}).
		Where("id = ?", active.ID).
		Update("updated_at", time.Now().UTC().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("touch updated_at: %v", err)
	}

	res, err := h.reaper.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if res.ReapedCount != 1 || res.GenerationIDs[0] != staleQueued.ID {
		t.Fatalf("Reap: want only %s got %+v", staleQueued.ID, res)
	}
	if got := testutil.Reload(t, ctx, h.db, freshQueued.ID).Status; got != types.GenerationQueued {
		t.Fatalf("fresh queued: want queued got %s", got)
	}
	if got := testutil.Reload(t, ctx, h.db, active.ID).Status; got != types.GenerationProcessing {
		t.Fatalf("recently updated processing: want processing got %s", got)
	}
}

func TestReapSkipsTerminalRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 100)
	for _, st := range generation.TerminalStatuses {
		testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, st, 20, time.Hour)
	}
	res, err := h.reaper.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if res.ReapedCount != 0 {
		t.Fatalf("Reap: want 0 got %+v", res)
	}
}

func TestReapRacingFailurePushRefundsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 80)
	g := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationProcessing, 20, 20*time.Minute)

	var (
		wg      sync.WaitGroup
		reapRes ReapResult
		reapErr error
		pushRes PushResult
		pushErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		reapRes, reapErr = h.reaper.Reap(ctx)
	}()
	go func() {
		defer wg.Done()
		pushRes, pushErr = h.reconciler.ApplyPush(ctx, PushUpdate{GenerationID: g.ID, Status: "failed", Error: "upstream 500"})
	}()
	wg.Wait()

	if reapErr != nil || pushErr != nil {
		t.Fatalf("race: reapErr=%v pushErr=%v", reapErr, pushErr)
	}
	applied := reapRes.ReapedCount
	if pushRes.Outcome == OutcomeApplied {
		applied++
	}
	if applied != 1 {
		t.Fatalf("race: want exactly one transition got reap=%+v push=%+v", reapRes, pushRes)
	}
	if n := testutil.CountEvents(t, ctx, h.db, g.ID, types.UsageEventRefund); n != 1 {
		t.Fatalf("refund events: want=1 got=%d", n)
	}
	if got := testutil.Balance(t, ctx, h.db, acct.OwnerID); got != 100 {
		t.Fatalf("balance: want=100 got=%d", got)
	}
	if got := testutil.Reload(t, ctx, h.db, g.ID).Status; got != types.GenerationFailed {
		t.Fatalf("status: want failed got %s", got)
	}
}
