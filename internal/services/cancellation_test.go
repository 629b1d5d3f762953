package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/genflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/flowengine"
)

func TestCancelRejectsMissingAndForeign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 80)
	g := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationProcessing, 20, time.Minute)

	if _, err := h.canceller.Cancel(ctx, uuid.New(), acct.OwnerID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Cancel(missing): want ErrNotFound got %v", err)
	}
	if _, err := h.canceller.Cancel(ctx, g.ID, uuid.New()); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("Cancel(foreign): want ErrForbidden got %v", err)
	}
	if got := testutil.Reload(t, ctx, h.db, g.ID).Status; got != types.GenerationProcessing {
		t.Fatalf("status after rejected cancels: want processing got %s", got)
	}
}

func TestCancelProcessingStopsRemoteAndRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 80)
	g := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationProcessing, 20, time.Minute)

	res, err := h.canceller.Cancel(ctx, g.ID, acct.OwnerID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Outcome != CancelOK || res.Generation.Status != types.GenerationCancelled {
		t.Fatalf("Cancel: got outcome=%s status=%s", res.Outcome, res.Generation.Status)
	}
	if stopped := h.engine.stoppedIDs(); len(stopped) != 1 || stopped[0] != g.ExternalExecutionHandle {
		t.Fatalf("stop calls: want [%s] got %v", g.ExternalExecutionHandle, stopped)
	}
	if got := testutil.Balance(t, ctx, h.db, acct.OwnerID); got != 100 {
		t.Fatalf("balance: want=100 got=%d", got)
	}

	again, err := h.canceller.Cancel(ctx, g.ID, acct.OwnerID)
	if err != nil || again.Outcome != CancelAlreadyTerminal {
		t.Fatalf("Cancel(again): res=%+v err=%v", again, err)
	}
	if n := testutil.CountEvents(t, ctx, h.db, g.ID, types.UsageEventRefund); n != 1 {
		t.Fatalf("refund events: want=1 got=%d", n)
	}
	if stopped := h.engine.stoppedIDs(); len(stopped) != 1 {
		t.Fatalf("stop calls after repeat: want 1 got %v", stopped)
	}
}

func TestCancelCompletedIsAlreadyTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 80)
	g := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationCompleted, 20, time.Minute)

	res, err := h.canceller.Cancel(ctx, g.ID, acct.OwnerID)
	if err != nil || res.Outcome != CancelAlreadyTerminal || res.Generation.Status != types.GenerationCompleted {
		t.Fatalf("Cancel(completed): res=%+v err=%v", res, err)
	}
	if got := testutil.Balance(t, ctx, h.db, acct.OwnerID); got != 80 {
		t.Fatalf("balance: want=80 got=%d", got)
	}
}

func TestCancelStandsWhenRemoteStopFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 80)
	g := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationProcessing, 20, time.Minute)
	h.engine.stopErr = &flowengine.OperationError{Code: flowengine.OperationErrorTransportFailed, Operation: "stop_execution", Cause: errEngineDown}

	res, err := h.canceller.Cancel(ctx, g.ID, acct.OwnerID)
	if err != nil || res.Outcome != CancelOK {
		t.Fatalf("Cancel: res=%+v err=%v", res, err)
	}
	if got := testutil.Reload(t, ctx, h.db, g.ID).Status; got != types.GenerationCancelled {
		t.Fatalf("status: want cancelled got %s", got)
	}
	if got := testutil.Balance(t, ctx, h.db, acct.OwnerID); got != 100 {
		t.Fatalf("balance: want=100 got=%d", got)
	}
}

func TestCancelQueuedWithoutHandleSkipsRemoteStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 80)
	g := testutil.SeedGeneration(t, ctx, h.db, acct.OwnerID, types.GenerationQueued, 20, time.Minute)

	res, err := h.canceller.Cancel(ctx, g.ID, acct.OwnerID)
	if err != nil || res.Outcome != CancelOK {
		t.Fatalf("Cancel: res=%+v err=%v", res, err)
	}
	if stopped := h.engine.stoppedIDs(); len(stopped) != 0 {
		t.Fatalf("stop calls: want none got %v", stopped)
	}
}

func TestCancelDuringDispatchKeepsCancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, ctx, h.db, "free", 100)

	var cancelRes CancelResult
	var cancelErr error
	h.engine.onTrigger = func(req flowengine.TriggerRequest) {
		cancelRes, cancelErr = h.canceller.Cancel(ctx, req.GenerationID, acct.OwnerID)
	}

	g, err := h.svc.Start(ctx, StartRequest{OwnerID: acct.OwnerID, FlowID: "blog-post"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cancelErr != nil || cancelRes.Outcome != CancelOK {
		t.Fatalf("Cancel during trigger: res=%+v err=%v", cancelRes, cancelErr)
	}
	if g.Status != types.GenerationCancelled {
		t.Fatalf("Start: want cancelled got %s", g.Status)
	}
	row := testutil.Reload(t, ctx, h.db, g.ID)
	if row.Status != types.GenerationCancelled || row.ExternalExecutionHandle != "" {
		t.Fatalf("row: status=%s handle=%q", row.Status, row.ExternalExecutionHandle)
	}
	if stopped := h.engine.stoppedIDs(); len(stopped) != 1 || stopped[0] != "exec-1" {
		t.Fatalf("orphan stop: want [exec-1] got %v", stopped)
	}
	if got := testutil.Balance(t, ctx, h.db, acct.OwnerID); got != 100 {
		t.Fatalf("balance: want=100 got=%d", got)
	}
	if n := testutil.CountEvents(t, ctx, h.db, g.ID, types.UsageEventRefund); n != 1 {
		t.Fatalf("refund events: want=1 got=%d", n)
	}
}
