package generations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/genflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
)

func TestGenerationRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewGenerationRepo(db, testutil.Logger(t))

	acct := testutil.SeedAccount(t, ctx, db, "free", 100)
	queuedOld := testutil.SeedGeneration(t, ctx, db, acct.OwnerID, types.GenerationQueued, 20, 20*time.Minute)
	processingOld := testutil.SeedGeneration(t, ctx, db, acct.OwnerID, types.GenerationProcessing, 20, 20*time.Minute)
	processingFresh := testutil.SeedGeneration(t, ctx, db, acct.OwnerID, types.GenerationProcessing, 20, time.Minute)
	done := testutil.SeedGeneration(t, ctx, db, acct.OwnerID, types.GenerationCompleted, 20, time.Hour)

	n, err := repo.CountActiveByOwner(dbc, acct.OwnerID)
	if err != nil {
		t.Fatalf("CountActiveByOwner: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountActiveByOwner: want=3 got=%d", n)
	}

	got, err := repo.GetByID(dbc, processingOld.ID)
	if err != nil || got == nil || got.Status != types.GenerationProcessing {
		t.Fatalf("GetByID: err=%v got=%+v", err, got)
	}

	now := time.Now().UTC()
	stale, err := repo.ListStale(dbc, now.Add(-15*time.Minute), now.Add(-15*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("ListStale: want=2 got=%d", len(stale))
	}
	for _, g := range stale {
		if g.ID != queuedOld.ID && g.ID != processingOld.ID {
			t.Fatalf("ListStale: unexpected generation %s (%s)", g.ID, g.Status)
		}
	}

	pollable, err := repo.ListPollable(dbc, now.Add(-2*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListPollable: %v", err)
	}
	if len(pollable) != 1 || pollable[0].ID != processingOld.ID {
		t.Fatalf("ListPollable: want=[%s] got=%d rows", processingOld.ID, len(pollable))
	}

	// Terminal rows are never matched by the guard.
	ok, err := repo.UpdateIfActive(dbc, done.ID, map[string]interface{}{"status": string(types.GenerationFailed)})
	if err != nil {
		t.Fatalf("UpdateIfActive(terminal): %v", err)
	}
	if ok {
		t.Fatalf("UpdateIfActive(terminal): expected no-op")
	}

	ok, err = repo.UpdateIfStatus(dbc, processingFresh.ID, []types.GenerationStatus{types.GenerationQueued}, map[string]interface{}{"progress": 10})
	if err != nil || ok {
		t.Fatalf("UpdateIfStatus(wrong status): ok=%v err=%v", ok, err)
	}

	ok, err = repo.RaiseProgress(dbc, processingFresh.ID, 40)
	if err != nil || !ok {
		t.Fatalf("RaiseProgress(40): ok=%v err=%v", ok, err)
	}
	ok, err = repo.RaiseProgress(dbc, processingFresh.ID, 25)
	if err != nil || ok {
		t.Fatalf("RaiseProgress(25): expected regression to be ignored, ok=%v err=%v", ok, err)
	}
	if g := testutil.Reload(t, ctx, db, processingFresh.ID); g.Progress != 40 {
		t.Fatalf("progress: want=40 got=%d", g.Progress)
	}

	ok, err = repo.MarkRefunded(dbc, done.ID, now)
	if err != nil || !ok {
		t.Fatalf("MarkRefunded: ok=%v err=%v", ok, err)
	}
	ok, err = repo.MarkRefunded(dbc, done.ID, now)
	if err != nil || ok {
		t.Fatalf("MarkRefunded(second): ok=%v err=%v", ok, err)
	}

	list, err := repo.ListByOwner(dbc, acct.OwnerID, 2)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListByOwner: err=%v len=%d", err, len(list))
	}
	if list[0].ID != processingFresh.ID {
		t.Fatalf("ListByOwner: expected newest first, got %s", list[0].ID)
	}
}

func TestGenerationRepoLockByIDMissing(t *testing.T) {
	db := testutil.DB(t)
	repo := NewGenerationRepo(db, testutil.Logger(t))
	tx := testutil.Tx(t, db)
	g, err := repo.LockByID(dbctx.Context{Ctx: context.Background(), Tx: tx}, uuid.New())
	if err != nil {
		t.Fatalf("LockByID: %v", err)
	}
	if g != nil {
		t.Fatalf("LockByID: expected nil for missing row")
	}
}
