package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
)

// InjectedTxRunner wraps a TxRunner with begin and commit failure injection.
// With a nil Inner the body runs without a transaction. An injected commit
// failure is returned from inside Inner's transaction, so the body's writes
// roll back.
type InjectedTxRunner struct {
	Inner aggregates.TxRunner

	mu sync.Mutex

	FailBegin  error
	FailCommit error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin := r.FailBegin
	r.mu.Unlock()
	if failBegin != nil {
		return failBegin
	}

	body := func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				r.count(&r.RollbackCalls)
				return err
			}
		}
		r.mu.Lock()
		failCommit := r.FailCommit
		r.mu.Unlock()
		if failCommit != nil {
			r.count(&r.RollbackCalls)
			return failCommit
		}
		r.count(&r.CommitCalls)
		return nil
	}
	if r.Inner == nil {
		return body(dbctx.Context{Ctx: ctx})
	}
	return r.Inner.InTx(ctx, body)
}

func (r *InjectedTxRunner) InTxWith(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return r.InTx(dbc.Ctx, fn)
}

func (r *InjectedTxRunner) Calls() (begin, commit, rollback int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.BeginCalls, r.CommitCalls, r.RollbackCalls
}

func (r *InjectedTxRunner) count(n *int) {
	r.mu.Lock()
	*n++
	r.mu.Unlock()
}
