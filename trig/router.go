package trig

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/algorealm/triggr/chain"
	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/dsl"
	"github.com/algorealm/triggr/log"
)

// defaultEvalBudget is the per-invocation wall-clock budget of spec §5.
const defaultEvalBudget = 2 * time.Second

// Router consumes chain.DecodedEvent from an intake channel and, for each,
// evaluates every matching active trigger in trigger_id order, committing
// mutations through the document store, per spec §4.7.
type Router struct {
	Index      *Index
	Store      *Store
	Docs       *doc.Store
	Log        log.Logger
	Intake     <-chan chain.DecodedEvent
	EvalBudget time.Duration

	pool *ants.Pool
}

// NewRouter builds a Router whose per-event evaluation jobs run on a
// bounded ants worker pool sized to workers, so distinct events (and
// distinct projects) evaluate concurrently while each event's own
// triggers stay strictly ordered within their own pool job.
func NewRouter(index *Index, store *Store, docs *doc.Store, logger log.Logger, intake <-chan chain.DecodedEvent, workers int) (*Router, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Router{Index: index, Store: store, Docs: docs, Log: logger, Intake: intake, EvalBudget: defaultEvalBudget, pool: pool}, nil
}

// Run drains Intake until it is closed, submitting one pool job per event.
func (r *Router) Run() {
	for ev := range r.Intake {
		ev := ev
		r.pool.Submit(func() { r.dispatch(ev) })
	}
}

// Stop releases the worker pool.
func (r *Router) Stop() { r.pool.Release() }

func (r *Router) dispatch(ev chain.DecodedEvent) {
	triggers := r.Index.Lookup(ev.ProjectID, ev.Name)
	if len(triggers) == 0 {
		return
	}
	for _, c := range triggers {
		r.runOne(ev, c)
	}
}

// runOne evaluates one trigger against one decoded event under a
// per-invocation wall-clock budget (spec §5, default 2s): the evaluator
// runs on its own goroutine so a run that blocks past the budget (e.g. on
// a contended per-doc lock in doc.Store) does not hold this worker pool
// slot past the deadline — budget exhaustion is reported the same way as
// any other failed statement, per §4.5.
func (r *Router) runOne(ev chain.DecodedEvent, c compiled) {
	now := time.Now().UTC()
	defer func() {
		if err := r.Store.Touch(ev.ProjectID, c.ID, now); err != nil {
			r.Log.Error("trigger router: touch failed", "trigger", c.ID, "cause", err)
		}
	}()

	budget := r.EvalBudget
	if budget <= 0 {
		budget = defaultEvalBudget
	}
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	evalr := &dsl.Evaluator{Store: r.Docs, Project: ev.ProjectID}
	done := make(chan error, 1)
	go func() { done <- evalr.Run(ctx, c.Script, ev.Fields) }()

	select {
	case err := <-done:
		if err != nil {
			r.Log.Error("trigger router: evaluation failed",
				"project", ev.ProjectID, "trigger", c.ID, "event", ev.Name,
				"block", ev.BlockNumber, "cause", err)
		}
	case <-ctx.Done():
		r.Log.Error("trigger router: evaluation budget exceeded",
			"project", ev.ProjectID, "trigger", c.ID, "event", ev.Name,
			"block", ev.BlockNumber, "budget", budget)
	}
}
