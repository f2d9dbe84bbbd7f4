package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/guardbot/internal/db"
	"github.com/iamwavecut/guardbot/internal/observability"
)

// Reconciler lifts restrictions whose expiry has passed, independent
// of live traffic. One key's failure never aborts the tick for other
// keys; a failed lift stays in the ledger and is retried next tick.
type Reconciler struct {
	engine   *Engine
	interval time.Duration

	runMutex   sync.Mutex
	started    bool
	runtimeCtx context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewReconciler(engine *Engine, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		engine:   engine,
		interval: interval,
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	r.runMutex.Lock()
	defer r.runMutex.Unlock()
	if r.started {
		return nil
	}
	r.runtimeCtx, r.cancel = context.WithCancel(ctx)
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Startup pass reconciles restrictions that expired while the
		// process was down.
		r.Tick(r.runtimeCtx, time.Now())

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.runtimeCtx.Done():
				return
			case now := <-ticker.C:
				r.Tick(r.runtimeCtx, now)
			}
		}
	}()
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	r.runMutex.Lock()
	if !r.started {
		r.runMutex.Unlock()
		return nil
	}
	r.started = false
	cancel := r.cancel
	r.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Tick scans the ledger for expired restrictions and lifts each one:
// the platform directive first, then the ledger delete. The lift for a
// key shares that key's critical section with message processing.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) {
	entry := r.getLogEntry()

	expired, err := r.engine.store.ListExpiredRestrictions(ctx, now)
	if err != nil {
		entry.WithError(err).Error("failed to list expired restrictions")
		return
	}
	if len(expired) == 0 {
		return
	}
	entry.WithField("count", len(expired)).Debug("reconciling expired restrictions")

	for _, restriction := range expired {
		r.liftOne(ctx, restriction, now)
	}
}

func (r *Reconciler) liftOne(ctx context.Context, restriction db.Restriction, now time.Time) {
	key := restriction.Key()
	entry := r.getLogEntry().WithFields(log.Fields{
		"key":  key.String(),
		"kind": restriction.Kind,
	})

	unlock := r.engine.locks.Lock(key)
	defer unlock()

	// A live update may have replaced the restriction while we waited
	// for the lock; last writer wins.
	current, err := r.engine.store.GetRestriction(ctx, key.ChatID, key.UserID, restriction.Kind)
	if err != nil {
		entry.WithError(err).Error("failed to re-check restriction")
		return
	}
	if current == nil || current.Until.After(now) {
		return
	}

	if err := r.engine.transport.LiftRestriction(ctx, key.ChatID, key.UserID, restriction.Kind); err != nil {
		// Keep the ledger entry; next tick retries.
		entry.WithError(err).Warn("failed to lift restriction at platform, will retry")
		return
	}
	if _, err := r.engine.store.DeleteRestriction(ctx, key.ChatID, key.UserID, restriction.Kind); err != nil {
		entry.WithError(err).Error("failed to delete lifted restriction")
		return
	}
	observability.RecordRestrictionLift(restriction.Kind)
	entry.Info("expired restriction lifted")
}

func (r *Reconciler) getLogEntry() *log.Entry {
	return log.WithField("object", "Reconciler")
}
