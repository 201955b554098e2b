package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/xbacnet/xbacnet/internal/object"
	"github.com/xbacnet/xbacnet/internal/store"
)

// ChangeNotifier receives the identifiers whose monitored properties
// moved during a refresh cycle, for COV evaluation.
type ChangeNotifier interface {
	ObjectsChanged(ids []object.ID)
}

// Refresher pulls declarative configuration and sensor values from the
// database into the live objects. Commanded output present-values are
// never overwritten: their authority is in memory.
type Refresher struct {
	gw       *store.Gateway
	reg      *object.Registry
	notifier ChangeNotifier
	log      *zap.Logger
}

func NewRefresher(gw *store.Gateway, reg *object.Registry, notifier ChangeNotifier, log *zap.Logger) *Refresher {
	return &Refresher{gw: gw, reg: reg, notifier: notifier, log: log}
}

func (r *Refresher) Name() string { return "refresh" }

// Run executes one refresh cycle. On any database failure the object set
// keeps its previous values (fail-static) and the connection is dropped
// so the next cycle reconnects.
func (r *Refresher) Run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("refresh cycle panicked", zap.Any("panic", rec))
			r.gw.Drop()
		}
	}()

	if err := r.gw.Ensure(ctx); err != nil {
		r.log.Warn("database unavailable, keeping last-known values", zap.Error(err))
		return
	}

	snap, err := r.gw.LoadSnapshot(ctx)
	if err != nil {
		r.log.Error("refresh query failed, dropping connection", zap.Error(err))
		r.gw.Drop()
		return
	}

	changed, errs := r.reg.ApplyRefresh(snap)
	for _, err := range errs {
		r.log.Warn("skipping object with invalid row", zap.Error(err))
	}
	if len(changed) > 0 {
		r.log.Debug("refresh applied", zap.Int("changed", len(changed)))
		if r.notifier != nil {
			r.notifier.ObjectsChanged(changed)
		}
	}
}
