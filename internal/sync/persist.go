package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/xbacnet/xbacnet/internal/object"
	"github.com/xbacnet/xbacnet/internal/store"
)

// Persister pushes the commanded present-values of the output objects
// back to the database. Input and value objects are never written back:
// their authority is the database.
type Persister struct {
	gw  *store.Gateway
	reg *object.Registry
	log *zap.Logger
}

func NewPersister(gw *store.Gateway, reg *object.Registry, log *zap.Logger) *Persister {
	return &Persister{gw: gw, reg: reg, log: log}
}

func (p *Persister) Name() string { return "persist" }

// Run executes one persistence cycle: snapshot the commanded values
// under the object locks, then one autocommit UPDATE per object. On a
// SQL error the connection is dropped; writes already committed this
// cycle are kept, the rest flush when the database returns.
func (p *Persister) Run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("persist cycle panicked", zap.Any("panic", rec))
			p.gw.Drop()
		}
	}()

	if err := p.gw.Ensure(ctx); err != nil {
		p.log.Warn("database unavailable, commanded values stay buffered", zap.Error(err))
		return
	}

	snap := p.reg.SnapshotCommanded()

	for instance, value := range snap.AnalogOutputs {
		if err := p.gw.UpdateAnalogOutputPresentValue(ctx, instance, value); err != nil {
			p.log.Error("writeback failed, dropping connection", zap.Error(err))
			p.gw.Drop()
			return
		}
	}
	for instance, value := range snap.BinaryOutputs {
		if err := p.gw.UpdateBinaryOutputPresentValue(ctx, instance, string(value)); err != nil {
			p.log.Error("writeback failed, dropping connection", zap.Error(err))
			p.gw.Drop()
			return
		}
	}
	for instance, value := range snap.MultiStateOutputs {
		if err := p.gw.UpdateMultiStateOutputPresentValue(ctx, instance, value); err != nil {
			p.log.Error("writeback failed, dropping connection", zap.Error(err))
			p.gw.Drop()
			return
		}
	}
}
