// Package sync holds the two periodic tasks that keep the live object
// table and the database of record aligned: the refresh pass (database →
// objects) and the persistence pass (objects → database).
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one periodic pass. Run executes a single cycle; it must catch
// its own errors — a failed cycle never terminates the process.
type Task interface {
	Name() string
	Run(ctx context.Context)
}

// Scheduler drives the tasks on recurring interval triggers.
type Scheduler struct {
	cron *cron.Cron
	// budget bounds each cycle's wall clock, kept below the shortest
	// interval so cycles never pile up.
	budget time.Duration
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(budget time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		budget: budget,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add installs a task at the given interval.
func (s *Scheduler) Add(task Task, interval time.Duration) error {
	expr := fmt.Sprintf("@every %s", interval.String())
	_, err := s.cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.budget)
		defer cancel()
		task.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", task.Name(), err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the triggers and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
