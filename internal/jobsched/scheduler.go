// Package jobsched is the external scheduler collaborator the job run loop
// registers cron schedules with and removes them from on delete: a
// lifecycle-managed background cron loop with Start/Stop semantics.
package jobsched

import (
	"context"
	"sync"

	"github.com/nanocl-io/nanocld/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Task is invoked when a job's cron schedule fires.
type Task func(ctx context.Context) error

// Scheduler wraps a cron.Cron with a Start/Stop lifecycle and a
// key-to-EntryID index so the lifecycle engine can remove a job's schedule
// by its key without tracking the opaque cron.EntryID itself.
type Scheduler struct {
	log *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
}

// New builds a Scheduler. The cron.Cron instance is created here, so
// Register can be called before Start.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("jobsched")
	}
	return &Scheduler{
		log:     log,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Register adds (or replaces) the cron entry for key, running task whenever
// the standard 5-field expr fires. Registering an already-scheduled key
// removes its old entry first.
func (s *Scheduler) Register(key, expr string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}

	id, err := s.cron.AddFunc(expr, func() {
		if err := task(context.Background()); err != nil {
			s.log.WithError(err).WithField("job", key).Warn("scheduled job run failed")
		}
	})
	if err != nil {
		return err
	}
	s.entries[key] = id
	return nil
}

// Remove cancels key's cron entry, if any. Removing an unregistered key is
// a no-op, matching the delete path's best-effort cleanup.
func (s *Scheduler) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
}

// Start begins running scheduled entries. Safe to call once; a second call
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.cron.Start()
	s.running = true
	s.log.Info("job scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for any in-flight run to finish or ctx
// to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("job scheduler stopped")
	return nil
}
