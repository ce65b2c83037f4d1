// Package scheduler runs the background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job is one unit of periodic work. A returned error is logged and the
// next tick still runs.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner whose specs carry a seconds field.
type Scheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
	names   map[cron.EntryID]string
}

// New creates a Scheduler. Jobs receive baseCtx, so cancelling it stops
// in-flight work.
func New(baseCtx context.Context) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		baseCtx: baseCtx,
		names:   make(map[cron.EntryID]string),
	}
}

// Add registers a job. A tick that is still running when the next one is
// due causes the next one to be skipped. A panic is recovered inside the
// skip guard so the job keeps running. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		log.Info().Str("job", name).Msg("Job disabled")
		return nil
	}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{}), cron.Recover(cronLogger{})).Then(cron.FuncJob(func() {
		s.run(name, job)
	}))
	id, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.names[id] = name
	log.Info().Str("job", name).Str("spec", spec).Msg("Job scheduled")
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	if s.baseCtx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job(s.baseCtx); err != nil {
		log.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("Job failed")
		return
	}
	log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Job finished")
}

// Jobs returns the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	var out []string
	for _, e := range s.cron.Entries() {
		out = append(out, s.names[e.ID])
	}
	return out
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.names)).Msg("Scheduler started")
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
