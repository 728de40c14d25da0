// Package schedule runs background jobs on a cron timetable. It backs the
// daily digest reporter but is job-agnostic: anything matching the Job
// signature can be scheduled.
package schedule

import (
	"context"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/rs/zerolog/log"
)

// DefaultReportSpec is the timetable of the daily digest job.
const DefaultReportSpec = "46 22 * * *"

// Job is one scheduled unit of work. The now argument is the tick time, so
// jobs can derive their reporting window without consulting the clock.
type Job func(ctx context.Context, now time.Time) error

// Scheduler fires a single Job on a cron expression. Ticks are computed
// with cronexpr; a tick that fires while the previous run is still in
// flight waits, runs never overlap.
type Scheduler struct {
	name string
	expr *cronexpr.Expression
	job  Job

	stop chan struct{}
	done chan struct{}
}

// New parses spec (standard five-field cron, six-field with seconds also
// accepted) and returns a scheduler for job. The name is used in logs only.
func New(name, spec string, job Job) (*Scheduler, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		name: name,
		expr: expr,
		job:  job,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}, nil
}

// Start launches the scheduling loop in its own goroutine. The loop exits
// when ctx is canceled, Stop is called, or the expression has no further
// activation.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the loop and waits for any in-flight run to finish. Safe to
// call once.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		next := s.expr.Next(time.Now())
		if next.IsZero() {
			log.Warn().Str("job", s.name).Msg("cron expression has no future activation, scheduler exiting")
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case now := <-timer.C:
			s.run(ctx, now)
		case <-s.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, now time.Time) {
	started := time.Now()
	if err := s.job(ctx, now); err != nil {
		log.Error().
			Err(err).
			Str("job", s.name).
			Dur("elapsed", time.Since(started)).
			Msg("scheduled job failed")
		return
	}
	log.Info().
		Str("job", s.name).
		Dur("elapsed", time.Since(started)).
		Msg("scheduled job completed")
}
