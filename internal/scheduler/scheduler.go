package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled fire time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Specs are six-field cron expressions (seconds first).
	Specs      []string
	Location   *time.Location
	RunOnStart bool
}

// Scheduler fires a tick on a set of cron schedules. Overlapping fires are
// skipped while a tick is still running.
type Scheduler struct {
	opts      Options
	schedules []cron.Schedule
	logger    zerolog.Logger
}

var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates the cron specs and constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if len(opts.Specs) == 0 {
		return nil, fmt.Errorf("scheduler requires at least one cron spec")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	schedules := make([]cron.Schedule, 0, len(opts.Specs))
	for _, spec := range opts.Specs {
		sched, err := specParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
		}
		schedules = append(schedules, sched)
	}

	return &Scheduler{
		opts:      opts,
		schedules: schedules,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next returns the earliest fire time after t across all specs.
func (s *Scheduler) Next(t time.Time) time.Time {
	t = t.In(s.opts.Location)
	var next time.Time
	for _, sched := range s.schedules {
		candidate := sched.Next(t)
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next
}

// Run blocks, invoking tick on every fire time until ctx is cancelled. A
// running tick is allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	adapter := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithParser(specParser),
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter)),
	)

	job := cron.FuncJob(func() {
		at := time.Now().In(s.opts.Location)
		s.logger.Info().Time("at", at).Msg("executing scheduled tick")
		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}
	})
	// One skip guard shared by every spec, so fires from different specs
	// never overlap either.
	shared := cron.NewChain(cron.SkipIfStillRunning(adapter)).Then(job)
	for _, sched := range s.schedules {
		c.Schedule(sched, shared)
	}

	var startup sync.WaitGroup
	if s.opts.RunOnStart {
		startup.Add(1)
		go func() {
			defer startup.Done()
			shared.Run()
		}()
	}

	c.Start()
	s.logger.Info().Time("next", s.Next(time.Now())).Int("specs", len(s.schedules)).Msg("scheduler started")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	startup.Wait()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
