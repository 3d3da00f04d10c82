package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/pvwatch/internal/ingest"
)

// Ticker runs a single poll tick.
type Ticker interface {
	Tick(ctx context.Context, state ingest.State) (ingest.State, ingest.Outcome, error)
}

// Options controls the loop.
type Options struct {
	// Schedule decides when the next tick starts, measured from the moment
	// the previous one finished.
	Schedule cron.Schedule
	// Iterations stops the loop after that many ticks. Zero runs until cancelled.
	Iterations int
	// OnTick is called after every tick with its outcome.
	OnTick func(ingest.Outcome, error)
}

// Scheduler drives the poll loop. Ticks run one at a time on a single goroutine.
type Scheduler struct {
	ticker Ticker
	opts   Options
	logger *logrus.Logger
	now    func() time.Time

	mu    sync.Mutex
	state ingest.State
	stop  context.CancelFunc
	done  chan struct{}
}

func NewScheduler(ticker Ticker, opts Options, logger *logrus.Logger) *Scheduler {
	if opts.Schedule == nil {
		opts.Schedule = cron.Every(time.Minute)
	}
	return &Scheduler{
		ticker: ticker,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// ParseSchedule builds a schedule from a cron spec. An empty spec means
// a fixed delay of interval between ticks.
func ParseSchedule(spec string, interval time.Duration) (cron.Schedule, error) {
	if spec == "" {
		if interval <= 0 {
			return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
		}
		return cron.Every(interval), nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Run executes ticks until the iteration count is reached or ctx is
// cancelled. Cancellation is observed between ticks; an in-flight tick is
// bounded by its own network timeouts.
func (s *Scheduler) Run(ctx context.Context) {
	for i := 1; ; i++ {
		if ctx.Err() != nil {
			s.logger.Info("poll loop cancelled")
			return
		}

		state, outcome, err := s.ticker.Tick(ctx, s.State())
		s.setState(state)

		entry := s.logger.WithFields(logrus.Fields{"iteration": i, "outcome": outcome})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Debug("tick finished")

		if s.opts.OnTick != nil {
			s.opts.OnTick(outcome, err)
		}

		if s.opts.Iterations > 0 && i >= s.opts.Iterations {
			s.logger.WithField("iterations", i).Info("poll loop finished")
			return
		}

		finished := s.now()
		wait := s.opts.Schedule.Next(finished).Sub(finished)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("poll loop cancelled")
			return
		case <-timer.C:
		}
	}
}

// Start runs the loop in the background until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.stop = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.Run(ctx)
	}()
}

// Stop cancels a loop started with Start and waits for the current tick to end.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

// State returns the poll state left by the latest tick.
func (s *Scheduler) State() ingest.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(state ingest.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
