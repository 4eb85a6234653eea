// Package refresh schedules proactive access-token refreshes: one pending
// task at a time, armed a few minutes before expiry, backing off on failure.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Leeway is how long before expiry a refresh is attempted.
	Leeway = 5 * time.Minute

	// RetryDelay is the delay after the first failed attempt.
	RetryDelay = 60 * time.Second

	// MaxRetryDelay caps the backoff.
	MaxRetryDelay = 16 * time.Minute

	defaultRequestTimeout = 30 * time.Second
)

// Task is one scheduled refresh. Fingerprint is the access token the task was
// armed for; a task whose fingerprint no longer matches the live session is
// stale.
type Task struct {
	Delay       time.Duration
	Retry       bool
	Fingerprint string
}

// NextDelay is the delay of the retry scheduled after task fails.
func NextDelay(task Task) time.Duration {
	if !task.Retry {
		return RetryDelay
	}
	return min(task.Delay*2, MaxRetryDelay)
}

// State of the scheduler.
type State int

const (
	Idle State = iota
	Scheduled
	Firing
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Firing:
		return "firing"
	default:
		return "idle"
	}
}

// Refresher obtains a new token pair for the session identified by
// fingerprint and installs it.
type Refresher interface {
	Refresh(ctx context.Context, fingerprint string) error
}

// SessionSource reports the fingerprint of the live session, empty when
// signed out.
type SessionSource interface {
	CurrentFingerprint() string
}

// Executor runs f on the serialized context.
type Executor func(f func())

type Scheduler struct {
	refresher Refresher
	source    SessionSource
	clock     Clock
	appState  AppState
	execute   Executor
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu         sync.Mutex
	state      State
	timer      Timer
	generation uint64
	closed     bool
}

type Option func(*Scheduler)

func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithAppState(appState AppState) Option {
	return func(s *Scheduler) {
		s.appState = appState
	}
}

// WithExecutor sets where fire handling runs, normally the auth serializer.
func WithExecutor(execute Executor) Option {
	return func(s *Scheduler) {
		s.execute = execute
	}
}

// WithRequestTimeout bounds each refresh call.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = timeout
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func New(refresher Refresher, source SessionSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		refresher: refresher,
		source:    source,
		clock:     SystemClock(),
		appState:  foreground{},
		execute:   func(f func()) { f() },
		timeout:   defaultRequestTimeout,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "refresh").Logger()
	return s
}

// ScheduleForExpiry arms a refresh Leeway before expiry, immediately if that
// moment has passed.
func (s *Scheduler) ScheduleForExpiry(fingerprint string, expiry time.Time) {
	delay := max(expiry.Sub(s.clock.Now())-Leeway, 0)
	s.Schedule(Task{Delay: delay, Fingerprint: fingerprint})
}

// Schedule replaces any pending task with task.
func (s *Scheduler) Schedule(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopLocked()
	s.generation++
	generation := s.generation
	s.state = Scheduled
	s.timer = s.clock.AfterFunc(task.Delay, func() {
		s.execute(func() { s.fire(generation, task) })
	})
	s.logger.Debug().Dur("delay", task.Delay).Bool("retry", task.Retry).Msg("refresh scheduled")
}

// Cancel drops the pending task, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.generation++
	s.state = Idle
}

// Close cancels the pending task and ignores later schedules.
func (s *Scheduler) Close() {
	s.Cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// fire runs on the executor.
func (s *Scheduler) fire(generation uint64, task Task) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil

	if s.source.CurrentFingerprint() != task.Fingerprint {
		s.state = Idle
		s.mu.Unlock()
		s.logger.Debug().Msg("refresh task superseded")
		return
	}
	if s.appState.IsBackground() {
		s.state = Idle
		s.mu.Unlock()
		s.metrics.Refresh(metrics.ResultSkipped)
		s.logger.Debug().Msg("refresh skipped while in background")
		return
	}
	s.state = Firing
	s.mu.Unlock()

	go s.run(generation, task)
}

func (s *Scheduler) run(generation uint64, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.refresher.Refresh(ctx, task.Fingerprint)
	if err == nil {
		s.metrics.Refresh(metrics.ResultSuccess)
		s.settle(generation)
		return
	}

	s.metrics.Refresh(metrics.ResultFailure)
	next := Task{Delay: NextDelay(task), Retry: true, Fingerprint: task.Fingerprint}
	s.logger.Warn().Err(err).Dur("retry_in", next.Delay).Msg("token refresh failed")

	s.mu.Lock()
	current := generation == s.generation
	s.mu.Unlock()
	if current {
		s.Schedule(next)
	}
}

// settle returns to Idle unless a newer task was scheduled meanwhile.
func (s *Scheduler) settle(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation == s.generation {
		s.state = Idle
	}
}

func (s *Scheduler) String() string {
	return fmt.Sprintf("refresh.Scheduler(%s)", s.State())
}
