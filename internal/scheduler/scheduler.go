package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Job is the work run on every tick. The context is cancelled when the
// scheduler stops or the run exceeds its timeout.
type Job func(ctx context.Context)

// Scheduler runs at most one recurring job. The first run happens one
// interval after Start.
type Scheduler struct {
	mu        sync.Mutex
	scheduler *gocron.Scheduler
	job       *gocron.Job
	cancel    context.CancelFunc
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	name      string
}

// New creates a new Scheduler. A nil logger discards output.
func New(name string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		name:    name,
		timeout: defaultTimeout,
		logger:  logger,
	}
}

// SetTimeout bounds each run. Zero or negative restores the default.
func (s *Scheduler) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		d = defaultTimeout
	}
	s.timeout = d
}

// Start schedules job every interval, replacing any job already scheduled.
func (s *Scheduler) Start(interval time.Duration, job Job) error {
	if interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	if job == nil {
		return errors.New("scheduler: job is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	timeout := s.timeout
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()

	j, err := sched.Every(interval).WaitForSchedule().Do(func() {
		s.logger.Debug("scheduler: running job", zap.String("job", s.name))

		runCtx, runCancel := context.WithTimeout(ctx, timeout)
		defer runCancel()
		job(runCtx)

		s.logger.Debug("scheduler: completed job", zap.String("job", s.name))
	})
	if err != nil {
		cancel()
		return err
	}

	sched.StartAsync()
	s.scheduler, s.job, s.cancel, s.interval = sched, j, cancel, interval
	s.logger.Info("scheduler: job scheduled", zap.String("job", s.name), zap.Duration("interval", interval))
	return nil
}

// Stop cancels the job. It is safe to call when nothing is scheduled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.scheduler == nil {
		return
	}
	s.cancel()
	s.scheduler.Stop()
	s.logger.Info("scheduler: job stopped", zap.String("job", s.name))
	s.scheduler, s.job, s.cancel, s.interval = nil, nil, nil, 0
}

// Active reports whether a job is scheduled.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler != nil
}

// Interval returns the interval of the scheduled job, or zero.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// NextRun returns when the job runs next.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return time.Time{}, false
	}
	return s.job.NextRun(), true
}
