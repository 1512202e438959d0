package repair

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// Runner is a single reconciliation pass.
type Runner interface {
	Run(ctx context.Context) (*Summary, error)
}

// Scheduler runs the repair pass on a fixed interval inside the server.
// Passes never overlap: the next tick is only read after the previous pass returns.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		log:      logger.Named("repair.scheduler"),
	}
}

// Start begins ticking. It is a no-op when the interval is not positive or
// the scheduler is already running.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.log.Info("scheduled repair disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	s.log.Info("scheduled repair started", zap.Duration("interval", s.interval))
}

// Stop cancels any pass in flight and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("scheduled repair stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// failures are logged by the pass itself
			_, _ = s.runner.Run(ctx)
		}
	}
}
