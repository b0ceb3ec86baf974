package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/ports"
	"go.uber.org/zap"
)

// DefaultJoinTimeout bounds how long Stop waits for the loop to exit.
const DefaultJoinTimeout = 5 * time.Second

// Service runs a Scheduler in the background while holding the named
// cross-process lock.
type Service struct {
	sched    *Scheduler
	locker   ports.Locker
	log      *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	lockName string

	joinTimeout time.Duration
	mu          sync.Mutex
	running     bool
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithJoinTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.joinTimeout = d }
}

// NewService binds sched to the lock called lockName.
func NewService(sched *Scheduler, locker ports.Locker, lockName string, opts ...ServiceOption) *Service {
	s := &Service{
		sched:       sched,
		locker:      locker,
		lockName:    lockName,
		log:         zap.NewNop(),
		joinTimeout: DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the polling loop. It is a no-op when already running or when
// no gates are configured, and returns domain.ErrLockUnavailable (wrapped)
// when another process holds the lock. The lock is released when the loop ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Info("collector already running")
		return nil
	}
	if len(s.sched.Gates()) == 0 {
		s.log.Info("no gate URLs configured, collector disabled")
		return nil
	}
	if err := s.locker.Acquire(s.lockName); err != nil {
		return fmt.Errorf("acquire lock %q: %w", s.lockName, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running, s.cancel, s.done = true, cancel, done

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		defer s.locker.Release(s.lockName)
		defer cancel()

		if err := s.sched.Run(runCtx); err != nil {
			s.log.Error("polling loop exited", zap.Error(err))
		}
	}()
	s.log.Info("collector started", zap.String("lock", s.lockName), zap.Int("gates", len(s.sched.Gates())))
	return nil
}

// Stop cancels the loop and waits up to the join timeout for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	t := time.NewTimer(s.joinTimeout)
	defer t.Stop()
	select {
	case <-done:
		s.log.Info("collector stopped")
	case <-t.C:
		s.log.Warn("polling loop did not exit in time", zap.Duration("timeout", s.joinTimeout))
	}
}

// Running reports whether the background loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce performs one pass now. Outside a running loop the lock is held for
// the duration of the pass.
func (s *Service) RunOnce(ctx context.Context) (domain.PassReport, error) {
	if len(s.sched.Gates()) == 0 {
		s.log.Info("no gate URLs configured, nothing to poll")
		return domain.PassReport{}, nil
	}
	if !s.Running() {
		if err := s.locker.Acquire(s.lockName); err != nil {
			return domain.PassReport{}, fmt.Errorf("acquire lock %q: %w", s.lockName, err)
		}
		defer s.locker.Release(s.lockName)
	}
	return s.sched.RunOnce(ctx)
}

// Status is a point-in-time view for diagnostics.
type Status struct {
	LastPass *PassSummary  `json:"last_pass,omitempty"`
	State    string        `json:"state"`
	Gates    []domain.Gate `json:"gates"`
	Running  bool          `json:"running"`
}

// PassSummary is the JSON form of a domain.PassReport.
type PassSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	ID         string        `json:"id"`
	Error      string        `json:"error,omitempty"`
	Gates      []GateSummary `json:"gates"`
	Recorded   int           `json:"recorded"`
	Failed     int           `json:"failed"`
}

// GateSummary is one gate's line in a PassSummary.
type GateSummary struct {
	Sample *domain.GateSample `json:"sample,omitempty"`
	Gate   string             `json:"gate"`
	Stage  string             `json:"stage,omitempty"`
	Error  string             `json:"error,omitempty"`
	OK     bool               `json:"ok"`
}

// Summarize converts a report for JSON output.
func Summarize(rep domain.PassReport) PassSummary {
	ps := PassSummary{
		ID:         rep.ID,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Recorded:   rep.Recorded(),
		Failed:     rep.Failed(),
		Gates:      make([]GateSummary, 0, len(rep.Outcomes)),
	}
	if rep.Err != nil {
		ps.Error = rep.Err.Error()
	}
	for _, o := range rep.Outcomes {
		gs := GateSummary{Gate: o.Gate.Name, OK: o.OK(), Sample: o.Sample}
		if o.Err != nil {
			gs.Stage = string(o.Stage)
			gs.Error = o.Err.Error()
		}
		ps.Gates = append(ps.Gates, gs)
	}
	return ps
}

func (s *Service) Status() Status {
	st := Status{
		State:   s.sched.State().String(),
		Running: s.Running(),
		Gates:   s.sched.Gates(),
	}
	if rep, ok := s.sched.LastReport(); ok {
		ps := Summarize(rep)
		st.LastPass = &ps
	}
	return st
}
