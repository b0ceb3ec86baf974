// Package poller runs the gate polling loop: wait, fetch every gate, difference
// against the last stored row and append the new sample.
package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/ports"
	"github.com/vshulcz/Gatecounter/pkg/observer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCooldown is the pause after a pass aborted by a panic.
const DefaultCooldown = 60 * time.Second

// DefaultPublishTimeout bounds report delivery to observers after a pass. It
// stays below DefaultJoinTimeout so a slow observer cannot stall Stop.
const DefaultPublishTimeout = 2 * time.Second

const tracerName = "github.com/vshulcz/Gatecounter/internal/services/poller"

// State is the scheduler's position in its loop.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Scheduler owns the gate list and executes polling passes.
type Scheduler struct {
	fetcher ports.SampleFetcher
	repo    ports.SampleRepo
	policy  WaitPolicy
	pub     observer.Publisher[domain.PassReport]
	log     *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
	last    *domain.PassReport
	gates   []domain.Gate

	cooldown       time.Duration
	publishTimeout time.Duration
	concurrency    int

	passMu sync.Mutex
	mu     sync.RWMutex
	state  State
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(s *Scheduler) { s.cooldown = d }
}

// WithConcurrency bounds concurrent fetches. Values below 2 keep passes sequential.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) { s.concurrency = n }
}

// WithPublishTimeout caps the time observers get for one report.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithPublisher receives a report after every pass.
func WithPublisher(p observer.Publisher[domain.PassReport]) Option {
	return func(s *Scheduler) { s.pub = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewScheduler copies gates; the list is fixed for the scheduler's lifetime.
func NewScheduler(gates []domain.Gate, f ports.SampleFetcher, r ports.SampleRepo, p WaitPolicy, opts ...Option) *Scheduler {
	s := &Scheduler{
		gates:          slices.Clone(gates),
		fetcher:        f,
		repo:           r,
		policy:         p,
		log:            zap.NewNop(),
		tracer:         otel.Tracer(tracerName),
		now:            time.Now,
		cooldown:       DefaultCooldown,
		publishTimeout: DefaultPublishTimeout,
		concurrency:    1,
	}
	if s.policy == nil {
		s.policy = HourlyPolicy{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Gates returns a copy of the configured gates.
func (s *Scheduler) Gates() []domain.Gate { return slices.Clone(s.gates) }

func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// LastReport returns the report of the most recent pass, if any.
func (s *Scheduler) LastReport() (domain.PassReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return domain.PassReport{}, false
	}
	return *s.last, true
}

// Run loops until ctx is cancelled: wait per policy, then one pass. A pass
// aborted by a panic is followed by the cool-down. Run returns nil on
// cancellation and immediately when no gates are configured.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.gates) == 0 {
		s.log.Info("no gate URLs configured, polling disabled")
		s.setState(StateStopped)
		return nil
	}
	defer s.setState(StateStopped)

	s.log.Info("polling loop started", zap.Int("gates", len(s.gates)))
	for {
		s.setState(StateWaiting)
		wait := s.policy.Next(s.now())
		s.log.Info("waiting for next pass", zap.Duration("wait", wait))
		if !sleep(ctx, wait) {
			s.log.Info("polling loop stopped")
			return nil
		}

		_, err := s.RunOnce(ctx)
		s.setState(StateIdle)
		var be *domain.BatchError
		if errors.As(err, &be) {
			s.log.Warn("cooling down after aborted pass", zap.Duration("cooldown", s.cooldown))
			s.setState(StateWaiting)
			if !sleep(ctx, s.cooldown) {
				s.log.Info("polling loop stopped")
				return nil
			}
		}
		if ctx.Err() != nil {
			s.log.Info("polling loop stopped")
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RunOnce executes exactly one pass over every gate. Per-gate failures are
// reported in the outcomes; the error is a *domain.BatchError only when the
// pass itself was aborted. Passes never overlap.
func (s *Scheduler) RunOnce(ctx context.Context) (rep domain.PassReport, err error) {
	if len(s.gates) == 0 {
		s.log.Info("no gate URLs configured, nothing to poll")
		return domain.PassReport{}, nil
	}

	s.passMu.Lock()
	defer s.passMu.Unlock()

	prev := s.State()
	s.setState(StatePolling)
	defer s.setState(prev)

	rep = domain.PassReport{ID: uuid.NewString(), StartedAt: s.now()}
	ctx, span := s.tracer.Start(ctx, "poller.pass", trace.WithAttributes(
		attribute.String("pass.id", rep.ID),
		attribute.Int("pass.gates", len(s.gates)),
	))
	defer span.End()

	log := s.log.With(zap.String("pass_id", rep.ID))
	defer func() {
		if r := recover(); r != nil {
			rep.Err = &domain.BatchError{PassID: rep.ID, Cause: fmt.Errorf("panic: %v", r)}
			err = rep.Err
			log.Error("polling pass aborted",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			span.RecordError(rep.Err)
			span.SetStatus(codes.Error, "pass aborted")
		}
		rep.FinishedAt = s.now()
		span.SetAttributes(
			attribute.Int("pass.recorded", rep.Recorded()),
			attribute.Int("pass.failed", rep.Failed()),
		)
		s.finish(ctx, rep)
	}()

	log.Info("polling pass started", zap.Int("gates", len(s.gates)))
	if s.concurrency > 1 {
		s.passConcurrent(ctx, &rep)
	} else {
		s.passSequential(ctx, &rep)
	}
	log.Info("polling pass finished",
		zap.Int("recorded", rep.Recorded()),
		zap.Int("failed", rep.Failed()),
		zap.Duration("took", s.now().Sub(rep.StartedAt)),
	)
	return rep, nil
}

func (s *Scheduler) finish(ctx context.Context, rep domain.PassReport) {
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	if s.pub == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	s.pub.Publish(pctx, rep)
}

type fetched struct {
	gate     domain.Gate
	started  time.Time
	at       time.Time
	err      error
	panicVal any
	raw      domain.RawSample
	panicked bool
}

func (s *Scheduler) passSequential(ctx context.Context, rep *domain.PassReport) {
	work := context.WithoutCancel(ctx)
	for _, g := range s.gates {
		if ctx.Err() != nil {
			s.log.Info("pass interrupted by shutdown", zap.String("pass_id", rep.ID), zap.Int("done", len(rep.Outcomes)))
			return
		}
		f := s.fetch(work, g)
		if f.panicked {
			panic(f.panicVal)
		}
		rep.Outcomes = append(rep.Outcomes, s.record(work, f))
	}
}

// passConcurrent fetches on a bounded errgroup and records results on the
// calling goroutine in completion order.
func (s *Scheduler) passConcurrent(ctx context.Context, rep *domain.PassReport) {
	work := context.WithoutCancel(ctx)
	results := make(chan fetched, len(s.gates))

	go func() {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, gate := range s.gates {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- s.fetch(work, gate)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for f := range results {
		if f.panicked {
			panic(f.panicVal)
		}
		rep.Outcomes = append(rep.Outcomes, s.record(work, f))
	}
	if ctx.Err() != nil && len(rep.Outcomes) < len(s.gates) {
		s.log.Info("pass interrupted by shutdown", zap.String("pass_id", rep.ID), zap.Int("done", len(rep.Outcomes)))
	}
}

func (s *Scheduler) fetch(ctx context.Context, g domain.Gate) (f fetched) {
	f = fetched{gate: g, started: s.now()}
	ctx, span := s.tracer.Start(ctx, "poller.fetch", trace.WithAttributes(
		attribute.String("gate.name", g.Name),
		attribute.String("gate.url", g.URL),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			f.panicked = true
			f.panicVal = r
		}
	}()

	f.raw, f.err = s.fetcher.Fetch(ctx, g.URL)
	f.at = s.now()
	if f.err != nil {
		span.RecordError(f.err)
		span.SetStatus(codes.Error, "fetch failed")
	}
	return f
}

func (s *Scheduler) record(ctx context.Context, f fetched) (out domain.GateOutcome) {
	g := f.gate
	out.Gate = g
	defer func() { out.Duration = s.now().Sub(f.started) }()
	log := s.log.With(zap.String("gate", g.Name), zap.String("url", g.URL))

	if f.err != nil {
		out.Stage, out.Err = domain.StageFetch, f.err
		log.Warn("gate fetch failed", zap.Error(f.err))
		return out
	}

	ctx, span := s.tracer.Start(ctx, "poller.record", trace.WithAttributes(attribute.String("gate.name", g.Name)))
	defer span.End()

	var prev *domain.GateSample
	last, err := s.repo.LastSample(ctx, g.Name)
	switch {
	case err == nil:
		prev = &last
	case errors.Is(err, domain.ErrNotFound):
	default:
		out.Stage, out.Err = domain.StageRead, &domain.StoreError{Op: "read", Gate: g.Name, Err: err}
		log.Error("reading last sample failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return out
	}

	ts := f.at
	if prev != nil && ts.Before(prev.Timestamp) {
		ts = prev.Timestamp
	}
	sample := domain.NewSample(ts, g.Name, f.raw, domain.ComputeDeltas(f.raw, prev))
	if err := s.repo.InsertSample(ctx, sample); err != nil {
		out.Stage, out.Err = domain.StageWrite, &domain.StoreError{Op: "write", Gate: g.Name, Err: err}
		log.Error("storing sample failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return out
	}

	out.Sample = &sample
	log.Info("gate sample recorded",
		zap.Time("timestamp", sample.Timestamp),
		zap.Int64("alarm", sample.AlarmCount),
		zap.Int64("alarm_diff", sample.AlarmDiff),
		zap.Int64("in", sample.IncomingCount),
		zap.Int64("in_diff", sample.IncomingDiff),
		zap.Int64("out", sample.OutgoingCount),
		zap.Int64("out_diff", sample.OutgoingDiff),
		zap.Bool("first", prev == nil),
	)
	return out
}
