package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vshulcz/Gatecounter/internal/adapters/fetcher/xmlhttp"
	"github.com/vshulcz/Gatecounter/internal/adapters/http/ginserver"
	"github.com/vshulcz/Gatecounter/internal/adapters/lock/flock"
	"github.com/vshulcz/Gatecounter/internal/config"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/services/audit"
	"github.com/vshulcz/Gatecounter/internal/services/poller"
	"github.com/vshulcz/Gatecounter/internal/telemetry"
	"github.com/vshulcz/Gatecounter/pkg/util"
)

const shutdownTimeout = 5 * time.Second

// run wires the collector and blocks until ctx is cancelled, or returns after
// one pass with -once. A nil error means exit status 0.
func run(ctx context.Context, args []string, out io.Writer, info util.BuildInfo) error {
	cfg, err := config.LoadCollectorConfig(args, out)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("collector starting", info.Fields()...)

	tel, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.OTelEnabled,
		ServiceName:      "gatecounter",
		TraceMode:        cfg.TraceMode,
		TraceSampleRatio: cfg.TraceSampleRatio,
		Logger:           logger.Named("trace"),
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = tel.Shutdown(sctx)
	}()

	st, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	reg := newRegistry()
	pub, closeAudit, err := passObservers(cfg, reg, logger)
	if err != nil {
		return fmt.Errorf("observers: %w", err)
	}
	defer func() { _ = closeAudit() }()

	policy, err := poller.NewWaitPolicy(cfg.WaitPolicy, cfg.PollInterval, cfg.Location)
	if err != nil {
		return err
	}

	gates := domain.GatesFromURLs(cfg.GateURLs)
	fetcher := xmlhttp.New(&http.Client{Timeout: cfg.FetchTimeout})
	sched := poller.NewScheduler(gates, fetcher, st, policy,
		poller.WithLogger(logger),
		poller.WithConcurrency(cfg.FetchConcurrency),
		poller.WithPublisher(pub),
		poller.WithTracer(tel.TracerProvider.Tracer("gatecounter/poller")),
	)
	locker := flock.New(cfg.LockDir)
	svc := poller.NewService(sched, locker, cfg.LockName, poller.WithServiceLogger(logger))

	logger.Info("collector configured",
		zap.Int("gates", len(gates)),
		zap.String("wait_policy", cfg.WaitPolicy),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("tz", cfg.Location.String()),
		zap.String("store", st.kind),
		zap.String("admin", cfg.Address),
		zap.Bool("once", cfg.Once),
	)

	if cfg.Once {
		return runOnce(ctx, svc, logger)
	}
	return serve(ctx, cfg, svc, st, locker, reg, logger)
}

func runOnce(ctx context.Context, svc *poller.Service, logger *zap.Logger) error {
	rep, err := svc.RunOnce(audit.WithTrigger(ctx, audit.TriggerManual))
	if err != nil {
		return fmt.Errorf("pass: %w", err)
	}
	logger.Info("pass complete",
		zap.String("pass_id", rep.ID),
		zap.Int("recorded", rep.Recorded()),
		zap.Int("failed", rep.Failed()),
	)
	return nil
}

// serve runs the scheduler loop and, when configured, the admin server until ctx ends.
func serve(ctx context.Context, cfg config.CollectorConfig, svc *poller.Service, st store,
	locker *flock.Locker, reg prometheus.Gatherer, logger *zap.Logger,
) error {
	// The loop takes the lock before the admin surface can run a manual pass.
	if err := svc.Start(ctx); err != nil {
		if !errors.Is(err, domain.ErrLockUnavailable) || cfg.Address == "" {
			return err
		}
		logger.Warn("another collector holds the lock, serving admin endpoints only", zap.Error(err))
	}

	var srv *http.Server
	srvErr := make(chan error, 1)
	if cfg.Address != "" {
		h := ginserver.NewHandler(svc, st,
			ginserver.WithGatherer(reg),
			ginserver.WithLockInfo(func() (any, error) { return locker.Holder(cfg.LockName) }),
		)
		srv = ginserver.NewServer(cfg.Address, h, cfg.AdminKey, logger)
		go func() {
			logger.Info("admin server listening", zap.String("addr", cfg.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()
	}

	if srv == nil && !svc.Running() {
		return nil
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-srvErr:
		logger.Error("admin server failed", zap.Error(runErr))
	}

	svc.Stop()
	shutdown(srv, logger)
	return runErr
}

func shutdown(srv *http.Server, logger *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("admin server shutdown", zap.Error(err))
	}
}
