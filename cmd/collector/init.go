package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	auditfile "github.com/vshulcz/Gatecounter/internal/adapters/audit/file"
	remoteaudit "github.com/vshulcz/Gatecounter/internal/adapters/audit/remote"
	"github.com/vshulcz/Gatecounter/internal/adapters/observability"
	filerepo "github.com/vshulcz/Gatecounter/internal/adapters/repository/file"
	memrepo "github.com/vshulcz/Gatecounter/internal/adapters/repository/memory"
	mysqlrepo "github.com/vshulcz/Gatecounter/internal/adapters/repository/mysql"
	pgrepo "github.com/vshulcz/Gatecounter/internal/adapters/repository/postgres"
	"github.com/vshulcz/Gatecounter/internal/config"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/misc"
	"github.com/vshulcz/Gatecounter/internal/ports"
	"github.com/vshulcz/Gatecounter/internal/services/audit"
	"github.com/vshulcz/Gatecounter/pkg/observer"
)

// store is the selected record store plus whatever must be closed at exit.
type store struct {
	ports.SampleRepo
	kind  string
	close func() error
}

func (s store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// buildStore picks the store from the config: mysql:// DSN, any other DSN
// (Postgres), a journal file, or memory. Database failures are fatal.
func buildStore(ctx context.Context, cfg config.CollectorConfig, logger *zap.Logger) (store, error) {
	switch {
	case mysqlrepo.IsDSN(cfg.DSN):
		dsn, err := mysqlrepo.NormalizeDSN(cfg.DSN, cfg.DBPassword)
		if err != nil {
			return store{}, err
		}
		db, err := misc.RetryValue(ctx, misc.DefaultBackoff, isDialError, func() (*gorm.DB, error) {
			return openMySQL(dsn)
		})
		if err != nil {
			return store{}, fmt.Errorf("mysql init: %w", err)
		}
		logger.Info("mysql connected & migrated")
		return store{SampleRepo: mysqlrepo.New(db), kind: "mysql", close: closeGorm(db)}, nil

	case cfg.DSN != "":
		dsn, err := withPostgresPassword(cfg.DSN, cfg.DBPassword)
		if err != nil {
			return store{}, err
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return store{}, fmt.Errorf("postgres open: %w", err)
		}
		op := func() error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			return pgrepo.Migrate(db)
		}
		if err := misc.Retry(ctx, misc.DefaultBackoff, pgrepo.IsRetryable, op); err != nil {
			_ = db.Close()
			return store{}, fmt.Errorf("postgres init: %w", err)
		}
		logger.Info("db connected & migrated")
		return store{SampleRepo: pgrepo.New(db), kind: "postgres", close: db.Close}, nil

	case cfg.FilePath != "":
		r, err := filerepo.Open(cfg.FilePath)
		if err != nil {
			return store{}, err
		}
		logger.Info("journal store opened", zap.String("file", cfg.FilePath))
		return store{SampleRepo: r, kind: "file", close: r.Close}, nil

	default:
		logger.Warn("no DATABASE_DSN or FILE_STORAGE_PATH, samples are kept in memory only")
		return store{SampleRepo: memrepo.New(), kind: "memory"}, nil
	}
}

// withPostgresPassword injects password into a URL or key=value DSN.
func withPostgresPassword(dsn, password string) (string, error) {
	if password == "" {
		return dsn, nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, password)
		return u.String(), nil
	}
	quoted := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(password)
	return strings.TrimSpace(dsn) + " password='" + quoted + "'", nil
}

func openMySQL(dsn string) (*gorm.DB, error) {
	db, err := mysqlrepo.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := mysqlrepo.Migrate(db); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return db, nil
}

func closeGorm(db *gorm.DB) func() error {
	return func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

func isDialError(err error) bool {
	var op *net.OpError
	return errors.As(err, &op)
}

// passObservers wires metrics and the optional audit sinks behind one subject.
// The returned closer releases audit resources.
func passObservers(cfg config.CollectorConfig, reg prometheus.Registerer, logger *zap.Logger) (*observer.Subject[domain.PassReport], func() error, error) {
	subj := observer.NewSubject[domain.PassReport](observability.NewPassMetrics(reg))
	subj.SetErrorHandler(func(err error) {
		logger.Warn("pass observer failed", zap.Error(err))
	})

	closer := func() error { return nil }
	auditSubj := audit.NewSubject()
	auditSubj.SetErrorHandler(func(err error) {
		logger.Warn("audit delivery failed", zap.Error(err))
	})
	if cfg.AuditFile != "" {
		w := auditfile.New(cfg.AuditFile)
		auditSubj.Attach(w)
		closer = w.Close
	}
	if cfg.AuditURL != "" {
		rc, err := remoteaudit.New(cfg.AuditURL, nil)
		if err != nil {
			return nil, nil, err
		}
		auditSubj.Attach(rc)
	}
	if auditSubj.Len() > 0 {
		subj.Attach(audit.ReportObserver(auditSubj))
	}
	logger.Debug("pass observers attached", zap.Int("observers", subj.Len()), zap.Int("audit_sinks", auditSubj.Len()))
	return subj, closer, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
