// Package mysql stores gate samples in MySQL or MariaDB through gorm.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/ports"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Scheme prefixes DSNs that select this adapter.
const Scheme = "mysql://"

type gateCountRow struct {
	Timestamp     time.Time `gorm:"column:timestamp;not null;index:idx_gate_ts,priority:2,sort:desc"`
	GateName      string    `gorm:"column:gate_name;size:64;not null;index:idx_gate_ts,priority:1"`
	AlarmCount    int64     `gorm:"column:alarm_count;not null"`
	AlarmDiff     int64     `gorm:"column:alarm_diff;not null"`
	IncomingCount int64     `gorm:"column:incoming_patrons_count;not null"`
	IncomingDiff  int64     `gorm:"column:incoming_diff;not null"`
	OutgoingCount int64     `gorm:"column:outgoing_patrons_count;not null"`
	OutgoingDiff  int64     `gorm:"column:outgoing_diff;not null"`
}

func (gateCountRow) TableName() string { return "lib_gate_counts" }

func rowFromSample(s domain.GateSample) gateCountRow {
	return gateCountRow{
		Timestamp:     s.Timestamp,
		GateName:      s.GateName,
		AlarmCount:    s.AlarmCount,
		AlarmDiff:     s.AlarmDiff,
		IncomingCount: s.IncomingCount,
		IncomingDiff:  s.IncomingDiff,
		OutgoingCount: s.OutgoingCount,
		OutgoingDiff:  s.OutgoingDiff,
	}
}

func (r gateCountRow) sample() domain.GateSample {
	return domain.GateSample{
		Timestamp:     r.Timestamp,
		GateName:      r.GateName,
		AlarmCount:    r.AlarmCount,
		AlarmDiff:     r.AlarmDiff,
		IncomingCount: r.IncomingCount,
		IncomingDiff:  r.IncomingDiff,
		OutgoingCount: r.OutgoingCount,
		OutgoingDiff:  r.OutgoingDiff,
	}
}

// Repo is a gorm-backed ports.SampleRepo.
type Repo struct {
	db *gorm.DB
}

var _ ports.SampleRepo = (*Repo)(nil)

// New wraps an open gorm handle.
func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// IsDSN reports whether dsn selects the MySQL adapter.
func IsDSN(dsn string) bool {
	return strings.HasPrefix(strings.ToLower(dsn), Scheme)
}

// NormalizeDSN strips the scheme, forces time parsing in UTC and injects
// password when it is non-empty.
func NormalizeDSN(dsn, password string) (string, error) {
	raw := dsn
	if IsDSN(raw) {
		raw = raw[len(Scheme):]
	}
	cfg, err := mysqldrv.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if password != "" {
		cfg.Passwd = password
	}
	return cfg.FormatDSN(), nil
}

// Open connects using a DSN already passed through NormalizeDSN.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

// Migrate creates the table and index when missing.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&gateCountRow{}); err != nil {
		return fmt.Errorf("error performing database migration: %w", err)
	}
	return nil
}

// LastSample returns the newest row for gate or domain.ErrNotFound.
func (r *Repo) LastSample(ctx context.Context, gate string) (domain.GateSample, error) {
	var row gateCountRow
	err := r.db.WithContext(ctx).
		Where("gate_name = ?", gate).
		Order("`timestamp` DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.GateSample{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.GateSample{}, err
	}
	return row.sample(), nil
}

// InsertSample appends one row. Writes are not retried.
func (r *Repo) InsertSample(ctx context.Context, s domain.GateSample) error {
	row := rowFromSample(s)
	return r.db.WithContext(ctx).Create(&row).Error
}

// Ping checks the underlying connection pool.
func (r *Repo) Ping(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not configured")
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
