package ports

import (
	"context"

	"github.com/vshulcz/Gatecounter/internal/domain"
)

// SampleRepo is the append-only time-series store of gate samples.
type SampleRepo interface {
	// LastSample returns the most recent row for the gate or domain.ErrNotFound.
	LastSample(ctx context.Context, gate string) (domain.GateSample, error)
	InsertSample(ctx context.Context, s domain.GateSample) error
	Ping(ctx context.Context) error
}
