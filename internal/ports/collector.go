package ports

import (
	"context"

	"github.com/vshulcz/Gatecounter/internal/domain"
)

// SampleFetcher reads the current counters from a gate sensor.
type SampleFetcher interface {
	Fetch(ctx context.Context, url string) (domain.RawSample, error)
}

// Locker provides cross-process mutual exclusion keyed by name.
type Locker interface {
	// Acquire never blocks; it returns domain.ErrLockUnavailable when another holder exists.
	Acquire(name string) error
	Release(name string)
}
