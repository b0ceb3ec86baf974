// Package memory implements an in-memory gate sample repository.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/ports"
)

// Repo keeps every gate's rows in memory with coarse-grained RW locking.
type Repo struct {
	history map[string][]domain.GateSample
	mu      sync.RWMutex
}

var _ ports.SampleRepo = (*Repo)(nil)

// New returns an empty in-memory repository.
func New() *Repo {
	return &Repo{history: make(map[string][]domain.GateSample)}
}

// LastSample returns the row with the latest timestamp or domain.ErrNotFound.
func (r *Repo) LastSample(_ context.Context, gate string) (domain.GateSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := r.history[gate]
	if len(rows) == 0 {
		return domain.GateSample{}, domain.ErrNotFound
	}
	return rows[len(rows)-1], nil
}

// InsertSample appends s, keeping each gate's rows ordered by timestamp.
func (r *Repo) InsertSample(_ context.Context, s domain.GateSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.history[s.GateName]
	i := len(rows)
	for i > 0 && rows[i-1].Timestamp.After(s.Timestamp) {
		i--
	}
	r.history[s.GateName] = slices.Insert(rows, i, s)
	return nil
}

// Samples copies the stored rows of gate, oldest first.
func (r *Repo) Samples(gate string) []domain.GateSample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.history[gate])
}

// Len reports the total number of stored rows.
func (r *Repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rows := range r.history {
		n += len(rows)
	}
	return n
}

// Ping always succeeds.
func (*Repo) Ping(context.Context) error {
	return nil
}
