// Package file keeps gate samples in an append-only JSON-lines journal.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/ports"
)

// Repo appends every sample to the journal and indexes the newest row per gate.
type Repo struct {
	f    *os.File
	last map[string]domain.GateSample
	path string
	mu   sync.Mutex
}

var _ ports.SampleRepo = (*Repo)(nil)

// Open opens or creates the journal at path and replays it. A trailing line
// without a newline is a torn write and is cut off.
func Open(path string) (*Repo, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	r := &Repo{f: f, path: path, last: make(map[string]domain.GateSample)}
	if err := r.replay(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) replay() error {
	br := bufio.NewReader(r.f)
	var (
		offset int64
		lineNo int
	)
	for {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				if terr := r.f.Truncate(offset); terr != nil {
					return fmt.Errorf("truncate torn line: %w", terr)
				}
			}
			break
		}
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		lineNo++
		offset += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var s domain.GateSample
		if err := json.Unmarshal(line, &s); err != nil {
			return fmt.Errorf("decode journal line %d: %w", lineNo, err)
		}
		r.index(s)
	}
	if _, err := r.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek journal: %w", err)
	}
	return nil
}

func (r *Repo) index(s domain.GateSample) {
	if prev, ok := r.last[s.GateName]; ok && s.Timestamp.Before(prev.Timestamp) {
		return
	}
	r.last[s.GateName] = s
}

// LastSample returns the newest indexed row for gate or domain.ErrNotFound.
func (r *Repo) LastSample(_ context.Context, gate string) (domain.GateSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.last[gate]
	if !ok {
		return domain.GateSample{}, domain.ErrNotFound
	}
	return s, nil
}

// InsertSample appends s and fsyncs the journal.
func (r *Repo) InsertSample(_ context.Context, s domain.GateSample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return os.ErrClosed
	}
	if _, err := r.f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	r.index(s)
	return nil
}

// Ping reports whether the journal is still open and present on disk.
func (r *Repo) Ping(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return os.ErrClosed
	}
	if _, err := os.Stat(r.path); err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	return nil
}

// Close closes the journal. Further inserts fail with os.ErrClosed.
func (r *Repo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
