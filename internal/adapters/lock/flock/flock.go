//go:build unix

// Package flock provides cross-process exclusion with advisory file locks.
package flock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/ports"
	"golang.org/x/sys/unix"
)

const maxAcquireAttempts = 3

// Locker holds flock(2) locks on <dir>/<name>.lock files.
type Locker struct {
	held map[string]*os.File
	dir  string
	mu   sync.Mutex
}

var _ ports.Locker = (*Locker)(nil)

// New returns a Locker rooted at dir. An empty dir means os.TempDir().
func New(dir string) *Locker {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Locker{dir: dir, held: make(map[string]*os.File)}
}

// Path returns the lock file path for name.
func (l *Locker) Path(name string) string {
	return filepath.Join(l.dir, name+".lock")
}

// Acquire takes the named lock without blocking. It returns
// domain.ErrLockUnavailable if any holder exists, including this Locker.
func (l *Locker) Acquire(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return domain.ErrLockUnavailable
	}

	path := l.Path(name)
	for range maxAcquireAttempts {
		f, err := tryLock(path)
		if err != nil {
			return err
		}
		if f == nil {
			// the previous holder unlinked the file while we waited on it
			continue
		}
		if err := writePID(f); err != nil {
			_ = os.Remove(path)
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			_ = f.Close()
			return err
		}
		l.held[name] = f
		return nil
	}
	return domain.ErrLockUnavailable
}

// tryLock returns (nil, nil) when the locked file is no longer the one at path.
func tryLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, domain.ErrLockUnavailable
		}
		return nil, fmt.Errorf("flock: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat lock file: %w", err)
	}
	pi, err := os.Stat(path)
	if err != nil || !os.SameFile(fi, pi) {
		_ = f.Close()
		return nil, nil
	}
	return f, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte("PID: "+strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// Release drops the named lock. The file is unlinked while the lock is still
// held, then unlocked and closed. Releasing an unheld name is a no-op.
func (l *Locker) Release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.held[name]
	if !ok {
		return
	}
	delete(l.held, name)
	_ = os.Remove(l.Path(name))
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID   int32 `json:"pid"`
	Alive bool  `json:"alive"`
	Held  bool  `json:"held_by_self"`
}

// Holder reads the PID written by the current holder of name. It returns
// os.ErrNotExist when no lock file is present.
func (l *Locker) Holder(name string) (Holder, error) {
	l.mu.Lock()
	_, self := l.held[name]
	l.mu.Unlock()

	b, err := os.ReadFile(l.Path(name))
	if err != nil {
		return Holder{}, err
	}
	pid, err := parsePID(string(b))
	if err != nil {
		return Holder{}, err
	}
	alive, err := process.PidExists(pid)
	if err != nil {
		return Holder{}, fmt.Errorf("check pid %d: %w", pid, err)
	}
	return Holder{PID: pid, Alive: alive, Held: self}, nil
}

func parsePID(s string) (int32, error) {
	v, ok := strings.CutPrefix(strings.TrimSpace(s), "PID:")
	if !ok {
		return 0, fmt.Errorf("malformed lock file %q", s)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed pid: %w", err)
	}
	return int32(n), nil
}
