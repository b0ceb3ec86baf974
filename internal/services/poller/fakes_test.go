package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vshulcz/Gatecounter/internal/adapters/repository/memory"
	"github.com/vshulcz/Gatecounter/internal/domain"
)

type fetchResult struct {
	err error
	raw domain.RawSample
}

func ok(alarm, in, out int64) fetchResult {
	return fetchResult{raw: domain.RawSample{Alarm: alarm, Incoming: in, Outgoing: out}}
}

func failStatus(url string, code int) fetchResult {
	return fetchResult{err: &domain.FetchError{Kind: domain.ErrBadStatus, URL: url, Status: code}}
}

func failParse(url string) fetchResult {
	return fetchResult{err: &domain.FetchError{Kind: domain.ErrParseFailure, URL: url, Err: errors.New("count1: missing element")}}
}

// scriptFetcher replays queued results per URL; an exhausted queue repeats its last entry.
type scriptFetcher struct {
	script   map[string][]fetchResult
	hook     func(ctx context.Context, url string)
	calls    map[string]int
	delay    time.Duration
	mu       sync.Mutex
	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func newScriptFetcher() *scriptFetcher {
	return &scriptFetcher{script: map[string][]fetchResult{}, calls: map[string]int{}}
}

func (f *scriptFetcher) on(url string, rs ...fetchResult) *scriptFetcher {
	f.script[url] = append(f.script[url], rs...)
	return f
}

func (f *scriptFetcher) Fetch(ctx context.Context, url string) (domain.RawSample, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.hook != nil {
		f.hook(ctx, url)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	q := f.script[url]
	if len(q) == 0 {
		return domain.RawSample{}, errors.New("no script for " + url)
	}
	r := q[0]
	if len(q) > 1 {
		f.script[url] = q[1:]
	}
	return r.raw, r.err
}

func (f *scriptFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// countingRepo wraps the memory repo and can inject failures.
type countingRepo struct {
	*memory.Repo
	readErr  error
	writeErr error
	reads    atomic.Int32
	writes   atomic.Int32
}

func newCountingRepo() *countingRepo {
	return &countingRepo{Repo: memory.New()}
}

func (r *countingRepo) LastSample(ctx context.Context, gate string) (domain.GateSample, error) {
	r.reads.Add(1)
	if r.readErr != nil {
		return domain.GateSample{}, r.readErr
	}
	return r.Repo.LastSample(ctx, gate)
}

func (r *countingRepo) InsertSample(ctx context.Context, s domain.GateSample) error {
	r.writes.Add(1)
	if r.writeErr != nil {
		return r.writeErr
	}
	return r.Repo.InsertSample(ctx, s)
}

type fakeLocker struct {
	held     map[string]bool
	busy     bool
	acquires int
	releases int
	mu       sync.Mutex
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

func (l *fakeLocker) Acquire(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy || l.held[name] {
		return domain.ErrLockUnavailable
	}
	l.acquires++
	l.held[name] = true
	return nil
}

func (l *fakeLocker) Release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		l.releases++
		delete(l.held, name)
	}
}

func (l *fakeLocker) Held(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[name]
}

func (l *fakeLocker) Counts() (acquires, releases int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquires, l.releases
}

// stepClock advances by step on every call.
type stepClock struct {
	t    time.Time
	step time.Duration
	mu   sync.Mutex
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
