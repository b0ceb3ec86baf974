package misc

import (
	"bytes"
	"sync"
)

// Resetter is implemented by values that can be cleared for reuse.
type Resetter interface {
	Reset()
}

// Pool is a typed sync.Pool that resets values on Put.
type Pool[T Resetter] struct {
	p sync.Pool
}

// NewPool builds a Pool; a nil newFn makes Get return the zero value.
func NewPool[T Resetter](newFn func() T) *Pool[T] {
	pl := &Pool[T]{}
	pl.p.New = func() any {
		if newFn != nil {
			return newFn()
		}
		var zero T
		return zero
	}
	return pl
}

// NewBufferPool returns a pool of byte buffers for reading response bodies.
func NewBufferPool() *Pool[*bytes.Buffer] {
	return NewPool(func() *bytes.Buffer { return new(bytes.Buffer) })
}

// Get takes a value from the pool.
func (pl *Pool[T]) Get() T {
	obj := pl.p.Get()
	if value, ok := obj.(T); ok {
		return value
	}
	var zero T
	return zero
}

// Put resets v and hands it back.
func (pl *Pool[T]) Put(v T) {
	v.Reset()
	pl.p.Put(v)
}
