// Package core provides the cooperative job runtime shared by every
// contribution processor: a single-assignment Future, the ResumableJob
// contract, and the JobStore that persists and resumes job state.
package core

import "sync"

// Future is a single-assignment value pipe. It is produced by a job step
// that issues I/O and is resolved exactly once, either directly or through
// Then/Map chaining. A Future must not be shared across goroutines that
// race to resolve it; only one caller ever calls Resolve.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    T
	resolved bool
	waiters  []func(T)
}

// NewFuture returns an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns an already-resolved Future, mirroring Future::Completed
// in the source runtime.
func Completed[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Resolve assigns the Future's value exactly once and runs any continuations
// registered via Then/Map, in registration order.
func (f *Future[T]) Resolve(v T) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return
	}
	f.value = v
	f.resolved = true
	waiters := f.waiters
	f.waiters = nil
	close(f.done)
	f.mu.Unlock()

	for _, w := range waiters {
		w(v)
	}
}

// Wait blocks until the Future resolves and returns its value. It exists for
// tests and for the rare synchronous boundary (cmd/ startup); job code
// should prefer Then.
func (f *Future[T]) Wait() T {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Then attaches a continuation that runs (synchronously, on whichever
// goroutine calls Resolve) once the Future resolves. If the Future is
// already resolved, the continuation runs immediately.
func Then[T any](f *Future[T], cont func(T)) {
	f.mu.Lock()
	if f.resolved {
		v := f.value
		f.mu.Unlock()
		cont(v)
		return
	}
	f.waiters = append(f.waiters, cont)
	f.mu.Unlock()
}

// Map transforms a Future's eventual value, returning a new Future that
// resolves once fn has been applied.
func Map[T any, R any](f *Future[T], fn func(T) R) *Future[R] {
	out := NewFuture[R]()
	Then(f, func(v T) { out.Resolve(fn(v)) })
	return out
}

// Pair is the tuple produced by JoinFutures.
type Pair[A any, B any] struct {
	First  A
	Second B
}

// JoinFutures resolves once both inputs have resolved, mirroring the
// source's JoinFutures used to load recurring contributions and publisher
// activity in parallel.
func JoinFutures[A any, B any](a *Future[A], b *Future[B]) *Future[Pair[A, B]] {
	out := NewFuture[Pair[A, B]]()
	var mu sync.Mutex
	var pair Pair[A, B]
	remaining := 2

	settle := func() {
		mu.Lock()
		remaining--
		done := remaining == 0
		p := pair
		mu.Unlock()
		if done {
			out.Resolve(p)
		}
	}

	Then(a, func(v A) {
		mu.Lock()
		pair.First = v
		mu.Unlock()
		settle()
	})
	Then(b, func(v B) {
		mu.Lock()
		pair.Second = v
		mu.Unlock()
		settle()
	})

	return out
}
