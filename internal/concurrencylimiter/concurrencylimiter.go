// Package concurrencylimiter bounds how many goroutines a Parallel plan node
// may run at once, so a query that fans out across many subgraphs in one
// layer can't flood them all simultaneously. Grounded on
// concurrencylimiter/concurrencylimiter_test.go's observed contract (only the
// test file survived in the retrieval pack; the limiter itself is
// reimplemented here to match its behavior).
package concurrencylimiter

import (
	"context"
	"sync"
)

type limiterKey struct{}

type limiter struct {
	sem chan struct{}
}

// With attaches a limiter capped at n concurrent holders to ctx. n <= 0
// disables limiting entirely.
func With(ctx context.Context, n int) context.Context {
	if n <= 0 {
		return ctx
	}
	return context.WithValue(ctx, limiterKey{}, &limiter{sem: make(chan struct{}, n)})
}

// Acquire blocks until a slot is free (or ctx is done), returning a release
// func that is safe to call more than once. A ctx with no limiter attached
// acquires instantly.
func Acquire(ctx context.Context) (context.Context, func()) {
	l, ok := ctx.Value(limiterKey{}).(*limiter)
	if !ok {
		return ctx, func() {}
	}
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, func() {}
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-l.sem })
	}
	return ctx, release
}

// TemporarilyRelease gives up the caller's held slot for the duration of f,
// so a goroutine that's about to block on something slow (a subrequest) does
// not hold up other goroutines waiting on the same limiter.
func TemporarilyRelease(ctx context.Context, f func()) {
	l, ok := ctx.Value(limiterKey{}).(*limiter)
	if !ok {
		f()
		return
	}
	select {
	case <-l.sem:
		defer func() { l.sem <- struct{}{} }()
	default:
	}
	f()
}
