// Package future supplies the generic deferred-value type every fiberiso
// public operation traffics in. spec.md treats "DeferredValue<T>" as a
// given host primitive; Go has no built-in promise, so this package is the
// concrete realization SPEC_FULL.md §3 calls for — itself a PROMISE-typed
// graph.Node, so the watchdog supervises futures exactly like any other
// async resource.
package future

import (
	"context"
	"sync"

	"github.com/recera/fiberiso/pkg/graph"
	"github.com/recera/fiberiso/pkg/hook"
)

// TypePromise is the graph.Node type every Future is tagged with.
const TypePromise = "PROMISE"

// Future is a single-assignment deferred value of type T.
type Future[T any] struct {
	node *graph.Node

	mu       sync.Mutex
	settled  bool
	value    T
	err      error
	done     chan struct{}
}

// New constructs a Future whose node is a child of the node currently
// attached to ctx (dropped, per spec.md §4.1, if ctx carries none). It
// returns both the future and the context to use for any work considered
// part of the future's own execution context — for example a resolver
// goroutine that should itself attribute further resources it creates to
// this future rather than to its creator.
func New[T any](ctx context.Context, adapter *hook.Adapter, frame *graph.Frame) (*Future[T], context.Context, error) {
	return NewTyped[T](ctx, adapter, TypePromise, frame)
}

// NewTyped is New generalized over the node's type string. pkg/resource
// uses it to mint nodes tagged "Timer"/"Immediate"/"IOHandle" — anything
// other than TypePromise is treated by the watchdog's stall check as real
// outstanding asynchronous work (spec.md §4.5).
func NewTyped[T any](ctx context.Context, adapter *hook.Adapter, typ string, frame *graph.Frame) (*Future[T], context.Context, error) {
	childCtx, node, err := adapter.Init(ctx, typ, nil, frame)
	f := &Future[T]{node: node, done: make(chan struct{})}
	return f, childCtx, err
}

// Resolved returns an already-settled Future wrapping value — the "already
// resolved" deferred value spec.md's scenarios 2, 4 and 6 await as a single
// suspension point before the real await. Because it settles before any
// observer could ever attach, it is inert from the watchdog's perspective:
// there is nothing left to classify.
func Resolved[T any](ctx context.Context, adapter *hook.Adapter, value T) (*Future[T], context.Context, error) {
	f, childCtx, err := New[T](ctx, adapter, nil)
	if err != nil {
		return f, childCtx, err
	}
	_ = f.Resolve(value)
	return f, childCtx, nil
}

// Node returns the future's graph node.
func (f *Future[T]) Node() *graph.Node { return f.node }

// Done returns a channel closed when the future settles, successfully or
// not.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolve settles the future successfully. Only the first call has any
// effect — resolving an already-settled future is a silent no-op, matching
// a promise's single-settlement semantics. The returned error is non-nil
// only when a watchdog observing this future's node rejects the
// classification synchronously (spec.md §4.5's re-throw-inside-the-hook
// behavior); it is independent of whether the future itself accepted the
// new value.
func (f *Future[T]) Resolve(value T) error {
	return f.settle(value, nil)
}

// Reject settles the future with err.
func (f *Future[T]) Reject(err error) error {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(value T, err error) error {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return nil
	}
	f.settled = true
	f.value = value
	f.err = err
	f.mu.Unlock()

	close(f.done)
	if f.node != nil {
		return f.node.HandlePromiseResolve()
	}
	return nil
}

// Wait blocks until the future settles or ctx is done, returning the
// future's value/error in the first case and ctx.Err() in the second.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Value()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Value returns the settled value and error. Safe to call before
// settlement, in which case it returns the zero value and a nil error —
// callers that need to block until settlement should use Wait or Done.
func (f *Future[T]) Value() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Settled reports whether the future has resolved or rejected.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}
