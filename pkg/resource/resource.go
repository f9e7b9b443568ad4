// Package resource supplies constructors for the async-resource kinds
// spec.md names alongside PROMISE: Timer (a host-immediate-backed delay),
// Immediate (a one-shot, lowest-priority deferred callback), and IOHandle
// (a stand-in for externally-driven I/O such as a socket read). Each is a
// real graph.Node of a type other than future.TypePromise, so the
// watchdog's stall check correctly treats them as outstanding asynchronous
// work rather than as the kind of bare, never-settling future that should
// trip FIBER_STALL.
//
// SPEC_FULL.md §3 calls this package out as a supplement to spec.md, which
// treats "DeferredValue<T>" as a given host primitive and is silent on
// what concrete resource kinds back one.
package resource

import (
	"context"
	"runtime"
	"time"

	"github.com/recera/fiberiso/pkg/future"
	"github.com/recera/fiberiso/pkg/graph"
	"github.com/recera/fiberiso/pkg/hook"
)

// TypeTimer, TypeImmediate and TypeIOHandle are the graph.Node type tags
// this package's constructors use.
const (
	TypeTimer     = "Timer"
	TypeImmediate = "Immediate"
	TypeIOHandle  = "IOHandle"
)

// NewTimer creates a Timer-typed future that resolves with compute's result
// after delay, the Go analogue of a host timer callback. It is the
// resource spec.md's scenarios 1–4 use for "a deferred value P that
// resolves via a host immediate primitive".
func NewTimer[T any](ctx context.Context, adapter *hook.Adapter, delay time.Duration, compute func() T) (*future.Future[T], context.Context, error) {
	fut, childCtx, err := future.NewTyped[T](ctx, adapter, TypeTimer, nil)
	if err != nil || fut.Node() == nil {
		return fut, childCtx, err
	}
	node := fut.Node()
	time.AfterFunc(delay, func() {
		node.HandleBefore()
		v := compute()
		node.HandleAfter()
		fut.Resolve(v)
	})
	return fut, childCtx, nil
}

// NewImmediate schedules compute to run on the next scheduling opportunity
// and resolves the returned future with its result — the analogue of a
// host's lowest-priority immediate-callback primitive, used for "an
// already-resolved deferred value" suspension points once it has actually
// fired.
func NewImmediate[T any](ctx context.Context, adapter *hook.Adapter, compute func() T) (*future.Future[T], context.Context, error) {
	fut, childCtx, err := future.NewTyped[T](ctx, adapter, TypeImmediate, nil)
	if err != nil || fut.Node() == nil {
		return fut, childCtx, err
	}
	node := fut.Node()
	go func() {
		runtime.Gosched()
		node.HandleBefore()
		v := compute()
		node.HandleAfter()
		fut.Resolve(v)
	}()
	return fut, childCtx, nil
}

// NewIOHandle creates an IOHandle-typed future that settles whenever the
// caller invokes the returned resolve function — standing in for a
// callback registered against some externally-driven I/O object (a socket,
// a file descriptor) that this process does not itself schedule.
func NewIOHandle[T any](ctx context.Context, adapter *hook.Adapter) (*future.Future[T], context.Context, func(T, error), error) {
	fut, childCtx, err := future.NewTyped[T](ctx, adapter, TypeIOHandle, nil)
	if err != nil || fut.Node() == nil {
		return fut, childCtx, func(T, error) {}, err
	}
	node := fut.Node()
	node.HandleBefore()
	resolve := func(v T, resolveErr error) {
		node.HandleAfter()
		if resolveErr != nil {
			fut.Reject(resolveErr)
			return
		}
		fut.Resolve(v)
	}
	return fut, childCtx, resolve, nil
}

// nodeType is a tiny accessor used only for tests in this package that need to
// assert on node type without importing graph directly in table literals.
func nodeType(n *graph.Node) string {
	if n == nil {
		return ""
	}
	return n.Type
}
