// Package fiberiso provides a fiber isolation primitive for cooperative,
// single-threaded-semantics asynchronous Go code: a function returning a
// future.Future[T], together with every asynchronous resource it
// transitively creates, isolated from its caller's and siblings' resources
// by a watchdog that rejects the fiber's result the moment it observes a
// cross-fiber await, a parent-execution-context await, or a permanent
// stall.
//
// See SPEC_FULL.md for the full specification this package implements and
// DESIGN.md for how each piece is grounded in its teacher repository.
package fiberiso

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/recera/fiberiso/pkg/fiber"
	"github.com/recera/fiberiso/pkg/future"
	"github.com/recera/fiberiso/pkg/graph"
	"github.com/recera/fiberiso/pkg/hook"
	"github.com/recera/fiberiso/pkg/watchdog"
)

// defaultHook and defaultRegistry are the module-level singleton spec.md §9
// calls for. Logging defaults to a no-op logger; SetLogger replaces it.
var (
	defaultHook     = hook.New(nil)
	defaultRegistry = fiber.NewRegistry(defaultHook, nil)
)

// SetLogger replaces the process-wide hook adapter and fiber registry with
// fresh ones that log to log. Watchdogs started by Fiber are not given this
// logger and log nowhere.
func SetLogger(log hclog.Logger) {
	defaultHook = hook.New(log)
	defaultRegistry = fiber.NewRegistry(defaultHook, log)
}

// Option configures a call to Fiber.
type Option struct {
	// Abort, if set, is a context.Context whose cancellation signals
	// cooperative cancellation of the fiber — spec.md's "optional
	// cancellation signal", realized as a context so the fault raised when
	// it fires can carry the real cancellation cause (via context.Cause)
	// rather than a generic message.
	Abort context.Context
	// Frame is a best-effort diagnostic capture of the launch site.
	Frame *graph.Frame
	// Watchdog tunes the attached watchdog's stall-detection debounce.
	Watchdog watchdog.Config
}

// Result is what Fiber returns: the watchdog-wrapped deferred value and the
// fiber record that produced it.
type Result[T any] struct {
	Return *future.Future[T]
	Fiber  *fiber.Fiber
}

// Enable activates the active fiber if none exists yet: it creates a root
// fiber anchored on the node currently attached to ctx (or a fresh
// standalone root node if ctx carries none) and activates it, returning
// both the fiber and a context carrying its root node. If a fiber is
// already active, it is returned unchanged along with ctx.
//
// Go has no ambient "current execution context" the way the runtime this
// design is modeled on does, so — unlike spec.md's zero-argument `enable()`
// — Enable takes and returns a context.Context; callers must thread the
// returned context into whatever they do next for node attribution to
// work.
func Enable(ctx context.Context) (context.Context, *fiber.Fiber) {
	if f := defaultRegistry.Current(); f != nil {
		return ctx, f
	}
	f := defaultRegistry.New(ctx, nil)
	defaultRegistry.Enable(f)
	return graph.WithNode(ctx, f.Root()), f
}

// Disable deactivates the currently active fiber, if any, and returns it.
func Disable() *fiber.Fiber {
	f := defaultRegistry.Current()
	if f == nil {
		return nil
	}
	defaultRegistry.Disable(f)
	return f
}

// Fiber creates a new fiber, activates it, invokes fn synchronously inside
// that fiber (so the resulting future's resource chain is rooted in the
// fiber), wraps the result in a watchdog, deactivates the fiber, and
// returns the watchdog-wrapped future alongside the fiber record.
func Fiber[T any](ctx context.Context, fn func(ctx context.Context) *future.Future[T], opts ...Option) Result[T] {
	var opt Option
	if len(opts) > 0 {
		opt = opts[0]
	}

	f := defaultRegistry.New(ctx, opt.Frame)
	defaultRegistry.Enable(f)
	fiberCtx := graph.WithNode(ctx, f.Root())

	inner := fn(fiberCtx)

	watchdog.Start[T](f, inner, opt.Abort, opt.Watchdog, nil)
	defaultRegistry.Disable(f)

	return Result[T]{Return: inner, Fiber: f}
}

// GetFiber returns the topmost active fiber on the process-wide stack, or
// nil.
func GetFiber() *fiber.Fiber {
	return defaultRegistry.Current()
}

// GetFiberNode dereferences the sentinel carried by ctx, returning the
// shadow node attached to it, or nil if ctx carries none. This is the Go
// realization of spec.md's `getFiberNode(raw object)`, adapted from "raw
// resource object" to "context.Context" per SPEC_FULL.md §0.
func GetFiberNode(ctx context.Context) *graph.Node {
	return graph.NodeFromContext(ctx)
}

// Hook returns the process-wide runtime hook adapter, exposed for callers of
// the pkg/future and pkg/resource constructors, which take the adapter as a
// parameter to construct nodes attributed to the default registry's fibers.
func Hook() *hook.Adapter { return defaultHook }

// Registry returns the process-wide fiber registry.
func Registry() *fiber.Registry { return defaultRegistry }
