// Package hook is the runtime hook adapter: the single point through which
// every async-resource lifecycle transition — init, before, after,
// promise-resolve — is translated into a method call on the node that owns
// it (spec.md §4.1). The host runtime this design was modeled on delivers
// these as monkey-patched callbacks; Go exposes no such hook, so resource
// constructors in pkg/future and pkg/resource call into the Adapter
// directly and carry the resulting node via context.Context.
package hook

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/recera/fiberiso/pkg/graph"
)

// Adapter is the process-wide runtime hook. It is armed when at least one
// fiber is active (pkg/fiber's Registry.Enable/Disable reference-count it) and
// disarmed when the fiber stack empties, matching spec.md §9's "hook arms
// when the stack becomes non-empty, disarms when it empties".
type Adapter struct {
	mu        sync.Mutex
	armed     bool
	reentrant bool
	log       hclog.Logger
}

// New constructs a disarmed Adapter. log may be nil.
func New(log hclog.Logger) *Adapter {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Adapter{log: log}
}

// Arm enables hook dispatch. Called by the first fiber to activate.
func (a *Adapter) Arm() {
	a.mu.Lock()
	a.armed = true
	a.mu.Unlock()
}

// Disarm disables hook dispatch. Called when the fiber stack empties.
func (a *Adapter) Disarm() {
	a.mu.Lock()
	a.armed = false
	a.mu.Unlock()
}

// Armed reports whether the hook is currently dispatching.
func (a *Adapter) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed
}

// Init translates a resource-creation event. It looks up the current
// execution context's node via ctx; if absent, the event is dropped (the
// creation happened outside any node fiberiso is tracking) and Init
// returns the context unchanged and a nil node. Otherwise it constructs the
// child node — wiring the execution edge to the creator and the trigger
// edge to triggerOrigin (which may equal the creator, for synchronous
// creation, or some other node for runtime-scheduled creation) — and
// notifies the creator's observer.
//
// Re-entrant Init calls (an Init triggered by work this very call performs,
// e.g. constructing a diagnostic Frame) are short-circuited: the new
// context is returned unchanged and no child is created, matching spec.md
// §9's reentrancy guard.
func (a *Adapter) Init(ctx context.Context, typ string, triggerOrigin *graph.Node, frame *graph.Frame) (context.Context, *graph.Node, error) {
	creator := graph.NodeFromContext(ctx)
	if creator == nil {
		return ctx, nil, nil
	}

	a.mu.Lock()
	if !a.armed || a.reentrant {
		a.mu.Unlock()
		return ctx, nil, nil
	}
	a.reentrant = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.reentrant = false
		a.mu.Unlock()
	}()

	if triggerOrigin == nil {
		triggerOrigin = creator
	}
	child := graph.New(typ, creator.FiberID(), creator, triggerOrigin, frame, a.log)
	err := creator.HandleInit(child)
	return graph.WithNode(ctx, child), child, err
}

// Before translates a before-execution event for the node identified by
// asyncID. It locates the node by the bounded search described in
// spec.md §4.1: starting at the current execution context's node, checking
// its own id and its execution targets, then walking executionOrigin
// upward. The runtime guarantees the event fires inside the creator's or a
// descendant's execution context, so this bounded walk always finds a live
// node without a process-wide id index.
func (a *Adapter) Before(ctx context.Context, asyncID uint64) error {
	n := a.locate(ctx, asyncID)
	if n == nil {
		return nil
	}
	return n.HandleBefore()
}

// After translates an after-execution event, located the same way as Before.
func (a *Adapter) After(ctx context.Context, asyncID uint64) error {
	n := a.locate(ctx, asyncID)
	if n == nil {
		return nil
	}
	return n.HandleAfter()
}

// PromiseResolve translates a deferred-value settlement event, located the
// same way as Before.
func (a *Adapter) PromiseResolve(ctx context.Context, asyncID uint64) error {
	n := a.locate(ctx, asyncID)
	if n == nil {
		return nil
	}
	return n.HandlePromiseResolve()
}

// locate performs the bounded execution-chain search.
func (a *Adapter) locate(ctx context.Context, asyncID uint64) *graph.Node {
	if !a.Armed() {
		return nil
	}
	n := graph.NodeFromContext(ctx)
	for n != nil {
		if n.AsyncID == asyncID {
			return n
		}
		for _, t := range n.ExecutionTargets() {
			if t.AsyncID == asyncID {
				return t
			}
		}
		n = n.ExecutionOrigin()
	}
	a.log.Trace("locate: asyncId not found in execution chain", "asyncId", asyncID)
	return nil
}

// ErrNoCurrentNode reports that no node is attached to a context. Init and
// the pkg/future and pkg/resource constructors do not return it: when ctx
// carries no node they return a nil node and a nil error instead.
var ErrNoCurrentNode = fmt.Errorf("hook: no current node attached to context")
