// Package watchdog implements the per-fiber state machine spec.md §4.5
// describes: it attaches itself as the sole observer of every node
// reachable from a fiber's root, classifies each lifecycle event, and
// either lets the fiber continue, rejects its result with a typed fault, or
// schedules a stall check.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/recera/fiberiso/pkg/fault"
	"github.com/recera/fiberiso/pkg/fiber"
	"github.com/recera/fiberiso/pkg/future"
	"github.com/recera/fiberiso/pkg/graph"
)

// DefaultStallDebounce is the coalescing window used when Config leaves
// StallDebounce unset. It stands in for "one turn of the event loop" in a
// runtime with no microtask queue to drain (spec.md §9, "Stall-check
// timing"; SPEC_FULL.md §5 records this as the resolved Open Question).
const DefaultStallDebounce = 2 * time.Millisecond

// Config tunes watchdog behavior.
type Config struct {
	StallDebounce time.Duration
}

func (c Config) debounce() time.Duration {
	if c.StallDebounce <= 0 {
		return DefaultStallDebounce
	}
	return c.StallDebounce
}

// Watchdog supervises a single fiber's result future of type T.
type Watchdog[T any] struct {
	f       *fiber.Fiber
	result  *future.Future[T]
	abort   context.Context
	cfg     Config
	log     hclog.Logger
	fiberID uint64
	parents map[uint64]bool

	mu           sync.Mutex
	pending      map[uint64]*graph.Node
	pendingOrder []uint64
	stallTimer   *time.Timer
}

// Start builds a Watchdog for f's result future and begins supervising it.
// It deactivates f's root (permanently, per spec.md §9's resolved open
// question), walks every existing descendant owned by f and attaches
// itself as observer, validating ownership/abort state for anything that
// already existed at fiber-start time, schedules a first stall check, and
// arranges for the stall timer to stop once result settles naturally.
//
// abort is the caller's cancellation signal, if any (nil means "never
// aborts externally"). It is a context.Context rather than a bare channel
// so that the FIBER_ABORTED fault raised when it fires can surface the
// real reason via context.Cause, instead of a fixed, uninformative detail
// string.
func Start[T any](f *fiber.Fiber, result *future.Future[T], abort context.Context, cfg Config, log hclog.Logger) *Watchdog[T] {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	w := &Watchdog[T]{
		f:       f,
		result:  result,
		abort:   abort,
		cfg:     cfg,
		log:     log,
		fiberID: f.ID(),
		parents: f.ParentIDs(),
		pending: make(map[uint64]*graph.Node),
	}

	f.Root().SetActive(false)

	visited := make(map[uint64]bool)
	var walk func(*graph.Node)
	walk = func(n *graph.Node) {
		for _, child := range n.ExecutionTargets() {
			if visited[child.AsyncID] {
				continue
			}
			visited[child.AsyncID] = true
			if child.FiberID() != w.fiberID {
				continue
			}
			child.Attach(w)
			if !child.Finalized() {
				w.addPending(child)
				if flt := w.validateOwnership(child); flt != nil {
					w.reject(flt)
				}
				if flt := w.validateAbort(child); flt != nil {
					w.reject(flt)
				}
			}
			walk(child)
		}
	}
	walk(f.Root())

	go func() {
		select {
		case <-result.Done():
			w.stopTimer()
		case <-abortDone(abort):
			graph.Taint(f.Root(), graph.FlagFinalized, graph.FlagAborted)
			w.reject(fault.New(fault.FiberAborted, w.fiberID, f.Root(), abortReason(abort)))
		}
	}()

	// Set again at the end of setup, matching the original implementation's
	// own belt-and-braces deactivation at both the start and the end of
	// this routine (spec.md §9's open question: root is treated as
	// permanently deactivated for the fiber's lifetime, so this is
	// idempotent, not a reactivation).
	f.Root().SetActive(false)
	w.rearmStallCheck()
	return w
}

func abortDone(abort context.Context) <-chan struct{} {
	if abort == nil {
		return nil
	}
	return abort.Done()
}

// abortReason renders why abort fired, preferring the real cause a caller
// passed to context.WithCancelCause/WithTimeoutCause over the generic
// context.Canceled/DeadlineExceeded sentinel, matching spec.md §4.5's
// requirement that the fault "surface its reason".
func abortReason(abort context.Context) string {
	if abort == nil {
		return "cancellation signal fired"
	}
	if cause := context.Cause(abort); cause != nil {
		return "cancellation signal fired: " + cause.Error()
	}
	return "cancellation signal fired"
}

func (w *Watchdog[T]) addPending(n *graph.Node) {
	w.mu.Lock()
	if _, ok := w.pending[n.AsyncID]; !ok {
		w.pendingOrder = append(w.pendingOrder, n.AsyncID)
	}
	w.pending[n.AsyncID] = n
	w.mu.Unlock()
}

func (w *Watchdog[T]) removePending(n *graph.Node) {
	w.mu.Lock()
	delete(w.pending, n.AsyncID)
	w.mu.Unlock()
}

// lastPendingNode returns the most recently added node that is still
// pending, the last execution target of root owned by this fiber, or root
// itself — the stall fault's target, in that priority order (spec.md
// §4.5's "Stall detection").
func (w *Watchdog[T]) lastPendingNode() *graph.Node {
	w.mu.Lock()
	for i := len(w.pendingOrder) - 1; i >= 0; i-- {
		if n, ok := w.pending[w.pendingOrder[i]]; ok {
			w.mu.Unlock()
			return n
		}
	}
	w.mu.Unlock()

	// Async ids are allocated in creation order, so the highest id is the
	// most recently created target.
	var last *graph.Node
	for _, t := range w.f.ExecutionTargets() {
		if last == nil || t.AsyncID > last.AsyncID {
			last = t
		}
	}
	if last != nil {
		return last
	}
	return w.f.Root()
}

// validateOwnership implements spec.md §4.5's ownership table.
func (w *Watchdog[T]) validateOwnership(n *graph.Node) *fault.Fault {
	t := n.TriggerOrigin()
	if n.FiberID() != w.fiberID || t == nil {
		return nil
	}
	if t == w.f.Root() {
		return nil
	}
	if t.FiberID() == n.FiberID() {
		return nil
	}
	if w.parents[t.FiberID()] {
		return fault.New(fault.ParentAsyncTrigger, w.fiberID, n, "awaited a resource whose trigger originated in a parent execution context")
	}
	return fault.New(fault.ForeignAsyncTrigger, w.fiberID, n, "awaited a resource whose trigger belongs to a different fiber")
}

// validateAbort implements spec.md §4.5's "Abort validation" table, minus
// the external-signal branch (handled by Start's goroutine, since it isn't
// a per-node condition).
func (w *Watchdog[T]) validateAbort(n *graph.Node) *fault.Fault {
	if n.Flags().Any(graph.FlagAborted) {
		return fault.New(fault.FiberAborted, w.fiberID, n, "node was tainted ABORTED")
	}
	to := n.TriggerOrigin()
	if to != nil && to.Flags().Any(graph.FlagAborted) {
		if to.FiberID() == w.fiberID {
			return fault.New(fault.FiberAborted, w.fiberID, n, "trigger origin was tainted ABORTED by this fiber")
		}
		return fault.New(fault.ForeignAsyncAborted, w.fiberID, n, "trigger origin belongs to a different, aborted fiber")
	}
	return nil
}

func (w *Watchdog[T]) reject(flt *fault.Fault) error {
	w.log.Warn("fiber fault", "fiberId", w.fiberID, "code", flt.Code, "message", flt.Message)
	_ = w.result.Reject(flt)
	return flt
}

// OnInit implements graph.Observer. It is called on the creator node's
// attached observer (which, for anything under this fiber's root, is this
// Watchdog) whenever the creator produces a new node. If the child belongs
// to this fiber, the Watchdog attaches itself to the child too, so the
// child's own future events flow back here.
func (w *Watchdog[T]) OnInit(_ *graph.Node, child *graph.Node) error {
	if child.FiberID() == w.fiberID {
		child.Attach(w)
	}

	var err error
	if flt := w.validateOwnership(child); flt != nil {
		err = w.reject(flt)
	}
	if flt := w.validateAbort(child); flt != nil {
		err = w.reject(flt)
	}
	if !child.Finalized() {
		w.addPending(child)
	}
	w.rearmStallCheck()
	return err
}

// OnBefore implements graph.Observer. No classification happens here; it
// only re-arms the stall check, since a node entering execution is
// evidence the fiber is making progress.
func (w *Watchdog[T]) OnBefore(_ *graph.Node) error {
	w.rearmStallCheck()
	return nil
}

// OnAfter implements graph.Observer.
func (w *Watchdog[T]) OnAfter(n *graph.Node) error {
	w.removePending(n)
	w.rearmStallCheck()
	return nil
}

// OnPromiseResolve implements graph.Observer.
func (w *Watchdog[T]) OnPromiseResolve(n *graph.Node) error {
	var err error
	if flt := w.validateAbort(n); flt != nil {
		err = w.reject(flt)
	}
	w.removePending(n)
	w.rearmStallCheck()
	return err
}

// rearmStallCheck (re-)schedules the coalesced stall check: the scheduled
// callback fires after cfg.debounce() with no further events having
// rescheduled it, standing in for "the end of the current turn" (spec.md
// §9's deferred-task primitive).
func (w *Watchdog[T]) rearmStallCheck() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stallTimer == nil {
		w.stallTimer = time.AfterFunc(w.cfg.debounce(), w.checkStall)
		return
	}
	w.stallTimer.Reset(w.cfg.debounce())
}

func (w *Watchdog[T]) stopTimer() {
	w.mu.Lock()
	t := w.stallTimer
	w.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// checkStall implements spec.md §4.5's "Stall detection": if the pending
// set contains any non-finalized node that is not a PROMISE, real
// asynchronous I/O is outstanding and nothing is wrong. Otherwise the fiber
// has nothing left but unresolved deferred values, which nothing will ever
// settle, and the fiber is rejected with FIBER_STALL.
func (w *Watchdog[T]) checkStall() {
	if w.result.Settled() {
		return
	}

	w.mu.Lock()
	pending := make([]*graph.Node, 0, len(w.pending))
	for _, n := range w.pending {
		pending = append(pending, n)
	}
	w.mu.Unlock()

	for _, n := range pending {
		if !n.Finalized() && n.Type != future.TypePromise {
			return
		}
	}

	target := w.lastPendingNode()
	w.reject(fault.New(fault.FiberStall, w.fiberID, target, "no asynchronous work remains to settle this fiber's result"))
}

// Pending returns the number of nodes the watchdog currently considers
// unfinished, for diagnostics (pkg/livegraph, pkg/inspector).
func (w *Watchdog[T]) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
