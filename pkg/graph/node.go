// Package graph maintains the shadow graph of asynchronous resources that
// fiberiso's watchdog supervises. One Node exists per live async resource:
// a future, a timer, an immediate callback, an I/O handle. Nodes are wired
// together by two edge kinds — execution and trigger — mirroring the
// notions async_hooks uses in the runtime this package's design is modeled
// on, adapted to Go's explicit-context world (see SPEC_FULL.md §0).
package graph

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// nextAsyncID is the process-wide async-id counter, analogous to
// pkg/fiber's own process-wide id counter.
var nextAsyncID atomic.Uint64

// NextAsyncID allocates the next process-unique async id.
func NextAsyncID() uint64 {
	return nextAsyncID.Add(1)
}

// Observer receives lifecycle notifications for a single Node. At most one
// Observer is attached to a Node at a time (Node.notifyObserver); it is
// watchdog.Watchdog in production and a recording stub in tests.
//
// Each method may return a non-nil error to signal a classified violation.
// Node.Handle* propagates that error back to whatever caller triggered the
// event (an Init/Before/After/PromiseResolve call), which is this package's
// realization of spec.md §4.5's "when a fault is thrown inside the hook, it
// must unwind through the runtime so the faulting operation fails
// synchronously": the operation that caused the event simply receives the
// fault as a Go error instead of a panic.
type Observer interface {
	OnInit(n *Node, child *Node) error
	OnBefore(n *Node) error
	OnAfter(n *Node) error
	OnPromiseResolve(n *Node) error
}

// Frame is a best-effort diagnostic capture of a call site. It may be nil;
// every consumer must remain well-formed without it (spec.md §9).
type Frame struct {
	Function string
	File     string
	Line     int
}

// Node is one shadow async-resource node.
type Node struct {
	AsyncID uint64
	Type    string
	Frame   *Frame

	mu      sync.Mutex
	fiberID uint64
	flags   Flag
	active  bool

	executionOrigin *Node
	triggerOrigin   *Node

	executionTargets map[uint64]*Node
	triggerTargets   map[uint64]*Node

	observer Observer

	log hclog.Logger
}

// New constructs a node of the given type, owned by fiberID, rooted at
// executionOrigin/triggerOrigin. Both origins are set exactly once, here,
// per spec.md's node invariants; pass the same node for both when creation
// is synchronous (triggerAsyncId == asyncId in the original model).
func New(typ string, fiberID uint64, executionOrigin, triggerOrigin *Node, frame *Frame, log hclog.Logger) *Node {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	n := &Node{
		AsyncID:          NextAsyncID(),
		Type:             typ,
		Frame:            frame,
		fiberID:          fiberID,
		flags:            FlagInit,
		active:           true,
		executionOrigin:  executionOrigin,
		triggerOrigin:    triggerOrigin,
		executionTargets: make(map[uint64]*Node),
		triggerTargets:   make(map[uint64]*Node),
		log:              log,
	}
	if executionOrigin != nil {
		executionOrigin.addExecutionTarget(n)
	}
	if triggerOrigin != nil && triggerOrigin != executionOrigin {
		triggerOrigin.addTriggerTarget(n)
	}
	log.Trace("node init", "asyncId", n.AsyncID, "type", typ, "fiberId", fiberID)
	return n
}

func (n *Node) addExecutionTarget(child *Node) {
	n.mu.Lock()
	n.executionTargets[child.AsyncID] = child
	n.mu.Unlock()
}

func (n *Node) addTriggerTarget(child *Node) {
	n.mu.Lock()
	n.triggerTargets[child.AsyncID] = child
	n.mu.Unlock()
}

// FiberID returns the owning fiber's id. It is fixed at construction for
// every node except a fiber's root, which SetFiberID restamps.
func (n *Node) FiberID() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fiberID
}

// SetFiberID is used only by fiber.Registry.Enable/Disable to stamp or revert
// a root node's owning fiber; it must never be called on a non-root node.
func (n *Node) SetFiberID(id uint64) {
	n.mu.Lock()
	n.fiberID = id
	n.mu.Unlock()
}

// Active reports whether the node currently reacts to lifecycle events.
func (n *Node) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// SetActive toggles whether the node reacts to lifecycle events. Used by
// the watchdog to deactivate a fiber's root for the fiber's lifetime
// (spec.md §9, "root reactivation" open question — resolved as permanent).
func (n *Node) SetActive(active bool) {
	n.mu.Lock()
	n.active = active
	n.mu.Unlock()
}

// Flags returns the current flag bitset.
func (n *Node) Flags() Flag {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.flags
}

// Finalized reports whether the node has reached either finishing state:
// its synchronous body returned, or (for deferred values) it resolved.
func (n *Node) Finalized() bool {
	return n.Flags().Any(FlagFinalized)
}

// ExecutionOrigin returns the node whose execution context was current when
// this node was created.
func (n *Node) ExecutionOrigin() *Node { return n.executionOrigin }

// TriggerOrigin returns the node whose completion schedules this node.
func (n *Node) TriggerOrigin() *Node { return n.triggerOrigin }

// ExecutionTargets returns a snapshot slice of direct execution children.
func (n *Node) ExecutionTargets() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, 0, len(n.executionTargets))
	for _, t := range n.executionTargets {
		out = append(out, t)
	}
	return out
}

// TriggerTargets returns a snapshot slice of direct trigger children.
func (n *Node) TriggerTargets() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, 0, len(n.triggerTargets))
	for _, t := range n.triggerTargets {
		out = append(out, t)
	}
	return out
}

// Observer returns the currently attached observer, or nil.
func (n *Node) Observer() Observer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.observer
}

// Attach sets the node's observer. At most one observer is attached at a
// time; attaching replaces any previous one.
func (n *Node) Attach(o Observer) {
	n.mu.Lock()
	n.observer = o
	n.mu.Unlock()
}

// Detach clears the node's observer.
func (n *Node) Detach() {
	n.mu.Lock()
	n.observer = nil
	n.mu.Unlock()
}

// mark ORs flag into the node's bitset and returns whether it changed
// anything, the monotonic-set primitive every lifecycle transition uses.
func (n *Node) mark(flag Flag) bool {
	n.mu.Lock()
	before := n.flags
	n.flags |= flag
	changed := n.flags != before
	n.mu.Unlock()
	return changed
}

// HandleInit is invoked by pkg/hook when this node creates a child. It
// publishes the child to the node's observer, which may attach itself to
// the child if the child belongs to the same fiber (spec.md §4.2).
func (n *Node) HandleInit(child *Node) error {
	if !n.Active() {
		return nil
	}
	n.log.Trace("node creates child", "asyncId", n.AsyncID, "childId", child.AsyncID)
	if obs := n.Observer(); obs != nil {
		return obs.OnInit(n, child)
	}
	return nil
}

// HandleBefore is invoked by pkg/hook when this node's synchronous body
// begins.
func (n *Node) HandleBefore() error {
	if !n.Active() {
		return nil
	}
	n.mark(FlagPreExecution)
	if obs := n.Observer(); obs != nil {
		return obs.OnBefore(n)
	}
	return nil
}

// HandleAfter is invoked by pkg/hook when this node's synchronous body
// returns. Per spec.md §4.2 the observer is dropped afterward: a finalized
// node is no longer interesting.
func (n *Node) HandleAfter() error {
	if !n.Active() {
		return nil
	}
	n.mark(FlagPostExecution)
	obs := n.Observer()
	var err error
	if obs != nil {
		err = obs.OnAfter(n)
	}
	n.Detach()
	return err
}

// HandlePromiseResolve is invoked by pkg/hook when a deferred-value node
// settles.
func (n *Node) HandlePromiseResolve() error {
	if !n.Active() {
		return nil
	}
	n.mark(FlagResolved)
	obs := n.Observer()
	var err error
	if obs != nil {
		err = obs.OnPromiseResolve(n)
	}
	n.Detach()
	return err
}
