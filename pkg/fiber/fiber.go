// Package fiber implements the fiber record: a named unit of async
// isolation, its root node, its parent chain, and the process-wide fiber
// stack spec.md §3/§4.4 describes.
package fiber

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/recera/fiberiso/pkg/graph"
	"github.com/recera/fiberiso/pkg/hook"
)

var nextFiberID atomic.Uint64

// Fiber is a logically isolated asynchronous computation: a function and
// every asynchronous resource it transitively creates.
type Fiber struct {
	id     uint64
	root   *graph.Node
	parent *Fiber
	frame  *graph.Frame

	mu     sync.Mutex
	active bool
}

// ID returns the fiber's process-unique, monotonically increasing id.
func (f *Fiber) ID() uint64 { return f.id }

// Root returns the node representing the execution context the fiber was
// launched in.
func (f *Fiber) Root() *graph.Node { return f.root }

// Parent returns the fiber that was active when this one was launched, or
// nil if none was.
func (f *Fiber) Parent() *Fiber { return f.parent }

// Frame returns the best-effort diagnostic capture of the launch site, or
// nil.
func (f *Fiber) Frame() *graph.Frame { return f.frame }

// Active reports whether this fiber currently claims its root.
func (f *Fiber) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// ParentIDs returns the id of every ancestor fiber, nearest first. The
// watchdog uses this to distinguish a PARENT_ASYNC_TRIGGER fault (the
// trigger belongs to an ancestor) from FOREIGN_ASYNC_TRIGGER (it belongs to
// neither this fiber nor an ancestor).
func (f *Fiber) ParentIDs() map[uint64]bool {
	ids := make(map[uint64]bool)
	for p := f.parent; p != nil; p = p.parent {
		ids[p.id] = true
	}
	return ids
}

// ExecutionTargets returns the direct children of root owned by this fiber.
func (f *Fiber) ExecutionTargets() []*graph.Node {
	out := make([]*graph.Node, 0)
	for _, n := range f.root.ExecutionTargets() {
		if n.FiberID() == f.id {
			out = append(out, n)
		}
	}
	return out
}

// Pending counts every non-finalized descendant of root owned by this
// fiber, excluding root itself, by recursing over execution targets
// restricted to nodes with this fiber's id.
func (f *Fiber) Pending() int {
	count := 0
	var walk func(*graph.Node)
	walk = func(n *graph.Node) {
		for _, child := range n.ExecutionTargets() {
			if child.FiberID() != f.id {
				continue
			}
			if !child.Finalized() {
				count++
			}
			walk(child)
		}
	}
	walk(f.root)
	return count
}

// Registry owns the process-wide fiber stack and the hook adapter it
// arms/disarms. spec.md §9 calls for a module-level singleton; Registry is
// that singleton's implementation, kept as a constructible type so tests
// don't share global state (the root fiberiso package holds the process-wide
// instance the public surface uses; fiberiso.Registry returns it).
type Registry struct {
	hook *hook.Adapter
	log  hclog.Logger

	mu    sync.Mutex
	stack []*Fiber
}

// NewRegistry constructs a Registry wired to adapter.
func NewRegistry(adapter *hook.Adapter, log hclog.Logger) *Registry {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Registry{hook: adapter, log: log}
}

// Hook returns the adapter this registry arms and disarms.
func (r *Registry) Hook() *hook.Adapter { return r.hook }

// New constructs a Fiber rooted at the node currently attached to ctx. If
// ctx carries no node, a standalone root node is created at this position
// (spec.md §4.4: "If that node has no sentinel yet, one is created at that
// position"). The currently active fiber, if any, becomes the new fiber's
// parent. The fiber is not yet enabled: call Enable to activate it.
func (r *Registry) New(ctx context.Context, frame *graph.Frame) *Fiber {
	id := nextFiberID.Add(1)

	root := graph.NodeFromContext(ctx)
	if root == nil {
		root = graph.New("EXECUTION_CONTEXT", 0, nil, nil, frame, r.log)
	}

	f := &Fiber{
		id:     id,
		root:   root,
		parent: r.Current(),
		frame:  frame,
	}
	return f
}

// Enable activates f: stamps its id onto root, arms the hook if f is the
// first fiber on the stack, and pushes f.
func (r *Registry) Enable(f *Fiber) {
	r.mu.Lock()
	f.root.SetFiberID(f.id)
	f.mu.Lock()
	f.active = true
	f.mu.Unlock()
	r.stack = append(r.stack, f)
	first := len(r.stack) == 1
	r.mu.Unlock()

	if first {
		r.hook.Arm()
	}
	r.log.Debug("fiber enabled", "fiberId", f.id)
}

// Disable deactivates f: removes it from the stack (wherever it sits, not
// necessarily the top), disarms the hook once the stack empties, and sets
// root's owning fiber id to the topmost remaining active fiber, or 0.
func (r *Registry) Disable(f *Fiber) {
	r.mu.Lock()
	for i, other := range r.stack {
		if other == f {
			r.stack = append(r.stack[:i], r.stack[i+1:]...)
			break
		}
	}
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()

	var next uint64
	if len(r.stack) > 0 {
		next = r.stack[len(r.stack)-1].id
	}
	f.root.SetFiberID(next)
	empty := len(r.stack) == 0
	r.mu.Unlock()

	if empty {
		r.hook.Disarm()
	}
	r.log.Debug("fiber disabled", "fiberId", f.id)
}

// Current returns the topmost active fiber on the stack, or nil.
func (r *Registry) Current() *Fiber {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

// Get returns the fiber with the given id, or nil if none on the stack
// matches.
func (r *Registry) Get(id uint64) *Fiber {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.stack {
		if f.id == id {
			return f
		}
	}
	return nil
}

// Depth returns the number of fibers currently on the stack.
func (r *Registry) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}
