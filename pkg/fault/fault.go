// Package fault defines the single, closed fault taxonomy the watchdog
// raises (spec.md §6 "Fault surface", §7).
package fault

import (
	"fmt"
	"strings"

	"github.com/recera/fiberiso/pkg/graph"
)

// Code is one of the five closed fault codes. No other value is ever
// constructed by this module.
type Code string

const (
	// ForeignAsyncTrigger: a node's trigger belongs to a different,
	// unrelated fiber.
	ForeignAsyncTrigger Code = "FOREIGN_ASYNC_TRIGGER"
	// ParentAsyncTrigger: a node's trigger belongs to an ancestor fiber —
	// work that started in the parent execution context before this fiber
	// existed.
	ParentAsyncTrigger Code = "PARENT_ASYNC_TRIGGER"
	// ForeignAsyncAborted: a node's trigger belongs to a different fiber
	// that has since been tainted ABORTED.
	ForeignAsyncAborted Code = "FOREIGN_ASYNC_ABORTED"
	// FiberAborted: this fiber's own cancellation signal fired, or a node
	// it owns was tainted ABORTED by this fiber's own taint propagation.
	FiberAborted Code = "FIBER_ABORTED"
	// FiberStall: the fiber is waiting on a deferred value with no
	// asynchronous I/O outstanding to ever wake it.
	FiberStall Code = "FIBER_STALL"
)

// TraceEntry is one hop in a Fault's Trace, walking a node's origins.
type TraceEntry struct {
	AsyncID uint64
	Type    string
	Via     string // "execution" or "trigger"
}

// Fault is the single error type the watchdog ever rejects a fiber's result
// with. It satisfies the error interface.
type Fault struct {
	Code    Code
	FiberID uint64
	Node    *graph.Node
	Message string
	Trace   []TraceEntry
}

// maxTraceDepth bounds the origin walk (spec.md §6: "up to a bounded
// depth"), protecting against pathologically deep or (if a bug ever
// produced one) cyclic origin chains.
const maxTraceDepth = 32

// New constructs a Fault, deriving Message and Trace from node and code.
func New(code Code, fiberID uint64, node *graph.Node, detail string) *Fault {
	f := &Fault{
		Code:    code,
		FiberID: fiberID,
		Node:    node,
	}
	f.Trace = buildTrace(node)
	f.Message = f.format(detail)
	return f
}

func buildTrace(node *graph.Node) []TraceEntry {
	if node == nil {
		return nil
	}
	trace := make([]TraceEntry, 0, maxTraceDepth)
	n := node.ExecutionOrigin()
	for i := 0; n != nil && i < maxTraceDepth; i++ {
		trace = append(trace, TraceEntry{AsyncID: n.AsyncID, Type: n.Type, Via: "execution"})
		n = n.ExecutionOrigin()
	}
	if t := node.TriggerOrigin(); t != nil && t != node.ExecutionOrigin() {
		trace = append(trace, TraceEntry{AsyncID: t.AsyncID, Type: t.Type, Via: "trigger"})
	}
	return trace
}

func (f *Fault) format(detail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "fiber %d: %s", f.FiberID, f.Code)
	if detail != "" {
		fmt.Fprintf(&b, ": %s", detail)
	}
	if f.Node != nil {
		fmt.Fprintf(&b, " (node #%d, type=%s)", f.Node.AsyncID, f.Node.Type)
	}
	return b.String()
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return f.Message
}
