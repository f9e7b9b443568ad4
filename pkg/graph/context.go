package graph

import "context"

// ctxKey is the sentinel attached to a context.Context the way the original
// runtime attaches a reference to a raw resource object. Go has nothing to
// monkey-patch, so the "current execution context" is carried explicitly:
// every fiberiso API and resource constructor that needs to know its
// creator's node takes a context.Context and looks it up here.
type ctxKey struct{}

// WithNode returns a copy of ctx carrying node as the current execution
// context, the Go equivalent of publishing a node via the resource
// sentinel described in spec.md §4.1/§6(c).
func WithNode(ctx context.Context, node *Node) context.Context {
	return context.WithValue(ctx, ctxKey{}, node)
}

// NodeFromContext returns the node attached to ctx, or nil if none is
// present — the "look up the current execution context's shadow node"
// step from spec.md's init handler. A nil result means "drop the event":
// callers must treat it exactly like an absent sentinel in the original.
func NodeFromContext(ctx context.Context) *Node {
	n, _ := ctx.Value(ctxKey{}).(*Node)
	return n
}
