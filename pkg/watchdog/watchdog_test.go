package watchdog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/recera/fiberiso/pkg/fault"
	"github.com/recera/fiberiso/pkg/fiber"
	"github.com/recera/fiberiso/pkg/future"
	"github.com/recera/fiberiso/pkg/graph"
	"github.com/recera/fiberiso/pkg/hook"
)

const testDebounce = 10 * time.Millisecond

func newEnabledFiber(t *testing.T) (*fiber.Registry, *fiber.Fiber, context.Context) {
	t.Helper()
	adapter := hook.New(nil)
	reg := fiber.NewRegistry(adapter, nil)
	f := reg.New(context.Background(), nil)
	reg.Enable(f)
	return reg, f, graph.WithNode(context.Background(), f.Root())
}

func waitSettled(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("future never settled")
	}
}

func asFault(t *testing.T, err error) *fault.Fault {
	t.Helper()
	flt, ok := err.(*fault.Fault)
	if !ok {
		t.Fatalf("expected a *fault.Fault, got %v (%T)", err, err)
	}
	return flt
}

func TestWatchdog_StallsWhenNoRealWorkOutstanding(t *testing.T) {
	reg, f, ctx := newEnabledFiber(t)
	defer reg.Disable(f)

	fut, _, err := future.New[int](ctx, reg.Hook(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	Start[int](f, fut, nil, Config{StallDebounce: testDebounce}, nil)
	waitSettled(t, fut.Done())

	_, gotErr := fut.Value()
	flt := asFault(t, gotErr)
	if flt.Code != fault.FiberStall {
		t.Fatalf("expected FIBER_STALL, got %s", flt.Code)
	}
}

func TestWatchdog_NonPromiseResourceSuppressesStall(t *testing.T) {
	reg, f, ctx := newEnabledFiber(t)
	defer reg.Disable(f)

	fut, _, err := future.New[int](ctx, reg.Hook(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	// A Timer-typed node counts as real outstanding work, so the stall
	// check must not fire while it is still pending.
	timerFut, _, err := future.NewTyped[int](ctx, reg.Hook(), "Timer", nil)
	if err != nil {
		t.Fatalf("NewTyped returned error: %v", err)
	}

	Start[int](f, fut, nil, Config{StallDebounce: testDebounce}, nil)

	select {
	case <-fut.Done():
		t.Fatal("did not expect the result to settle while a Timer node is still pending")
	case <-time.After(5 * testDebounce):
	}

	timerFut.Resolve(1)
	fut.Resolve(1)
	waitSettled(t, fut.Done())
	if !fut.Settled() {
		t.Fatal("expected fut to settle once explicitly resolved")
	}
}

func TestWatchdog_RejectsParentTriggerOwnership(t *testing.T) {
	adapter := hook.New(nil)
	reg := fiber.NewRegistry(adapter, nil)

	parent := reg.New(context.Background(), nil)
	reg.Enable(parent)
	parentCtx := graph.WithNode(context.Background(), parent.Root())
	// A resource created while the parent fiber is current.
	parentResource := graph.New("PROMISE", parent.ID(), parent.Root(), parent.Root(), nil, nil)

	child := reg.New(parentCtx, nil)
	reg.Enable(child)
	childCtx := graph.WithNode(context.Background(), child.Root())

	fut, _, err := future.New[int](childCtx, reg.Hook(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	// A second resource, created under the child fiber but whose trigger
	// is the parent's own resource: the "awaited a timer armed before this
	// fiber existed" shape.
	if _, badNode, err := reg.Hook().Init(childCtx, "PROMISE", parentResource, nil); err != nil {
		t.Fatalf("Init returned error: %v", err)
	} else if badNode == nil {
		t.Fatal("expected Init to create a node")
	}

	Start[int](child, fut, nil, Config{StallDebounce: testDebounce}, nil)
	waitSettled(t, fut.Done())

	_, gotErr := fut.Value()
	flt := asFault(t, gotErr)
	if flt.Code != fault.ParentAsyncTrigger {
		t.Fatalf("expected PARENT_ASYNC_TRIGGER, got %s", flt.Code)
	}

	reg.Disable(child)
	reg.Disable(parent)
}

func TestWatchdog_RejectsForeignTriggerOwnership(t *testing.T) {
	adapter := hook.New(nil)
	reg := fiber.NewRegistry(adapter, nil)

	other := reg.New(context.Background(), nil)
	reg.Enable(other)
	otherResource := graph.New("PROMISE", other.ID(), other.Root(), other.Root(), nil, nil)
	reg.Disable(other)

	f := reg.New(context.Background(), nil)
	reg.Enable(f)
	ctx := graph.WithNode(context.Background(), f.Root())

	fut, _, err := future.New[int](ctx, reg.Hook(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, badNode, err := reg.Hook().Init(ctx, "PROMISE", otherResource, nil); err != nil {
		t.Fatalf("Init returned error: %v", err)
	} else if badNode == nil {
		t.Fatal("expected Init to create a node")
	}

	Start[int](f, fut, nil, Config{StallDebounce: testDebounce}, nil)
	waitSettled(t, fut.Done())

	_, gotErr := fut.Value()
	flt := asFault(t, gotErr)
	if flt.Code != fault.ForeignAsyncTrigger {
		t.Fatalf("expected FOREIGN_ASYNC_TRIGGER, got %s", flt.Code)
	}

	reg.Disable(f)
}

func TestWatchdog_AbortSignalRejectsFiberAborted(t *testing.T) {
	reg, f, ctx := newEnabledFiber(t)
	defer reg.Disable(f)

	fut, _, err := future.New[int](ctx, reg.Hook(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	abortCause := errors.New("caller shut down")
	abortCtx, cancel := context.WithCancelCause(context.Background())
	Start[int](f, fut, abortCtx, Config{StallDebounce: time.Hour}, nil)
	cancel(abortCause)

	waitSettled(t, fut.Done())
	_, gotErr := fut.Value()
	flt := asFault(t, gotErr)
	if flt.Code != fault.FiberAborted {
		t.Fatalf("expected FIBER_ABORTED, got %s", flt.Code)
	}
	if !strings.Contains(flt.Message, abortCause.Error()) {
		t.Fatalf("expected fault message to surface the cancellation cause, got %q", flt.Message)
	}
}

func TestWatchdog_CleanResolutionSettlesSuccessfully(t *testing.T) {
	reg, f, ctx := newEnabledFiber(t)
	defer reg.Disable(f)

	fut, _, err := future.New[int](ctx, reg.Hook(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	Start[int](f, fut, nil, Config{StallDebounce: testDebounce}, nil)
	fut.Resolve(7)

	waitSettled(t, fut.Done())
	v, err := fut.Value()
	if err != nil {
		t.Fatalf("expected clean resolution, got error %v", err)
	}
	if v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
}
