package fiberiso

import (
	"context"
	"testing"
	"time"

	"github.com/recera/fiberiso/pkg/fault"
	"github.com/recera/fiberiso/pkg/future"
	"github.com/recera/fiberiso/pkg/watchdog"
)

func TestFiber_CleanResolutionReturnsValue(t *testing.T) {
	res := Fiber[int](context.Background(), func(ctx context.Context) *future.Future[int] {
		fut, _, err := future.Resolved(ctx, Hook(), 99)
		if err != nil {
			t.Fatalf("Resolved returned error: %v", err)
		}
		return fut
	})

	select {
	case <-res.Return.Done():
	case <-time.After(time.Second):
		t.Fatal("future never settled")
	}

	v, err := res.Return.Value()
	if err != nil {
		t.Fatalf("expected clean resolution, got %v", err)
	}
	if v != 99 {
		t.Fatalf("expected 99, got %d", v)
	}
}

func TestFiber_StallRejectsWithFiberStall(t *testing.T) {
	res := Fiber[int](context.Background(), func(ctx context.Context) *future.Future[int] {
		fut, _, err := future.New[int](ctx, Hook(), nil)
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		return fut
	}, Option{Watchdog: watchdog.Config{StallDebounce: 10 * time.Millisecond}})

	select {
	case <-res.Return.Done():
	case <-time.After(time.Second):
		t.Fatal("future never settled")
	}

	_, err := res.Return.Value()
	flt, ok := err.(*fault.Fault)
	if !ok {
		t.Fatalf("expected a *fault.Fault, got %v", err)
	}
	if flt.Code != fault.FiberStall {
		t.Fatalf("expected FIBER_STALL, got %s", flt.Code)
	}
}

func TestEnableDisable_ReturnsSameFiberWhileActive(t *testing.T) {
	_, f1 := Enable(context.Background())
	defer Disable()

	_, f2 := Enable(context.Background())
	if f1 != f2 {
		t.Fatal("expected a second Enable call to return the already-active fiber")
	}
	if GetFiber() != f1 {
		t.Fatal("expected GetFiber to return the active fiber")
	}
}

func TestDisable_ReturnsNilWhenNothingActive(t *testing.T) {
	if Disable() != nil {
		t.Fatal("expected Disable to return nil with no active fiber")
	}
}

func TestGetFiberNode_NilForBareContext(t *testing.T) {
	if GetFiberNode(context.Background()) != nil {
		t.Fatal("expected GetFiberNode to return nil for a context carrying no node")
	}
}
