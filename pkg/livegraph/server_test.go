package livegraph

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recera/fiberiso/pkg/fault"
	"github.com/recera/fiberiso/pkg/graph"
)

func TestServer_BroadcastReachesConnectedSession(t *testing.T) {
	srv := NewServer(nil)
	defer srv.Close()

	ts := httptest.NewServer(srv)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Give ServeHTTP a moment to register the session before broadcasting.
	time.Sleep(20 * time.Millisecond)

	srv.Broadcast(Event{Kind: EventInit, FiberID: 7, AsyncID: 3, NodeType: "PROMISE"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.FiberID != 7 || got.AsyncID != 3 || got.Kind != EventInit {
		t.Fatalf("unexpected event: %+v", got)
	}
}

type recordingObserver struct {
	initCalled, beforeCalled, afterCalled, resolveCalled bool
	returnErr                                            error
}

func (r *recordingObserver) OnInit(n, child *graph.Node) error { r.initCalled = true; return r.returnErr }
func (r *recordingObserver) OnBefore(n *graph.Node) error      { r.beforeCalled = true; return r.returnErr }
func (r *recordingObserver) OnAfter(n *graph.Node) error       { r.afterCalled = true; return r.returnErr }
func (r *recordingObserver) OnPromiseResolve(n *graph.Node) error {
	r.resolveCalled = true
	return r.returnErr
}

func TestTap_BroadcastsAndDelegates(t *testing.T) {
	srv := NewServer(nil)
	defer srv.Close()

	parent := graph.New("EXECUTION_CONTEXT", 1, nil, nil, nil, nil)
	child := graph.New("PROMISE", 1, parent, parent, nil, nil)

	inner := &recordingObserver{}
	tap := NewTap(srv, inner)

	if err := tap.OnInit(parent, child); err != nil {
		t.Fatalf("OnInit returned error: %v", err)
	}
	if !inner.initCalled {
		t.Fatal("expected OnInit to delegate to inner observer")
	}

	if err := tap.OnBefore(child); err != nil {
		t.Fatalf("OnBefore returned error: %v", err)
	}
	if !inner.beforeCalled {
		t.Fatal("expected OnBefore to delegate to inner observer")
	}

	inner.returnErr = fault.New(fault.FiberStall, 1, child, "no work remains")
	if err := tap.OnAfter(child); err == nil {
		t.Fatal("expected OnAfter to propagate inner's fault")
	}
	if !inner.afterCalled {
		t.Fatal("expected OnAfter to delegate to inner observer")
	}
}

func TestTap_NilInnerOnlyBroadcasts(t *testing.T) {
	srv := NewServer(nil)
	defer srv.Close()

	parent := graph.New("EXECUTION_CONTEXT", 1, nil, nil, nil, nil)
	tap := NewTap(srv, nil)

	if err := tap.OnPromiseResolve(parent); err != nil {
		t.Fatalf("expected nil error with no inner observer, got %v", err)
	}
}
