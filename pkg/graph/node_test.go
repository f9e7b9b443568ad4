package graph

import (
	"errors"
	"testing"
)

var errBoom = errors.New("boom")

type recordingObserver struct {
	initCalls, beforeCalls, afterCalls, resolveCalls int
	returnErr                                        error
}

func (r *recordingObserver) OnInit(n, child *Node) error { r.initCalls++; return r.returnErr }
func (r *recordingObserver) OnBefore(n *Node) error      { r.beforeCalls++; return r.returnErr }
func (r *recordingObserver) OnAfter(n *Node) error       { r.afterCalls++; return r.returnErr }
func (r *recordingObserver) OnPromiseResolve(n *Node) error {
	r.resolveCalls++
	return r.returnErr
}

func TestNode_FinalizedEitherPostExecutionOrResolved(t *testing.T) {
	n := New("PROMISE", 1, nil, nil, nil, nil)
	if n.Finalized() {
		t.Fatal("freshly created node should not be finalized")
	}
	if err := n.HandlePromiseResolve(); err != nil {
		t.Fatalf("HandlePromiseResolve returned error: %v", err)
	}
	if !n.Finalized() {
		t.Fatal("resolving a node should finalize it even without POST_EXECUTION")
	}
}

func TestNode_HandleAfterFinalizesAndDetaches(t *testing.T) {
	n := New("EXECUTION_CONTEXT", 1, nil, nil, nil, nil)
	obs := &recordingObserver{}
	n.Attach(obs)

	if err := n.HandleBefore(); err != nil {
		t.Fatalf("HandleBefore returned error: %v", err)
	}
	if obs.beforeCalls != 1 {
		t.Fatalf("expected 1 OnBefore call, got %d", obs.beforeCalls)
	}

	if err := n.HandleAfter(); err != nil {
		t.Fatalf("HandleAfter returned error: %v", err)
	}
	if obs.afterCalls != 1 {
		t.Fatalf("expected 1 OnAfter call, got %d", obs.afterCalls)
	}
	if !n.Finalized() {
		t.Fatal("expected node to be finalized after HandleAfter")
	}
	if n.Observer() != nil {
		t.Fatal("expected observer to be detached after HandleAfter")
	}
}

func TestNode_NewWiresExecutionAndTriggerEdges(t *testing.T) {
	creator := New("EXECUTION_CONTEXT", 1, nil, nil, nil, nil)
	trigger := New("PROMISE", 1, nil, nil, nil, nil)
	child := New("PROMISE", 1, creator, trigger, nil, nil)

	if child.ExecutionOrigin() != creator {
		t.Fatal("expected child's execution origin to be creator")
	}
	if child.TriggerOrigin() != trigger {
		t.Fatal("expected child's trigger origin to be trigger")
	}

	found := false
	for _, t2 := range creator.ExecutionTargets() {
		if t2 == child {
			found = true
		}
	}
	if !found {
		t.Fatal("expected creator to list child as an execution target")
	}

	found = false
	for _, t2 := range trigger.TriggerTargets() {
		if t2 == child {
			found = true
		}
	}
	if !found {
		t.Fatal("expected trigger to list child as a trigger target")
	}
}

func TestNode_HandleInitPropagatesObserverError(t *testing.T) {
	creator := New("EXECUTION_CONTEXT", 1, nil, nil, nil, nil)
	obs := &recordingObserver{returnErr: errBoom}
	creator.Attach(obs)

	child := New("PROMISE", 1, creator, creator, nil, nil)
	err := creator.HandleInit(child)
	if err != errBoom {
		t.Fatalf("expected HandleInit to propagate observer error, got %v", err)
	}
	if obs.initCalls != 1 {
		t.Fatalf("expected 1 OnInit call, got %d", obs.initCalls)
	}
}

func TestNode_InactiveNodeIgnoresEvents(t *testing.T) {
	n := New("PROMISE", 1, nil, nil, nil, nil)
	obs := &recordingObserver{}
	n.Attach(obs)
	n.SetActive(false)

	if err := n.HandleBefore(); err != nil {
		t.Fatalf("HandleBefore returned error: %v", err)
	}
	if obs.beforeCalls != 0 {
		t.Fatal("expected no OnBefore call on an inactive node")
	}
	if n.Flags().Any(FlagPreExecution) {
		t.Fatal("expected an inactive node's flags to be untouched")
	}
}
