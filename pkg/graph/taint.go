package graph

// Taint ORs flag into root if root has no bit of mask set and does not
// already bear flag, then recurses into both execution and trigger targets.
// The guard — testing before recursing — is what makes this safe on the
// trigger cycles two mutually-awaiting futures can form; a node with any bit
// of mask set is exempt, and a node already bearing flag has already
// propagated it, so recursion stops at either.
//
// Policy (spec.md §4.3): call Taint(fiberRoot, FlagFinalized, FlagAborted)
// when a fiber's cancellation signal fires. Any node not already finished
// inherits ABORTED; finished nodes are skipped and do not propagate
// further.
func Taint(root *Node, mask, flag Flag) {
	if root == nil {
		return
	}
	f := root.Flags()
	if f.Any(mask) {
		// Already finished: exempt from taint, and stop — its subgraph was
		// tainted (or exempted) when it was last visited, if ever.
		return
	}
	if f.Any(flag) {
		// Already bears this taint: re-entry guard for trigger cycles.
		return
	}
	root.mark(flag)
	for _, t := range root.ExecutionTargets() {
		Taint(t, mask, flag)
	}
	for _, t := range root.TriggerTargets() {
		Taint(t, mask, flag)
	}
}
