// Package session holds the port-forward session record and the pure
// algorithms that operate on lists of them.
//
// Two sources describe the same forwards: the agent's in-memory list, which
// is authoritative for what is currently forwarding but is lost whenever the
// agent restarts, and the local cache, which outlives it. Reconcile merges
// the two, keeping every server record and retaining cached records the
// server no longer knows about as Stopped orphans so they can be restarted.
//
// FindMatch selects the session belonging to a view's target. A session
// created for a service matches through its serviceNamespace and service
// name, one created for a pod through namespace and pod name.
package session
