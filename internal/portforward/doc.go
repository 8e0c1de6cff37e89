// Package portforward implements the session lifecycle controller: for one
// viewed target (a pod or service port in a cluster) it reconciles the
// agent's session list with the local store and drives start, stop and
// delete through the control client.
//
// A controller allows one lifecycle operation at a time. A second request
// while one is in flight fails with ErrBusy instead of queueing.
package portforward
