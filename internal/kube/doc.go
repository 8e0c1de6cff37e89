// Package kube provides the Kubernetes side of pfctl: cached clients per
// kubeconfig context, a client-go port forwarder that backs the agent, and
// the discovery helpers the lifecycle controller uses to resolve container
// ports and the pods behind a service.
//
// A cluster id throughout pfctl is the name of a kubeconfig context.
package kube
