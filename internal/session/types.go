package session

import (
	"fmt"
	"strconv"
)

// Status is the state of a forwarding session as seen by the agent.
type Status string

const (
	StatusRunning Status = "Running"
	StatusStopped Status = "Stopped"
)

// Session describes one port-forward. Field names match the agent wire format.
type Session struct {
	ID               string `json:"id" yaml:"id"`
	Cluster          string `json:"cluster" yaml:"cluster"`
	Namespace        string `json:"namespace" yaml:"namespace"`
	ServiceNamespace string `json:"serviceNamespace,omitempty" yaml:"serviceNamespace,omitempty"`
	Pod              string `json:"pod" yaml:"pod"`
	Service          string `json:"service,omitempty" yaml:"service,omitempty"`
	TargetPort       string `json:"targetPort" yaml:"targetPort"`
	Port             string `json:"port" yaml:"port"`
	Address          string `json:"address,omitempty" yaml:"address,omitempty"`
	Status           Status `json:"status" yaml:"status"`
}

// IsRunning reports whether the session is currently forwarding.
func (s Session) IsRunning() bool {
	return s.Status == StatusRunning
}

// IsService reports whether the session was created for a service.
func (s Session) IsService() bool {
	return s.Service != ""
}

// TargetName is the pod or service name the session forwards to.
func (s Session) TargetName() string {
	if s.IsService() {
		return s.Service
	}
	return s.Pod
}

// LogicalNamespace is the namespace the user addressed: the service's for
// service forwards, the pod's otherwise.
func (s Session) LogicalNamespace() string {
	if s.IsService() && s.ServiceNamespace != "" {
		return s.ServiceNamespace
	}
	return s.Namespace
}

// Key identifies the session's target tuple.
func (s Session) Key() TargetKey {
	return TargetKey{
		Cluster:    s.Cluster,
		Namespace:  s.LogicalNamespace(),
		Name:       s.TargetName(),
		TargetPort: s.TargetPort,
	}
}

// URL is the local address users connect to.
func (s Session) URL() string {
	return "http://127.0.0.1:" + s.Port
}

func (s Session) String() string {
	kind := "pod"
	if s.IsService() {
		kind = "service"
	}
	return fmt.Sprintf("%s %s/%s %s/%s:%s -> %s:%s (%s)", s.ID, s.Cluster, s.LogicalNamespace(), kind, s.TargetName(), s.TargetPort, s.Address, s.Port, s.Status)
}

// TargetKey is the (cluster, namespace, name, port) tuple a session forwards to.
type TargetKey struct {
	Cluster    string
	Namespace  string
	Name       string
	TargetPort string
}

// Target is what a view is interested in forwarding.
type Target struct {
	Cluster   string
	Namespace string
	Name      string
	// ContainerPort is the numeric container port; 0 means it could not be resolved.
	ContainerPort int
}

// Resolved reports whether the target carries everything needed to match or start a session.
func (t Target) Resolved() bool {
	return t.Cluster != "" && t.Namespace != "" && t.Name != "" && t.ContainerPort > 0
}

// PortString is the container port in the textual form sessions store it in.
func (t Target) PortString() string {
	return strconv.Itoa(t.ContainerPort)
}
