// Package control defines the channel to the forwarding agent, the remote
// authority that actually runs port-forwards. The agent owns no durable
// state; everything it reports is lost when it restarts.
package control

import (
	"context"
	"errors"
	"fmt"

	"pfctl/internal/session"
)

// Client starts, stops and lists forwards on an agent.
type Client interface {
	// List returns every session the agent knows for cluster.
	List(ctx context.Context, cluster string) ([]session.Session, error)
	// Start begins forwarding and returns the authoritative session record.
	Start(ctx context.Context, req StartRequest) (session.Session, error)
	// Stop ends forwarding but keeps the session known to the agent.
	Stop(ctx context.Context, cluster, id string) error
	// Delete ends forwarding and forgets the session.
	Delete(ctx context.Context, cluster, id string) error
}

// StartRequest carries everything the agent needs to open a forward.
type StartRequest struct {
	Cluster          string `json:"cluster"`
	Namespace        string `json:"namespace"`
	Pod              string `json:"pod"`
	TargetPort       string `json:"targetPort"`
	Service          string `json:"service,omitempty"`
	ServiceNamespace string `json:"serviceNamespace,omitempty"`
	// Port is the requested local port; empty lets the agent choose.
	Port    string `json:"port,omitempty"`
	Address string `json:"address,omitempty"`
	// ID restarts an existing session under the same id.
	ID string `json:"id,omitempty"`
}

// Validate checks the fields every start needs.
func (r StartRequest) Validate() error {
	switch {
	case r.Cluster == "":
		return errors.New("cluster is required")
	case r.Namespace == "":
		return errors.New("namespace is required")
	case r.Pod == "":
		return errors.New("pod is required")
	case r.TargetPort == "" || r.TargetPort == "0":
		return errors.New("targetPort is required")
	}
	return nil
}

// RemoteError is a failure reported by the agent.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s port forward: %s", e.Op, e.Message)
}

// Remote wraps message as a RemoteError for op.
func Remote(op, message string) error {
	return &RemoteError{Op: op, Message: message}
}

// Message extracts the user facing message from err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
