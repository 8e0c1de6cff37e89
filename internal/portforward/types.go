package portforward

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBusy is returned when another lifecycle operation is in flight.
	ErrBusy = errors.New("another port forward operation is in progress")
	// ErrNotResolvable is returned by Start when the target's container port
	// or backing pods cannot be resolved. Nothing was attempted.
	ErrNotResolvable = errors.New("port forward target is not resolvable")
	// ErrNoSession is returned by Stop without a running session and by Delete
	// without a current session.
	ErrNoSession = errors.New("no port forward session for target")
)

// Kind is the kind of resource a view targets.
type Kind string

const (
	KindPod     Kind = "pod"
	KindService Kind = "service"
)

// ParseKind accepts pod, po, service and svc.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "pod", "pods", "po":
		return KindPod, nil
	case "service", "services", "svc":
		return KindService, nil
	default:
		return "", fmt.Errorf("unsupported target kind %q (expected pod or service)", s)
	}
}

// View is the target a controller manages sessions for.
type View struct {
	Cluster   string
	Namespace string
	Kind      Kind
	Name      string
	// Port is the container port as given by the user: a number or a port name.
	Port string
}

func (v View) String() string {
	return fmt.Sprintf("%s/%s/%s/%s:%s", v.Cluster, v.Namespace, v.Kind, v.Name, v.Port)
}

// State is the lifecycle state of a view.
type State string

const (
	StateNoSession State = "NoSession"
	StateStarting  State = "Starting"
	StateRunning   State = "Running"
	StateStopped   State = "Stopped"
	StateDeleting  State = "Deleting"
)

// Resolver answers cluster questions needed before a start.
type Resolver interface {
	// ContainerPort returns the numeric container port for the target, 0 if
	// it cannot be resolved.
	ContainerPort(ctx context.Context, cluster, namespace, kind, name, port string) (int, error)
	// BackingPods returns the pods behind a service, preferred pod first.
	BackingPods(ctx context.Context, cluster, namespace, service string) ([]string, error)
}

// Environment reports whether forwards for a cluster run constrained.
type Environment interface {
	Constrained(ctx context.Context, cluster string) bool
}

// StaticEnvironment is an Environment with a fixed answer.
type StaticEnvironment bool

func (e StaticEnvironment) Constrained(context.Context, string) bool { return bool(e) }
