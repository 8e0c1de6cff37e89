// Package agent runs port-forwards on behalf of clients and keeps the
// authoritative, in-memory list of sessions. It implements control.Client
// directly, so it can be used in-process or served over HTTP by package remote.
package agent

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"pfctl/internal/control"
	"pfctl/internal/session"
	"pfctl/pkg/logging"
)

// ForwardSpec describes one tunnel to open.
type ForwardSpec struct {
	Cluster    string
	Namespace  string
	Pod        string
	RemotePort int
	// LocalPort 0 lets the forwarder pick a free port.
	LocalPort int
	Address   string
}

// Tunnel is an open forward.
type Tunnel interface {
	// LocalPort is the port actually bound.
	LocalPort() int
	// Done is closed when the tunnel ends for any reason.
	Done() <-chan struct{}
	// Err reports why the tunnel ended, nil for a requested close.
	Err() error
	Close()
}

// Forwarder opens tunnels. The Kubernetes implementation lives in package kube.
type Forwarder interface {
	Forward(ctx context.Context, spec ForwardSpec) (Tunnel, error)
}

type entry struct {
	session session.Session
	tunnel  Tunnel
}

// Agent tracks sessions and their tunnels.
type Agent struct {
	forwarder Forwarder
	newID     func() string

	mu       sync.Mutex
	sessions map[string]*entry
	order    []string
}

var _ control.Client = (*Agent)(nil)

// New creates an agent using forwarder to open tunnels.
func New(forwarder Forwarder) *Agent {
	return &Agent{
		forwarder: forwarder,
		newID:     uuid.NewString,
		sessions:  make(map[string]*entry),
	}
}

// List returns the sessions of cluster in creation order.
func (a *Agent) List(_ context.Context, cluster string) ([]session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]session.Session, 0, len(a.order))
	for _, id := range a.order {
		e := a.sessions[id]
		if cluster == "" || e.session.Cluster == cluster {
			out = append(out, e.session)
		}
	}
	return out, nil
}

// Start opens a tunnel. A request carrying the id of a known session restarts
// that session; starting a session that is already running returns it unchanged.
func (a *Agent) Start(ctx context.Context, req control.StartRequest) (session.Session, error) {
	if err := req.Validate(); err != nil {
		return session.Session{}, control.Remote("start", err.Error())
	}
	remotePort, err := strconv.Atoi(req.TargetPort)
	if err != nil || remotePort < 1 || remotePort > 65535 {
		return session.Session{}, control.Remote("start", fmt.Sprintf("invalid target port %q", req.TargetPort))
	}
	localPort := 0
	if req.Port != "" {
		localPort, err = strconv.Atoi(req.Port)
		if err != nil || localPort < 0 || localPort > 65535 {
			return session.Session{}, control.Remote("start", fmt.Sprintf("invalid local port %q", req.Port))
		}
	}
	address := req.Address
	if address == "" {
		address = "localhost"
	}

	a.mu.Lock()
	if req.ID != "" {
		if e, ok := a.sessions[req.ID]; ok && e.session.IsRunning() {
			a.mu.Unlock()
			return e.session, nil
		}
	}
	if owner := a.portOwner(req.Port, req.ID); owner != "" {
		a.mu.Unlock()
		return session.Session{}, control.Remote("start", fmt.Sprintf("local port %s is already used by session %s", req.Port, owner))
	}
	a.mu.Unlock()

	subsystem := "Agent-" + req.Cluster
	logging.Info(subsystem, "Starting port forward %s/%s:%d on %s:%d", req.Namespace, req.Pod, remotePort, address, localPort)

	tunnel, err := a.forwarder.Forward(ctx, ForwardSpec{
		Cluster:    req.Cluster,
		Namespace:  req.Namespace,
		Pod:        req.Pod,
		RemotePort: remotePort,
		LocalPort:  localPort,
		Address:    address,
	})
	if err != nil {
		logging.Error(subsystem, err, "Failed to start port forward to %s/%s", req.Namespace, req.Pod)
		return session.Session{}, control.Remote("start", err.Error())
	}

	id := req.ID
	if id == "" {
		id = a.newID()
	}
	s := session.Session{
		ID:               id,
		Cluster:          req.Cluster,
		Namespace:        req.Namespace,
		ServiceNamespace: req.ServiceNamespace,
		Pod:              req.Pod,
		Service:          req.Service,
		TargetPort:       req.TargetPort,
		Port:             strconv.Itoa(tunnel.LocalPort()),
		Address:          address,
		Status:           session.StatusRunning,
	}

	a.mu.Lock()
	e, known := a.sessions[id]
	if !known {
		e = &entry{}
		a.sessions[id] = e
		a.order = append(a.order, id)
	} else if e.tunnel != nil {
		// Lost a race with a concurrent restart of the same id.
		e.tunnel.Close()
	}
	e.session = s
	e.tunnel = tunnel
	a.mu.Unlock()

	go a.watch(id, tunnel)

	logging.Info(subsystem, "Port forward %s active on %s:%s", id, s.Address, s.Port)
	return s, nil
}

// portOwner returns the id of a running session other than self bound to port.
// Callers hold a.mu.
func (a *Agent) portOwner(port, self string) string {
	if port == "" || port == "0" {
		return ""
	}
	for id, e := range a.sessions {
		if id != self && e.session.IsRunning() && e.session.Port == port {
			return id
		}
	}
	return ""
}

// watch marks the session stopped when its tunnel ends on its own.
func (a *Agent) watch(id string, t Tunnel) {
	<-t.Done()

	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.sessions[id]
	if !ok || e.tunnel != t {
		return
	}
	e.tunnel = nil
	e.session.Status = session.StatusStopped
	if err := t.Err(); err != nil {
		logging.Warn("Agent-"+e.session.Cluster, "Port forward %s ended: %v", id, err)
	} else {
		logging.Info("Agent-"+e.session.Cluster, "Port forward %s ended", id)
	}
}

// Stop closes the tunnel and keeps the session as Stopped.
func (a *Agent) Stop(_ context.Context, cluster, id string) error {
	a.mu.Lock()
	e, err := a.lookup("stop", cluster, id)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	t := e.tunnel
	e.tunnel = nil
	e.session.Status = session.StatusStopped
	a.mu.Unlock()

	if t != nil {
		t.Close()
	}
	logging.Info("Agent-"+cluster, "Stopped port forward %s", id)
	return nil
}

// Delete closes the tunnel and forgets the session.
func (a *Agent) Delete(_ context.Context, cluster, id string) error {
	a.mu.Lock()
	e, err := a.lookup("delete", cluster, id)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	t := e.tunnel
	delete(a.sessions, id)
	for i, oid := range a.order {
		if oid == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.mu.Unlock()

	if t != nil {
		t.Close()
	}
	logging.Info("Agent-"+cluster, "Deleted port forward %s", id)
	return nil
}

// lookup finds a session of cluster. Callers hold a.mu.
func (a *Agent) lookup(op, cluster, id string) (*entry, error) {
	e, ok := a.sessions[id]
	if !ok || (cluster != "" && e.session.Cluster != cluster) {
		return nil, control.Remote(op, fmt.Sprintf("port forward %s not found in cluster %s", id, cluster))
	}
	return e, nil
}

// Close stops every tunnel. Sessions stay listed as Stopped.
func (a *Agent) Close() {
	a.mu.Lock()
	var tunnels []Tunnel
	for _, e := range a.sessions {
		if e.tunnel != nil {
			tunnels = append(tunnels, e.tunnel)
			e.tunnel = nil
			e.session.Status = session.StatusStopped
		}
	}
	a.mu.Unlock()

	for _, t := range tunnels {
		t.Close()
	}
	logging.Info("Agent", "Closed %d port forwards", len(tunnels))
}
