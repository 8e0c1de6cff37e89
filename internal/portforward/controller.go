package portforward

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"pfctl/internal/allocator"
	"pfctl/internal/control"
	"pfctl/internal/session"
	"pfctl/internal/store"
	"pfctl/pkg/logging"
)

// Options are the controller's collaborators. All are required except
// Environment, which defaults to unconstrained.
type Options struct {
	Store       *store.SessionStore
	Client      control.Client
	Resolver    Resolver
	Allocator   *allocator.Allocator
	Environment Environment
}

// Snapshot is a consistent copy of a controller's observable state.
type Snapshot struct {
	State   State
	Session *session.Session
	Err     string
}

// Controller drives the session lifecycle of one view.
type Controller struct {
	view      View
	store     *store.SessionStore
	client    control.Client
	resolver  Resolver
	allocator *allocator.Allocator
	env       Environment
	subsystem string

	mu      sync.Mutex
	busy    bool
	state   State
	current *session.Session
	errMsg  string
}

// New creates a controller for view.
func New(view View, opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Client == nil || opts.Resolver == nil || opts.Allocator == nil {
		return nil, errors.New("portforward controller needs a store, a client, a resolver and an allocator")
	}
	if view.Kind != KindPod && view.Kind != KindService {
		return nil, fmt.Errorf("unsupported target kind %q", view.Kind)
	}
	env := opts.Environment
	if env == nil {
		env = StaticEnvironment(false)
	}
	return &Controller{
		view:      view,
		store:     opts.Store,
		client:    opts.Client,
		resolver:  opts.Resolver,
		allocator: opts.Allocator,
		env:       env,
		subsystem: "PortForward-" + view.String(),
		state:     StateNoSession,
	}, nil
}

// View returns the controller's target.
func (c *Controller) View() View { return c.view }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the session shown for the view, if any.
func (c *Controller) Current() (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return session.Session{}, false
	}
	return *c.current, true
}

// Err returns the message of the last failed remote call, empty after a success.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Snapshot returns state, current session and error message together.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{State: c.state, Err: c.errMsg}
	if c.current != nil {
		cp := *c.current
		snap.Session = &cp
	}
	return snap
}

// Busy reports whether an operation is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	return nil
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// setCurrent installs s (nil clears) and derives the stable state from it.
func (c *Controller) setCurrent(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
	switch {
	case s == nil:
		c.state = StateNoSession
	case s.IsRunning():
		c.state = StateRunning
	default:
		c.state = StateStopped
	}
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg = control.Message(err)
	c.current = nil
	c.state = StateNoSession
}

func (c *Controller) clearErr() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg = ""
}

// target resolves the view into a matchable target. ContainerPort is 0
// when the port cannot be resolved.
func (c *Controller) target(ctx context.Context) session.Target {
	t := session.Target{Cluster: c.view.Cluster, Namespace: c.view.Namespace, Name: c.view.Name}
	if t.Cluster == "" || t.Namespace == "" || t.Name == "" || c.view.Port == "" {
		return t
	}
	port, err := c.resolver.ContainerPort(ctx, c.view.Cluster, c.view.Namespace, string(c.view.Kind), c.view.Name, c.view.Port)
	if err != nil {
		logging.Debug(c.subsystem, "Could not resolve container port %s: %v", c.view.Port, err)
		return t
	}
	t.ContainerPort = port
	return t
}

// ReconcileCluster lists the agent's sessions for cluster, merges them with
// the stored ones and persists the result. Records of other clusters are
// kept as they are. It returns the merged sessions of cluster. A failed list
// leaves the store untouched.
func ReconcileCluster(ctx context.Context, client control.Client, st *store.SessionStore, cluster string) ([]session.Session, error) {
	server, err := client.List(ctx, cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for cluster %s: %w", cluster, err)
	}

	var clusterMerged []session.Session
	if _, err := st.Update(ctx, func(cached []session.Session) []session.Session {
		var others, mine []session.Session
		for _, s := range cached {
			if s.Cluster == cluster {
				mine = append(mine, s)
			} else {
				others = append(others, s)
			}
		}
		clusterMerged = session.Reconcile(server, mine)
		return append(others, clusterMerged...)
	}); err != nil {
		return nil, fmt.Errorf("failed to persist reconciled sessions: %w", err)
	}

	for key, group := range session.Duplicates(clusterMerged) {
		logging.Warn("PortForward-"+cluster, "%d sessions forward to %s/%s:%s, using the last one", len(group), key.Namespace, key.Name, key.TargetPort)
	}
	return session.Dedupe(clusterMerged), nil
}

// Reconcile reconciles the view's cluster and selects the session matching
// the view.
func (c *Controller) Reconcile(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	merged, err := ReconcileCluster(ctx, c.client, c.store, c.view.Cluster)
	if err != nil {
		c.mu.Lock()
		c.errMsg = control.Message(err)
		c.mu.Unlock()
		return err
	}

	target := c.target(ctx)
	if !target.Resolved() {
		c.setCurrent(nil)
		return nil
	}
	if match, ok := session.FindMatch(merged, target); ok {
		c.setCurrent(&match)
	} else {
		c.setCurrent(nil)
	}
	return nil
}

// Start starts a forward for the view, or restarts the stopped session for
// it under the same id and local port. A running session is returned as is.
func (c *Controller) Start(ctx context.Context) (session.Session, error) {
	if err := c.acquire(); err != nil {
		return session.Session{}, err
	}
	defer c.release()

	target := c.target(ctx)
	if !target.Resolved() {
		return session.Session{}, ErrNotResolvable
	}

	req := control.StartRequest{
		Cluster:    target.Cluster,
		Namespace:  target.Namespace,
		Pod:        target.Name,
		TargetPort: target.PortString(),
	}
	if c.view.Kind == KindService {
		pods, err := c.resolver.BackingPods(ctx, target.Cluster, target.Namespace, target.Name)
		if err != nil || len(pods) == 0 {
			if err != nil {
				logging.Debug(c.subsystem, "Could not discover backing pods: %v", err)
			}
			return session.Session{}, ErrNotResolvable
		}
		req.Pod = pods[0]
		req.Service = target.Name
		req.ServiceNamespace = target.Namespace
	}

	existing, hasExisting := c.Current()
	if hasExisting && existing.IsRunning() {
		return existing, nil
	}
	if hasExisting {
		req.ID = existing.ID
	}

	// Constrained hosts always draw a fresh port from the published range,
	// restarts included.
	if c.env.Constrained(ctx, target.Cluster) {
		req.Address = allocator.WildcardAddress
		active, err := c.store.ReadAll(ctx)
		if err != nil {
			return session.Session{}, fmt.Errorf("failed to read sessions: %w", err)
		}
		port, err := c.allocator.Allocate(active)
		if err != nil {
			c.fail(err)
			return session.Session{}, err
		}
		req.Port = strconv.Itoa(port)
	} else {
		req.Address = allocator.LoopbackAddress
		if hasExisting {
			req.Port = existing.Port
		}
	}

	c.setState(StateStarting)
	logging.Info(c.subsystem, "Starting port forward to %s/%s:%s", req.Namespace, req.Pod, req.TargetPort)

	started, err := c.client.Start(ctx, req)
	if err != nil {
		c.fail(err)
		logging.Warn(c.subsystem, "Start failed: %s", control.Message(err))
		return session.Session{}, err
	}

	c.clearErr()
	c.setCurrent(&started)

	if _, err := c.store.Update(ctx, func(list []session.Session) []session.Session {
		return session.Upsert(list, started)
	}); err != nil {
		logging.Error(c.subsystem, err, "Failed to persist started session %s", started.ID)
		return started, fmt.Errorf("failed to persist session %s: %w", started.ID, err)
	}
	logging.Info(c.subsystem, "Port forward %s running on %s:%s", started.ID, started.Address, started.Port)
	return started, nil
}

// Stop stops the current session. The record stays in the store as Stopped
// so it can be restarted.
func (c *Controller) Stop(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	cur, ok := c.Current()
	if !ok || cur.Cluster == "" || !cur.IsRunning() {
		return ErrNoSession
	}

	if err := c.client.Stop(ctx, cur.Cluster, cur.ID); err != nil {
		c.fail(err)
		logging.Warn(c.subsystem, "Stop of %s failed: %s", cur.ID, control.Message(err))
		return err
	}

	cur.Status = session.StatusStopped
	c.clearErr()
	c.setCurrent(&cur)

	if _, err := c.store.Update(ctx, func(list []session.Session) []session.Session {
		return session.Upsert(list, cur)
	}); err != nil {
		logging.Error(c.subsystem, err, "Failed to persist stopped session %s", cur.ID)
		return fmt.Errorf("failed to persist session %s: %w", cur.ID, err)
	}
	logging.Info(c.subsystem, "Port forward %s stopped", cur.ID)
	return nil
}

// Delete deletes the current session. The local record is removed even when
// the agent rejects the delete; that failure is logged, not returned.
func (c *Controller) Delete(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	cur, ok := c.Current()
	if !ok {
		return ErrNoSession
	}

	c.setState(StateDeleting)
	if err := c.client.Delete(ctx, cur.Cluster, cur.ID); err != nil {
		logging.Warn(c.subsystem, "Agent delete of %s failed, removing it locally anyway: %s", cur.ID, control.Message(err))
	}

	c.setCurrent(nil)
	if _, err := c.store.Update(ctx, func(list []session.Session) []session.Session {
		return session.Remove(list, cur.ID)
	}); err != nil {
		logging.Error(c.subsystem, err, "Failed to remove session %s from store", cur.ID)
		return fmt.Errorf("failed to remove session %s: %w", cur.ID, err)
	}
	logging.Info(c.subsystem, "Port forward %s deleted", cur.ID)
	return nil
}
