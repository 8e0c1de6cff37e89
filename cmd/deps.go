package cmd

import (
	"fmt"
	"strings"

	"pfctl/internal/allocator"
	"pfctl/internal/config"
	"pfctl/internal/control"
	"pfctl/internal/environment"
	"pfctl/internal/kube"
	"pfctl/internal/portforward"
	"pfctl/internal/remote"
	"pfctl/internal/store"
)

// For mocking in tests
var loadConfig = config.LoadConfig

// deps wires the components a client command needs.
type deps struct {
	cfg       config.PfctlConfig
	client    control.Client
	store     *store.SessionStore
	resolver  portforward.Resolver
	allocator *allocator.Allocator
	env       portforward.Environment
}

var newDeps = func() (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return buildDeps(cfg)
}

func buildDeps(cfg config.PfctlConfig) (*deps, error) {
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	alloc, err := allocator.New(allocator.Config{
		MinPort:     cfg.Environment.PortRange.Min,
		MaxPort:     cfg.Environment.PortRange.Max,
		MaxAttempts: cfg.Environment.MaxAttempts,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	mode, err := environment.ParseMode(cfg.Environment.Mode)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &deps{
		cfg:       cfg,
		client:    remote.NewClient(cfg.AgentURL(), cfg.Agent.Timeout),
		store:     st,
		resolver:  kube.NewDiscovery(kube.NewClients()),
		allocator: alloc,
		env:       environment.NewDetector(mode),
	}, nil
}

func (d *deps) Close() {
	if d.store != nil {
		d.store.Close()
	}
}

// newController builds the controller for view.
func (d *deps) newController(view portforward.View) (*portforward.Controller, error) {
	c, err := portforward.New(view, portforward.Options{
		Store:       d.store,
		Client:      d.client,
		Resolver:    d.resolver,
		Allocator:   d.allocator,
		Environment: d.env,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// targetFlags are the flags shared by commands that act on one target.
type targetFlags struct {
	cluster   string
	namespace string
}

// parseView turns "<kind>/<name> <port>" into a view. A bare name is a pod.
func parseView(flags targetFlags, args []string) (portforward.View, error) {
	if len(args) != 2 {
		return portforward.View{}, fmt.Errorf("expected <kind>/<name> <port>, got %d arguments", len(args))
	}

	kind, name := portforward.KindPod, args[0]
	if k, n, ok := strings.Cut(args[0], "/"); ok {
		parsed, err := portforward.ParseKind(k)
		if err != nil {
			return portforward.View{}, err
		}
		kind, name = parsed, n
	}
	if name == "" {
		return portforward.View{}, fmt.Errorf("target name must not be empty")
	}
	if args[1] == "" {
		return portforward.View{}, fmt.Errorf("port must not be empty")
	}

	cluster, err := kube.ResolveCluster(flags.cluster)
	if err != nil {
		return portforward.View{}, err
	}
	namespace := flags.namespace
	if namespace == "" {
		namespace = "default"
	}

	return portforward.View{
		Cluster:   cluster,
		Namespace: namespace,
		Kind:      kind,
		Name:      name,
		Port:      args[1],
	}, nil
}
