package portforward

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pfctl/internal/allocator"
	"pfctl/internal/control"
	"pfctl/internal/session"
	"pfctl/internal/store"
)

// fakeClient is an in-memory control.Client.
type fakeClient struct {
	mu       sync.Mutex
	sessions []session.Session
	nextID   int

	listErr, startErr, stopErr, deleteErr error

	starts  []control.StartRequest
	stops   []string
	deletes []string

	// block, when set, is waited on inside Start.
	block chan struct{}
}

func (f *fakeClient) List(_ context.Context, cluster string) ([]session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return session.FilterCluster(f.sessions, cluster), nil
}

func (f *fakeClient) Start(_ context.Context, req control.StartRequest) (session.Session, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.startErr != nil {
		return session.Session{}, f.startErr
	}
	id := req.ID
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("sess-%d", f.nextID)
	}
	port := req.Port
	if port == "" {
		port = "45000"
	}
	s := session.Session{
		ID:               id,
		Cluster:          req.Cluster,
		Namespace:        req.Namespace,
		Pod:              req.Pod,
		Service:          req.Service,
		ServiceNamespace: req.ServiceNamespace,
		TargetPort:       req.TargetPort,
		Port:             port,
		Address:          req.Address,
		Status:           session.StatusRunning,
	}
	f.sessions = session.Upsert(f.sessions, s)
	return s, nil
}

func (f *fakeClient) Stop(_ context.Context, cluster, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, cluster+"/"+id)
	if f.stopErr != nil {
		return f.stopErr
	}
	f.sessions = session.SetStatus(f.sessions, id, session.StatusStopped)
	return nil
}

func (f *fakeClient) Delete(_ context.Context, cluster, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, cluster+"/"+id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.sessions = session.Remove(f.sessions, id)
	return nil
}

// fakeResolver resolves ports from a map keyed by name:port.
type fakeResolver struct {
	ports   map[string]int
	pods    map[string][]string
	portErr error
	podsErr error
}

func (r *fakeResolver) ContainerPort(_ context.Context, _, _, _, name, port string) (int, error) {
	if r.portErr != nil {
		return 0, r.portErr
	}
	return r.ports[name+":"+port], nil
}

func (r *fakeResolver) BackingPods(_ context.Context, _, _, service string) ([]string, error) {
	if r.podsErr != nil {
		return nil, r.podsErr
	}
	return r.pods[service], nil
}

type harness struct {
	client   *fakeClient
	resolver *fakeResolver
	store    *store.SessionStore
	kv       *store.MemoryKV
}

func newHarness() *harness {
	kv := store.NewMemoryKV()
	return &harness{
		client: &fakeClient{},
		resolver: &fakeResolver{
			ports: map[string]int{"web:80": 80, "web:http": 8080, "api:80": 8080},
			pods:  map[string][]string{"api": {"api-7c9f-1", "api-7c9f-2"}},
		},
		store: store.NewSessionStore(kv, store.DefaultKey),
		kv:    kv,
	}
}

func (h *harness) controller(t *testing.T, view View, constrained bool) *Controller {
	t.Helper()
	alloc, err := allocator.New(allocator.Config{Rand: rand.New(rand.NewSource(1))})
	require.NoError(t, err)
	c, err := New(view, Options{
		Store:       h.store,
		Client:      h.client,
		Resolver:    h.resolver,
		Allocator:   alloc,
		Environment: StaticEnvironment(constrained),
	})
	require.NoError(t, err)
	return c
}

func (h *harness) seed(t *testing.T, list ...session.Session) {
	t.Helper()
	require.NoError(t, h.store.WriteAll(context.Background(), list))
}

func (h *harness) stored(t *testing.T) []session.Session {
	t.Helper()
	list, err := h.store.ReadAll(context.Background())
	require.NoError(t, err)
	return list
}

func podView() View {
	return View{Cluster: "c1", Namespace: "default", Kind: KindPod, Name: "web", Port: "80"}
}

func serviceView() View {
	return View{Cluster: "c1", Namespace: "default", Kind: KindService, Name: "api", Port: "80"}
}

func ids(list []session.Session) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}
