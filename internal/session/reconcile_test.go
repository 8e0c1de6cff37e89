package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func podSession(id, cluster, ns, pod, targetPort, port string, status Status) Session {
	return Session{
		ID:         id,
		Cluster:    cluster,
		Namespace:  ns,
		Pod:        pod,
		TargetPort: targetPort,
		Port:       port,
		Address:    "localhost",
		Status:     status,
	}
}

func ids(list []Session) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func TestReconcile_OrphanIsMarkedStopped(t *testing.T) {
	cached := []Session{podSession("a", "c1", "default", "web", "80", "30010", StatusRunning)}

	merged := Reconcile(nil, cached)

	require.Len(t, merged, 1)
	assert.Equal(t, "a", merged[0].ID)
	assert.Equal(t, StatusStopped, merged[0].Status)
	assert.Equal(t, StatusRunning, cached[0].Status, "input must not be modified")
}

func TestReconcile_ServerWinsAndOrderIsPreserved(t *testing.T) {
	server := []Session{
		podSession("s1", "c1", "default", "api", "8080", "40001", StatusRunning),
		podSession("shared", "c1", "default", "web", "80", "40002", StatusRunning),
	}
	cached := []Session{
		podSession("o1", "c1", "default", "db", "5432", "40003", StatusRunning),
		podSession("shared", "c1", "default", "web", "80", "1", StatusStopped),
		podSession("o2", "c2", "kube-system", "dns", "53", "40004", StatusStopped),
	}

	merged := Reconcile(server, cached)

	assert.Equal(t, []string{"s1", "shared", "o1", "o2"}, ids(merged))
	assert.Equal(t, server[1], merged[1], "server copy must win on id collision")
	assert.Equal(t, StatusStopped, merged[2].Status)
	assert.Equal(t, StatusStopped, merged[3].Status)
}

func TestReconcile_Completeness(t *testing.T) {
	cases := []struct {
		name   string
		server []Session
		cached []Session
	}{
		{name: "both empty"},
		{name: "server only", server: []Session{podSession("a", "c", "n", "p", "1", "2", StatusRunning)}},
		{name: "cache only", cached: []Session{podSession("a", "c", "n", "p", "1", "2", StatusRunning)}},
		{
			name:   "overlap",
			server: []Session{podSession("a", "c", "n", "p", "1", "2", StatusRunning)},
			cached: []Session{podSession("a", "c", "n", "p", "1", "2", StatusStopped), podSession("b", "c", "n", "q", "1", "3", StatusRunning)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			merged := Reconcile(tc.server, tc.cached)

			for i, s := range tc.server {
				assert.Equal(t, s, merged[i])
			}
			serverIDs := map[string]bool{}
			for _, s := range tc.server {
				serverIDs[s.ID] = true
			}
			for _, c := range tc.cached {
				if serverIDs[c.ID] {
					continue
				}
				want := c
				want.Status = StatusStopped
				assert.Contains(t, merged, want)
			}
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	server := []Session{podSession("a", "c1", "default", "web", "80", "1", StatusRunning)}
	cached := []Session{
		podSession("b", "c1", "default", "api", "80", "2", StatusRunning),
		podSession("a", "c1", "default", "web", "80", "1", StatusStopped),
	}

	once := Reconcile(server, cached)
	twice := Reconcile(server, once)

	assert.ElementsMatch(t, ids(once), ids(twice))
	assert.Equal(t, once, twice)
}

func TestFindMatch(t *testing.T) {
	base := podSession("a", "c1", "ns1", "p1", "8080", "30001", StatusRunning)
	list := []Session{base}
	target := Target{Cluster: "c1", Namespace: "ns1", Name: "p1", ContainerPort: 8080}

	got, ok := FindMatch(list, target)
	require.True(t, ok)
	assert.Equal(t, base, got)

	mismatches := map[string]Target{
		"cluster":   {Cluster: "c2", Namespace: "ns1", Name: "p1", ContainerPort: 8080},
		"namespace": {Cluster: "c1", Namespace: "ns2", Name: "p1", ContainerPort: 8080},
		"name":      {Cluster: "c1", Namespace: "ns1", Name: "p2", ContainerPort: 8080},
		"port":      {Cluster: "c1", Namespace: "ns1", Name: "p1", ContainerPort: 8081},
	}
	for field, tgt := range mismatches {
		_, ok := FindMatch(list, tgt)
		assert.False(t, ok, "changing %s must not match", field)
	}
}

func TestFindMatch_ServiceSession(t *testing.T) {
	svc := Session{
		ID:               "svc",
		Cluster:          "c1",
		Namespace:        "backend",
		ServiceNamespace: "frontend",
		Pod:              "web-7d9f",
		Service:          "web",
		TargetPort:       "80",
		Status:           StatusRunning,
	}

	got, ok := FindMatch([]Session{svc}, Target{Cluster: "c1", Namespace: "frontend", Name: "web", ContainerPort: 80})
	require.True(t, ok)
	assert.Equal(t, "svc", got.ID)

	_, ok = FindMatch([]Session{svc}, Target{Cluster: "c1", Namespace: "backend", Name: "web-7d9f", ContainerPort: 80})
	assert.True(t, ok, "backing pod namespace and name also match")
}

func TestFindMatch_LastWinsAndDuplicatesReported(t *testing.T) {
	first := podSession("a", "c1", "ns", "p", "80", "1", StatusStopped)
	second := podSession("b", "c1", "ns", "p", "80", "2", StatusRunning)
	list := []Session{first, second}

	got, ok := FindMatch(list, Target{Cluster: "c1", Namespace: "ns", Name: "p", ContainerPort: 80})
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)

	dups := Duplicates(list)
	require.Len(t, dups, 1)
	for _, group := range dups {
		assert.Equal(t, []string{"a", "b"}, ids(group))
	}
	assert.Empty(t, Duplicates([]Session{first}))
}

func TestDedupe(t *testing.T) {
	list := []Session{
		podSession("a", "c", "n", "p", "1", "1", StatusStopped),
		podSession("b", "c", "n", "q", "1", "2", StatusRunning),
		podSession("a", "c", "n", "p", "1", "1", StatusRunning),
	}

	out := Dedupe(list)

	assert.Equal(t, []string{"a", "b"}, ids(out))
	assert.Equal(t, StatusRunning, out[0].Status)
}

func TestUpsert(t *testing.T) {
	list := []Session{
		podSession("a", "c", "n", "p", "80", "1", StatusStopped),
		podSession("b", "c", "n", "q", "80", "2", StatusRunning),
	}

	t.Run("same id replaces in place", func(t *testing.T) {
		out := Upsert(list, podSession("a", "c", "n", "p", "80", "1", StatusRunning))
		assert.Equal(t, []string{"a", "b"}, ids(out))
		assert.Equal(t, StatusRunning, out[0].Status)
	})

	t.Run("same target with new id replaces", func(t *testing.T) {
		out := Upsert(list, podSession("z", "c", "n", "q", "80", "9", StatusRunning))
		assert.Equal(t, []string{"a", "z"}, ids(out))
	})

	t.Run("new target appends", func(t *testing.T) {
		out := Upsert(list, podSession("c", "c", "n", "r", "80", "3", StatusRunning))
		assert.Equal(t, []string{"a", "b", "c"}, ids(out))
	})
}

func TestRemoveAndSetStatus(t *testing.T) {
	list := []Session{
		podSession("a", "c", "n", "p", "80", "1", StatusRunning),
		podSession("b", "c", "n", "q", "80", "2", StatusRunning),
	}

	assert.Equal(t, []string{"b"}, ids(Remove(list, "a")))
	assert.Equal(t, []string{"a", "b"}, ids(Remove(list, "missing")))

	stopped := SetStatus(list, "b", StatusStopped)
	assert.Equal(t, StatusStopped, stopped[1].Status)
	assert.Equal(t, StatusRunning, list[1].Status)
}

func TestActivePortsAndFilterCluster(t *testing.T) {
	list := []Session{
		podSession("a", "c1", "n", "p", "80", "30001", StatusRunning),
		podSession("b", "c1", "n", "q", "80", "30002", StatusStopped),
		podSession("c", "c2", "n", "r", "80", "30003", StatusRunning),
	}

	assert.Equal(t, map[string]struct{}{"30001": {}, "30003": {}}, ActivePorts(list))
	assert.Equal(t, []string{"a", "b"}, ids(FilterCluster(list, "c1")))
	assert.Len(t, FilterCluster(list, ""), 3)
}

func TestSessionHelpers(t *testing.T) {
	svc := Session{Cluster: "c", Namespace: "pods", ServiceNamespace: "svcs", Pod: "p", Service: "s", TargetPort: "80", Port: "9000"}
	assert.True(t, svc.IsService())
	assert.Equal(t, "s", svc.TargetName())
	assert.Equal(t, "svcs", svc.LogicalNamespace())
	assert.Equal(t, "http://127.0.0.1:9000", svc.URL())
	assert.Equal(t, TargetKey{Cluster: "c", Namespace: "svcs", Name: "s", TargetPort: "80"}, svc.Key())

	assert.False(t, Target{Cluster: "c", Namespace: "n", Name: "p"}.Resolved())
	assert.True(t, Target{Cluster: "c", Namespace: "n", Name: "p", ContainerPort: 1}.Resolved())
}
