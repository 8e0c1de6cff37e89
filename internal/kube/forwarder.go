package kube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"

	"pfctl/internal/agent"
	"pfctl/pkg/logging"
)

// DefaultReadyTimeout bounds how long Forward waits for the tunnel to listen.
const DefaultReadyTimeout = 60 * time.Second

// logWriter relays client-go port-forward output line by line into the logger.
type logWriter struct {
	subsystem string
	asError   bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		if w.asError {
			logging.Warn(w.subsystem, "%s", line)
		} else {
			logging.Debug(w.subsystem, "%s", line)
		}
	}
	return len(p), nil
}

// Forwarder opens SPDY port-forward tunnels with client-go. It implements
// agent.Forwarder.
type Forwarder struct {
	clients      *Clients
	readyTimeout time.Duration
}

var _ agent.Forwarder = (*Forwarder)(nil)

// NewForwarder creates a forwarder that takes clients from the given cache.
func NewForwarder(clients *Clients) *Forwarder {
	return &Forwarder{clients: clients, readyTimeout: DefaultReadyTimeout}
}

// Forward starts forwarding spec.Address:spec.LocalPort to the pod port. A
// LocalPort of 0 lets the OS pick the port; the bound port is reported by
// the returned tunnel.
func (f *Forwarder) Forward(ctx context.Context, spec agent.ForwardSpec) (agent.Tunnel, error) {
	subsystem := fmt.Sprintf("PortForward-%s/%s:%d", spec.Namespace, spec.Pod, spec.RemotePort)

	restConfig, err := f.clients.RESTConfig(spec.Cluster)
	if err != nil {
		return nil, err
	}
	clientset, err := f.clients.Clientset(spec.Cluster)
	if err != nil {
		return nil, err
	}

	reqURL := clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(spec.Namespace).
		Name(spec.Pod).
		SubResource("portforward").
		URL()

	transport, upgrader, err := spdy.RoundTripperFor(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create SPDY round tripper: %w", err)
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

	address := spec.Address
	if address == "" {
		address = "localhost"
	}
	ports := []string{fmt.Sprintf("%d:%d", spec.LocalPort, spec.RemotePort)}

	stopCh := make(chan struct{})
	readyCh := make(chan struct{})
	pf, err := portforward.NewOnAddresses(dialer, []string{address}, ports, stopCh, readyCh,
		&logWriter{subsystem: subsystem}, &logWriter{subsystem: subsystem, asError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create port forwarder: %w", err)
	}

	t := &tunnel{stopCh: stopCh, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		if err := pf.ForwardPorts(); err != nil {
			t.setErr(err)
			logging.Warn(subsystem, "Port forward ended: %v", err)
			return
		}
		logging.Debug(subsystem, "Port forward closed")
	}()

	timer := time.NewTimer(f.readyTimeout)
	defer timer.Stop()

	select {
	case <-readyCh:
	case <-t.done:
		if err := t.Err(); err != nil {
			return nil, fmt.Errorf("port forward to %s/%s failed: %w", spec.Namespace, spec.Pod, err)
		}
		return nil, fmt.Errorf("port forward to %s/%s closed before it was ready", spec.Namespace, spec.Pod)
	case <-timer.C:
		t.Close()
		return nil, fmt.Errorf("timed out after %s waiting for port forward to %s/%s", f.readyTimeout, spec.Namespace, spec.Pod)
	case <-ctx.Done():
		t.Close()
		return nil, ctx.Err()
	}

	forwarded, err := pf.GetPorts()
	if err != nil || len(forwarded) == 0 {
		t.Close()
		if err == nil {
			err = errors.New("no ports reported")
		}
		return nil, fmt.Errorf("could not get bound local port: %w", err)
	}
	t.localPort = int(forwarded[0].Local)

	logging.Info(subsystem, "Forwarding %s:%d -> %s/%s:%d", address, t.localPort, spec.Namespace, spec.Pod, spec.RemotePort)
	return t, nil
}

type tunnel struct {
	localPort int
	stopCh    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	mu  sync.Mutex
	err error
}

func (t *tunnel) LocalPort() int { return t.localPort }

func (t *tunnel) Done() <-chan struct{} { return t.done }

func (t *tunnel) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *tunnel) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Close stops the tunnel and waits for it to wind down.
func (t *tunnel) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.done
}
