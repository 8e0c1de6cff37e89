package kube

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pfctl/internal/agent"
	"pfctl/pkg/logging"
)

func TestLogWriter(t *testing.T) {
	var buf bytes.Buffer
	logging.InitForCLI(logging.LevelDebug, &buf)
	defer logging.InitForCLI(logging.LevelInfo, &bytes.Buffer{})

	w := &logWriter{subsystem: "PortForward-test"}
	n, err := w.Write([]byte("Forwarding from 127.0.0.1:30000 -> 80\n\nHandling connection for 30000\n"))
	require.NoError(t, err)
	assert.Equal(t, 69, n)

	out := buf.String()
	assert.Contains(t, out, "Forwarding from 127.0.0.1:30000 -> 80")
	assert.Contains(t, out, "Handling connection for 30000")
	assert.Contains(t, out, "PortForward-test")
}

func TestTunnel_CloseIsIdempotent(t *testing.T) {
	tun := &tunnel{localPort: 30001, stopCh: make(chan struct{}), done: make(chan struct{})}
	go func() {
		<-tun.stopCh
		close(tun.done)
	}()

	tun.Close()
	tun.Close()

	select {
	case <-tun.Done():
	default:
		t.Fatal("tunnel should be done after Close")
	}
	assert.NoError(t, tun.Err())
	assert.Equal(t, 30001, tun.LocalPort())
}

func TestTunnel_ReportsError(t *testing.T) {
	tun := &tunnel{stopCh: make(chan struct{}), done: make(chan struct{})}
	tun.setErr(errors.New("lost connection to pod"))
	assert.EqualError(t, tun.Err(), "lost connection to pod")
}

func TestForwarder_ConfigError(t *testing.T) {
	c, _, _ := newTestClients(errors.New("context \"gone\" does not exist"))
	f := NewForwarder(c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Forward(ctx, agent.ForwardSpec{Cluster: "gone", Namespace: "default", Pod: "web", RemotePort: 80})
	assert.ErrorContains(t, err, "does not exist")
}
