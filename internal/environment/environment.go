// Package environment decides whether pfctl runs in a constrained
// environment, where forwards must bind on all interfaces at a port chosen
// from a fixed range instead of on localhost.
//
// The typical constrained environment is Docker Desktop: the forwarding
// agent runs inside the Docker VM, so only published ports in the range
// reach the host.
package environment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/client"

	"pfctl/internal/kube"
	"pfctl/pkg/logging"
)

// Mode selects how the environment is determined.
type Mode string

const (
	ModeAuto          Mode = "auto"
	ModeConstrained   Mode = "constrained"
	ModeUnconstrained Mode = "unconstrained"
)

// DockerDesktopOS is what the Docker daemon reports as its operating system
// when it runs inside Docker Desktop.
const DockerDesktopOS = "Docker Desktop"

// ParseMode parses a configured mode; the empty string means auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeConstrained:
		return ModeConstrained, nil
	case ModeUnconstrained:
		return ModeUnconstrained, nil
	default:
		return "", fmt.Errorf("invalid environment mode %q (expected auto, constrained or unconstrained)", s)
	}
}

// dockerOperatingSystem asks the local Docker daemon for its operating system.
var dockerOperatingSystem = func(ctx context.Context) (string, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", fmt.Errorf("failed to create docker client: %w", err)
	}
	defer cli.Close()

	info, err := cli.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get docker info: %w", err)
	}
	return info.OperatingSystem, nil
}

// Detector answers whether forwards for a cluster run constrained.
type Detector struct {
	mode Mode

	dockerOnce sync.Once
	dockerDesk bool
}

// NewDetector creates a detector for mode.
func NewDetector(mode Mode) *Detector {
	if mode == "" {
		mode = ModeAuto
	}
	return &Detector{mode: mode}
}

// Mode returns the configured mode.
func (d *Detector) Mode() Mode {
	return d.mode
}

// Constrained reports whether forwards for cluster must use the constrained
// allocation. An explicit mode wins; in auto mode the Docker Desktop kube
// context or a Docker Desktop daemon means constrained. The daemon is only
// asked once.
func (d *Detector) Constrained(ctx context.Context, cluster string) bool {
	switch d.mode {
	case ModeConstrained:
		return true
	case ModeUnconstrained:
		return false
	}

	if cluster == kube.DockerDesktopContext {
		return true
	}

	d.dockerOnce.Do(func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		osName, err := dockerOperatingSystem(probeCtx)
		if err != nil {
			logging.Debug("Environment", "Docker daemon not available, assuming unconstrained: %v", err)
			return
		}
		d.dockerDesk = osName == DockerDesktopOS
		logging.Debug("Environment", "Docker daemon reports operating system %q", osName)
	})
	return d.dockerDesk
}
