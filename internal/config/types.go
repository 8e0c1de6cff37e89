package config

import (
	"time"

	"pfctl/internal/store"
)

// PfctlConfig is the top-level configuration structure for pfctl.
type PfctlConfig struct {
	Store             store.Config      `yaml:"store"`
	Agent             AgentConfig       `yaml:"agent"`
	Environment       EnvironmentConfig `yaml:"environment"`
	ReconcileInterval time.Duration     `yaml:"reconcileInterval,omitempty"`
}

// AgentConfig configures the forwarding agent and how the CLI reaches it.
type AgentConfig struct {
	// Listen is the address `pfctl serve` binds its HTTP API to.
	Listen string `yaml:"listen,omitempty"`
	// URL is where clients reach the agent. Derived from Listen when empty.
	URL     string        `yaml:"url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// EnvironmentConfig controls constrained-environment handling.
type EnvironmentConfig struct {
	Mode        string    `yaml:"mode,omitempty"`
	PortRange   PortRange `yaml:"portRange,omitempty"`
	MaxAttempts int       `yaml:"maxAttempts,omitempty"`
}

// PortRange is an inclusive local port range.
type PortRange struct {
	Min int `yaml:"min,omitempty"`
	Max int `yaml:"max,omitempty"`
}

// AgentURL returns the URL clients use to reach the agent.
func (c PfctlConfig) AgentURL() string {
	if c.Agent.URL != "" {
		return c.Agent.URL
	}
	return "http://" + c.Agent.Listen
}
