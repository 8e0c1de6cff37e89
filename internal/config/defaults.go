package config

import (
	"time"

	"pfctl/internal/allocator"
	"pfctl/internal/store"
)

const (
	DefaultAgentListen       = "127.0.0.1:4466"
	DefaultAgentTimeout      = 30 * time.Second
	DefaultReconcileInterval = 5 * time.Second
	DefaultEnvironmentMode   = "auto"
)

// GetDefaultConfig returns the built-in configuration.
func GetDefaultConfig() PfctlConfig {
	return PfctlConfig{
		Store: store.Config{
			Type: store.StoreTypeFile,
			Path: store.DefaultPath(store.StoreTypeFile),
			Key:  store.DefaultKey,
		},
		Agent: AgentConfig{
			Listen:  DefaultAgentListen,
			Timeout: DefaultAgentTimeout,
		},
		Environment: EnvironmentConfig{
			Mode: DefaultEnvironmentMode,
			PortRange: PortRange{
				Min: allocator.DefaultMinPort,
				Max: allocator.DefaultMaxPort,
			},
			MaxAttempts: allocator.DefaultMaxAttempts,
		},
		ReconcileInterval: DefaultReconcileInterval,
	}
}
