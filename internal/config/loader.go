package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pfctl/internal/environment"
	"pfctl/internal/store"
	"pfctl/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/pfctl"
	projectConfigDir = ".pfctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the pfctl configuration by layering default, user, and project settings.
func LoadConfig() (PfctlConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if config, err = overlayFile(config, userConfigPath); err != nil {
		return PfctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if config, err = overlayFile(config, projectConfigPath); err != nil {
		return PfctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
	}

	if err := Validate(config); err != nil {
		return PfctlConfig{}, err
	}
	return config, nil
}

func overlayFile(base PfctlConfig, path string) (PfctlConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return base, err
	}
	logging.Debug("Config", "Loaded configuration from %s", path)
	return mergeConfigs(base, overlay), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a PfctlConfig from a YAML file.
func loadConfigFromFile(filePath string) (PfctlConfig, error) {
	var config PfctlConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return PfctlConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return PfctlConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Zero values in
// overlay leave base untouched.
func mergeConfigs(base, overlay PfctlConfig) PfctlConfig {
	merged := base

	if overlay.Store.Type != "" {
		merged.Store.Type = overlay.Store.Type
		// A different backend without a path gets that backend's default path.
		if overlay.Store.Path == "" && overlay.Store.Type != base.Store.Type {
			merged.Store.Path = store.DefaultPath(overlay.Store.Type)
		}
	}
	if overlay.Store.Path != "" {
		merged.Store.Path = overlay.Store.Path
	}
	if overlay.Store.Key != "" {
		merged.Store.Key = overlay.Store.Key
	}
	if overlay.Store.Redis.Addr != "" {
		merged.Store.Redis.Addr = overlay.Store.Redis.Addr
	}
	if overlay.Store.Redis.Password != "" {
		merged.Store.Redis.Password = overlay.Store.Redis.Password
	}
	if overlay.Store.Redis.DB != 0 {
		merged.Store.Redis.DB = overlay.Store.Redis.DB
	}
	if overlay.Store.Redis.KeyPrefix != "" {
		merged.Store.Redis.KeyPrefix = overlay.Store.Redis.KeyPrefix
	}

	if overlay.Agent.Listen != "" {
		merged.Agent.Listen = overlay.Agent.Listen
	}
	if overlay.Agent.URL != "" {
		merged.Agent.URL = overlay.Agent.URL
	}
	if overlay.Agent.Timeout != 0 {
		merged.Agent.Timeout = overlay.Agent.Timeout
	}

	if overlay.Environment.Mode != "" {
		merged.Environment.Mode = overlay.Environment.Mode
	}
	if overlay.Environment.PortRange.Min != 0 {
		merged.Environment.PortRange.Min = overlay.Environment.PortRange.Min
	}
	if overlay.Environment.PortRange.Max != 0 {
		merged.Environment.PortRange.Max = overlay.Environment.PortRange.Max
	}
	if overlay.Environment.MaxAttempts != 0 {
		merged.Environment.MaxAttempts = overlay.Environment.MaxAttempts
	}

	if overlay.ReconcileInterval != 0 {
		merged.ReconcileInterval = overlay.ReconcileInterval
	}
	return merged
}

// Validate checks a merged configuration.
func Validate(c PfctlConfig) error {
	switch c.Store.Type {
	case store.StoreTypeFile, store.StoreTypeSQLite, store.StoreTypeRedis, store.StoreTypeMemory:
	default:
		return fmt.Errorf("invalid store type %q", c.Store.Type)
	}
	if c.Store.Type == store.StoreTypeRedis && c.Store.Redis.Addr == "" {
		return fmt.Errorf("store type redis requires store.redis.addr")
	}
	if _, err := environment.ParseMode(c.Environment.Mode); err != nil {
		return err
	}
	r := c.Environment.PortRange
	if r.Min < 1 || r.Max > 65535 || r.Min > r.Max {
		return fmt.Errorf("invalid environment.portRange %d-%d", r.Min, r.Max)
	}
	if c.Agent.Listen == "" && c.Agent.URL == "" {
		return fmt.Errorf("agent.listen or agent.url must be set")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("reconcileInterval must not be negative")
	}
	return nil
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
