package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pfctl/internal/store"
)

// withConfigPaths points the user and project config lookups at tempDir.
func withConfigPaths(t *testing.T, tempDir string) (userPath, projectPath string) {
	t.Helper()
	originalGetUserConfigPath := getUserConfigPath
	originalGetProjectConfigPath := getProjectConfigPath
	t.Cleanup(func() {
		getUserConfigPath = originalGetUserConfigPath
		getProjectConfigPath = originalGetProjectConfigPath
	})

	userPath = filepath.Join(tempDir, userConfigDir, configFileName)
	projectPath = filepath.Join(tempDir, "project", projectConfigDir, configFileName)
	getUserConfigPath = func() (string, error) { return userPath, nil }
	getProjectConfigPath = func() (string, error) { return projectPath, nil }
	return userPath, projectPath
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	withConfigPaths(t, t.TempDir())

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loaded)
	assert.Equal(t, "http://127.0.0.1:4466", loaded.AgentURL())
}

func TestLoadConfig_UserOverride(t *testing.T) {
	userPath, _ := withConfigPaths(t, t.TempDir())
	writeConfigFile(t, userPath, `
store:
  type: sqlite
agent:
  listen: 127.0.0.1:5000
  timeout: 10s
environment:
  mode: constrained
reconcileInterval: 1m
`)

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, store.StoreTypeSQLite, loaded.Store.Type)
	assert.Equal(t, store.DefaultPath(store.StoreTypeSQLite), loaded.Store.Path)
	assert.Equal(t, store.DefaultKey, loaded.Store.Key)
	assert.Equal(t, "127.0.0.1:5000", loaded.Agent.Listen)
	assert.Equal(t, 10*time.Second, loaded.Agent.Timeout)
	assert.Equal(t, "constrained", loaded.Environment.Mode)
	assert.Equal(t, 30000, loaded.Environment.PortRange.Min)
	assert.Equal(t, time.Minute, loaded.ReconcileInterval)
	assert.Equal(t, "http://127.0.0.1:5000", loaded.AgentURL())
}

func TestLoadConfig_ProjectOverridesUser(t *testing.T) {
	userPath, projectPath := withConfigPaths(t, t.TempDir())
	writeConfigFile(t, userPath, `
store:
  type: redis
  redis:
    addr: localhost:6379
    keyPrefix: "team:"
environment:
  portRange:
    min: 31000
    max: 31999
`)
	writeConfigFile(t, projectPath, `
store:
  key: project-forwards
  redis:
    db: 3
agent:
  url: http://agent.local:4466
environment:
  portRange:
    max: 31500
`)

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, store.StoreTypeRedis, loaded.Store.Type)
	assert.Equal(t, "project-forwards", loaded.Store.Key)
	assert.Equal(t, store.RedisConfig{Addr: "localhost:6379", DB: 3, KeyPrefix: "team:"}, loaded.Store.Redis)
	assert.Equal(t, PortRange{Min: 31000, Max: 31500}, loaded.Environment.PortRange)
	assert.Equal(t, "http://agent.local:4466", loaded.AgentURL())
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	userPath, _ := withConfigPaths(t, t.TempDir())
	writeConfigFile(t, userPath, "store: [not, a, map")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "error loading user config")
}

func TestLoadConfig_PathErrorsAreNotFatal(t *testing.T) {
	originalGetUserConfigPath := getUserConfigPath
	originalGetProjectConfigPath := getProjectConfigPath
	defer func() {
		getUserConfigPath = originalGetUserConfigPath
		getProjectConfigPath = originalGetProjectConfigPath
	}()
	getUserConfigPath = func() (string, error) { return "", errors.New("no home") }
	getProjectConfigPath = func() (string, error) { return "", errors.New("no cwd") }

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *PfctlConfig)
		wantErr string
	}{
		{"defaults", func(*PfctlConfig) {}, ""},
		{"unknown store", func(c *PfctlConfig) { c.Store.Type = "etcd" }, "invalid store type"},
		{"redis without addr", func(c *PfctlConfig) { c.Store.Type = store.StoreTypeRedis }, "requires store.redis.addr"},
		{"bad mode", func(c *PfctlConfig) { c.Environment.Mode = "maybe" }, "invalid environment mode"},
		{"inverted range", func(c *PfctlConfig) { c.Environment.PortRange = PortRange{Min: 32000, Max: 30000} }, "invalid environment.portRange"},
		{"range too high", func(c *PfctlConfig) { c.Environment.PortRange.Max = 70000 }, "invalid environment.portRange"},
		{"no agent address", func(c *PfctlConfig) { c.Agent.Listen = "" }, "agent.listen or agent.url"},
		{"negative interval", func(c *PfctlConfig) { c.ReconcileInterval = -time.Second }, "reconcileInterval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := GetDefaultConfig()
			tt.mutate(&c)
			err := Validate(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGetUserConfigDir(t *testing.T) {
	original := osUserHomeDir
	defer func() { osUserHomeDir = original }()

	osUserHomeDir = func() (string, error) { return "/home/dev", nil }
	dir, err := GetUserConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/dev", ".config/pfctl"), dir)
}
