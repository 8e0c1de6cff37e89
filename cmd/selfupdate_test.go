package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type releaseStub struct {
	rel     release
	found   bool
	findErr error

	applyErr error

	repository string
	current    string
	applied    []release
}

// withReleaseStub swaps the release lookup and binary swap for a test.
func withReleaseStub(t *testing.T, version string, stub *releaseStub) {
	t.Helper()
	origFind, origApply, origVersion := findLatestRelease, applyRelease, rootCmd.Version
	t.Cleanup(func() {
		findLatestRelease, applyRelease, rootCmd.Version = origFind, origApply, origVersion
	})

	rootCmd.Version = version
	findLatestRelease = func(_ context.Context, repository, current string) (release, bool, error) {
		stub.repository = repository
		stub.current = current
		return stub.rel, stub.found, stub.findErr
	}
	applyRelease = func(_ context.Context, rel release) error {
		stub.applied = append(stub.applied, rel)
		return stub.applyErr
	}
}

func TestSelfUpdate(t *testing.T) {
	newer := release{Version: "1.3.0", AssetURL: "https://example.invalid/pfctl_1.3.0.tar.gz", AssetName: "pfctl_1.3.0.tar.gz"}

	tests := []struct {
		name        string
		version     string
		stub        releaseStub
		wantErr     string
		wantOut     string
		wantApplied bool
	}{
		{
			name:    "development build",
			version: "dev",
			wantErr: "cannot self-update a development version",
		},
		{
			name:    "empty version",
			version: "",
			wantErr: "cannot self-update a development version",
		},
		{
			name:    "lookup fails",
			version: "1.2.0",
			stub:    releaseStub{findErr: errors.New("rate limited")},
			wantErr: "error occurred while detecting version: rate limited",
		},
		{
			name:    "no release published",
			version: "1.2.0",
			stub:    releaseStub{found: false},
			wantErr: "latest version for giantswarm/pfctl could not be found on GitHub",
		},
		{
			name:    "already latest",
			version: "1.3.0",
			stub:    releaseStub{found: true, rel: release{Version: "1.3.0", UpToDate: true}},
			wantOut: "Current version (1.3.0) is the latest.",
		},
		{
			name:        "newer release installed",
			version:     "1.2.0",
			stub:        releaseStub{found: true, rel: newer},
			wantOut:     "Successfully updated to version 1.3.0",
			wantApplied: true,
		},
		{
			name:        "install fails",
			version:     "1.2.0",
			stub:        releaseStub{found: true, rel: newer, applyErr: errors.New("permission denied")},
			wantErr:     "error occurred while updating binary: permission denied",
			wantApplied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(updateRepositoryEnv, "")
			stub := tt.stub
			withReleaseStub(t, tt.version, &stub)

			out, err := run(t, newSelfUpdateCmd())
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Contains(t, out, tt.wantOut)
			}

			if tt.wantApplied {
				require.Len(t, stub.applied, 1)
				assert.Equal(t, newer.AssetName, stub.applied[0].AssetName)
			} else {
				assert.Empty(t, stub.applied)
			}
			if tt.version != "" && tt.version != "dev" {
				assert.Equal(t, tt.version, stub.current)
			}
		})
	}
}

func TestSelfUpdate_Repository(t *testing.T) {
	tests := []struct {
		name string
		env  string
		args []string
		want string
	}{
		{name: "default", want: defaultRepository},
		{name: "environment", env: "acme/pfctl", want: "acme/pfctl"},
		{name: "flag wins over environment", env: "acme/pfctl", args: []string{"--repository", "me/pfctl-fork"}, want: "me/pfctl-fork"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(updateRepositoryEnv, tt.env)
			stub := &releaseStub{found: true, rel: release{Version: "1.0.0", UpToDate: true}}
			withReleaseStub(t, "1.0.0", stub)

			out, err := run(t, newSelfUpdateCmd(), tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stub.repository)
			assert.Contains(t, out, "Checking "+tt.want+" for updates...")
		})
	}
}
