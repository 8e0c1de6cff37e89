package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// defaultRepository is the GitHub repository pfctl releases are published to.
// Forks and mirrors override it with --repository or PFCTL_UPDATE_REPOSITORY.
const defaultRepository = "giantswarm/pfctl"

// updateRepositoryEnv overrides the release repository when --repository is not set.
const updateRepositoryEnv = "PFCTL_UPDATE_REPOSITORY"

// release is the part of a GitHub release self-update acts on.
type release struct {
	Version   string
	AssetURL  string
	AssetName string
	// UpToDate is set when the release is not newer than the running version.
	UpToDate bool
}

// findLatestRelease and applyRelease are package variables so tests can
// replace the GitHub lookup and the binary swap.
var findLatestRelease = func(ctx context.Context, repository, current string) (release, bool, error) {
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repository))
	if err != nil || !found {
		return release{}, found, err
	}
	return release{
		Version:   latest.Version(),
		AssetURL:  latest.AssetURL,
		AssetName: latest.AssetName,
		UpToDate:  latest.LessOrEqual(current),
	}, true, nil
}

var applyRelease = func(ctx context.Context, rel release) error {
	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}
	return selfupdate.UpdateTo(ctx, rel.AssetURL, rel.AssetName, exe)
}

func newSelfUpdateCmd() *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update pfctl to the latest version",
		Long: `Checks for the latest pfctl release on GitHub and replaces the running
binary with it if a newer version is available.

Releases are looked up in ` + defaultRepository + ` unless --repository or the
` + updateRepositoryEnv + ` environment variable names another owner/repo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd, updateRepository(repository))
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "", "GitHub owner/repo to fetch releases from")
	return cmd
}

func updateRepository(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(updateRepositoryEnv); env != "" {
		return env
	}
	return defaultRepository
}

func runSelfUpdate(cmd *cobra.Command, repository string) error {
	currentVersion := rootCmd.Version
	if currentVersion == "" || currentVersion == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Checking %s for updates...\n", repository)
	latest, found, err := findLatestRelease(ctx, repository, currentVersion)
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s could not be found on GitHub", repository)
	}

	if latest.UpToDate {
		fmt.Fprintf(out, "Current version (%s) is the latest.\n", currentVersion)
		return nil
	}

	fmt.Fprintf(out, "Updating pfctl from %s to %s...\n", currentVersion, latest.Version)
	if err := applyRelease(ctx, latest); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version %s\n", latest.Version)
	return nil
}
