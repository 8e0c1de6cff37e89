package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"serve"}, "serve"},
		{[]string{"forward", "start"}, "start"},
		{[]string{"forward", "stop"}, "stop"},
		{[]string{"forward", "delete"}, "delete"},
		{[]string{"forward", "status"}, "status"},
		{[]string{"ls"}, "list"},
		{[]string{"watch"}, "watch"},
		{[]string{"mcp"}, "mcp"},
		{[]string{"version"}, "version"},
		{[]string{"self-update"}, "self-update"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd, rest, err := rootCmd.Find(tt.args)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, tt.want, cmd.Name())
			assert.NotEmpty(t, cmd.Short)
		})
	}
}

func TestDebugFlagReachesSubcommands(t *testing.T) {
	for _, args := range [][]string{{"forward", "start"}, {"list"}, {"serve"}, {"mcp"}} {
		cmd, _, err := rootCmd.Find(args)
		require.NoError(t, err)
		assert.NotNil(t, cmd.InheritedFlags().Lookup("debug"), "%v should inherit --debug", args)
	}
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "pfctl", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)
	assert.NotNil(t, rootCmd.PersistentPreRun)
}

func TestSetVersion(t *testing.T) {
	orig := rootCmd.Version
	defer func() { rootCmd.Version = orig }()

	SetVersion("2.0.1")
	assert.Equal(t, "2.0.1", rootCmd.Version)

	out, err := run(t, newVersionCmd())
	require.NoError(t, err)
	assert.Equal(t, "pfctl version 2.0.1\n", out)
}
