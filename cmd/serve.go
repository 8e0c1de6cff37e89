package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pfctl/internal/agent"
	"pfctl/internal/kube"
	"pfctl/internal/remote"
	"pfctl/pkg/logging"
)

func newServeCmd() *cobra.Command {
	var listen string
	var jsonLogs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the port forwarding agent",
		Long: `Runs the agent that owns the port forward tunnels and serves the
port forward API the other pfctl commands use.

Sessions live in the agent's memory only. When the agent exits every
tunnel is closed; the sessions remain in the local store as Stopped and
can be restarted with 'pfctl forward start'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			if jsonLogs {
				logging.InitJSON(level, os.Stderr)
			} else {
				logging.InitForCLI(level, os.Stderr)
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if listen == "" {
				listen = cfg.Agent.Listen
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := agent.New(kube.NewForwarder(kube.NewClients()))
			defer a.Close()

			return remote.NewServer(a).Serve(ctx, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Address to serve the port forward API on (default from config, 127.0.0.1:4466)")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Log in JSON instead of text")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
