package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pfctl/internal/control"
	"pfctl/internal/portforward"
)

func newWatchCmd() *cobra.Command {
	var (
		flags    targetFlags
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <kind>/<name> <port>",
		Short: "Follow the port forward state of a target",
		Long: `Reconciles the target periodically and prints its state whenever it
changes, e.g. when the agent restarts and a running session becomes Stopped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := parseView(flags, args)
			if err != nil {
				return err
			}

			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			if interval <= 0 {
				interval = d.cfg.ReconcileInterval
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := d.newController(view)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := c.Reconcile(ctx); err != nil {
				fmt.Fprintf(out, "%s reconcile failed: %s\n", time.Now().Format(time.TimeOnly), control.Message(err))
			}
			printSnapshot(out, view, c.Snapshot())

			c.WatchEvery(ctx, interval, func(snap portforward.Snapshot) {
				fmt.Fprintf(out, "%s ", time.Now().Format(time.TimeOnly))
				printSnapshot(out, view, snap)
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.cluster, "cluster", "", "Kubeconfig context (default: current context)")
	cmd.Flags().StringVarP(&flags.namespace, "namespace", "n", "default", "Namespace of the target")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Reconcile interval (default from config, 5s)")
	return cmd
}
