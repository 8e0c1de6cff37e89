package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"pfctl/internal/color"
	"pfctl/internal/control"
	"pfctl/internal/portforward"
	"pfctl/internal/session"
	"pfctl/pkg/logging"
)

func newForwardCmd() *cobra.Command {
	var flags targetFlags

	cmd := &cobra.Command{
		Use:     "forward",
		Aliases: []string{"fwd", "pf"},
		Short:   "Start, stop, delete or inspect the port forward for a target",
		Long: `Manages the port forward for one target, given as <kind>/<name> <port>:

  pfctl forward start svc/grafana http -n monitoring
  pfctl forward stop pod/web-0 8080 --cluster kind-dev

The kind is pod (default) or service; the port is a container port number or
name. The cluster defaults to the current kubeconfig context.`,
	}

	cmd.PersistentFlags().StringVar(&flags.cluster, "cluster", "", "Kubeconfig context (default: current context)")
	cmd.PersistentFlags().StringVarP(&flags.namespace, "namespace", "n", "default", "Namespace of the target")

	cmd.AddCommand(newForwardStartCmd(&flags))
	cmd.AddCommand(newForwardStopCmd(&flags))
	cmd.AddCommand(newForwardDeleteCmd(&flags))
	cmd.AddCommand(newForwardStatusCmd(&flags))
	return cmd
}

// withController parses the target, builds and reconciles its controller
// and runs fn with it.
func withController(cmd *cobra.Command, flags *targetFlags, args []string, fn func(c *portforward.Controller) error) error {
	view, err := parseView(*flags, args)
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := commandContext(cmd)
	c, err := d.newController(view)
	if err != nil {
		return err
	}
	if err := c.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed to reconcile port forwards: %s", control.Message(err))
	}
	return fn(c)
}

func newForwardStartCmd(flags *targetFlags) *cobra.Command {
	var copyURL bool

	cmd := &cobra.Command{
		Use:   "start <kind>/<name> <port>",
		Short: "Start or restart the port forward for a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, flags, args, func(c *portforward.Controller) error {
				s, err := c.Start(commandContext(cmd))
				if errors.Is(err, portforward.ErrNotResolvable) {
					v := c.View()
					return fmt.Errorf("cannot resolve port %s of %s/%s in %s/%s", v.Port, v.Kind, v.Name, v.Cluster, v.Namespace)
				}
				if err != nil && s.ID == "" {
					return fmt.Errorf("failed to start port forward: %s", control.Message(err))
				}
				if err != nil {
					logging.Warn("Forward", "%v", err)
				}

				printSession(cmd.OutOrStdout(), "Forwarding", s)
				if copyURL {
					if err := clipboard.WriteAll(s.URL()); err != nil {
						logging.Warn("Forward", "Could not copy URL to clipboard: %v", err)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to clipboard\n", s.URL())
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&copyURL, "copy", false, "Copy the local URL to the clipboard")
	return cmd
}

func newForwardStopCmd(flags *targetFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <kind>/<name> <port>",
		Short: "Stop the port forward for a target, keeping it restartable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, flags, args, func(c *portforward.Controller) error {
				if err := c.Stop(commandContext(cmd)); err != nil {
					return fmt.Errorf("failed to stop port forward: %s", control.Message(err))
				}
				s, _ := c.Current()
				printSession(cmd.OutOrStdout(), "Stopped", s)
				return nil
			})
		},
	}
}

func newForwardDeleteCmd(flags *targetFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind>/<name> <port>",
		Short: "Delete the port forward for a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, flags, args, func(c *portforward.Controller) error {
				s, _ := c.Current()
				if err := c.Delete(commandContext(cmd)); err != nil {
					return fmt.Errorf("failed to delete port forward: %s", control.Message(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", s.ID)
				return nil
			})
		},
	}
}

func newForwardStatusCmd(flags *targetFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <kind>/<name> <port>",
		Short: "Show the port forward for a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, flags, args, func(c *portforward.Controller) error {
				printSnapshot(cmd.OutOrStdout(), c.View(), c.Snapshot())
				return nil
			})
		},
	}
}

func printSession(w io.Writer, verb string, s session.Session) {
	fmt.Fprintf(w, "%s %s -> %s/%s:%s [%s] (%s)\n",
		verb, endpoint(s), s.LogicalNamespace(), s.TargetName(), s.TargetPort, color.Status(string(s.Status)), s.ID)
}

func printSnapshot(w io.Writer, view portforward.View, snap portforward.Snapshot) {
	if snap.Session == nil {
		fmt.Fprintf(w, "%s: %s\n", view, color.Status(string(snap.State)))
	} else {
		printSession(w, view.String()+":", *snap.Session)
	}
	if snap.Err != "" {
		fmt.Fprintf(w, "  last error: %s\n", color.Error(snap.Err))
	}
}

func endpoint(s session.Session) string {
	address := s.Address
	if address == "" {
		address = "localhost"
	}
	return address + ":" + s.Port
}
