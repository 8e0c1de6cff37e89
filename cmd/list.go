package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pfctl/internal/color"
	"pfctl/internal/control"
	"pfctl/internal/kube"
	"pfctl/internal/portforward"
	"pfctl/internal/session"
)

// maxTargetWidth bounds the TARGET column of the table output.
const maxTargetWidth = 48

func newListCmd() *cobra.Command {
	var (
		cluster string
		all     bool
		output  string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List port forward sessions",
		Long: `Lists the port forward sessions of a cluster after reconciling the agent's
view with the local store. Sessions the agent no longer knows are shown as
Stopped. With --all the stored sessions of every cluster are listed without
contacting the agent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" && output != "yaml" {
				return fmt.Errorf("unsupported output format %q (expected table, json or yaml)", output)
			}

			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := commandContext(cmd)
			var list []session.Session
			if all {
				list, err = d.store.ReadAll(ctx)
				if err != nil {
					return err
				}
			} else {
				resolved, err := kube.ResolveCluster(cluster)
				if err != nil {
					return err
				}
				list, err = portforward.ReconcileCluster(ctx, d.client, d.store, resolved)
				if err != nil {
					return fmt.Errorf("failed to list port forwards: %s", control.Message(err))
				}
			}
			return writeSessions(cmd.OutOrStdout(), list, output)
		},
	}

	cmd.Flags().StringVar(&cluster, "cluster", "", "Kubeconfig context (default: current context)")
	cmd.Flags().BoolVarP(&all, "all", "A", false, "List stored sessions of all clusters")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

func writeSessions(w io.Writer, list []session.Session, output string) error {
	switch output {
	case "json":
		data, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(list)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		if len(list) == 0 {
			_, err := fmt.Fprintln(w, "No port forward sessions.")
			return err
		}
		_, err := fmt.Fprintln(w, sessionTable(list))
		return err
	}
}

func sessionTable(list []session.Session) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(color.BorderStyle).
		Headers("ID", "CLUSTER", "TARGET", "LOCAL", "STATUS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return color.HeaderStyle
			}
			return color.CellStyle
		})

	for _, s := range list {
		target := fmt.Sprintf("%s/%s:%s", s.LogicalNamespace(), s.TargetName(), s.TargetPort)
		if s.IsService() {
			target = "svc/" + target
		}
		t.Row(
			s.ID,
			s.Cluster,
			runewidth.Truncate(target, maxTargetWidth, "…"),
			endpoint(s),
			color.Status(string(s.Status)),
		)
	}
	return t.Render()
}
