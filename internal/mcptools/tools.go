// Package mcptools exposes the port forward lifecycle as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"pfctl/internal/control"
	"pfctl/internal/portforward"
	"pfctl/internal/session"
	"pfctl/internal/store"
)

// ControllerFactory builds the controller for a view.
type ControllerFactory func(view portforward.View) (*portforward.Controller, error)

// Tools provides the portforward_* MCP tools.
type Tools struct {
	client        control.Client
	store         *store.SessionStore
	newController ControllerFactory
}

// New creates the tool set.
func New(client control.Client, st *store.SessionStore, factory ControllerFactory) *Tools {
	return &Tools{client: client, store: st, newController: factory}
}

// NewServer creates an MCP server serving the tools.
func NewServer(version string, t *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"pfctl",
		version,
		server.WithToolCapabilities(true),
	)
	s.AddTools(t.ServerTools()...)
	return s
}

func targetOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("cluster",
			mcp.Required(),
			mcp.Description("Kubeconfig context of the cluster"),
		),
		mcp.WithString("namespace",
			mcp.Required(),
			mcp.Description("Namespace of the pod or service"),
		),
		mcp.WithString("kind",
			mcp.Description("Target kind, pod (default) or service"),
			mcp.Enum("pod", "service"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the pod or service"),
		),
		mcp.WithString("port",
			mcp.Required(),
			mcp.Description("Container port number or name"),
		),
	}
}

// GetTools returns the tool definitions.
func (t *Tools) GetTools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("portforward_list",
			mcp.WithDescription("List port forward sessions. With a cluster the agent is reconciled first; without one the stored sessions of all clusters are returned."),
			mcp.WithString("cluster",
				mcp.Description("Kubeconfig context of the cluster"),
			),
		),
		mcp.NewTool("portforward_start",
			append([]mcp.ToolOption{mcp.WithDescription("Start or restart the port forward for a target")}, targetOptions()...)...,
		),
		mcp.NewTool("portforward_stop",
			append([]mcp.ToolOption{mcp.WithDescription("Stop the port forward for a target, keeping it restartable")}, targetOptions()...)...,
		),
		mcp.NewTool("portforward_delete",
			append([]mcp.ToolOption{mcp.WithDescription("Delete the port forward for a target")}, targetOptions()...)...,
		),
	}
}

// ServerTools pairs the tool definitions with their handlers.
func (t *Tools) ServerTools() []server.ServerTool {
	handlers := map[string]server.ToolHandlerFunc{
		"portforward_list":   t.HandleList,
		"portforward_start":  t.HandleStart,
		"portforward_stop":   t.HandleStop,
		"portforward_delete": t.HandleDelete,
	}
	var out []server.ServerTool
	for _, tool := range t.GetTools() {
		out = append(out, server.ServerTool{Tool: tool, Handler: handlers[tool.Name]})
	}
	return out
}

// HandleList handles the portforward_list tool call
func (t *Tools) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cluster := req.GetString("cluster", "")

	var (
		list []session.Session
		err  error
	)
	if cluster == "" {
		list, err = t.store.ReadAll(ctx)
	} else {
		list, err = portforward.ReconcileCluster(ctx, t.client, t.store, cluster)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list port forwards: %s", control.Message(err))), nil
	}

	return jsonResult(map[string]interface{}{
		"port_forwards": list,
		"total":         len(list),
	})
}

// HandleStart handles the portforward_start tool call
func (t *Tools) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := t.controller(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	s, err := c.Start(ctx)
	switch {
	case errors.Is(err, portforward.ErrNotResolvable):
		return mcp.NewToolResultError("Target port or backing pods could not be resolved; nothing was started"), nil
	case err != nil && s.ID == "":
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start port forward: %s", control.Message(err))), nil
	}
	return jsonResult(s)
}

// HandleStop handles the portforward_stop tool call
func (t *Tools) HandleStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := t.controller(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	if err := c.Stop(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to stop port forward: %s", control.Message(err))), nil
	}
	s, _ := c.Current()
	return jsonResult(s)
}

// HandleDelete handles the portforward_delete tool call
func (t *Tools) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := t.controller(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	cur, _ := c.Current()
	if err := c.Delete(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to delete port forward: %s", control.Message(err))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Port forward %s deleted", cur.ID)), nil
}

// controller parses the target arguments and returns a reconciled controller.
func (t *Tools) controller(ctx context.Context, req mcp.CallToolRequest) (*portforward.Controller, *mcp.CallToolResult) {
	view := portforward.View{}
	for _, arg := range []struct {
		name string
		dst  *string
	}{
		{"cluster", &view.Cluster},
		{"namespace", &view.Namespace},
		{"name", &view.Name},
		{"port", &view.Port},
	} {
		v, err := req.RequireString(arg.name)
		if err != nil || v == "" {
			return nil, mcp.NewToolResultError(arg.name + " is required")
		}
		*arg.dst = v
	}

	kind, err := portforward.ParseKind(req.GetString("kind", string(portforward.KindPod)))
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	view.Kind = kind

	c, err := t.newController(view)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to prepare port forward: %v", err))
	}
	if err := c.Reconcile(ctx); err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to reconcile port forwards: %s", control.Message(err)))
	}
	return c, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	resultJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(string(resultJSON)),
		},
	}, nil
}
