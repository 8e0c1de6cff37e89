package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pfctl/internal/control"
	"pfctl/internal/session"
)

// Client talks to a Server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ control.Client = (*Client)(nil)

// NewClient creates a client for the agent at baseURL, e.g. http://127.0.0.1:4466.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) List(ctx context.Context, cluster string) ([]session.Session, error) {
	u := c.baseURL + "/portforward/list?cluster=" + url.QueryEscape(cluster)
	var list []session.Session
	if err := c.do(ctx, "list", http.MethodGet, u, nil, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []session.Session{}
	}
	return list, nil
}

func (c *Client) Start(ctx context.Context, req control.StartRequest) (session.Session, error) {
	var s session.Session
	if err := c.do(ctx, "start", http.MethodPost, c.baseURL+"/portforward", req, &s); err != nil {
		return session.Session{}, err
	}
	return s, nil
}

func (c *Client) Stop(ctx context.Context, cluster, id string) error {
	body := StopOrDeleteRequest{Cluster: cluster, ID: id, StopOrDelete: true}
	return c.do(ctx, "stop", http.MethodDelete, c.baseURL+"/portforward", body, nil)
}

func (c *Client) Delete(ctx context.Context, cluster, id string) error {
	body := StopOrDeleteRequest{Cluster: cluster, ID: id, StopOrDelete: false}
	return c.do(ctx, "delete", http.MethodDelete, c.baseURL+"/portforward", body, nil)
}

// Ping checks the agent is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, c.baseURL+"/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, u string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return control.Remote(op, fmt.Sprintf("agent unreachable at %s: %v", c.baseURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = resp.Status
		}
		return control.Remote(op, text)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return control.Remote(op, fmt.Sprintf("invalid response: %v", err))
	}
	return nil
}
