package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ckptbench/internal/coordinator"
	"ckptbench/internal/model"
)

// readyTimeout caps how long the client waits for the endpoint to
// answer its first health probe.
const readyTimeout = 30 * time.Second

// Client talks to the control rank's checkpoint endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client for the endpoint at host:port. The HTTP
// client carries no response timeout: a checkpoint of a large profile
// legitimately takes minutes.
func NewClient(host string, port int, apiKey string) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// WaitReady polls the health endpoint until the server answers.
func (c *Client) WaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("endpoint %s not ready: %w", c.baseURL, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Checkpoint triggers one synchronized checkpoint and returns the
// measured result.
func (c *Client) Checkpoint(ctx context.Context, req model.CheckpointRequest) (*model.CheckpointResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkpoint", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("checkpoint request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checkpoint step %d: %s", req.Step, readError(resp))
	}

	var result model.CheckpointResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// Summary fetches the server-side timing statistics.
func (c *Client) Summary(ctx context.Context) (*coordinator.TimesSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/summary", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary: %s", readError(resp))
	}

	var summary coordinator.TimesSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &summary, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// readError extracts the error message from a failed response.
func readError(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}

	var e model.ErrorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Sprintf("%s (status %d)", e.Error, resp.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", bytes.TrimSpace(data), resp.StatusCode)
}
