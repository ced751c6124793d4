// Package llmhttp provides an HTTP client for the completion/embedding
// service. Instances are only ever constructed by the connection pool's dial
// function; handlers reach them through pool handles.
package llmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/llm"
)

// Client is one HTTP-backed completion handle.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a completion client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type completeRequest struct {
	System  string   `json:"system,omitempty"`
	Prompt  string   `json:"prompt"`
	Context []string `json:"context,omitempty"`
}

type completeResponse struct {
	Text string `json:"text"`
}

type embedRequest struct {
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Complete generates text for the request.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	var result completeResponse
	err := c.post(ctx, "/v1/completions", completeRequest(req), &result)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Embed returns an embedding vector for the input text.
func (c *Client) Embed(ctx context.Context, input string) ([]float64, error) {
	var result embedResponse
	if err := c.post(ctx, "/v1/embeddings", embedRequest{Input: input}, &result); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &domain.TimeoutError{Op: "llm" + path, Err: err}
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.RateLimitError{Op: "llm" + path, RetryAfter: time.Second}
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llm API error %d: %s", resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
