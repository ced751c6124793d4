// Package knowledgehttp provides an HTTP client for the knowledge-search
// collaborator.
package knowledgehttp

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
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/knowledge"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/resilience"
)

// Client talks to the knowledge-search API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a knowledge-search client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Fragments []knowledge.Fragment `json:"fragments"`
}

// Search returns ranked fragments for the query, best match first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]knowledge.Fragment, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}

	var result searchResponse
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &domain.TimeoutError{Op: "knowledge.search", Err: err}
			}
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("knowledge API error %d: %s", resp.StatusCode, data)
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return result.Fragments, nil
}
