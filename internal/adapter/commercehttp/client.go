// Package commercehttp provides an HTTP client for the commerce lookup
// collaborator.
package commercehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/commerce"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/resilience"
)

// Client talks to the commerce backend's order API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a commerce client. The transport-level timeout is a
// backstop; callers bound each lookup with their own context deadline.
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

// GetOrder resolves an order id. Unknown ids map to domain.NotFoundError and
// expired deadlines to domain.TimeoutError so the augmenter can classify the
// failure without inspecting transport details.
func (c *Client) GetOrder(ctx context.Context, orderID string) (commerce.Order, error) {
	var order commerce.Order

	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders/"+orderID, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &domain.TimeoutError{Op: "commerce.get_order", Err: err}
			}
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return &domain.NotFoundError{Entity: "order", Key: orderID}
		case resp.StatusCode == http.StatusTooManyRequests:
			return &domain.RateLimitError{Op: "commerce.get_order", RetryAfter: time.Second}
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("commerce API error %d: %s", resp.StatusCode, body)
		}

		if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
			return fmt.Errorf("decode order: %w", err)
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return commerce.Order{}, err
	}
	return order, nil
}
