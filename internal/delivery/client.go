// Package delivery posts sync payloads to the data-platform ingestion
// endpoint. One POST per sync, no retries: a failed delivery is reported
// upward and the caller decides what state (if any) to commit.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// ErrInvalidSetup is returned when the endpoint URL or API key is missing
// from the process configuration.
var ErrInvalidSetup = errors.New("invalid setup")

// Endpoint is the externally provisioned destination of one document type.
type Endpoint struct {
	URL    string
	APIKey string
}

// Configured reports whether both URL and API key are present.
func (e Endpoint) Configured() bool {
	return e.URL != "" && e.APIKey != ""
}

// Deliverer posts one JSON payload to an endpoint. Implementations report
// success only on HTTP 200.
type Deliverer interface {
	Post(ctx context.Context, endpoint Endpoint, deliveryID string, body []byte) error
}

// Client is the HTTP Deliverer.
type Client struct {
	http *http.Client
}

// NewClient creates a delivery client with a bounded request timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: defaultTimeout}}
}

// NewDeliveryID returns a fresh delivery identifier for request tracing and
// payload archiving.
func NewDeliveryID() string {
	return uuid.NewString()
}

// Post sends the payload with the endpoint's API key. Any status other than
// 200 is a delivery failure carrying the status code; the response body is
// drained and discarded.
func (c *Client) Post(ctx context.Context, endpoint Endpoint, deliveryID string, body []byte) error {
	if !endpoint.Configured() {
		return ErrInvalidSetup
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", endpoint.APIKey)
	req.Header.Set("X-Delivery-Id", deliveryID)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deliver payload: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %d", res.StatusCode)
	}
	return nil
}
