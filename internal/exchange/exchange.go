// Package exchange is the outbound client for upstream order placement.
// A placement has a three-valued outcome: nil (accepted), a transient
// failure worth retrying, or a permanent rejection.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"order-ingestion-engine/internal/models"
)

// transientMarker is the legacy marker string that classifies a placement
// failure as retryable.
const transientMarker = "Connection not available"

// PlacementError describes a failed upstream placement.
type PlacementError struct {
	Reason    string
	Transient bool
}

func (e *PlacementError) Error() string {
	return e.Reason
}

// IsTransient reports whether a placement failure may be retried. Structured
// errors carry their own classification; anything else is matched against the
// legacy marker string.
func IsTransient(err error) bool {
	var pe *PlacementError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return err != nil && strings.Contains(err.Error(), transientMarker)
}

// Client places an order upstream. The call is not assumed idempotent; the
// processor invokes it at most once per pass per order.
type Client interface {
	PlaceOrder(ctx context.Context, o *models.Order) error
}

// HTTPClient posts orders to an upstream placement endpoint.
type HTTPClient struct {
	url string
	hc  *http.Client
}

// NewHTTPClient constructs a client for the given placement URL.
func NewHTTPClient(url string) *HTTPClient {
	return &HTTPClient{
		url: url,
		hc:  &http.Client{Timeout: 10 * time.Second},
	}
}

// PlaceOrder posts the order view upstream. Transport failures and 5xx
// responses are transient; any other non-2xx response is permanent.
func (c *HTTPClient) PlaceOrder(ctx context.Context, o *models.Order) error {
	body, err := json.Marshal(models.NewOrderResponse(o))
	if err != nil {
		return &PlacementError{Reason: fmt.Sprintf("encode order %s: %v", o.OrderID, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &PlacementError{Reason: fmt.Sprintf("build request for order %s: %v", o.OrderID, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return &PlacementError{
			Reason:    fmt.Sprintf("%s: %v", transientMarker, err),
			Transient: true,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &PlacementError{
		Reason:    fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		Transient: resp.StatusCode >= 500,
	}
}
