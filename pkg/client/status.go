package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// CheckStatus probes the VIES status endpoint once. Transport failures are
// returned as *VIESError; a reachable service that reports itself down is
// returned together with ErrServiceUnavailable.
func (c *Client) CheckStatus(ctx context.Context) (*ServiceStatus, error) {
	startTime := time.Now()
	defer func() {
		viesRequestDuration.WithLabelValues(opCheckStatus).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.StatusEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	status, data, err := c.do(req)
	if err != nil {
		return nil, c.fail(opCheckStatus, err)
	}
	if class := classifyStatus(status); class != "" {
		return nil, c.fail(opCheckStatus, &VIESError{
			StatusCode: status,
			ErrorClass: class,
			Message:    http.StatusText(status),
		})
	}

	var out ServiceStatus
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, c.fail(opCheckStatus, &VIESError{
			StatusCode: status,
			ErrorClass: ErrorClassDecode,
			Message:    "decode check-status response",
			Err:        err,
		})
	}
	viesRequestsTotal.WithLabelValues(opCheckStatus, strconv.Itoa(status)).Inc()

	c.logger.Info().
		Bool("available", out.VOW.Available).
		Int("member_states", len(out.Countries)).
		Msg("VIES status received")

	if !out.VOW.Available {
		return &out, ErrServiceUnavailable
	}
	return &out, nil
}
