// Package client provides the VIES HTTP client: single VAT lookups, the
// service status probe, error classification and an optional Redis cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/cache"
	"github.com/Sternrassler/vies-vat-checker/pkg/logging"
	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for VIES client operations.
var (
	viesRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vies_requests_total",
		Help: "Total VIES requests by operation and status",
	}, []string{"operation", "status"})

	viesRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vies_request_duration_seconds",
		Help:    "VIES request duration in seconds by operation",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation"})

	viesErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vies_errors_total",
		Help: "Total VIES errors by class",
	}, []string{"class"})
)

const (
	opCheckVAT    = "check_vat"
	opCheckStatus = "check_status"

	// maxBodyBytes bounds how much of a response body is read.
	maxBodyBytes = 1 << 20
)

// Default VIES REST endpoints.
const (
	DefaultCheckVATEndpoint = "https://ec.europa.eu/taxation_customs/vies/rest-api/check-vat-number"
	DefaultStatusEndpoint   = "https://ec.europa.eu/taxation_customs/vies/rest-api/check-status"
)

// Client is the VIES client.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
	now        func() time.Time
}

// Config holds the client configuration.
type Config struct {
	// CheckVATEndpoint is the URL of the check-vat-number operation.
	CheckVATEndpoint string

	// StatusEndpoint is the URL of the check-status operation.
	StatusEndpoint string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single HTTP call.
	Timeout time.Duration

	// Cache is optional; when set, definitive answers are cached per VAT number.
	Cache *cache.Manager

	// Logger overrides the component logger derived from the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration pointing at the public VIES REST API.
func DefaultConfig(userAgent string) Config {
	return Config{
		CheckVATEndpoint: DefaultCheckVATEndpoint,
		StatusEndpoint:   DefaultStatusEndpoint,
		UserAgent:        userAgent,
		Timeout:          30 * time.Second,
	}
}

// New creates a new VIES client.
func New(cfg Config) (*Client, error) {
	if cfg.CheckVATEndpoint == "" {
		return nil, fmt.Errorf("check_vat %w", ErrMissingEndpoint)
	}
	if cfg.StatusEndpoint == "" {
		return nil, fmt.Errorf("status %w", ErrMissingEndpoint)
	}
	for _, raw := range []string{cfg.CheckVATEndpoint, cfg.StatusEndpoint} {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("endpoint %q: scheme must be http or https", raw)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	// Initialize logger
	logger := logging.NewLogger("vies-client")
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "vies-client").Logger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cfg.Cache,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// CheckVAT performs one check-vat-number call. Every failure is returned as a
// *VIESError; a response carrying a VIES error code is a failure of class
// rate_limit or service.
func (c *Client) CheckVAT(ctx context.Context, country vat.CountryCode, number string) (*CheckVATResponse, error) {
	startTime := time.Now()
	defer func() {
		viesRequestDuration.WithLabelValues(opCheckVAT).Observe(time.Since(startTime).Seconds())
	}()

	body, err := json.Marshal(checkVATRequest{CountryCode: string(country), VATNumber: number})
	if err != nil {
		return nil, c.fail(opCheckVAT, &VIESError{ErrorClass: ErrorClassDecode, Message: "encode request", Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.CheckVATEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, data, err := c.do(req)
	if err != nil {
		return nil, c.fail(opCheckVAT, err)
	}

	var out CheckVATResponse
	decodeErr := json.Unmarshal(data, &out)

	// A VIES error code wins over the HTTP status: quota rejections arrive
	// with both 200 and 5xx statuses.
	if decodeErr == nil {
		if code, msg := out.errorCode(); code != "" {
			if msg == "" {
				msg = code
			}
			return nil, c.fail(opCheckVAT, &VIESError{
				StatusCode: status,
				ErrorClass: classifyCode(code),
				Code:       code,
				Message:    msg,
			})
		}
	}

	if class := classifyStatus(status); class != "" {
		return nil, c.fail(opCheckVAT, &VIESError{
			StatusCode: status,
			ErrorClass: class,
			Message:    http.StatusText(status),
		})
	}
	if decodeErr != nil {
		return nil, c.fail(opCheckVAT, &VIESError{
			StatusCode: status,
			ErrorClass: ErrorClassDecode,
			Message:    "decode check-vat response",
			Err:        decodeErr,
		})
	}

	viesRequestsTotal.WithLabelValues(opCheckVAT, strconv.Itoa(status)).Inc()
	return &out, nil
}

// Lookup validates one record against VIES. Ordinary failures (unreachable
// service, VIES error codes, undecodable bodies) are returned as a
// LookupResult with StatusUnknown; the error is non-nil only when ctx is done.
func (c *Client) Lookup(ctx context.Context, rec vat.RawRecord) (vat.LookupResult, error) {
	result := vat.LookupResult{
		Record:    rec,
		Status:    vat.StatusUnknown,
		CheckedAt: c.now(),
	}

	key := cache.KeyFor(rec)
	if c.cache != nil {
		cached, err := c.cache.Load(ctx, result)
		switch {
		case err == nil:
			c.logger.Debug().
				Str("country_code", string(rec.CountryCode)).
				Str("identifier", rec.Identifier).
				Msg("VIES answer served from cache")
			return cached, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
	}

	resp, err := c.CheckVAT(ctx, rec.CountryCode, rec.Identifier)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		var viesErr *VIESError
		if !errors.As(err, &viesErr) {
			return result, err
		}
		if viesErr.IsTransport() {
			result.ErrorMessage = "VIES service CHECK_VAT unreachable: " + viesErr.Error()
		} else {
			result.ErrorCode = viesErr.Code
			result.ErrorMessage = viesErr.Message
		}
		return result, nil
	}

	result.RemoteCountryCode = resp.CountryCode
	result.RemoteIdentifier = resp.VATNumber
	result.RemoteCompanyName = resp.Name
	result.RemoteCompanyAddress = resp.Address
	result.RequestDate = resp.RequestDate
	result.Status = vat.StatusFromValid(resp.Valid)

	if c.cache != nil {
		if _, err := c.cache.Store(ctx, result); err != nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache VIES answer")
		}
	}

	return result, nil
}

// do executes req and returns the status code and body. Only transport
// failures are returned as errors.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", req.URL.Path).
		Str("method", req.Method).
		Msg("Executing VIES request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &VIESError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, &VIESError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}
	return resp.StatusCode, data, nil
}

// fail records metrics and logs for a failed call.
func (c *Client) fail(op string, err error) error {
	var viesErr *VIESError
	if !errors.As(err, &viesErr) {
		return err
	}

	viesErrorsTotal.WithLabelValues(string(viesErr.ErrorClass)).Inc()
	status := strconv.Itoa(viesErr.StatusCode)
	if viesErr.ErrorClass == ErrorClassNetwork {
		status = "network_error"
	}
	viesRequestsTotal.WithLabelValues(op, status).Inc()

	c.logger.Warn().
		Str("operation", op).
		Int("status", viesErr.StatusCode).
		Str("error_class", string(viesErr.ErrorClass)).
		Str("error_code", viesErr.Code).
		Msg("VIES request error")

	return viesErr
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
