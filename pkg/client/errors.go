package client

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
)

// ErrorClass represents a classification of VIES call failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses without a VIES error code.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses without a VIES error code.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents VIES concurrency quota rejections
	// (MS_MAX_CONCURRENT_REQ, GLOBAL_MAX_CONCURRENT_REQ).
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassService represents any other VIES error code
	// (MS_UNAVAILABLE, TIMEOUT, INVALID_INPUT, ...).
	ErrorClassService ErrorClass = "service"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response body that could not be parsed.
	ErrorClassDecode ErrorClass = "decode"
)

// Common errors returned by the client.
var (
	// ErrMissingEndpoint is returned by New when an endpoint is not configured.
	ErrMissingEndpoint = errors.New("endpoint is required")

	// ErrServiceUnavailable is returned by CheckStatus when VIES reports itself down.
	ErrServiceUnavailable = errors.New("VIES service unavailable")
)

// VIESError represents a failed VIES call with its classification.
type VIESError struct {
	StatusCode int
	ErrorClass ErrorClass
	// Code is the VIES error code for rate_limit and service classes.
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *VIESError) Error() string {
	label := e.Message
	if e.Code != "" && e.Code != e.Message {
		label = e.Code + ": " + e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("VIES %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, label, e.Err)
	}
	return fmt.Sprintf("VIES %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, label)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *VIESError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether the failure happened before VIES could answer
// with a structured error code.
func (e *VIESError) IsTransport() bool {
	switch e.ErrorClass {
	case ErrorClassNetwork, ErrorClassServer, ErrorClassClient, ErrorClassDecode:
		return true
	default:
		return false
	}
}

// classifyCode maps a VIES error code onto an error class.
func classifyCode(code string) ErrorClass {
	switch code {
	case vat.CodeQuotaExceeded, vat.CodeGlobalQuotaExceeded:
		return ErrorClassRateLimit
	case vat.CodeMemberUnavailable, vat.CodeServiceUnavailable, vat.CodeTimeout, vat.CodeInvalidInput:
		return ErrorClassService
	default:
		return ErrorClassService
	}
}

// classifyStatus maps an HTTP status without a VIES error body.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
