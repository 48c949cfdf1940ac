package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/travel-discovery-service/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the category label of upstream_errors_total.
const (
	ErrorCategoryTimeout           ErrorCategory = "timeout"
	ErrorCategoryNetwork           ErrorCategory = "network"
	ErrorCategoryUnauthorized      ErrorCategory = "unauthorized"
	ErrorCategoryNotFound          ErrorCategory = "not_found"
	ErrorCategoryRateLimited       ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx       ErrorCategory = "upstream_5xx"
	ErrorCategoryMissingCredential ErrorCategory = "missing_credential"
	ErrorCategoryMalformedResponse ErrorCategory = "malformed_response"
	ErrorCategoryCircuitOpen       ErrorCategory = "circuit_open"
	ErrorCategoryParsing           ErrorCategory = "parsing"
	ErrorCategoryCache             ErrorCategory = "cache"
	ErrorCategoryUnknown           ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrMissingCredential):
		return ErrorCategoryMissingCredential
	case errors.Is(err, ErrMalformedResponse):
		return ErrorCategoryMalformedResponse
	case errors.Is(err, ErrUnauthorized):
		return ErrorCategoryUnauthorized
	case errors.Is(err, ErrNotFound):
		return ErrorCategoryNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout"):
		return ErrorCategoryTimeout
	case strings.Contains(errStr, "network"), strings.Contains(errStr, "connection"):
		return ErrorCategoryNetwork
	case strings.Contains(errStr, "parse"), strings.Contains(errStr, "unmarshal"):
		return ErrorCategoryParsing
	case strings.Contains(errStr, "cache"):
		return ErrorCategoryCache
	}
	return ErrorCategoryUnknown
}
