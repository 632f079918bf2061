// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/buger/jsonparser"
)

// Sentinel errors matched via errors.Is against APIError values.
var (
	// ErrAuth indicates a rejected or missing API key.
	ErrAuth = errors.New("authorization failed")
	// ErrNotFound indicates that the requested entity does not exist on the
	// server (anymore).
	ErrNotFound = errors.New("not found")
)

// APIError is returned for any non-2xx server response. Message holds the
// human-readable error extracted from the response body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vxcube: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Unwrap maps well-known status codes onto the sentinel errors so callers
// can use errors.Is(err, ErrAuth) etc.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// IsTransient reports whether a request failed in a way that is worth
// retrying: server-side errors, throttling, or transport-level failures.
// Auth and not-found errors as well as context cancellation are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return true
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.StatusCode >= 500:
			return true
		}
		return false
	}
	// anything else is a transport error (connection reset, DNS, ...)
	return true
}

// errorMessage digs a readable error out of a failed response body. The
// server reports either an "error" or a "message" key; validation failures
// (400) come as a map of field name to one or more messages.
func errorMessage(status int, body []byte) string {
	if msg, err := jsonparser.GetString(body, "error"); err == nil {
		return msg
	}
	if msg, err := jsonparser.GetString(body, "message"); err == nil {
		return msg
	}
	if status == http.StatusBadRequest && len(body) > 0 {
		var fields []string
		err := jsonparser.ObjectEach(body, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
			info := "<UNKNOWN>"
			switch dataType {
			case jsonparser.String:
				info = string(value)
			case jsonparser.Array:
				var msgs []string
				jsonparser.ArrayEach(value, func(item []byte, _ jsonparser.ValueType, _ int, _ error) {
					msgs = append(msgs, string(item))
				})
				info = strings.Join(msgs, "; ")
			}
			fields = append(fields, fmt.Sprintf("[%s] %s", key, info))
			return nil
		})
		if err == nil && len(fields) > 0 {
			return strings.Join(fields, "\t")
		}
	}
	return "unknown error"
}
