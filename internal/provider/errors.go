package provider

import (
	"fmt"
	"strings"
)

// TransportError normalizes provider-specific failures into one shape; the
// delivery worker treats them identically regardless of channel. Missing
// credentials surface through the same type (wrapping
// domain.ErrNotConfigured) and are still subject to the retry policy.
type TransportError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	if provider := strings.TrimSpace(e.Provider); provider != "" {
		parts = append(parts, provider)
	} else {
		parts = append(parts, "transport")
	}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
