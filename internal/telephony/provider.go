package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cart-dialer/internal/calls"
)

// Caller places one outbound call and returns the provider call id.
//
// Rules:
//   - No provider SDK or HTTP calls outside telephony adapters.
//   - Adapters do not retry; the batch runner owns the retry policy.
//   - Every failure is returned as *DispatchError.
type Caller interface {
	Name() string
	PlaceCall(ctx context.Context, req calls.CallRequest) (string, error)
}

// ErrorCode classifies provider failures.
type ErrorCode string

const (
	CodeInvalidNumber ErrorCode = "invalid_number"
	CodeAuth          ErrorCode = "auth"
	CodeQuotaExceeded ErrorCode = "quota_exceeded"
	CodeRateLimited   ErrorCode = "rate_limited"
	CodeTimeout       ErrorCode = "timeout"
	CodeProvider      ErrorCode = "provider"
)

// DispatchError is the per-record failure of a call placement.
//
// Retryable is true only when the provider answered and nothing was placed
// (429 or 5xx). Timeouts are not retryable: the call may already be ringing.
type DispatchError struct {
	Provider  string
	Code      ErrorCode
	Status    int
	Retryable bool
	Err       error
}

func (e *DispatchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a retryable *DispatchError.
func IsRetryable(err error) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Retryable
}

// transportError wraps a failure that happened before any HTTP response.
func transportError(provider string, err error) *DispatchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &DispatchError{Provider: provider, Code: CodeTimeout, Err: err}
	}
	return &DispatchError{Provider: provider, Code: CodeProvider, Err: err}
}

// statusError maps a non-2xx response to a DispatchError.
func statusError(provider string, status int, body []byte) *DispatchError {
	msg := formatProviderError(status, body)
	de := &DispatchError{Provider: provider, Status: status, Err: errors.New(msg)}
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		de.Code = CodeAuth
	case status == http.StatusTooManyRequests:
		de.Code = CodeRateLimited
		de.Retryable = true
	case status == http.StatusPaymentRequired || strings.Contains(lower, "quota") || strings.Contains(lower, "credit"):
		de.Code = CodeQuotaExceeded
	case status >= 500:
		de.Code = CodeProvider
		de.Retryable = true
	case status == http.StatusBadRequest && (strings.Contains(lower, "number") || strings.Contains(lower, "phone")):
		de.Code = CodeInvalidNumber
	default:
		de.Code = CodeProvider
	}
	return de
}

type providerAPIError struct {
	Code    any    `json:"code"`
	Message any    `json:"message"`
	Error   string `json:"error"`
}

// formatProviderError extracts the provider's message from a JSON error body.
// Vapi sends message as a string or a list of strings; Twilio sends code+message.
func formatProviderError(status int, body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed providerAPIError
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg := messageText(parsed.Message)
		if msg == "" {
			msg = parsed.Error
		}
		if msg != "" {
			if parsed.Code != nil {
				return fmt.Sprintf("code %v: %s", parsed.Code, msg)
			}
			return msg
		}
	}
	return string(body)
}

func messageText(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case []any:
		parts := make([]string, 0, len(m))
		for _, p := range m {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}
