package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"lexa/config"
)

// Kind classifies provider failures so the coordinator never has to inspect
// raw transport errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotConfigured
	KindAuth
	KindRateLimited
	KindPayloadTooLarge
	KindEmptyResponse
	KindParse
	KindTimeout
	KindCanceled
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindEmptyResponse:
		return "empty_response"
	case KindParse:
		return "parse"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

// Error is the normalized provider failure surfaced to callers.
type Error struct {
	Kind     Kind
	Provider config.Provider
	Message  string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, p config.Provider, msg string) *Error {
	return &Error{Kind: kind, Provider: p, Message: msg}
}

func wrapError(kind Kind, p config.Provider, msg string, cause error) *Error {
	return &Error{Kind: kind, Provider: p, Message: msg, cause: cause}
}

// KindOf extracts the failure kind, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusError maps a non-2xx HTTP response onto the taxonomy. Exported
// for the transcription gateway, which shares the same backends.
func StatusError(p config.Provider, status int, body []byte) *Error {
	return fromStatus(p, status, body)
}

// TransportError maps a client-side failure onto the taxonomy.
func TransportError(p config.Provider, err error) *Error {
	return fromTransport(p, err)
}

// fromStatus maps a non-2xx HTTP response onto the taxonomy.
func fromStatus(p config.Provider, status int, body []byte) *Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return newError(KindAuth, p, "invalid API key, check your settings")
	case http.StatusTooManyRequests:
		return newError(KindRateLimited, p, "rate limit exceeded, try again later")
	case http.StatusRequestEntityTooLarge:
		return newError(KindPayloadTooLarge, p, "input too large, reduce screenshots or switch provider")
	default:
		return newError(KindTransport, p, fmt.Sprintf("API error %d: %s", status, truncate(body, 200)))
	}
}

// fromTransport maps client-side failures (cancellation, deadline, network).
func fromTransport(p config.Provider, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return wrapError(KindCanceled, p, "processing was canceled by the user", err)
	case errors.Is(err, context.DeadlineExceeded):
		return wrapError(KindTimeout, p, "request timed out", err)
	default:
		return wrapError(KindTransport, p, "request failed", err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
