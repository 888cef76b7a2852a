// Package fallback turns provider failures into safe degraded responses:
// an error taxonomy with a fixed handling policy, an offline content bank and
// a retry/replay path for queued utterances.
package fallback

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Kind is the classified failure category of a provider error.
type Kind string

const (
	KindRateLimit          Kind = "rate_limit"
	KindTimeout            Kind = "timeout"
	KindNetworkUnavailable Kind = "network_unavailable"
	KindAuthFailure        Kind = "auth_failure"
	KindServiceMaintenance Kind = "service_maintenance"
	KindUnknown            Kind = "unknown"
)

// Classify maps a transport error onto the taxonomy. It is a pure function:
// the same error always classifies the same way. Unclassifiable errors are
// Unknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	// Context deadlines are timeouts regardless of the wrapping error.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if kind := classifyStatus(reqErr.HTTPStatusCode); kind != KindUnknown {
			return kind
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetworkUnavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"):
		return KindNetworkUnavailable
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	}
	return KindUnknown
}

func classifyStatus(status int) Kind {
	switch status {
	case 429:
		return KindRateLimit
	case 401, 403:
		return KindAuthFailure
	case 408, 504:
		return KindTimeout
	case 502, 503:
		return KindServiceMaintenance
	default:
		return KindUnknown
	}
}
