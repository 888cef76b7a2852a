package fallback

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func apiError(status int) error {
	return fmt.Errorf("wrapped: %w", &openai.APIError{HTTPStatusCode: status, Message: "boom"})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"429 rate limit", apiError(429), KindRateLimit},
		{"401 auth", apiError(401), KindAuthFailure},
		{"403 auth", apiError(403), KindAuthFailure},
		{"503 maintenance", apiError(503), KindServiceMaintenance},
		{"502 maintenance", apiError(502), KindServiceMaintenance},
		{"504 timeout", apiError(504), KindTimeout},
		{"500 unknown", apiError(500), KindUnknown},
		{"context deadline", context.DeadlineExceeded, KindTimeout},
		{"connection refused", errors.New("dial tcp 1.2.3.4:443: connection refused"), KindNetworkUnavailable},
		{"no such host", errors.New("dial tcp: lookup api.example.com: no such host"), KindNetworkUnavailable},
		{"generic", errors.New("something odd"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	err := apiError(429)
	for i := 0; i < 10; i++ {
		assert.Equal(t, KindRateLimit, Classify(err))
	}
}
