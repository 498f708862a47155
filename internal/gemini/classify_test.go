package gemini

import (
	"context"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"typed 429", &googleapi.Error{Code: 429, Message: "rate limited"}, KindQuota},
		{"quota message", fmt.Errorf("429 You exceeded your current quota"), KindQuota},
		{"resource exhausted", fmt.Errorf("rpc error: Resource Exhausted"), KindQuota},
		{"too many requests", fmt.Errorf("Too Many Requests"), KindQuota},
		{"typed 503", &googleapi.Error{Code: 503, Message: "backend overloaded"}, KindTransport},
		{"connection refused", fmt.Errorf("dial tcp: connection refused"), KindTransport},
		{"deadline", context.DeadlineExceeded, KindTransport},
		{"wrapped stream interrupt", fmt.Errorf("%w: tls: bad record", errStreamInterrupted), KindTransport},
		{"unknown tool", fmt.Errorf("round 2: %w", ErrUnknownTool), KindProtocolViolation},
		{"empty response", errEmptyResponse, KindMalformedOutput},
		{"something else", fmt.Errorf("the model said something odd"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestQuotaWinsOverTransportReading(t *testing.T) {
	// A quota message that also mentions a transport-looking word must
	// still switch models instead of burning retries.
	err := fmt.Errorf("connection closed: quota exceeded for model")
	if got := Classify(err); got != KindQuota {
		t.Errorf("Classify = %s, want quota", got)
	}
}
