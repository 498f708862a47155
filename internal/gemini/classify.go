package gemini

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/api/googleapi"
)

// Kind is the closed classification of model-call failures. The invoker
// branches on it: quota advances the fallback chain, everything else backs
// off and retries.
type Kind int

const (
	KindUnknown Kind = iota
	KindQuota
	KindTransport
	KindMalformedOutput
	KindProtocolViolation
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindTransport:
		return "transport"
	case KindMalformedOutput:
		return "malformed-output"
	case KindProtocolViolation:
		return "protocol-violation"
	default:
		return "unknown"
	}
}

var (
	// ErrAllModelsExhausted reports that every model in the fallback chain
	// is out of quota or failed repeatedly. Callers skip delivery on it
	// instead of crashing.
	ErrAllModelsExhausted = errors.New("all models exhausted")

	// ErrUnknownTool reports that the model asked for a capability outside
	// the allow-list.
	ErrUnknownTool = errors.New("model requested an unknown tool")

	// errEmptyResponse reports a reply without candidates or parts.
	errEmptyResponse = errors.New("model returned an empty response")

	// errStreamInterrupted reports a connection drop after chunks were
	// already delivered. Replaying would duplicate output downstream, so
	// it is never retried.
	errStreamInterrupted = errors.New("stream interrupted mid-response")
)

// The backends report quota exhaustion inconsistently, sometimes as a typed
// 429, sometimes only in the message text.
var quotaMarkers = []string{
	"429",
	"quota",
	"resource exhausted",
	"rate limit",
	"too many requests",
}

var transportMarkers = []string{
	"timeout",
	"connection",
	"unavailable",
	"eof",
	"500",
	"502",
	"503",
	"504",
}

// Classify maps an error onto the failure taxonomy. Quota wins over every
// other reading: retrying an exhausted quota wastes time that switching
// models would not.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	message := strings.ToLower(err.Error())

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 {
			return KindQuota
		}
		if apiErr.Code >= 500 {
			return KindTransport
		}
	}
	for _, marker := range quotaMarkers {
		if strings.Contains(message, marker) {
			return KindQuota
		}
	}

	if errors.Is(err, ErrUnknownTool) {
		return KindProtocolViolation
	}
	if errors.Is(err, errEmptyResponse) {
		return KindMalformedOutput
	}
	if errors.Is(err, errStreamInterrupted) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return KindTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	for _, marker := range transportMarkers {
		if strings.Contains(message, marker) {
			return KindTransport
		}
	}

	return KindUnknown
}
