package providers

import (
	"context"
	"errors"
)

// Error sentinels used by providers to classify failures. Anything not
// wrapping one of these is treated as a transport-level failure.
var (
	// ErrRejected means the service answered and refused the request
	// (auth failure, quota, non-200 status).
	ErrRejected = errors.New("service rejected request")
	// ErrMalformed means the service answered but the response could
	// not be used (decode failure, empty candidates).
	ErrMalformed = errors.New("malformed service response")
)

// Config represents one vision analysis request to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	ImageJPEG   []byte
}

// Provider defines the interface for a vision-capable LLM provider
type Provider interface {
	Analyze(ctx context.Context, config Config) (string, error)
}
