// Package embedding turns text into vectors using a remote embedding model.
package embedding

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// IsRetryable reports whether err is a rate-limit or temporary unavailability
// response from either provider. Everything else is permanent.
func IsRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retryableStatus(gerr.Code)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusBadGateway
}

// toFloat32 converts []float64 to []float32.
// The APIs return float64 but vectors are stored as float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
