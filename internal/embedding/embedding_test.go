package embedding

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/bull/docqa-server/internal/config"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"google rate limit", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"google unavailable wrapped", fmt.Errorf("predict: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), true},
		{"google bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"plain error", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestDecodePredictions(t *testing.T) {
	predictions := []interface{}{
		map[string]interface{}{"embeddings": map[string]interface{}{"values": []interface{}{0.5, -1.0}}},
		map[string]interface{}{"embeddings": map[string]interface{}{"values": []interface{}{1.0, 0.0}}},
	}

	got, err := decodePredictions(predictions)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, -1}, {1, 0}}, got)
}

func TestDecodePredictions_MissingValues(t *testing.T) {
	_, err := decodePredictions([]interface{}{map[string]interface{}{"other": 1}})
	assert.Error(t, err)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.OpenAIConfig{})
	assert.ErrorIs(t, err, config.ErrMissingSetting)
}

func TestNewVertexClient_RequiresProject(t *testing.T) {
	_, err := NewVertexClient(t.Context(), config.GCPConfig{Location: "us-central1"})
	assert.ErrorIs(t, err, config.ErrMissingSetting)
}

func TestVertexModelPath(t *testing.T) {
	c := &VertexClient{project: "p1", location: "europe-west4"}
	assert.Equal(t, "projects/p1/locations/europe-west4/publishers/google/models/text-embedding-004",
		c.ModelPath("text-embedding-004"))
}
