package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"

	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/retry"
)

// VertexDimension is the output size of the Vertex text embedding models.
const VertexDimension = 768

// vertexBatchSize is the instance limit of a single Predict call.
const vertexBatchSize = 5

// VertexClient wraps the Vertex AI service shared by embedding and chat.
type VertexClient struct {
	service  *aiplatform.Service
	project  string
	location string
}

// NewVertexClient authenticates with a service-account file when one is
// configured and with application default credentials otherwise.
func NewVertexClient(ctx context.Context, cfg config.GCPConfig) (*VertexClient, error) {
	if err := config.Require("GCP_PROJECT_ID", cfg.ProjectID); err != nil {
		return nil, err
	}
	if err := config.Require("GCP_LOCATION", cfg.Location); err != nil {
		return nil, err
	}

	var creds *google.Credentials
	if cfg.ServiceAccountFile != "" {
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, aiplatform.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account file: %w", err)
		}
	} else {
		var err error
		creds, err = google.FindDefaultCredentials(ctx, aiplatform.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
	}

	endpoint := fmt.Sprintf("https://%s-aiplatform.googleapis.com/", cfg.Location)
	service, err := aiplatform.NewService(ctx,
		option.WithEndpoint(endpoint),
		option.WithTokenSource(creds.TokenSource),
	)
	if err != nil {
		return nil, fmt.Errorf("create vertex service: %w", err)
	}

	return &VertexClient{service: service, project: cfg.ProjectID, location: cfg.Location}, nil
}

// Service returns the underlying Vertex AI service.
func (c *VertexClient) Service() *aiplatform.Service {
	return c.service
}

// ModelPath returns the resource name of a Google publisher model.
func (c *VertexClient) ModelPath(model string) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", c.project, c.location, model)
}

// VertexEmbedder generates embeddings with a Vertex AI publisher model.
type VertexEmbedder struct {
	client    *VertexClient
	model     string
	dimension int
	policy    retry.Policy
}

// NewVertexEmbedder creates an embedder. A dimension of 0 uses VertexDimension.
func NewVertexEmbedder(client *VertexClient, model string, dimension int, policy retry.Policy) *VertexEmbedder {
	if dimension <= 0 {
		dimension = VertexDimension
	}
	return &VertexEmbedder{client: client, model: model, dimension: dimension, policy: policy}
}

// Dimension returns the configured vector size.
func (e *VertexEmbedder) Dimension() int {
	return e.dimension
}

// Embed generates embeddings in batches of the Predict instance limit.
func (e *VertexEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += vertexBatchSize {
		end := min(i+vertexBatchSize, len(texts))

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *VertexEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	instances := make([]interface{}, len(texts))
	for i, text := range texts {
		instances[i] = map[string]any{"content": text}
	}
	req := &aiplatform.GoogleCloudAiplatformV1PredictRequest{
		Instances:  instances,
		Parameters: map[string]any{"outputDimensionality": e.dimension},
	}

	var embeddings [][]float32
	err := e.policy.Do(ctx, func() error {
		resp, err := e.client.service.Projects.Locations.Publishers.Models.
			Predict(e.client.ModelPath(e.model), req).Context(ctx).Do()
		if err != nil {
			return err
		}
		embeddings, err = decodePredictions(resp.Predictions)
		if err != nil {
			return err
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings))
		}
		return nil
	}, IsRetryable)
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

type vertexPrediction struct {
	Embeddings struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// decodePredictions extracts embeddings.values from loosely typed predictions.
func decodePredictions(predictions []interface{}) ([][]float32, error) {
	out := make([][]float32, 0, len(predictions))
	for i, p := range predictions {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", i, err)
		}
		var pred vertexPrediction
		if err := json.Unmarshal(raw, &pred); err != nil {
			return nil, fmt.Errorf("prediction %d: %w", i, err)
		}
		if len(pred.Embeddings.Values) == 0 {
			return nil, fmt.Errorf("prediction %d has no embedding values", i)
		}
		out = append(out, toFloat32(pred.Embeddings.Values))
	}
	return out, nil
}
