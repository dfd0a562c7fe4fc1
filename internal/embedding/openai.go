package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/bull/docqa-server/internal/retry"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
const DefaultBatchSize = 500

// OpenAIEmbedder generates embeddings with an OpenAI embedding model.
// It batches requests and retries rate-limited batches according to its policy.
type OpenAIEmbedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
	policy    retry.Policy
}

// NewOpenAIEmbedder creates an embedder for model producing vectors of the
// given dimension. If batchSize is 0, DefaultBatchSize is used.
func NewOpenAIEmbedder(client *Client, model string, dimension, batchSize int, policy retry.Policy) *OpenAIEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
		policy:    policy,
	}
}

// Dimension returns the configured vector size.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed generates embeddings for texts in batches. The first failing batch
// aborts the call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.model),
	}
	// Only the text-embedding-3 family accepts a requested size
	if strings.HasPrefix(e.model, "text-embedding-3") && e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var embeddings [][]float32
	err := e.policy.Do(ctx, func() error {
		resp, err := e.client.client.Embeddings.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
		}

		embeddings = make([][]float32, len(resp.Data))
		for _, data := range resp.Data {
			embeddings[data.Index] = toFloat32(data.Embedding)
		}
		return nil
	}, IsRetryable)
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}
