package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"inference-gateway/secret_manager"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const openaiEmbeddingDefaultModel = "text-embedding-3-small"

// NewOpenAIEmbedder builds the embedding callback platformtools.VectorSearch
// needs to turn a vector_store_search query into a query vector, grounded on
// OpenAIProvider.Stream's openai.NewClient construction (same
// option.WithAPIKey/option.WithHTTPClient/option.WithBaseURL wiring, reused
// here for the embeddings endpoint instead of chat completions).
func NewOpenAIEmbedder(secrets secret_manager.SecretManagerContainer, baseURL string) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		token, err := secrets.GetSecret("OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}

		clientOptions := []option.RequestOption{
			option.WithAPIKey(token),
			option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		}
		if baseURL != "" {
			clientOptions = append(clientOptions, option.WithBaseURL(baseURL))
		}
		client := openai.NewClient(clientOptions...)

		resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
			Model: openaiEmbeddingDefaultModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("embedding response contained no data")
		}

		embedding := resp.Data[0].Embedding
		vector := make([]float32, len(embedding))
		for i, v := range embedding {
			vector[i] = float32(v)
		}
		return vector, nil
	}
}
