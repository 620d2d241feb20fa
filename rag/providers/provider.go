// Package providers constructs the embedding and chat models used by
// the pipelines.
package providers

import (
	"context"
	"fmt"
	"sync"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"docrag/rag/config"
)

var (
	embedderOnce sync.Once
	embedderInst einoEmbedding.Embedder
	embedderErr  error
)

// NewEmbedder returns the process-wide embedding model, constructing it
// on first use. All callers share one instance; construction happens at
// most once even under concurrent first use.
func NewEmbedder(ctx context.Context, cfg *config.Config) (einoEmbedding.Embedder, error) {
	embedderOnce.Do(func() {
		embedderInst, embedderErr = openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			APIKey:  cfg.EmbeddingAPIKey,
			BaseURL: cfg.EmbeddingBaseURL,
			Model:   cfg.EmbeddingModel,
		})
	})
	return embedderInst, embedderErr
}

// NewChatModel creates the generation model selected by the
// configuration. OpenAI-compatible endpoints cover most providers;
// gemini goes through the genai client.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	switch cfg.ChatProvider {
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.ChatAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		return geminiModel.NewChatModel(ctx, &geminiModel.Config{
			Client: client,
			Model:  cfg.ChatModel,
		})
	default:
		return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:  cfg.ChatAPIKey,
			BaseURL: cfg.ChatBaseURL,
			Model:   cfg.ChatModel,
		})
	}
}
