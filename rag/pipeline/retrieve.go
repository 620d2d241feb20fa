package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"docrag/rag"
	"docrag/rag/embed"
	"docrag/rag/errs"
	"docrag/rag/jobs"
	"docrag/rag/store"
)

const (
	stepEmbedAndSearch = "embed-and-search"
	stepGenerateAnswer = "generate-answer"

	// systemPrompt constrains generation to the retrieved context.
	systemPrompt = "You are a helpful assistant. Answer using ONLY the provided context."

	// noContextAnswer is the terminal answer for queries that match
	// nothing in the index. Not an error.
	noContextAnswer = "No relevant context found."
)

// QueryRequest triggers one retrieval run.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// Retrieval runs the two-step retrieval state machine:
// PENDING → SEARCHED → ANSWERED → DONE.
type Retrieval struct {
	embedder    *embed.Service
	vectors     store.VectorStore
	chat        model.BaseChatModel
	runner      *jobs.Runner
	logger      *zap.Logger
	defaultTopK int
	temperature float32
}

// NewRetrieval wires the retrieval pipeline.
func NewRetrieval(embedder *embed.Service, vectors store.VectorStore, chat model.BaseChatModel, runner *jobs.Runner, logger *zap.Logger, defaultTopK int, temperature float32) *Retrieval {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retrieval{
		embedder:    embedder,
		vectors:     vectors,
		chat:        chat,
		runner:      runner,
		logger:      logger,
		defaultTopK: defaultTopK,
		temperature: temperature,
	}
}

// Run executes the retrieval pipeline for one question. A query that
// retrieves no context short-circuits to the fixed no-context answer
// without invoking generation.
func (p *Retrieval) Run(ctx context.Context, run *jobs.Run, req QueryRequest) (rag.Answer, error) {
	topK := req.TopK
	if topK == 0 {
		topK = p.defaultTopK
	}
	if topK < 0 {
		err := errs.InvalidArgumentf("top_k must be positive, got %d", topK)
		p.runner.Fail(ctx, run, stepEmbedAndSearch, err)
		return rag.Answer{}, err
	}
	if strings.TrimSpace(req.Question) == "" {
		err := errs.InvalidArgumentf("question is required")
		p.runner.Fail(ctx, run, stepEmbedAndSearch, err)
		return rag.Answer{}, err
	}

	result, err := jobs.RunStep(ctx, p.runner, run, stepEmbedAndSearch, jobs.StateSearched, func(ctx context.Context) (rag.RetrievalResult, error) {
		vector, err := p.embedder.EmbedOne(ctx, req.Question)
		if err != nil {
			return rag.RetrievalResult{}, err
		}
		return p.vectors.Search(ctx, vector, topK)
	})
	if err != nil {
		return rag.Answer{}, err
	}

	if result.Empty() {
		answer := rag.Answer{Text: noContextAnswer, Sources: []string{}}
		if err := p.runner.Finish(ctx, run); err != nil {
			return rag.Answer{}, err
		}
		return answer, nil
	}

	answer, err := jobs.RunStep(ctx, p.runner, run, stepGenerateAnswer, jobs.StateAnswered, func(ctx context.Context) (rag.Answer, error) {
		return p.generate(ctx, req.Question, result)
	})
	if err != nil {
		return rag.Answer{}, err
	}

	if err := p.runner.Finish(ctx, run); err != nil {
		return rag.Answer{}, err
	}
	return answer, nil
}

// generate builds the bounded context prompt and invokes the chat
// model at low temperature.
func (p *Retrieval) generate(ctx context.Context, question string, result rag.RetrievalResult) (rag.Answer, error) {
	var contextStr strings.Builder
	for i, c := range result.Contexts {
		if i > 0 {
			contextStr.WriteString("\n\n")
		}
		contextStr.WriteString("- ")
		contextStr.WriteString(c)
	}

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\nAnswer:", contextStr.String(), question)

	msg, err := p.chat.Generate(ctx,
		[]*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(userPrompt),
		},
		model.WithTemperature(p.temperature),
	)
	if err != nil {
		return rag.Answer{}, errs.Generation(err)
	}
	if msg == nil || msg.Content == "" {
		return rag.Answer{}, errs.Generation(fmt.Errorf("model returned empty answer"))
	}

	p.logger.Debug("answer generated",
		zap.Int("contexts", len(result.Contexts)),
		zap.Int("sources", len(result.Sources)),
	)

	return rag.Answer{
		Text:        msg.Content,
		Sources:     result.Sources,
		NumContexts: len(result.Contexts),
	}, nil
}
