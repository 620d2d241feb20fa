// Package pipeline orchestrates the ingestion and retrieval state
// machines over the chunker, embedder, vector store and chat model.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"docrag/rag"
	"docrag/rag/chunk"
	"docrag/rag/embed"
	"docrag/rag/errs"
	"docrag/rag/jobs"
	"docrag/rag/parser"
	"docrag/rag/store"
)

const (
	stepLoadAndChunk   = "load-and-chunk"
	stepEmbedAndUpsert = "embed-and-upsert"
)

// IngestRequest triggers one ingestion run. DocumentRef is a file path;
// extraction happens inside the first step, so the event stays small
// enough for any transport.
type IngestRequest struct {
	SourceID    string `json:"source_id"`
	DocumentRef string `json:"document_ref"`
	// RemoveAfter removes the referenced file once extraction
	// succeeded, for transports that stage uploads in temp files.
	RemoveAfter bool `json:"remove_after,omitempty"`
}

// IngestResult is the terminal result of an ingestion run.
type IngestResult struct {
	SourceID string `json:"source_id"`
	Chunks   int    `json:"chunks"`
}

// Ingestion runs the two-step ingestion state machine:
// PENDING → LOADED → EMBEDDED_AND_STORED → DONE.
type Ingestion struct {
	registry *parser.Registry
	splitter *chunk.Splitter
	embedder *embed.Service
	vectors  store.VectorStore
	runner   *jobs.Runner
	logger   *zap.Logger
}

// NewIngestion wires the ingestion pipeline.
func NewIngestion(registry *parser.Registry, splitter *chunk.Splitter, embedder *embed.Service, vectors store.VectorStore, runner *jobs.Runner, logger *zap.Logger) *Ingestion {
	return &Ingestion{
		registry: registry,
		splitter: splitter,
		embedder: embedder,
		vectors:  vectors,
		runner:   runner,
		logger:   logger,
	}
}

// Run executes the ingestion pipeline for one document. Both steps are
// idempotent: chunking is deterministic and upserts are keyed by
// content-independent chunk ids, so a retried or resumed run converges
// on the same stored state.
func (p *Ingestion) Run(ctx context.Context, run *jobs.Run, req IngestRequest) (IngestResult, error) {
	if req.SourceID == "" {
		err := errs.InvalidArgumentf("source_id is required")
		p.runner.Fail(ctx, run, stepLoadAndChunk, err)
		return IngestResult{}, err
	}

	chunks, err := jobs.RunStep(ctx, p.runner, run, stepLoadAndChunk, jobs.StateLoaded, func(ctx context.Context) ([]string, error) {
		return p.loadAndChunk(ctx, req)
	})
	if err != nil {
		return IngestResult{}, err
	}

	count, err := jobs.RunStep(ctx, p.runner, run, stepEmbedAndUpsert, jobs.StateEmbeddedAndStored, func(ctx context.Context) (int, error) {
		return p.embedAndUpsert(ctx, req.SourceID, chunks)
	})
	if err != nil {
		return IngestResult{}, err
	}

	if err := p.runner.Finish(ctx, run); err != nil {
		return IngestResult{}, err
	}

	p.logger.Info("document ingested",
		zap.String("source", req.SourceID),
		zap.Int("chunks", count),
	)
	return IngestResult{SourceID: req.SourceID, Chunks: count}, nil
}

// loadAndChunk extracts the document's text blocks and splits them into
// bounded chunks, block by block.
func (p *Ingestion) loadAndChunk(ctx context.Context, req IngestRequest) ([]string, error) {
	if req.RemoveAfter {
		// The staged file is removed whether or not extraction
		// succeeds; a failed run must not leak temp files.
		defer os.Remove(req.DocumentRef)
	}

	doc, err := p.registry.ParseFile(ctx, req.DocumentRef)
	if err != nil {
		return nil, errs.Extraction(fmt.Errorf("document %s: %w", req.SourceID, err))
	}

	chunks := p.splitter.SplitBlocks(doc.Blocks)
	p.logger.Debug("document chunked",
		zap.String("source", req.SourceID),
		zap.Int("blocks", len(doc.Blocks)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// embedAndUpsert derives the chunk ids, embeds the chunk texts and
// writes the points. Ids depend only on (source, index), so repeated
// execution overwrites instead of duplicating.
func (p *Ingestion) embedAndUpsert(ctx context.Context, sourceID string, chunks []string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	ids := chunk.IDs(sourceID, len(chunks))
	payloads := make([]rag.Payload, len(chunks))
	for i, text := range chunks {
		payloads[i] = rag.Payload{Source: sourceID, Text: text}
	}

	if err := p.vectors.Upsert(ctx, ids, vectors, payloads); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
