package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docrag/pubsub"
	"docrag/rag"
	"docrag/rag/chunk"
	"docrag/rag/embed"
	"docrag/rag/errs"
	"docrag/rag/jobs"
	"docrag/rag/parser"
	"docrag/rag/store"
)

const testDim = 4

// mapEmbedder returns fixed vectors for known texts and a default for
// everything else, so tests control which chunk a query lands on.
type mapEmbedder struct {
	vectors map[string][]float64
}

func (m *mapEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	result := make([][]float64, len(texts))
	for i, text := range texts {
		if vec, ok := m.vectors[text]; ok {
			result[i] = vec
			continue
		}
		result[i] = []float64{0, 0, 0, 1}
	}
	return result, nil
}

// stubChat answers with a fixed string and counts invocations.
type stubChat struct {
	answer string
	calls  int
	err    error
}

func (s *stubChat) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage(s.answer, nil), nil
}

func (s *stubChat) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

type fixture struct {
	ingestion *Ingestion
	retrieval *Retrieval
	runner    *jobs.Runner
	vectors   *store.MemoryStore
	chat      *stubChat
}

func newFixture(t *testing.T, splitCfg chunk.Config, emb *mapEmbedder) *fixture {
	t.Helper()

	logger := zap.NewNop()
	vectors := store.NewMemoryStore(testDim)
	embedder := embed.NewService(emb, testDim, logger)
	runner := jobs.NewRunnerWithPolicy(jobs.NewMemoryCheckpointer(), logger, 3, time.Millisecond)
	chat := &stubChat{answer: "Paris is the capital of France."}

	return &fixture{
		ingestion: NewIngestion(parser.NewRegistry(), chunk.NewSplitter(splitCfg), embedder, vectors, runner, logger),
		retrieval: NewRetrieval(embedder, vectors, chat, runner, logger, 5, 0.2),
		runner:    runner,
		vectors:   vectors,
		chat:      chat,
	}
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIngestionProducesDeterministicPoints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chunk.Config{MaxSize: 30, Overlap: 10}, &mapEmbedder{})
	path := writeDoc(t, "doc.txt", "Sentence one. Sentence two. Sentence three.")

	run := jobs.NewRun(jobs.KindIngest)
	require.NoError(t, f.runner.Start(ctx, run))

	result, err := f.ingestion.Run(ctx, run, IngestRequest{SourceID: "doc.txt", DocumentRef: path})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Chunks)
	assert.Equal(t, jobs.StateDone, run.State)

	count, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// Point ids derive from (source, index) only.
	for i := 0; i < 2; i++ {
		_, ok := f.vectors.Get(chunk.ID("doc.txt", i))
		assert.True(t, ok, "missing point for chunk %d", i)
	}
}

func TestIngestionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chunk.Config{MaxSize: 30, Overlap: 10}, &mapEmbedder{})
	path := writeDoc(t, "doc.txt", "Sentence one. Sentence two. Sentence three.")

	req := IngestRequest{SourceID: "doc.txt", DocumentRef: path}

	first := jobs.NewRun(jobs.KindIngest)
	require.NoError(t, f.runner.Start(ctx, first))
	_, err := f.ingestion.Run(ctx, first, req)
	require.NoError(t, err)
	idsAfterFirst := f.vectors.IDs()

	second := jobs.NewRun(jobs.KindIngest)
	require.NoError(t, f.runner.Start(ctx, second))
	_, err = f.ingestion.Run(ctx, second, req)
	require.NoError(t, err)

	assert.Equal(t, idsAfterFirst, f.vectors.IDs(), "re-ingestion must overwrite, not duplicate")
}

func TestIngestionExtractionFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chunk.DefaultConfig(), &mapEmbedder{})

	run := jobs.NewRun(jobs.KindIngest)
	require.NoError(t, f.runner.Start(ctx, run))

	_, err := f.ingestion.Run(ctx, run, IngestRequest{SourceID: "ghost.txt", DocumentRef: "/does/not/exist.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrExtraction)
	assert.Equal(t, jobs.StateFailed, run.State)
	assert.Contains(t, run.Err, "extraction")
}

func TestIngestionRemovesStagedFileOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chunk.DefaultConfig(), &mapEmbedder{})
	path := writeDoc(t, "staged.png", "not a supported document")

	run := jobs.NewRun(jobs.KindIngest)
	require.NoError(t, f.runner.Start(ctx, run))

	_, err := f.ingestion.Run(ctx, run, IngestRequest{SourceID: "staged.png", DocumentRef: path, RemoveAfter: true})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "staged file must be removed after a failed extraction")
}

func TestIngestionResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chunk.Config{MaxSize: 30, Overlap: 10}, &mapEmbedder{})
	path := writeDoc(t, "doc.txt", "Sentence one. Sentence two. Sentence three.")

	run := jobs.NewRun(jobs.KindIngest)
	require.NoError(t, f.runner.Start(ctx, run))
	req := IngestRequest{SourceID: "doc.txt", DocumentRef: path}

	_, err := f.ingestion.Run(ctx, run, req)
	require.NoError(t, err)

	// Re-running the same run id after the source file is gone must
	// succeed entirely from checkpoints.
	require.NoError(t, os.Remove(path))
	_, err = f.ingestion.Run(ctx, run, req)
	require.NoError(t, err)
}

func TestRetrievalFindsNearestSource(t *testing.T) {
	ctx := context.Background()
	chunkText := "The Eiffel Tower is in Paris."
	question := "Where is the Eiffel Tower?"

	f := newFixture(t, chunk.DefaultConfig(), &mapEmbedder{vectors: map[string][]float64{
		chunkText: {1, 0, 0, 0},
		"Giraffes are the tallest land animals.": {0, 1, 0, 0},
		question: {0.95, 0.05, 0, 0},
	}})

	require.NoError(t, f.vectors.Upsert(ctx,
		[]string{chunk.ID("doc1", 0), chunk.ID("doc2", 0)},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]rag.Payload{
			{Source: "doc1", Text: chunkText},
			{Source: "doc2", Text: "Giraffes are the tallest land animals."},
		},
	))

	run := jobs.NewRun(jobs.KindQuery)
	require.NoError(t, f.runner.Start(ctx, run))

	answer, err := f.retrieval.Run(ctx, run, QueryRequest{Question: question, TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, answer.Sources)
	assert.Equal(t, 1, answer.NumContexts)
	assert.NotEmpty(t, answer.Text)
	assert.Equal(t, 1, f.chat.calls)
	assert.Equal(t, jobs.StateDone, run.State)
}

func TestRetrievalEmptyCollectionShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chunk.DefaultConfig(), &mapEmbedder{})

	run := jobs.NewRun(jobs.KindQuery)
	require.NoError(t, f.runner.Start(ctx, run))

	answer, err := f.retrieval.Run(ctx, run, QueryRequest{Question: "anything?"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant context found.", answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, f.chat.calls, "generation must not run without context")
	assert.Equal(t, jobs.StateDone, run.State)
}

func TestRetrievalRejectsInvalidTopK(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chunk.DefaultConfig(), &mapEmbedder{})

	run := jobs.NewRun(jobs.KindQuery)
	require.NoError(t, f.runner.Start(ctx, run))

	_, err := f.retrieval.Run(ctx, run, QueryRequest{Question: "q?", TopK: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	assert.Equal(t, jobs.StateFailed, run.State)
}

func TestRetrievalGenerationFailure(t *testing.T) {
	ctx := context.Background()
	chunkText := "Some indexed fact."
	f := newFixture(t, chunk.DefaultConfig(), &mapEmbedder{vectors: map[string][]float64{
		chunkText: {1, 0, 0, 0},
		"why?":    {1, 0, 0, 0},
	}})
	f.chat.err = errors.New("rate limited")

	require.NoError(t, f.vectors.Upsert(ctx,
		[]string{chunk.ID("doc1", 0)},
		[][]float32{{1, 0, 0, 0}},
		[]rag.Payload{{Source: "doc1", Text: chunkText}},
	))

	run := jobs.NewRun(jobs.KindQuery)
	require.NoError(t, f.runner.Start(ctx, run))

	_, err := f.retrieval.Run(ctx, run, QueryRequest{Question: "why?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.Equal(t, jobs.StateFailed, run.State)
}

func TestDispatchFailsRunWhenNoWorkerAccepts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chunk.DefaultConfig(), &mapEmbedder{})

	broker := pubsub.NewBroker[Trigger]()
	defer broker.Shutdown()

	// No Start: nothing consumes the broker, so the trigger cannot be
	// delivered and the run must not stay PENDING.
	d := NewDispatcher(broker, f.ingestion, f.retrieval, f.runner, zap.NewNop(), 2)

	run, err := d.DispatchQuery(ctx, QueryRequest{Question: "lost?"})
	require.Error(t, err)
	require.NotNil(t, run)

	persisted, err := f.runner.Checkpointer().LoadRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, jobs.StateFailed, persisted.State)
}

func TestDispatcherExecutesIngestRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, chunk.Config{MaxSize: 30, Overlap: 10}, &mapEmbedder{})
	path := writeDoc(t, "doc.txt", "Sentence one. Sentence two. Sentence three.")

	broker := pubsub.NewBroker[Trigger]()
	defer broker.Shutdown()

	d := NewDispatcher(broker, f.ingestion, f.retrieval, f.runner, zap.NewNop(), 2)
	d.Start(ctx)

	run, err := d.DispatchIngest(ctx, IngestRequest{SourceID: "doc.txt", DocumentRef: path})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		loaded, err := f.runner.Checkpointer().LoadRun(ctx, run.ID)
		return err == nil && loaded != nil && loaded.State == jobs.StateDone
	}, 2*time.Second, 10*time.Millisecond)

	count, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
