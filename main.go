package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"docrag/pubsub"
	"docrag/rag/chunk"
	"docrag/rag/config"
	"docrag/rag/embed"
	"docrag/rag/jobs"
	"docrag/rag/parser"
	"docrag/rag/pipeline"
	"docrag/rag/providers"
	"docrag/rag/store"
	"docrag/server"
)

func init() {
	// Load .env file if exists
	_ = godotenv.Load()
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	embedModel, err := providers.NewEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	chatModel, err := providers.NewChatModel(ctx, cfg)
	if err != nil {
		return err
	}

	vectors, err := store.NewRedisStore(ctx,
		store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		},
		store.Config{
			IndexName: cfg.IndexName,
			KeyPrefix: cfg.KeyPrefix,
			Dim:       cfg.VectorDim,
		},
		logger,
	)
	if err != nil {
		return err
	}
	defer vectors.Close()

	if err := vectors.EnsureCollection(ctx); err != nil {
		return err
	}

	embedder := embed.NewService(embedModel, cfg.VectorDim, logger)
	splitter := chunk.NewSplitter(chunk.Config{MaxSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	registry := parser.NewRegistry()

	checkpointer := jobs.NewRedisCheckpointer(vectors.Client(), time.Duration(cfg.CheckpointTTLHours)*time.Hour)
	runner := jobs.NewRunner(checkpointer, logger)

	ingestion := pipeline.NewIngestion(registry, splitter, embedder, vectors, runner, logger)
	retrieval := pipeline.NewRetrieval(embedder, vectors, chatModel, runner, logger, cfg.DefaultTopK, cfg.Temperature)

	broker := pubsub.NewBroker[pipeline.Trigger]()
	defer broker.Shutdown()

	dispatcher := pipeline.NewDispatcher(broker, ingestion, retrieval, runner, logger, 4)
	dispatcher.Start(ctx)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(dispatcher, retrieval, runner, vectors, logger).Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("index", cfg.IndexName),
		zap.Int("dim", cfg.VectorDim),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
