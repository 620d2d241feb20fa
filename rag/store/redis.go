package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docrag/rag"
	"docrag/rag/errs"
)

const (
	// HNSW index construction parameters
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in Redis hash
	fieldText   = "text"
	fieldVector = "vector"
	fieldSource = "source"

	maxTopK = 100
)

// RedisStore implements VectorStore on Redis with a RediSearch HNSW
// index using cosine distance. Vectors are written L2-normalized by the
// embedding layer, so distance and dot product agree.
type RedisStore struct {
	client       *redis.Client
	config       Config
	logger       *zap.Logger
	indexCreated bool
	mu           sync.Mutex
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisStore connects to Redis and returns a store bound to the
// configured collection. The index itself is created lazily by
// EnsureCollection.
func NewRedisStore(ctx context.Context, rc RedisConfig, cfg Config, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		PoolSize: rc.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errs.StoreUnavailable(fmt.Errorf("failed to connect to Redis at %s: %w", rc.Addr, err))
	}

	return &RedisStore{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// EnsureCollection creates the HNSW vector index if it doesn't exist.
func (s *RedisStore) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexCreated {
		return nil
	}

	if _, err := s.client.Do(ctx, "FT.INFO", s.config.IndexName).Result(); err == nil {
		s.indexCreated = true
		return nil
	}

	// FT.CREATE docs ON HASH PREFIX 1 "vec:"
	//   SCHEMA vector VECTOR HNSW 10 TYPE FLOAT32 DIM 384 DISTANCE_METRIC COSINE ...
	//          text TEXT  source TAG
	_, err := s.client.Do(ctx, "FT.CREATE", s.config.IndexName,
		"ON", "HASH",
		"PREFIX", "1", s.config.KeyPrefix,
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.config.Dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldText, "TEXT",
		fieldSource, "TAG",
	).Result()
	if err != nil {
		return errs.StoreUnavailable(fmt.Errorf("failed to create index %s: %w", s.config.IndexName, err))
	}

	s.logger.Info("created vector index",
		zap.String("index", s.config.IndexName),
		zap.Int("dim", s.config.Dim),
	)
	s.indexCreated = true
	return nil
}

// Upsert writes the given points, replacing any existing point with the
// same id. All three slices must be index-aligned.
func (s *RedisStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []rag.Payload) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return errs.InvalidArgumentf("ids, vectors and payloads must align: %d/%d/%d", len(ids), len(vectors), len(payloads))
	}
	if len(ids) == 0 {
		return nil
	}
	for i, vec := range vectors {
		if len(vec) != s.config.Dim {
			return errs.InvalidArgumentf("vector %d has dimension %d, collection expects %d", i, len(vec), s.config.Dim)
		}
	}

	pipe := s.client.Pipeline()
	for i, id := range ids {
		pipe.HSet(ctx, s.config.KeyPrefix+id,
			fieldText, payloads[i].Text,
			fieldVector, encodeVector(vectors[i]),
			fieldSource, payloads[i].Source,
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.StoreUnavailable(fmt.Errorf("failed to upsert %d points: %w", len(ids), err))
	}

	s.logger.Debug("upserted points", zap.Int("count", len(ids)))
	return nil
}

// Search performs KNN search and assembles the ranked retrieval view.
func (s *RedisStore) Search(ctx context.Context, vector []float32, topK int) (rag.RetrievalResult, error) {
	if topK <= 0 {
		return rag.RetrievalResult{}, errs.InvalidArgumentf("top_k must be positive, got %d", topK)
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	if len(vector) != s.config.Dim {
		return rag.RetrievalResult{}, errs.InvalidArgumentf("query vector has dimension %d, collection expects %d", len(vector), s.config.Dim)
	}

	// FT.SEARCH docs "*=>[KNN 5 @vector $query_vector AS score]"
	//   PARAMS 2 query_vector <bytes> SORTBY score RETURN 3 text source score
	queryStr := fmt.Sprintf("*=>[KNN %d @vector $query_vector AS score]", topK)
	result, err := s.client.Do(ctx, "FT.SEARCH", s.config.IndexName, queryStr,
		"PARAMS", "2", "query_vector", encodeVector(vector),
		"SORTBY", "score",
		"RETURN", "3", fieldText, fieldSource, "score",
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return rag.RetrievalResult{}, errs.StoreUnavailable(fmt.Errorf("vector search failed: %w", err))
	}

	points, err := parseSearchResults(result)
	if err != nil {
		return rag.RetrievalResult{}, errs.StoreUnavailable(fmt.Errorf("failed to parse search results: %w", err))
	}

	return rag.NewRetrievalResult(points), nil
}

// parseSearchResults parses an FT.SEARCH reply: a count followed by
// (id, field-list) pairs in rank order.
func parseSearchResults(result interface{}) ([]rag.ScoredPoint, error) {
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", result)
	}
	if len(values) == 0 {
		return nil, nil
	}

	var points []rag.ScoredPoint
	for i := 1; i+1 < len(values); i += 2 {
		id, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}

		point := rag.ScoredPoint{ID: id}
		for j := 0; j+1 < len(fields); j += 2 {
			name, ok := fields[j].(string)
			if !ok {
				continue
			}
			value, ok := fields[j+1].(string)
			if !ok {
				continue
			}
			switch name {
			case fieldText:
				point.Payload.Text = value
			case fieldSource:
				point.Payload.Source = value
			case "score":
				// RediSearch reports cosine distance; similarity is its complement.
				if dist, err := strconv.ParseFloat(value, 32); err == nil {
					point.Score = 1 - float32(dist)
				}
			}
		}
		points = append(points, point)
	}

	return points, nil
}

// DeleteBySource removes all points ingested from one source id.
func (s *RedisStore) DeleteBySource(ctx context.Context, source string) error {
	if source == "" {
		return errs.InvalidArgumentf("source cannot be empty")
	}

	result, err := s.client.Do(ctx, "FT.SEARCH", s.config.IndexName,
		fmt.Sprintf("@source:{%s}", escapeTag(source)),
		"NOCONTENT",
		"LIMIT", "0", "1000",
	).Result()
	if err != nil {
		return errs.StoreUnavailable(fmt.Errorf("failed to find points for source %s: %w", source, err))
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return nil
	}

	var keys []string
	for i := 1; i < len(values); i++ {
		if key, ok := values[i].(string); ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return errs.StoreUnavailable(fmt.Errorf("failed to delete %d points: %w", len(keys), err))
	}
	return nil
}

// Count returns the number of indexed points.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	info, err := s.client.Do(ctx, "FT.INFO", s.config.IndexName).Result()
	if err != nil {
		return 0, errs.StoreUnavailable(fmt.Errorf("failed to get index info: %w", err))
	}

	values, ok := info.([]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected info format %T", info)
	}
	for i := 0; i+1 < len(values); i += 2 {
		if key, ok := values[i].(string); ok && key == "num_docs" {
			switch count := values[i+1].(type) {
			case int64:
				return count, nil
			case string:
				n, _ := strconv.ParseInt(count, 10, 64)
				return n, nil
			}
		}
	}
	return 0, nil
}

// Client exposes the underlying connection for collaborators sharing
// the same Redis instance, such as the run checkpointer.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// encodeVector encodes a float32 vector as the little-endian byte blob
// RediSearch expects for FLOAT32 vector fields.
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// escapeTag escapes separator characters in TAG field queries.
func escapeTag(s string) string {
	var out []rune
	for _, r := range s {
		switch r {
		case ',', '.', '<', '>', '{', '}', '[', ']', '"', '\'', ':', ';', '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '-', '+', '=', '~', ' ', '/':
			out = append(out, '\\', r)
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
