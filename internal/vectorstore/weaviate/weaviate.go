package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// DefaultClass is the collection that holds document chunks.
const DefaultClass = "DocumentChunk"

const batchSize = 100

// Config contains connection details for a Weaviate instance.
type Config struct {
	Host      string
	Scheme    string
	APIKey    string
	ClassName string
}

// Storage keeps chunks in a Weaviate class with externally supplied vectors.
type Storage struct {
	client    *weaviate.Client
	className string
	logger    *zap.Logger
}

// NewStorage connects a Weaviate client. No request is made until first use.
func NewStorage(cfg Config, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.ClassName == "" {
		cfg.ClassName = DefaultClass
	}
	clientCfg := weaviate.Config{
		Host:   strings.TrimPrefix(strings.TrimPrefix(cfg.Host, "http://"), "https://"),
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		clientCfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return &Storage{
		client:    client,
		className: cfg.ClassName,
		logger:    logger.With(zap.String("component", "weaviate_store")),
	}, nil
}

// Init creates the chunk class when it does not exist yet. The class uses no
// vectorizer; vectors come from the configured embedder.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("check class %s: %w", s.className, err)
	}
	if exists {
		return nil
	}
	class := &models.Class{
		Class:       s.className,
		Description: "A chunk of a loaded document",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "chunk_id", DataType: []string{"text"}},
			{Name: "document_id", DataType: []string{"text"}},
			{Name: "chunk_index", DataType: []string{"int"}},
			{Name: "doc_type", DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", s.className, err)
	}
	s.logger.Info("created weaviate class", zap.String("class", s.className))
	return nil
}

// Upsert writes chunks through the batch endpoint, batchSize objects per
// request.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	objects := chunkObjects(s.className, chunks, vectors)
	for start := 0; start < len(objects); start += batchSize {
		end := min(start+batchSize, len(objects))
		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects[start:end]...).Do(ctx)
		if err != nil {
			return fmt.Errorf("batch insert chunks %d-%d: %w", start, end-1, err)
		}
		if err := batchError(resp); err != nil {
			return err
		}
	}
	s.logger.Debug("chunks upserted", zap.Int("count", len(objects)))
	return nil
}

func chunkObjects(className string, chunks []domain.Chunk, vectors [][]float64) []*models.Object {
	objects := make([]*models.Object, len(chunks))
	for i, ch := range chunks {
		objects[i] = &models.Object{
			Class: className,
			ID:    strfmt.UUID(vectorstore.PointID(ch)),
			Properties: map[string]interface{}{
				"content":     ch.Text,
				"source":      ch.Source,
				"chunk_id":    ch.ChunkID,
				"document_id": ch.DocumentID,
				"chunk_index": ch.Index,
				"doc_type":    ch.DocType,
			},
			Vector: toFloat32(vectors[i]),
		}
	}
	return objects
}

// batchError collects the per-object failures of a batch response.
func batchError(resp []models.ObjectsGetResponse) error {
	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, fmt.Sprintf("%s: %s", r.ID, e.Message))
			}
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("batch insert: %d object errors: %s", len(msgs), strings.Join(msgs, "; "))
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	nearVector := (&graphql.NearVectorArgumentBuilder{}).WithVector(toFloat32(vector))
	resp, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "chunk_id"},
			graphql.Field{Name: "document_id"},
			graphql.Field{Name: "chunk_index"},
			graphql.Field{Name: "doc_type"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("near vector query: %w", err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("near vector query: %s", strings.Join(msgs, "; "))
	}
	return decodeResults(resp.Data, s.className), nil
}

// Clear deletes the class; the next Init recreates it.
func (s *Storage) Clear(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("check class %s: %w", s.className, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.Schema().ClassDeleter().WithClassName(s.className).Do(ctx); err != nil {
		return fmt.Errorf("delete class %s: %w", s.className, err)
	}
	return nil
}

func (s *Storage) Ready(ctx context.Context) bool {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		s.logger.Warn("weaviate readiness check failed", zap.Error(err))
		return false
	}
	return ready
}

// decodeResults maps a GraphQL Get payload onto search results. Distance is
// converted to a similarity score as 1 - distance.
func decodeResults(data map[string]models.JSONObject, className string) []domain.SearchResult {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[className].([]interface{})
	if !ok {
		return nil
	}
	results := make([]domain.SearchResult, 0, len(items))
	for _, item := range items {
		props, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		chunk := domain.Chunk{
			Text:       str(props["content"]),
			Source:     str(props["source"]),
			ChunkID:    str(props["chunk_id"]),
			DocumentID: str(props["document_id"]),
			DocType:    str(props["doc_type"]),
		}
		if v, ok := props["chunk_index"].(float64); ok {
			chunk.Index = int(v)
		}
		score := 0.0
		if add, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				score = 1 - d
			}
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: score})
	}
	return results
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
