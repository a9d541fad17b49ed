package vectorstore

import (
	"context"

	"github.com/google/uuid"

	"docqa/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
	Ready(ctx context.Context) bool
}

// PointID derives a stable UUID for a chunk, as required by stores that only
// accept UUID identifiers.
func PointID(chunk domain.Chunk) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunk.ChunkID)).String()
}
