package weaviate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

func TestDecodeResults(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]interface{}{
			DefaultClass: []interface{}{
				map[string]interface{}{
					"content":     "Supervised learning uses labels.",
					"source":      "ml_basics.pdf",
					"chunk_id":    "doc:0",
					"document_id": "doc",
					"chunk_index": float64(0),
					"doc_type":    "pdf",
					"_additional": map[string]interface{}{"distance": 0.25},
				},
				"not an object",
			},
		},
	}

	res := decodeResults(data, DefaultClass)
	require.Len(t, res, 1)
	assert.Equal(t, "ml_basics.pdf", res[0].Chunk.Source)
	assert.Equal(t, "Supervised learning uses labels.", res[0].Chunk.Text)
	assert.InDelta(t, 0.75, res[0].Score, 1e-9)
}

func TestDecodeResults_MissingClass(t *testing.T) {
	assert.Empty(t, decodeResults(map[string]models.JSONObject{}, DefaultClass))
	assert.Empty(t, decodeResults(map[string]models.JSONObject{"Get": map[string]interface{}{}}, DefaultClass))
}

func TestNewStorage_Defaults(t *testing.T) {
	s, err := NewStorage(Config{Host: "http://localhost:8080"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultClass, s.className)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{1, 0.5}, toFloat32([]float64{1, 0.5}))
}

func TestChunkObjects(t *testing.T) {
	chunks := make([]domain.Chunk, 3)
	vectors := make([][]float64, 3)
	for i := range chunks {
		chunks[i] = domain.Chunk{ChunkID: fmt.Sprintf("doc:%d", i), DocumentID: "doc", Index: i, Source: "doc.txt", Text: "t"}
		vectors[i] = []float64{float64(i), 1}
	}

	objs := chunkObjects(DefaultClass, chunks, vectors)
	require.Len(t, objs, 3)
	assert.Equal(t, DefaultClass, objs[2].Class)
	assert.EqualValues(t, vectorstore.PointID(chunks[2]), objs[2].ID)
	assert.Equal(t, models.C11yVector{2, 1}, objs[2].Vector)
	props := objs[2].Properties.(map[string]interface{})
	assert.Equal(t, "doc:2", props["chunk_id"])
	assert.Equal(t, 2, props["chunk_index"])
}

func TestBatchError(t *testing.T) {
	assert.NoError(t, batchError(nil))
	assert.NoError(t, batchError([]models.ObjectsGetResponse{{Result: &models.ObjectsGetResponseAO2Result{}}}))

	failed := models.ObjectsGetResponse{Result: &models.ObjectsGetResponseAO2Result{
		Errors: &models.ErrorResponse{Error: []*models.ErrorResponseErrorItems0{{Message: "vector length mismatch"}}},
	}}
	failed.ID = "6f1c"
	err := batchError([]models.ObjectsGetResponse{{}, failed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "6f1c: vector length mismatch")
}
