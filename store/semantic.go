package store

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// SemanticIndex is an optional, additive ranking signal for SearchPageNodes.
// Spec.md §4.1 mandates case-insensitive substring search as the contract;
// this interface layers an opt-in semantic re-ranking on top of it without
// ever replacing the mandatory behavior (SPEC_FULL.md domain-stack entry).
type SemanticIndex interface {
	// Index upserts a page node's content into the semantic index.
	Index(node PageNode) error
	// Query returns page node ids ranked by semantic similarity to text.
	Query(text string, limit int) ([]string, error)
}

// QdrantIndex is a SemanticIndex backed by a Qdrant collection. Embedding
// generation itself is a named external collaborator (spec.md §1 scope); an
// Embedder function is supplied by the caller rather than implemented here.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	embed      Embedder
}

// Embedder turns text into a vector for Qdrant upsert/query.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// NewQdrantIndex constructs a QdrantIndex. The named collection must already
// exist with a compatible vector size; collection lifecycle management is
// the caller's responsibility.
func NewQdrantIndex(client *qdrant.Client, collection string, embed Embedder) *QdrantIndex {
	return &QdrantIndex{client: client, collection: collection, embed: embed}
}

func (q *QdrantIndex) Index(node PageNode) error {
	if node.Content == "" {
		return nil
	}
	ctx := context.Background()
	vec, err := q.embed(ctx, node.Content)
	if err != nil {
		return fmt.Errorf("store: embed page node %s: %w", node.ID, err)
	}

	idHash := qdrant.NewID(node.ID)
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      idHash,
				Vectors: qdrant.NewVectors(vec...),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id": node.DocumentID,
					"page_id":     node.PageID,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("store: qdrant upsert %s: %w", node.ID, err)
	}
	return nil
}

func (q *QdrantIndex) Query(text string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	ctx := context.Background()
	vec, err := q.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("store: embed query: %w", err)
	}

	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant query: %w", err)
	}

	ids := make([]string, 0, len(res))
	for _, point := range res {
		if id := point.GetId(); id != nil {
			ids = append(ids, id.GetUuid())
		}
	}
	return ids, nil
}
