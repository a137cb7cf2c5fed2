package retrieval

import (
	"context"

	"github.com/jmylchreest/devlens/internal/vectorstore"
)

// DenseSearcher performs the vector-similarity half of a hybrid search.
type DenseSearcher struct {
	embedder Embedder
	store    *vectorstore.Store
}

func NewDenseSearcher(embedder Embedder, store *vectorstore.Store) *DenseSearcher {
	return &DenseSearcher{embedder: embedder, store: store}
}

// Search embeds the query deterministically and returns dense hits in the
// DenseHit shape Rerank expects.
func (s *DenseSearcher) Search(ctx context.Context, repoID, query string, limit int) ([]DenseHit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.SearchByRepo(ctx, repoID, vec, uint64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]DenseHit, len(hits))
	for i, h := range hits {
		out[i] = DenseHit{ChunkID: h.ChunkID, Score: h.Score}
	}
	return out, nil
}
