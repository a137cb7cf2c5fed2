package retrieval

import (
	"context"

	"github.com/jmylchreest/devlens/internal/repository"
)

// LexicalSearcher performs the Postgres full-text half of a hybrid search.
type LexicalSearcher struct {
	chunks repository.ChunkRepository
}

func NewLexicalSearcher(chunks repository.ChunkRepository) *LexicalSearcher {
	return &LexicalSearcher{chunks: chunks}
}

// Search returns lexical hits for a repository scoped query, already in the
// LexHit shape Rerank expects.
func (s *LexicalSearcher) Search(ctx context.Context, repoID, query string, limit int) ([]LexHit, error) {
	hits, err := s.chunks.SearchLexical(ctx, repoID, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]LexHit, len(hits))
	for i, h := range hits {
		out[i] = LexHit{ChunkID: h.Chunk.ID, Rank: h.Rank}
	}
	return out, nil
}
