package retrieval

import (
	"context"
	"fmt"

	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

// HybridSearcher gathers candidates from both retrievers and reranks them.
type HybridSearcher struct {
	dense  *DenseSearcher
	lex    *LexicalSearcher
	chunks repository.ChunkRepository
}

func NewHybridSearcher(dense *DenseSearcher, lex *LexicalSearcher, chunks repository.ChunkRepository) *HybridSearcher {
	return &HybridSearcher{dense: dense, lex: lex, chunks: chunks}
}

// Search gathers 2*limit candidates from each side, reranks the merged set,
// and returns the top limit results with their source chunks resolved.
func (h *HybridSearcher) Search(ctx context.Context, repoID, query string, limit int) ([]Result, map[string]*models.CodeChunk, error) {
	candidateLimit := limit * 2

	denseHits, err := h.dense.Search(ctx, repoID, query, candidateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("dense search: %w", err)
	}
	lexHits, err := h.lex.Search(ctx, repoID, query, candidateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("lexical search: %w", err)
	}

	ids := make(map[string]struct{}, len(denseHits)+len(lexHits))
	for _, d := range denseHits {
		ids[d.ChunkID] = struct{}{}
	}
	for _, l := range lexHits {
		ids[l.ChunkID] = struct{}{}
	}
	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	chunks, err := h.chunks.GetByIDs(ctx, repoID, idList)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve candidate chunks: %w", err)
	}

	meta := make(map[string]ChunkMeta, len(chunks))
	byID := make(map[string]*models.CodeChunk, len(chunks))
	for _, c := range chunks {
		meta[c.ID] = ChunkMeta{ChunkID: c.ID, Path: c.Path, Language: c.Language}
		byID[c.ID] = c
	}

	results := Rerank(query, denseHits, lexHits, meta)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, byID, nil
}
