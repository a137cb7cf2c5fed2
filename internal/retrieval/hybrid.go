package retrieval

import (
	"math"
	"sort"
)

// Weights for the hybrid rerank score: 45% dense similarity, 35% lexical
// relevance, 20% raw query/file-identifier token overlap. These exact values
// and the six-decimal rounding are a deliberate fixed point — any caller
// comparing scores across runs or against golden fixtures depends on it.
const (
	denseWeight    = 0.45
	lexicalWeight  = 0.35
	overlapWeight  = 0.20
	scoreRoundTo   = 1e6
)

// DenseHit is one candidate returned by the vector store side of a hybrid search.
type DenseHit struct {
	ChunkID string
	Score   float64
}

// LexHit is one candidate returned by the lexical (FTS) side of a hybrid search.
type LexHit struct {
	ChunkID string
	Rank    float64
}

// ChunkMeta is the minimal chunk metadata needed to compute token overlap
// without round-tripping the full chunk content.
type ChunkMeta struct {
	ChunkID  string
	Path     string
	Language string
}

// Result is one reranked hit, with component scores preserved for callers
// that want to explain or log why a chunk ranked where it did.
type Result struct {
	ChunkID      string
	DenseNorm    float64
	LexicalNorm  float64
	Overlap      float64
	RerankScore  float64
}

// Rerank merges dense and lexical candidate sets by chunk id, min-max
// normalizes each side independently across the merged set, computes query
// token overlap against "path language" per chunk, and sorts by
// (-rerank_score, chunk_id) so ties break deterministically.
//
// A chunk present on only one side gets 0 for the missing side's raw score
// before normalization, matching the merge rule: missing candidates aren't
// dropped, they're just scored as having no signal from that retriever.
func Rerank(query string, dense []DenseHit, lexical []LexHit, meta map[string]ChunkMeta) []Result {
	type acc struct {
		denseRaw   float64
		lexicalRaw float64
		haveDense  bool
		haveLex    bool
	}
	merged := make(map[string]*acc)

	for _, d := range dense {
		a, ok := merged[d.ChunkID]
		if !ok {
			a = &acc{}
			merged[d.ChunkID] = a
		}
		a.denseRaw = d.Score
		a.haveDense = true
	}
	for _, l := range lexical {
		a, ok := merged[l.ChunkID]
		if !ok {
			a = &acc{}
			merged[l.ChunkID] = a
		}
		a.lexicalRaw = l.Rank
		a.haveLex = true
	}

	if len(merged) == 0 {
		return nil
	}

	minDense, maxDense := math.Inf(1), math.Inf(-1)
	minLex, maxLex := math.Inf(1), math.Inf(-1)
	for _, a := range merged {
		minDense = math.Min(minDense, a.denseRaw)
		maxDense = math.Max(maxDense, a.denseRaw)
		minLex = math.Min(minLex, a.lexicalRaw)
		maxLex = math.Max(maxLex, a.lexicalRaw)
	}

	queryTokens := tokenSet(query)

	results := make([]Result, 0, len(merged))
	for chunkID, a := range merged {
		denseNorm := minMax(a.denseRaw, minDense, maxDense)
		lexicalNorm := minMax(a.lexicalRaw, minLex, maxLex)

		overlap := 0.0
		if m, ok := meta[chunkID]; ok {
			overlap = tokenOverlap(queryTokens, m.Path+" "+m.Language)
		}

		score := round6(denseWeight*denseNorm + lexicalWeight*lexicalNorm + overlapWeight*overlap)
		results = append(results, Result{
			ChunkID:     chunkID,
			DenseNorm:   denseNorm,
			LexicalNorm: lexicalNorm,
			Overlap:     overlap,
			RerankScore: score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].RerankScore != results[j].RerankScore {
			return results[i].RerankScore > results[j].RerankScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}

// minMax normalizes to [0,1]; when every candidate ties (max == min) every
// candidate gets 1 rather than dividing by zero — the side contributed no
// discriminating signal, so it shouldn't be treated as contributing none.
func minMax(v, min, max float64) float64 {
	if max == min {
		return 1
	}
	return (v - min) / (max - min)
}

func round6(v float64) float64 {
	return math.Round(v*scoreRoundTo) / scoreRoundTo
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// tokenOverlap computes |Q∩F| / |Q| where Q is the query token set and F is
// the token set of the field string. An empty query has no defined overlap
// and scores 0.
func tokenOverlap(query map[string]struct{}, field string) float64 {
	if len(query) == 0 {
		return 0
	}
	fieldSet := tokenSet(field)
	matched := 0
	for tok := range query {
		if _, ok := fieldSet[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
