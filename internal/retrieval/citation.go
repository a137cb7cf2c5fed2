package retrieval

import (
	"context"
	"fmt"

	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

// CitationClaim is a single citation asserted by a chat answer, before it
// has been checked against the actual chunk store.
type CitationClaim struct {
	ChunkID   string
	FilePath  string
	StartLine int
	EndLine   int
	Score     float64
}

// Validator checks claimed citations against the chunk store scoped to one
// repository, keeping only claims whose chunk exists, whose file path
// matches exactly, and whose requested line range sits inside the chunk's
// stored range.
type Validator struct {
	chunks repository.ChunkRepository
}

func NewValidator(chunks repository.ChunkRepository) *Validator {
	return &Validator{chunks: chunks}
}

// Validate resolves each claim's chunk, drops anything that doesn't match,
// and returns the surviving citations with anchors filled in alongside a
// noCitation flag. The returned slice is always the real (possibly empty)
// set of valid citations — callers must not serialize a sentinel element to
// signal "no citation"; they have the noCitation bool for that.
func (v *Validator) Validate(ctx context.Context, repoID string, claims []CitationClaim) (citations []models.Citation, noCitation bool, err error) {
	valid := make([]models.Citation, 0, len(claims))
	if len(claims) == 0 {
		return valid, true, nil
	}

	ids := make([]string, len(claims))
	for i, c := range claims {
		ids[i] = c.ChunkID
	}
	chunks, err := v.chunks.GetByIDs(ctx, repoID, ids)
	if err != nil {
		return nil, false, fmt.Errorf("resolve cited chunks: %w", err)
	}
	byID := make(map[string]*models.CodeChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	for _, claim := range claims {
		chunk, ok := byID[claim.ChunkID]
		if !ok {
			continue
		}
		if chunk.Path != claim.FilePath {
			continue
		}
		if claim.StartLine < chunk.StartLine || claim.EndLine > chunk.EndLine {
			continue
		}
		valid = append(valid, models.Citation{
			ChunkID:   chunk.ID,
			Path:      chunk.Path,
			StartLine: claim.StartLine,
			EndLine:   claim.EndLine,
			Anchor:    anchor(chunk.Path, claim.StartLine, claim.EndLine),
			Score:     claim.Score,
		})
	}

	return valid, len(valid) == 0, nil
}

func anchor(path string, start, end int) string {
	return fmt.Sprintf("%s#L%d-L%d", path, start, end)
}
