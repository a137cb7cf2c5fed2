package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
	"github.com/jmylchreest/devlens/internal/retrieval"
	"github.com/jmylchreest/devlens/internal/vectorstore"
)

// EmbedDeps is what the embedding stage needs from the outside world.
type EmbedDeps struct {
	Cfg      *config.Config
	Jobs     repository.JobRepository
	Chunks   repository.ChunkRepository
	Vectors  *vectorstore.Store
	Embedder retrieval.Embedder
	Logger   *slog.Logger
}

// RunEmbed loads every chunk for the repository, embeds and upserts them in
// batches, and advances the job to analyzing once done.
func RunEmbed(ctx context.Context, deps EmbedDeps, job *models.AnalysisJob, repo *models.Repository) error {
	if err := deps.Jobs.UpdateProgress(ctx, job.ID, 10, "loading chunks"); err != nil {
		deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
	}

	chunks, err := deps.Chunks.GetAllByRepository(ctx, repo.ID)
	if err != nil {
		return NewStageError("UNEXPECTED_LOAD_CHUNKS", fmt.Sprintf("load chunks: %v", err))
	}
	if len(chunks) == 0 {
		return NewStageError(CodeNoChunks, "repository produced no chunks to embed")
	}

	if err := deps.Jobs.UpdateProgress(ctx, job.ID, 40, "embedding chunks"); err != nil {
		deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
	}

	batchSize := deps.Cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = len(chunks)
	}
	totalBatches := (len(chunks) + batchSize - 1) / batchSize

	for i := 0; i < totalBatches; i++ {
		start := i * batchSize
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors := make([][]float32, len(batch))
		for j, c := range batch {
			vec, err := deps.Embedder.Embed(ctx, c.Content)
			if err != nil {
				return NewStageError("UNEXPECTED_EMBED", fmt.Sprintf("embed chunk %s: %v", c.ID, err))
			}
			vectors[j] = vec
		}
		if len(vectors) != len(batch) {
			return NewStageError(CodeEmbedVectorMismatch, "embedded vector count does not match chunk count")
		}

		points := make([]vectorstore.Point, len(batch))
		pointIDs := make(map[string]string, len(batch))
		for j, c := range batch {
			pointID := ulid.Make().String()
			points[j] = vectorstore.Point{
				ID:        pointID,
				Vector:    vectors[j],
				RepoID:    repo.ID,
				ChunkID:   c.ID,
				FilePath:  c.Path,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
				Language:  c.Language,
			}
			pointIDs[c.ID] = pointID
		}

		if err := deps.Vectors.UpsertChunks(ctx, points); err != nil {
			return NewStageError(CodeEmbedUpsertFailed, fmt.Sprintf("upsert batch %d/%d: %v", i+1, totalBatches, err))
		}
		if err := deps.Chunks.SetVectorPointIDs(ctx, pointIDs); err != nil {
			return NewStageError("UNEXPECTED_SET_POINT_IDS", fmt.Sprintf("persist point ids for batch %d/%d: %v", i+1, totalBatches, err))
		}

		progress := 40 + (i+1)*55/totalBatches
		if err := deps.Jobs.UpdateProgress(ctx, job.ID, progress, fmt.Sprintf("embedded batch %d/%d", i+1, totalBatches)); err != nil {
			deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
		}
	}

	if err := deps.Jobs.AdvanceStage(ctx, job.ID, models.JobStatusAnalyzing, 0); err != nil {
		return NewStageError("UNEXPECTED_ADVANCE", fmt.Sprintf("advance to analyzing: %v", err))
	}
	return nil
}
