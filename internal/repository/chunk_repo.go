package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jmylchreest/devlens/internal/models"
)

type chunkRepository struct {
	db *sqlx.DB
}

// NewChunkRepository creates a gateway over the code_chunks table.
func NewChunkRepository(db *sqlx.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// ReplaceAll re-parses a repository from scratch on every analysis run, so
// the parsing stage always starts from a clean chunk set for the commit
// instead of diffing against whatever chunks a prior commit left behind.
// The delete and bulk insert run in one transaction via pq.CopyIn, which is
// the fast path for loading thousands of rows without one round trip each.
func (r *chunkRepository) ReplaceAll(ctx context.Context, repoID string, chunks []*models.CodeChunk) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk replace tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE repository_id = $1`, repoID); err != nil {
		return fmt.Errorf("delete existing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("code_chunks",
		"id", "repository_id", "commit_sha", "path", "language", "start_line", "end_line", "content", "vector_point_id", "created_at"))
	if err != nil {
		return fmt.Errorf("prepare chunk copy: %w", err)
	}

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, repoID, c.Commit, c.Path, c.Language, c.StartLine, c.EndLine, c.Content, c.VectorPointID, c.CreatedAt); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy chunk %s: %w", c.ID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush chunk copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close chunk copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk replace tx: %w", err)
	}
	committed = true
	return nil
}

func (r *chunkRepository) GetAllByRepository(ctx context.Context, repoID string) ([]*models.CodeChunk, error) {
	var chunks []*models.CodeChunk
	err := r.db.SelectContext(ctx, &chunks, `
		SELECT * FROM code_chunks WHERE repository_id = $1 ORDER BY path, start_line
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("get chunks by repository: %w", err)
	}
	return chunks, nil
}

func (r *chunkRepository) GetByIDs(ctx context.Context, repoID string, ids []string) ([]*models.CodeChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM code_chunks WHERE repository_id = ? AND id IN (?)`, repoID, ids)
	if err != nil {
		return nil, fmt.Errorf("build chunk id query: %w", err)
	}
	query = r.db.Rebind(query)
	var chunks []*models.CodeChunk
	if err := r.db.SelectContext(ctx, &chunks, query, args...); err != nil {
		return nil, fmt.Errorf("get chunks by ids: %w", err)
	}
	return chunks, nil
}

func (r *chunkRepository) SetVectorPointIDs(ctx context.Context, pointIDsByChunkID map[string]string) error {
	if len(pointIDsByChunkID) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vector point update tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for chunkID, pointID := range pointIDsByChunkID {
		if _, err := tx.ExecContext(ctx, `UPDATE code_chunks SET vector_point_id = $2 WHERE id = $1`, chunkID, pointID); err != nil {
			return fmt.Errorf("set vector point id for %s: %w", chunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vector point update tx: %w", err)
	}
	committed = true
	return nil
}

// SearchLexical ranks chunks by Postgres full-text search relevance,
// breaking ties on path then start_line so results are deterministic.
func (r *chunkRepository) SearchLexical(ctx context.Context, repoID, query string, limit int) ([]LexicalHit, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, repository_id, commit_sha, path, language, start_line, end_line, content,
			vector_point_id, created_at, ts_rank_cd(fts, plainto_tsquery('english', $2)) AS rank
		FROM code_chunks
		WHERE repository_id = $1 AND fts @@ plainto_tsquery('english', $2)
		ORDER BY rank DESC, path ASC, start_line ASC
		LIMIT $3
	`, repoID, q, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var c models.CodeChunk
		var rank float64
		if err := rows.Scan(&c.ID, &c.RepositoryID, &c.Commit, &c.Path, &c.Language, &c.StartLine, &c.EndLine,
			&c.Content, &c.VectorPointID, &c.CreatedAt, &rank); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		hits = append(hits, LexicalHit{Chunk: c, Rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical hits: %w", err)
	}
	return hits, nil
}
