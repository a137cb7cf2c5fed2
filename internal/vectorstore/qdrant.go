// Package vectorstore wraps the Qdrant client behind the narrow interface
// the embedding stage and dense retriever actually need: upsert chunk
// vectors and query by similarity, scoped to one collection per deployment.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Point is one chunk's vector plus the payload fields the retrieval layer
// needs back without a join to Postgres.
type Point struct {
	ID        string
	Vector    []float32
	RepoID    string
	ChunkID   string
	FilePath  string
	StartLine int
	EndLine   int
	Language  string
}

// Hit is one similarity search result.
type Hit struct {
	ChunkID string
	Score   float64
}

// Store is a thin, collection-scoped Qdrant client.
type Store struct {
	client     *qdrant.Client
	collection string
	vectorSize uint64
}

// Config configures the Qdrant connection and collection.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Collection     string
	VectorSize     uint64
}

// New connects to Qdrant and ensures the configured collection exists with
// the given vector size and cosine distance, matching the fixed-dimension
// embedding contract used throughout the pipeline.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	s := &Store{client: client, collection: cfg.Collection, vectorSize: cfg.VectorSize}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection: %w", err)
	}
	return nil
}

// UpsertChunks writes a batch of chunk vectors with wait=true, so callers
// that immediately search afterward (re-indexing a repository and chatting
// against it right away) always see their own writes.
func (s *Store) UpsertChunks(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	wait := true
	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:     qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"repo_id":    p.RepoID,
				"chunk_id":   p.ChunkID,
				"file_path":  p.FilePath,
				"start_line": p.StartLine,
				"end_line":   p.EndLine,
				"language":   p.Language,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("upsert chunk vectors: %w", err)
	}
	return nil
}

// SearchByRepo runs a cosine similarity query scoped to one repository,
// returning the top limit hits by chunk_id and score.
func (s *Store) SearchByRepo(ctx context.Context, repoID string, vector []float32, limit uint64) ([]Hit, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("repo_id", repoID),
		},
	}

	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query qdrant: %w", err)
	}

	hits := make([]Hit, 0, len(resp))
	for _, point := range resp {
		chunkID := ""
		if v, ok := point.Payload["chunk_id"]; ok {
			chunkID = v.GetStringValue()
		}
		hits = append(hits, Hit{ChunkID: chunkID, Score: float64(point.Score)})
	}
	return hits, nil
}

// DeleteByRepo removes every point belonging to a repository. No caller in
// this module uses it; the worker pipeline does not call it on re-parse.
func (s *Store) DeleteByRepo(ctx context.Context, repoID string) error {
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("repo_id", repoID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("delete repo vectors: %w", err)
	}
	return nil
}
