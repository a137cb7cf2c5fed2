package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/devlens/internal/llm"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
	"github.com/jmylchreest/devlens/internal/retrieval"
)

const defaultChatTopK = 8

// ChatService answers repository-scoped questions by retrieving relevant
// chunks via hybrid search, asking the LLM orchestrator to answer grounded
// in that context, and validating any citations the answer claims before
// they're returned to the caller.
type ChatService struct {
	repos        *repository.Repositories
	hybrid       *retrieval.HybridSearcher
	validator    *retrieval.Validator
	orchestrator *llm.Orchestrator
	logger       *slog.Logger
}

func NewChatService(repos *repository.Repositories, hybrid *retrieval.HybridSearcher, validator *retrieval.Validator, orchestrator *llm.Orchestrator, logger *slog.Logger) *ChatService {
	return &ChatService{repos: repos, hybrid: hybrid, validator: validator, orchestrator: orchestrator, logger: logger}
}

// CreateSession starts a new chat session scoped to a repository's current
// head commit.
func (s *ChatService) CreateSession(ctx context.Context, repoID string, userID *string) (*models.ChatSession, error) {
	repo, err := s.repos.Repos.GetByID(ctx, repoID)
	if err != nil {
		return nil, err
	}
	session := &models.ChatSession{
		ID:           ulid.Make().String(),
		RepositoryID: repo.ID,
		Commit:       repo.HeadCommit,
		UserID:       userID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repos.Chats.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	return session, nil
}

// MessageEvent is one SSE event emitted while answering a chat message.
type MessageEvent struct {
	Kind string // "delta" or "done"

	// delta
	Token string

	// done
	MessageID  string
	Citations  []models.Citation
	NoCitation bool
}

// CheckSessionOwnership verifies that sessionID exists and belongs to
// userID, returning ErrSessionNotFound (mapped to 404, never 403) on any
// mismatch or missing session so a caller can't enumerate other users'
// session ids.
func (s *ChatService) CheckSessionOwnership(ctx context.Context, sessionID, userID string) error {
	_, err := s.getOwnedSession(ctx, sessionID, userID)
	return err
}

// getOwnedSession loads a session and confirms it belongs to userID, folding
// "doesn't exist" and "belongs to someone else" into the same not-found
// error so ownership failures never leak which case occurred.
func (s *ChatService) getOwnedSession(ctx context.Context, sessionID, userID string) (*models.ChatSession, error) {
	session, err := s.repos.Chats.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID == nil || *session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// SendMessage runs hybrid retrieval for context, asks the LLM orchestrator
// for a grounded answer, validates the citations it claims, persists both
// turns, and streams the answer back as a sequence of token deltas followed
// by a done event — the synchronous equivalent of the SSE wire format the
// HTTP handler turns this into.
func (s *ChatService) SendMessage(ctx context.Context, sessionID, userID, content string, topK int, emit func(MessageEvent) bool) error {
	session, err := s.getOwnedSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if topK <= 0 {
		topK = defaultChatTopK
	}

	userMsg := &models.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: session.ID,
		Role:      "user",
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repos.Chats.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	hits, chunksByID, err := s.hybrid.Search(ctx, session.RepositoryID, content, topK)
	if err != nil {
		return fmt.Errorf("retrieve context: %w", err)
	}

	answer, claims := s.answer(ctx, content, hits, chunksByID)

	citations, noCitation, err := s.validator.Validate(ctx, session.RepositoryID, claims)
	if err != nil {
		return fmt.Errorf("validate citations: %w", err)
	}

	for _, tok := range splitIntoTokens(answer) {
		if !emit(MessageEvent{Kind: "delta", Token: tok}) {
			return nil
		}
	}

	citationsJSON, _ := json.Marshal(citations)
	assistantMsg := &models.ChatMessage{
		ID:            ulid.Make().String(),
		SessionID:     session.ID,
		Role:          "assistant",
		Content:       answer,
		CitationsJSON: string(citationsJSON),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repos.Chats.AppendMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}

	emit(MessageEvent{
		Kind:       "done",
		MessageID:  assistantMsg.ID,
		Citations:  citations,
		NoCitation: noCitation,
	})
	return nil
}

// answer builds a grounded prompt from the retrieved chunks, asks the
// orchestrator for a completion, and derives citation claims from whichever
// chunks were actually offered as context — the LLM answers only from what
// it was shown, so every offered chunk is a defensible citation claim.
func (s *ChatService) answer(ctx context.Context, question string, hits []retrieval.Result, chunksByID map[string]*models.CodeChunk) (string, []retrieval.CitationClaim) {
	var contextBuilder strings.Builder
	claims := make([]retrieval.CitationClaim, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := chunksByID[hit.ChunkID]
		if !ok {
			continue
		}
		fmt.Fprintf(&contextBuilder, "File: %s (lines %d-%d)\n%s\n\n", chunk.Path, chunk.StartLine, chunk.EndLine, chunk.Content)
		claims = append(claims, retrieval.CitationClaim{
			ChunkID:   chunk.ID,
			FilePath:  chunk.Path,
			StartLine: chunk.StartLine,
			EndLine:   chunk.EndLine,
			Score:     hit.RerankScore,
		})
	}

	if len(claims) == 0 {
		return "I couldn't find anything in this repository's indexed source that answers that.", nil
	}

	prompt := fmt.Sprintf(
		"Answer the question using only the repository context below. If the context doesn't contain the answer, say so.\n\nContext:\n%s\nQuestion: %s",
		contextBuilder.String(), question,
	)

	if s.orchestrator != nil {
		if text, _ := s.orchestrator.Summarize(ctx, prompt); text != "" {
			return text, claims
		}
	}

	top := claims[0]
	return fmt.Sprintf("Based on %s (lines %d-%d), this repository's indexed source is the closest match to your question, though no language model was available to synthesize a full answer.", top.FilePath, top.StartLine, top.EndLine), claims
}

// splitIntoTokens breaks an answer into word-ish chunks for the delta
// stream; whitespace is preserved on the trailing edge of each token so
// concatenating every delta reconstructs the original text exactly.
func splitIntoTokens(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == ' ' || r == '\n' {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// ErrSessionNotFound is returned when a chat session id doesn't resolve.
var ErrSessionNotFound = errors.New("chat session not found")
