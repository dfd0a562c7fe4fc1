package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/docqa-server/internal/history"
	"github.com/bull/docqa-server/internal/storage"
)

// Retriever is the part of storage.Store the service needs.
type Retriever interface {
	Query(ctx context.Context, queryText, sessionID string, topK int) ([]storage.Result, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// ServiceOptions configure a Service.
type ServiceOptions struct {
	TopK                 int
	DeleteVectorsOnClear bool
}

// Service answers questions within a session and records the exchange.
type Service struct {
	store   Retriever
	history history.Store
	orch    *Orchestrator
	opts    ServiceOptions
	logger  *slog.Logger
}

// NewService creates a Service.
func NewService(store Retriever, hist history.Store, orch *Orchestrator, opts ServiceOptions, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = storage.DefaultTopK
	}
	return &Service{store: store, history: hist, orch: orch, opts: opts, logger: logger}
}

// Ask retrieves context for question from the session, answers it and
// appends the question and answer to the session history.
//
// History is read before and written after the model call without a lock, so
// two concurrent asks on one session can each miss the other's turns.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (*Response, error) {
	hist, err := s.history.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	retrieved, err := s.store.Query(ctx, question, sessionID, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	resp, err := s.orch.Answer(ctx, question, retrieved, hist)
	if err != nil {
		return nil, err
	}

	err = s.history.Append(ctx, sessionID,
		history.Turn{Role: history.RoleUser, Content: question},
		history.Turn{Role: history.RoleAssistant, Content: resp.Answer},
	)
	if err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}

	s.logger.Info("Answered question", "session", sessionID, "chunks", len(retrieved), "history", len(hist))
	return resp, nil
}

// Clear deletes the session history and, when configured, its vectors.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.history.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if !s.opts.DeleteVectorsOnClear {
		return nil
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	s.logger.Info("Cleared session vectors", "session", sessionID)
	return nil
}
