// Package memory is an in-process session repository.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/spigell/interviewer/internal/questionbank"
	"github.com/spigell/interviewer/internal/session"
)

// Repository keeps sessions and their responses in maps. Safe for concurrent use.
type Repository struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	responses map[string][]session.Turn
	questions []questionbank.Question
}

func New(questions []questionbank.Question) *Repository {
	return &Repository{
		sessions:  make(map[string]*session.Session),
		responses: make(map[string][]session.Turn),
		questions: append([]questionbank.Question(nil), questions...),
	}
}

// LoadSession returns a copy with the responses rebuilt from the response log.
func (r *Repository) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load session %q: %w: %v", id, session.ErrRepositoryUnavailable, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("load session %q: %w", id, session.ErrSessionNotFound)
	}
	s := stored.Clone()
	s.Responses = append([]session.Turn(nil), r.responses[id]...)
	s.Persisted = len(s.Responses)
	return s, nil
}

func (r *Repository) SaveSession(ctx context.Context, s *session.Session) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save session %q: %w: %v", s.ID, session.ErrRepositoryUnavailable, err)
	}
	c := s.Clone()
	c.Responses = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = c
	return nil
}

// AppendResponse is idempotent per turn number.
func (r *Repository) AppendResponse(ctx context.Context, sessionID string, turn session.Turn) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append response %s#%d: %w: %v", sessionID, turn.Number, session.ErrRepositoryUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.responses[sessionID] {
		if t.Number == turn.Number {
			return nil
		}
	}
	turn.Flags = append(turn.Flags[:0:0], turn.Flags...)
	r.responses[sessionID] = append(r.responses[sessionID], turn)
	return nil
}

func (r *Repository) LoadQuestionBank(ctx context.Context) ([]questionbank.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load question bank: %w: %v", session.ErrRepositoryUnavailable, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]questionbank.Question(nil), r.questions...), nil
}

// Responses returns the persisted response log of a session.
func (r *Repository) Responses(sessionID string) []session.Turn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]session.Turn(nil), r.responses[sessionID]...)
}
