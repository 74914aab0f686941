// Package domain holds the shared session model and the store contracts the
// service layer depends on.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chigenori053/mathlang/internal/eval"
)

type SessionStatus string

const (
	// SessionFinished means the program reached its end statement; the
	// derivation may still contain mistakes.
	SessionFinished SessionStatus = "finished"
	// SessionAborted means a fatal condition halted evaluation.
	SessionAborted SessionStatus = "aborted"
)

// Session is one evaluated learner program.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	Source    string        `json:"source"`
	Status    SessionStatus `json:"status"`
	Steps     int           `json:"steps"`
	Mistakes  int           `json:"mistakes"`
	Fatals    int           `json:"fatals"`
	Final     string        `json:"final_expression,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// MistakeMatch is one stored mistake ranked by vector similarity.
type MistakeMatch struct {
	SessionID  uuid.UUID `json:"session_id"`
	StepIndex  int       `json:"step_index"`
	Expression string    `json:"expression"`
	Expected   string    `json:"expected,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Similarity float64   `json:"similarity"`
}

// SessionStore persists sessions with their full record logs and the vector
// encodings of mistaken steps.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session, records []eval.StepRecord, vectors []MistakeVector) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ListRecords(ctx context.Context, sessionID uuid.UUID) ([]eval.StepRecord, error)
	SimilarMistakes(ctx context.Context, embedding []float32, limit int) ([]MistakeMatch, error)
}

// MistakeVector pairs a mistaken step with its embedding for similarity
// search across sessions.
type MistakeVector struct {
	StepIndex  int
	Expression string
	Expected   string
	Reason     string
	Embedding  []float32
}
