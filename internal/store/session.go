package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/chigenori053/mathlang/internal/domain"
	"github.com/chigenori053/mathlang/internal/eval"
)

var ErrNotFound = errors.New("not found")

// SessionStore persists evaluated sessions in Postgres. Mistaken steps also
// get a vector row so similar mistakes can be recalled across sessions.
type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) CreateSession(ctx context.Context, sess *domain.Session, records []eval.StepRecord, vectors []domain.MistakeVector) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO sessions (id, source, status, steps, mistakes, fatals, final_expression)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		sess.ID, sess.Source, sess.Status, sess.Steps, sess.Mistakes, sess.Fatals, sess.Final,
	).Scan(&sess.CreatedAt)
	if err != nil {
		return err
	}

	for _, rec := range records {
		_, err = tx.Exec(ctx,
			`INSERT INTO session_records (session_id, step_index, phase, expression, rendered, status, rule_id, meta)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sess.ID, rec.StepIndex, rec.Phase, rec.Expression, rec.Rendered, rec.Status, rec.RuleID, rec.Meta,
		)
		if err != nil {
			return err
		}
	}

	for _, v := range vectors {
		_, err = tx.Exec(ctx,
			`INSERT INTO mistake_vectors (session_id, step_index, expression, expected, reason, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sess.ID, v.StepIndex, v.Expression, v.Expected, v.Reason, pgvector.NewVector(v.Embedding),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *SessionStore) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	sess := &domain.Session{}
	err := s.db.QueryRow(ctx,
		`SELECT id, source, status, steps, mistakes, fatals, final_expression, created_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.Source, &sess.Status, &sess.Steps, &sess.Mistakes, &sess.Fatals, &sess.Final, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]eval.StepRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT step_index, phase, expression, rendered, status, rule_id, meta
		 FROM session_records WHERE session_id = $1 ORDER BY step_index`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []eval.StepRecord
	for rows.Next() {
		var rec eval.StepRecord
		if err := rows.Scan(&rec.StepIndex, &rec.Phase, &rec.Expression, &rec.Rendered, &rec.Status, &rec.RuleID, &rec.Meta); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SessionStore) SimilarMistakes(ctx context.Context, embedding []float32, limit int) ([]domain.MistakeMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx,
		`SELECT session_id, step_index, expression, expected, reason,
		        1 - (embedding <=> $1) AS similarity
		 FROM mistake_vectors
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.MistakeMatch
	for rows.Next() {
		var m domain.MistakeMatch
		if err := rows.Scan(&m.SessionID, &m.StepIndex, &m.Expression, &m.Expected, &m.Reason, &m.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
