package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chigenori053/mathlang/internal/causal"
	"github.com/chigenori053/mathlang/internal/domain"
	"github.com/chigenori053/mathlang/internal/engine"
	"github.com/chigenori053/mathlang/internal/eval"
	"github.com/chigenori053/mathlang/internal/fuzzy"
	"github.com/chigenori053/mathlang/internal/knowledge"
	"github.com/chigenori053/mathlang/internal/parser"
	"github.com/chigenori053/mathlang/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSourceEmpty     = errors.New("program source is required")
	ErrNoPersistence   = errors.New("similarity search requires a database")
)

// SessionService evaluates learner programs and keeps each session's records
// and causal graph for follow-up queries. Sessions live in memory; a store,
// when configured, persists them and powers cross-session mistake recall.
type SessionService struct {
	registry *knowledge.Registry
	rewrite  *engine.Engine
	judge    *fuzzy.Judge
	encoder  *fuzzy.Encoder
	store    domain.SessionStore
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionState
}

type sessionState struct {
	session *domain.Session
	records []eval.StepRecord
	causal  *causal.Engine
}

func NewSessionService(registry *knowledge.Registry, logger *zap.Logger) *SessionService {
	checker := engine.NewEquivalenceChecker()
	return &SessionService{
		registry: registry,
		rewrite:  engine.New(registry, checker),
		encoder:  fuzzy.NewEncoder(),
		logger:   logger,
		sessions: make(map[uuid.UUID]*sessionState),
	}
}

// SetStore attaches a persistence backend. Optional; without it sessions
// are memory-only.
func (s *SessionService) SetStore(st domain.SessionStore) {
	s.store = st
}

// SetJudge enables fuzzy closeness labels on mistaken steps.
func (s *SessionService) SetJudge(j *fuzzy.Judge) {
	s.judge = j
}

// SessionResult is the evaluation outcome returned to callers.
type SessionResult struct {
	Session *domain.Session   `json:"session"`
	Records []eval.StepRecord `json:"records"`
}

// Evaluate runs one program source end to end: parse, evaluate, ingest into
// a causal graph, and persist when a store is configured. A fatal outcome
// still produces a stored session; only a source that fails section parsing
// is rejected outright.
func (s *SessionService) Evaluate(ctx context.Context, source string) (*SessionResult, error) {
	if source == "" {
		return nil, ErrSourceEmpty
	}
	prog, err := parser.ParseProgram(source)
	if err != nil {
		return nil, err
	}

	opts := []eval.Option{eval.WithLogger(s.logger)}
	if s.judge != nil {
		opts = append(opts, eval.WithJudge(s.judge))
	}
	ev := eval.New(s.rewrite, opts...)
	runErr := ev.Run(prog)
	if runErr != nil && !errors.Is(runErr, eval.ErrFatal) {
		return nil, runErr
	}

	records := eval.CloneRecords(ev.Records())
	sess := summarizeSession(source, records, runErr == nil)

	ce := causal.New(s.rewrite)
	if err := ce.IngestLog(records); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &sessionState{session: sess, records: records, causal: ce}
	s.mu.Unlock()

	if s.store != nil {
		vectors := s.mistakeVectors(records)
		if err := s.store.CreateSession(ctx, sess, records, vectors); err != nil {
			s.logger.Warn("session persistence failed", zap.String("session_id", sess.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("session evaluated",
		zap.String("session_id", sess.ID.String()),
		zap.String("status", string(sess.Status)),
		zap.Int("steps", sess.Steps),
		zap.Int("mistakes", sess.Mistakes),
		zap.Int("fatals", sess.Fatals),
	)
	return &SessionResult{Session: sess, Records: records}, nil
}

func summarizeSession(source string, records []eval.StepRecord, finished bool) *domain.Session {
	sess := &domain.Session{
		ID:        uuid.New(),
		Source:    source,
		Status:    domain.SessionFinished,
		CreatedAt: time.Now().UTC(),
	}
	if !finished {
		sess.Status = domain.SessionAborted
	}
	for _, rec := range records {
		if rec.Phase == eval.PhaseStep {
			sess.Steps++
		}
		switch rec.Status {
		case eval.StatusMistake:
			sess.Mistakes++
		case eval.StatusFatal:
			sess.Fatals++
		}
	}
	if n := len(records); n > 0 {
		sess.Final = records[n-1].Rendered
	}
	return sess
}

func (s *SessionService) mistakeVectors(records []eval.StepRecord) []domain.MistakeVector {
	var out []domain.MistakeVector
	for _, rec := range records {
		if rec.Status != eval.StatusMistake {
			continue
		}
		v := domain.MistakeVector{
			StepIndex:  rec.StepIndex,
			Expression: rec.Rendered,
			Embedding:  s.encoder.EncodeExpression(rec.Rendered),
		}
		if rec.Meta != nil {
			v.Expected = rec.Meta[eval.MetaExpected]
			v.Reason = rec.Meta[eval.MetaReason]
		}
		out = append(out, v)
	}
	return out
}

// Get returns a session summary, falling back to the store for sessions
// evaluated by an earlier process.
func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if st := s.state(id); st != nil {
		return st.session, nil
	}
	if s.store != nil {
		sess, err := s.store.GetSession(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrSessionNotFound
}

// Records returns a session's full evaluation log.
func (s *SessionService) Records(ctx context.Context, id uuid.UUID) ([]eval.StepRecord, error) {
	st, err := s.stateOrLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.records, nil
}

// Report builds the causal analysis report for a session.
func (s *SessionService) Report(ctx context.Context, id uuid.UUID) (causal.AnalysisReport, error) {
	st, err := s.stateOrLoad(ctx, id)
	if err != nil {
		return causal.AnalysisReport{}, err
	}
	return st.causal.BuildAnalysis(st.records, s.registry)
}

// GraphText exports a session's causal graph as plain text.
func (s *SessionService) GraphText(ctx context.Context, id uuid.UUID) (string, error) {
	st, err := s.stateOrLoad(ctx, id)
	if err != nil {
		return "", err
	}
	return causal.ExportText(st.causal.Graph()), nil
}

// GraphJSON exports a session's causal graph as a serializable snapshot.
func (s *SessionService) GraphJSON(ctx context.Context, id uuid.UUID) (causal.GraphExport, error) {
	st, err := s.stateOrLoad(ctx, id)
	if err != nil {
		return causal.GraphExport{}, err
	}
	return causal.ExportJSON(st.causal.Graph()), nil
}

// GraphDOT exports a session's causal graph in Graphviz DOT form.
func (s *SessionService) GraphDOT(ctx context.Context, id uuid.UUID) (string, error) {
	st, err := s.stateOrLoad(ctx, id)
	if err != nil {
		return "", err
	}
	return causal.ExportDOT(st.causal.Graph()), nil
}

// WhyError ranks the causes of one error node in a session.
func (s *SessionService) WhyError(ctx context.Context, id uuid.UUID, errorNode string) ([]causal.Node, error) {
	st, err := s.stateOrLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.causal.WhyError(errorNode)
}

// FixCandidates suggests the steps most worth revisiting for an error.
func (s *SessionService) FixCandidates(ctx context.Context, id uuid.UUID, errorNode string, limit int) ([]causal.Node, error) {
	st, err := s.stateOrLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.causal.SuggestFixCandidates(errorNode, limit)
}

// Counterfactual replays an edited copy of a session's derivation.
func (s *SessionService) Counterfactual(ctx context.Context, id uuid.UUID, interventions []causal.Intervention) (causal.CounterfactualReport, error) {
	st, err := s.stateOrLoad(ctx, id)
	if err != nil {
		return causal.CounterfactualReport{}, err
	}
	return st.causal.CounterfactualResult(interventions, st.records), nil
}

// SimilarMistakes recalls stored mistakes resembling the given expression.
func (s *SessionService) SimilarMistakes(ctx context.Context, expression string, limit int) ([]domain.MistakeMatch, error) {
	if s.store == nil {
		return nil, ErrNoPersistence
	}
	return s.store.SimilarMistakes(ctx, s.encoder.EncodeExpression(expression), limit)
}

func (s *SessionService) state(id uuid.UUID) *sessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// stateOrLoad returns the in-memory session state, rebuilding it from the
// store when another process evaluated the session.
func (s *SessionService) stateOrLoad(ctx context.Context, id uuid.UUID) (*sessionState, error) {
	if st := s.state(id); st != nil {
		return st, nil
	}
	if s.store == nil {
		return nil, ErrSessionNotFound
	}
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	records, err := s.store.ListRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	ce := causal.New(s.rewrite)
	if err := ce.IngestLog(records); err != nil {
		return nil, err
	}
	st := &sessionState{session: sess, records: records, causal: ce}
	s.mu.Lock()
	s.sessions[id] = st
	s.mu.Unlock()
	return st, nil
}
