package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chigenori053/mathlang/internal/causal"
	"github.com/chigenori053/mathlang/internal/parser"
	"github.com/chigenori053/mathlang/internal/service"
)

// SessionHandler exposes program evaluation and the causal queries over
// evaluated sessions.
type SessionHandler struct {
	svc *service.SessionService
}

func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type evaluateRequest struct {
	Source string `json:"source"`
}

func (h *SessionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Evaluate(r.Context(), req.Source)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSourceEmpty), errors.Is(err, parser.ErrSyntax):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to evaluate program")
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *SessionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) Records(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	records, err := h.svc.Records(r.Context(), id)
	if err != nil {
		h.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	report, err := h.svc.Report(r.Context(), id)
	if err != nil {
		h.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Graph exports the causal graph, ?format=dot for Graphviz, ?format=json
// for a structured dump, plain text otherwise.
func (h *SessionHandler) Graph(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var (
		out string
		err error
	)
	switch r.URL.Query().Get("format") {
	case "json":
		snapshot, err := h.svc.GraphJSON(r.Context(), id)
		if err != nil {
			h.queryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
		return
	case "dot":
		out, err = h.svc.GraphDOT(r.Context(), id)
	default:
		out, err = h.svc.GraphText(r.Context(), id)
	}
	if err != nil {
		h.queryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func (h *SessionHandler) WhyError(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	node := chi.URLParam(r, "node")
	causes, err := h.svc.WhyError(r.Context(), id, node)
	if err != nil {
		h.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"error_node": node, "causes": causes})
}

func (h *SessionHandler) FixCandidates(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	node := chi.URLParam(r, "node")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	fixes, err := h.svc.FixCandidates(r.Context(), id, node, limit)
	if err != nil {
		h.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"error_node": node, "candidates": fixes})
}

type counterfactualRequest struct {
	Interventions []causal.Intervention `json:"interventions"`
}

func (h *SessionHandler) Counterfactual(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req counterfactualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Interventions) == 0 {
		writeError(w, http.StatusBadRequest, "at least one intervention is required")
		return
	}
	report, err := h.svc.Counterfactual(r.Context(), id, req.Interventions)
	if err != nil {
		h.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *SessionHandler) SimilarMistakes(w http.ResponseWriter, r *http.Request) {
	expression := r.URL.Query().Get("expression")
	if expression == "" {
		writeError(w, http.StatusBadRequest, "expression query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	matches, err := h.svc.SimilarMistakes(r.Context(), expression, limit)
	if err != nil {
		if errors.Is(err, service.ErrNoPersistence) {
			writeError(w, http.StatusNotImplemented, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to search mistakes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *SessionHandler) queryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, causal.ErrUnknownNode):
		writeError(w, http.StatusNotFound, "unknown graph node")
	default:
		writeError(w, http.StatusInternalServerError, "query failed")
	}
}
