package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/chigenori053/mathlang/internal/knowledge"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	registry, err := knowledge.Default()
	if err != nil {
		t.Fatalf("knowledge.Default: %v", err)
	}
	return NewApp(registry, nil, zap.NewNop())
}

func doJSON(t *testing.T, app *App, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func TestEvaluateAndQueryFlow(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodPost, "/v1/sessions",
		`{"source": "problem: (3+5)*4\nstep: 7*4\nend: 35\n"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("evaluate: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var result struct {
		Session struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Mistakes int    `json:"mistakes"`
		} `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Session.Status != "finished" || result.Session.Mistakes != 2 {
		t.Fatalf("session summary: %+v", result.Session)
	}
	base := "/v1/sessions/" + result.Session.ID

	rec = doJSON(t, app, http.MethodGet, base+"/records", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("records: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, app, http.MethodGet, base+"/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, app, http.MethodGet, base+"/graph?format=dot", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "digraph") {
		t.Fatalf("graph dot: code %d body %q", rec.Code, rec.Body.String()[:20])
	}

	rec = doJSON(t, app, http.MethodGet, base+"/graph?format=json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("graph json: expected 200, got %d", rec.Code)
	}
	var snapshot struct {
		Nodes []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"nodes"`
		Edges []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("graph json body: %v", err)
	}
	if len(snapshot.Nodes) == 0 || len(snapshot.Edges) == 0 {
		t.Fatalf("graph json empty: %s", rec.Body)
	}
	if snapshot.Nodes[0].ID != "problem-0" {
		t.Fatalf("graph json first node: %s", snapshot.Nodes[0].ID)
	}

	rec = doJSON(t, app, http.MethodGet, base+"/errors/error-1/why", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "step-1") {
		t.Fatalf("why: code %d body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, app, http.MethodPost, base+"/counterfactual",
		`{"interventions": [{"kind": "replace_step", "step_index": 1, "expression": "8*4"}, {"kind": "set_end", "expression": "32"}]}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"changed":true`) {
		t.Fatalf("counterfactual: code %d body %s", rec.Code, rec.Body)
	}
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodPost, "/v1/sessions", `{"source": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty source: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, app, http.MethodPost, "/v1/sessions", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rec.Code)
	}
}

func TestUnknownSessionAndNode(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodGet, "/v1/sessions/00000000-0000-0000-0000-000000000001", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", rec.Code)
	}

	eval := doJSON(t, app, http.MethodPost, "/v1/sessions",
		`{"source": "problem: 2+2\nstep: 4\nend: 4\n"}`)
	var result struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := json.Unmarshal(eval.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec = doJSON(t, app, http.MethodGet, "/v1/sessions/"+result.Session.ID+"/errors/error-7/why", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown node: expected 404, got %d", rec.Code)
	}
}

func TestSimilarMistakesWithoutDatabase(t *testing.T) {
	app := newTestApp(t)
	rec := doJSON(t, app, http.MethodGet, "/v1/sessions/mistakes/similar?expression=7*4", "")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without persistence, got %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	app := newTestApp(t)
	rec := doJSON(t, app, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: got %d", rec.Code)
	}
	var health map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("health body: %v", err)
	}
	if health["status"] != "ok" || health["version"] == "" || health["commit"] == "" {
		t.Fatalf("health payload incomplete: %v", health)
	}
	if rec := doJSON(t, app, http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready: got %d", rec.Code)
	}
	if rec := doJSON(t, app, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", rec.Code)
	}
}
