package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentpipe/internal/evaluate"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/pipeline"
	"github.com/joescharf/agentpipe/internal/store"
)

type fakeRunner struct {
	mu     sync.Mutex
	events []*models.Event
	err    error
}

func (f *fakeRunner) Run(_ context.Context, ev *models.Event) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	run := &models.Run{ID: "run-1", Repo: ev.Repo(), Status: models.RunStatusCompleted}
	res := &pipeline.Result{Run: run, LogPath: "/work/logs/session-run-1.json"}
	if f.err != nil {
		run.Status = models.RunStatusFailed
		return res, f.err
	}
	res.PR = &models.PullRequest{Number: 100, URL: "https://github.com/acme/site/pull/100"}
	return res, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeEvaluator struct {
	repo   string
	number int
	err    error
}

func (f *fakeEvaluator) Run(_ context.Context, repo string, number int) (*evaluate.Report, error) {
	f.repo, f.number = repo, number
	if f.err != nil {
		return nil, f.err
	}
	return &evaluate.Report{Repo: repo, PRNumber: number}, nil
}

func setupTestServer(t *testing.T, opts Options) (*Server, store.Store, *fakeRunner, *fakeEvaluator) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	runner := &fakeRunner{}
	ev := &fakeEvaluator{}
	srv := NewServer(s, runner, ev, opts)

	return srv, s, runner, ev
}

const issueEvent = `{"action":"labeled","issue":{"number":42,"title":"Add pricing page","labels":[{"name":"ai-agent"}]},"repository":{"full_name":"acme/site"}}`

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := setupTestServer(t, Options{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestCORS_Preflight(t *testing.T) {
	srv, _, _, _ := setupTestServer(t, Options{})

	req := httptest.NewRequest("OPTIONS", "/api/v1/events", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

// --- Events ---

func TestReceiveEvent_Wait(t *testing.T) {
	srv, _, runner, _ := setupTestServer(t, Options{})

	req := httptest.NewRequest("POST", "/api/v1/events?wait=1", bytes.NewBufferString(issueEvent))
	req.Header.Set("X-GitHub-Event", "issues")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Run)
	assert.Equal(t, models.RunStatusCompleted, resp.Run.Status)
	require.NotNil(t, resp.PR)
	assert.Equal(t, 100, resp.PR.Number)
	assert.Empty(t, resp.Error)

	require.Equal(t, 1, runner.count())
	assert.Equal(t, 42, runner.events[0].Issue.Number)
}

func TestReceiveEvent_WaitFailure(t *testing.T) {
	srv, _, runner, _ := setupTestServer(t, Options{})
	runner.err = errors.New("run failed: extract: no description")

	req := httptest.NewRequest("POST", "/api/v1/events?wait=true", bytes.NewBufferString(issueEvent))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.RunStatusFailed, resp.Run.Status)
	assert.Contains(t, resp.Error, "no description")
}

func TestReceiveEvent_Async(t *testing.T) {
	srv, _, runner, _ := setupTestServer(t, Options{})

	req := httptest.NewRequest("POST", "/api/v1/events", bytes.NewBufferString(issueEvent))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	srv.Wait()
	assert.Equal(t, 1, runner.count())
}

func TestReceiveEvent_DefaultRepo(t *testing.T) {
	srv, _, runner, _ := setupTestServer(t, Options{Repo: "acme/default"})

	body := `{"action":"labeled","issue":{"number":3,"title":"x"}}`
	req := httptest.NewRequest("POST", "/api/v1/events?wait=1", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, runner.count())
	assert.Equal(t, "acme/default", runner.events[0].Repo())
}

func TestReceiveEvent_IgnoredKind(t *testing.T) {
	srv, _, runner, _ := setupTestServer(t, Options{})

	req := httptest.NewRequest("POST", "/api/v1/events", bytes.NewBufferString(`{}`))
	req.Header.Set("X-GitHub-Event", "push")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	srv.Wait()
	assert.Equal(t, 0, runner.count())
}

func TestReceiveEvent_InvalidJSON(t *testing.T) {
	srv, _, _, _ := setupTestServer(t, Options{})

	req := httptest.NewRequest("POST", "/api/v1/events", bytes.NewBufferString(`{not json`))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiveEvent_Signature(t *testing.T) {
	srv, _, runner, _ := setupTestServer(t, Options{WebhookSecret: "s3cret"})
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/events?wait=1", bytes.NewBufferString(issueEvent))
	req.Header.Set("X-Hub-Signature-256", sign("wrong", issueEvent))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("POST", "/api/v1/events?wait=1", bytes.NewBufferString(issueEvent))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing signature")

	req = httptest.NewRequest("POST", "/api/v1/events?wait=1", bytes.NewBufferString(issueEvent))
	req.Header.Set("X-Hub-Signature-256", sign("s3cret", issueEvent))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runner.count())
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	assert.True(t, verifySignature([]byte("k"), body, sign("k", `{"a":1}`)))
	assert.False(t, verifySignature([]byte("k"), body, "sha1=abc"))
	assert.False(t, verifySignature([]byte("k"), body, "sha256=zz"))
}

func TestReceiveEvent_NoRunner(t *testing.T) {
	srv := NewServer(nil, nil, nil, Options{})

	req := httptest.NewRequest("POST", "/api/v1/events", bytes.NewBufferString(issueEvent))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// --- Evaluations ---

func TestEvaluatePull(t *testing.T) {
	srv, _, _, ev := setupTestServer(t, Options{Repo: "acme/site"})

	req := httptest.NewRequest("POST", "/api/v1/pulls/17/evaluate", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme/site", ev.repo)
	assert.Equal(t, 17, ev.number)

	var report evaluate.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 17, report.PRNumber)
}

func TestEvaluatePull_Errors(t *testing.T) {
	srv, _, _, _ := setupTestServer(t, Options{})
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/pulls/abc/evaluate?repo=acme/site", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest("POST", "/api/v1/pulls/5/evaluate", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "repo is required")
}

func TestEvaluatePull_UpstreamFailure(t *testing.T) {
	srv, _, _, ev := setupTestServer(t, Options{})
	ev.err = errors.New("gh: pull request 5 not found")

	req := httptest.NewRequest("POST", "/api/v1/pulls/5/evaluate?repo=acme/site", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}

func TestListEvaluations(t *testing.T) {
	srv, s, _, _ := setupTestServer(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.CreateEvaluation(ctx, &models.EvaluationRecord{Repo: "acme/site", PRNumber: 5, TotalScore: 91, Approved: true}))
	require.NoError(t, s.CreateEvaluation(ctx, &models.EvaluationRecord{Repo: "acme/site", PRNumber: 6, TotalScore: 40}))
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/evaluations?repo=acme/site&pr=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var recs []*models.EvaluationRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, 91, recs[0].TotalScore)

	req = httptest.NewRequest("GET", "/api/v1/evaluations?pr=x", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Runs ---

func TestListRuns_Empty(t *testing.T) {
	srv, _, _, _ := setupTestServer(t, Options{})

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRuns_API(t *testing.T) {
	srv, s, _, _ := setupTestServer(t, Options{})
	ctx := context.Background()
	run := &models.Run{Repo: "acme/site", IssueNumber: 42, Status: models.RunStatusFailed, Stage: "extract", Reason: "no description"}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.CreateRun(ctx, &models.Run{Repo: "acme/site", IssueNumber: 43, Status: models.RunStatusCompleted}))
	router := srv.Router()

	// List with filter
	req := httptest.NewRequest("GET", "/api/v1/runs?status=failed&issue=42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var runs []*models.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	// Get
	req = httptest.NewRequest("GET", "/api/v1/runs/"+run.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var got models.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "no description", got.Reason)

	// Not found
	req = httptest.NewRequest("GET", "/api/v1/runs/missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Bad filter
	req = httptest.NewRequest("GET", "/api/v1/runs?limit=many", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
