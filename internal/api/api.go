package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/joescharf/agentpipe/internal/evaluate"
	"github.com/joescharf/agentpipe/internal/models"
	"github.com/joescharf/agentpipe/internal/pipeline"
	"github.com/joescharf/agentpipe/internal/store"
)

// maxEventBytes bounds webhook payloads.
const maxEventBytes = 5 << 20

// PipelineRunner runs one inbound event.
type PipelineRunner interface {
	Run(ctx context.Context, ev *models.Event) (*pipeline.Result, error)
}

// PREvaluator evaluates one pull request.
type PREvaluator interface {
	Run(ctx context.Context, repo string, number int) (*evaluate.Report, error)
}

// Options configures a Server.
type Options struct {
	// Repo is used when a request names no repository.
	Repo string
	// WebhookSecret enables X-Hub-Signature-256 verification when set.
	WebhookSecret string
}

// Server provides the webhook and REST API handlers.
type Server struct {
	store     store.Store
	runner    PipelineRunner
	evaluator PREvaluator
	opts      Options

	// mu serializes pipeline runs and evaluations.
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewServer creates a new API server. runner and evaluator may be nil,
// in which case their endpoints answer 503.
func NewServer(s store.Store, runner PipelineRunner, evaluator PREvaluator, opts Options) *Server {
	return &Server{
		store:     s,
		runner:    runner,
		evaluator: evaluator,
		opts:      opts,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.health)

	mux.HandleFunc("POST /api/v1/events", s.receiveEvent)
	mux.HandleFunc("POST /api/v1/pulls/{number}/evaluate", s.evaluatePull)

	mux.HandleFunc("GET /api/v1/runs", s.listRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.getRun)

	mux.HandleFunc("GET /api/v1/evaluations", s.listEvaluations)

	return corsMiddleware(mux)
}

// Wait blocks until queued background runs have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-GitHub-Event, X-Hub-Signature-256")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Events ---

// handledEvents are the X-GitHub-Event types that can trigger a run.
var handledEvents = map[string]bool{"issues": true, "issue_comment": true}

// verifySignature checks a "sha256=<hex>" HMAC of body.
func verifySignature(secret, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// EventResponse is the body returned for a synchronously processed event.
type EventResponse struct {
	Run     *models.Run         `json:"run"`
	PR      *models.PullRequest `json:"pr,omitempty"`
	LogPath string              `json:"log_path,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (s *Server) receiveEvent(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if s.opts.WebhookSecret != "" && !verifySignature([]byte(s.opts.WebhookSecret), body, r.Header.Get("X-Hub-Signature-256")) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if kind := r.Header.Get("X-GitHub-Event"); kind != "" && !handledEvents[kind] {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "event": kind})
		return
	}

	var ev models.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if ev.Repository == nil && s.opts.Repo != "" {
		ev.Repository = &models.Repository{FullName: s.opts.Repo}
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		res, err := s.runEvent(r.Context(), &ev)
		var resp EventResponse
		if res != nil {
			resp = EventResponse{Run: res.Run, PR: res.PR, LogPath: res.LogPath}
		}
		if err != nil {
			resp.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// Deliveries are acknowledged immediately; runs queue behind the mutex.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.runEvent(context.Background(), &ev); err != nil {
			slog.Warn("pipeline run failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) runEvent(ctx context.Context, ev *models.Event) (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.Run(ctx, ev)
}

// --- Evaluations ---

func (s *Server) evaluatePull(w http.ResponseWriter, r *http.Request) {
	if s.evaluator == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluator not configured")
		return
	}
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, "invalid pull request number")
		return
	}
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		repo = s.opts.Repo
	}
	if repo == "" {
		writeError(w, http.StatusBadRequest, "repo is required")
		return
	}

	s.mu.Lock()
	report, err := s.evaluator.Run(r.Context(), repo, number)
	s.mu.Unlock()
	if err != nil && report == nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err != nil {
		slog.Warn("evaluation side effect failed", "pr", number, "error", err)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listEvaluations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pr := 0
	if v := q.Get("pr"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pr")
			return
		}
		pr = n
	}
	recs, err := s.store.ListEvaluations(r.Context(), q.Get("repo"), pr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []*models.EvaluationRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// --- Runs ---

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunListFilter{
		Repo:   q.Get("repo"),
		Status: models.RunStatus(q.Get("status")),
	}
	for key, dst := range map[string]*int{"issue": &filter.IssueNumber, "limit": &filter.Limit} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
				return
			}
			*dst = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}
