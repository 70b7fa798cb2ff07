// Package server exposes the VoxHire interview session API over HTTP.
//
// The server fronts the session [app.Manager]: browsers create sessions, poll
// live transcripts, end interviews, review and amend the resulting scripts,
// and submit feedback. Health probes and Prometheus metrics are served on the
// same listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxhire/voxhire/internal/app"
	"github.com/voxhire/voxhire/internal/config"
	"github.com/voxhire/voxhire/internal/health"
	"github.com/voxhire/voxhire/internal/interview"
	"github.com/voxhire/voxhire/internal/observe"
	"github.com/voxhire/voxhire/internal/store"
	"github.com/voxhire/voxhire/internal/transcript"
	"github.com/voxhire/voxhire/pkg/backend"
)

// shutdownTimeout bounds the drain of in-flight requests when Run returns.
const shutdownTimeout = 15 * time.Second

// SessionManager is the slice of [app.Manager] the handlers need.
type SessionManager interface {
	Start(ctx context.Context, req app.StartRequest) (app.SessionInfo, error)
	End(sessionID string) error
	Snapshot(sessionID string) (transcript.Snapshot, error)
	Info(sessionID string) (app.SessionInfo, error)
	List() []app.SessionInfo
}

// QuestionSource fetches recruiter-configured question sets. Satisfied by
// [backend.Client].
type QuestionSource interface {
	Questions(ctx context.Context, interviewType string) ([]backend.Question, error)
	SubmitFeedback(ctx context.Context, fb backend.Feedback) error
}

// Config assembles a Server.
type Config struct {
	Server  config.ServerConfig
	Manager SessionManager
	Store   store.ScriptStore
	Backend QuestionSource
	Health  *health.Handler
	Metrics *observe.Metrics
	Logger  *slog.Logger

	// now is overridden in tests.
	now func() time.Time
}

// Server is the HTTP front of the interview service.
type Server struct {
	cfg     config.ServerConfig
	manager SessionManager
	store   store.ScriptStore
	backend QuestionSource
	log     *slog.Logger
	now     func() time.Time
	router  chi.Router
}

// New creates a Server and builds its route table.
func New(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("server: Config.Manager is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("server: Config.Store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	s := &Server{
		cfg:     cfg.Server,
		manager: cfg.Manager,
		store:   cfg.Store,
		backend: cfg.Backend,
		log:     cfg.Logger,
		now:     cfg.now,
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	r.Use(observe.Middleware(cfg.Metrics))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleSessionInfo)
			r.Post("/end", s.handleEndSession)
			r.Get("/transcript", s.handleTranscript)
		})
	})

	r.Route("/scripts/{sessionID}", func(r chi.Router) {
		r.Get("/", s.handleGetScript)
		r.Put("/", s.handleUpdateScript)
	})

	r.Post("/feedback", s.handleFeedback)
	r.Get("/questions", s.handleQuestions)

	cfg.Health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router = r
	return s, nil
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if s.cfg.TLS != nil {
			s.log.Info("listening", "addr", s.cfg.ListenAddr, "tls", true)
			err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.log.Info("listening", "addr", s.cfg.ListenAddr)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ── Session handlers ──────────────────────────────────────────────────────────

type createSessionRequest struct {
	Type          string `json:"type"`
	CandidateName string `json:"candidateName,omitempty"`

	// InterviewContext carries résumé text, job description and question set;
	// it is forwarded to the recruiting backend with the credential request.
	InterviewContext map[string]string `json:"interviewContext,omitempty"`
}

type sessionResponse struct {
	SessionID     string    `json:"sessionId"`
	Type          string    `json:"type"`
	CandidateName string    `json:"candidateName,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	State         string    `json:"state"`
}

func toSessionResponse(info app.SessionInfo) sessionResponse {
	return sessionResponse{
		SessionID:     info.SessionID,
		Type:          string(info.Type),
		CandidateName: info.CandidateName,
		StartedAt:     info.StartedAt,
		State:         info.State,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	info, err := s.manager.Start(r.Context(), app.StartRequest{
		Type:             interview.Type(req.Type),
		CandidateName:    req.CandidateName,
		InterviewContext: req.InterviewContext,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("create session", "err", err)
		writeError(w, http.StatusBadGateway, "could not start interview session: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(info))
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.manager.List()
	out := make([]sessionResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toSessionResponse(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.Info(chi.URLParam(r, "sessionID"))
	if errors.Is(err, app.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(info))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	err := s.manager.End(chi.URLParam(r, "sessionID"))
	if errors.Is(err, app.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type transcriptResponse struct {
	Utterances []transcript.Utterance    `json:"utterances"`
	Live       []transcript.LiveFragment `json:"live,omitempty"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.Snapshot(chi.URLParam(r, "sessionID"))
	if errors.Is(err, app.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Utterances: snap.Utterances, Live: snap.Live})
}

// ── Script handlers ───────────────────────────────────────────────────────────

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	script, err := s.store.Script(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "script not found")
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Error("load script", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load script")
		return
	}
	writeJSON(w, http.StatusOK, script)
}

// handleUpdateScript replaces a stored script. The If-Match header carries
// the version the editor based their change on; a stale version is rejected
// with 409 so concurrent recruiter edits can't silently overwrite each other.
func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	expected, err := strconv.Atoi(r.Header.Get("If-Match"))
	if err != nil || expected < 1 {
		writeError(w, http.StatusBadRequest, "If-Match header must carry the current script version")
		return
	}

	var script interview.Script
	if err := json.NewDecoder(r.Body).Decode(&script); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch err := s.store.UpdateScript(r.Context(), id, &script, expected); {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "script not found")
	case errors.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, "script was modified by someone else; reload and retry")
	case err != nil:
		observe.Logger(r.Context()).Error("update script", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not update script")
	default:
		updated, err := s.store.Script(r.Context(), id)
		if err != nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// ── Feedback and questions ────────────────────────────────────────────────────

type feedbackRequest struct {
	SessionID string `json:"sessionId"`
	Rating    int    `json:"rating"`
	Comments  string `json:"comments,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "sessionId and a rating between 1 and 5 are required")
		return
	}

	fb := store.Feedback{
		SessionID:   req.SessionID,
		Rating:      req.Rating,
		Comments:    req.Comments,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.store.SaveFeedback(r.Context(), fb); err != nil {
		observe.Logger(r.Context()).Error("save feedback", "session_id", req.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not save feedback")
		return
	}

	// Forward to the recruiting backend; local persistence already succeeded.
	if s.backend != nil {
		if err := s.backend.SubmitFeedback(r.Context(), backend.Feedback{
			SessionID: req.SessionID,
			Rating:    req.Rating,
			Comments:  req.Comments,
		}); err != nil {
			observe.Logger(r.Context()).Warn("forward feedback", "session_id", req.SessionID, "err", err)
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "question source not configured")
		return
	}
	typ := r.URL.Query().Get("type")
	if typ == "" {
		writeError(w, http.StatusBadRequest, "type query parameter is required")
		return
	}
	questions, err := s.backend.Questions(r.Context(), typ)
	if err != nil {
		observe.Logger(r.Context()).Error("fetch questions", "interview_type", typ, "err", err)
		writeError(w, http.StatusBadGateway, "could not fetch questions")
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

// ── Plumbing ──────────────────────────────────────────────────────────────────

// corsMiddleware allows the listed browser origins. An empty list allows any
// origin, which is only sensible in development.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (len(allowed) == 0 || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-Match")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
