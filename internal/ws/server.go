package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/config"
	"github.com/kevinaud/rpc-streaming-prototype/internal/monitor"
	"github.com/kevinaud/rpc-streaming-prototype/internal/service"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

// HealthReporter produces the body of /api/health.
type HealthReporter interface {
	Report(ctx context.Context) (monitor.Health, error)
}

type Option func(*Server)

func WithHealth(h HealthReporter) Option {
	return func(s *Server) { s.health = h }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

type Server struct {
	config         *config.Config
	svc            *service.Service
	log            *zap.Logger
	health         HealthReporter
	gatherer       prometheus.Gatherer
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	upgrader       websocket.Upgrader
}

func NewServer(cfg *config.Config, svc *service.Service, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config:         cfg,
		svc:            svc,
		log:            log,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:      s.checkOrigin,
		HandshakeTimeout: cfg.Stream.WriteTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API with request logging applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/proposals", s.handleSubmitProposal).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/proposals/{pid}/decision", s.handleSubmitDecision).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/subscribe", s.handleSubscribe).Methods(http.MethodGet)

	// mux skips middleware for unmatched requests.
	r.NotFoundHandler = loggingMiddleware(s.log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, fmt.Errorf("%w: no route for %s", session.ErrNotFound, r.URL.Path))
	}))
	r.MethodNotAllowedHandler = loggingMiddleware(s.log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, fmt.Errorf("%w: %s %s", errMethodNotAllowed, r.Method, r.URL.Path))
	}))

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// HTTPServer returns an http.Server bound to the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.svc.CreateSession()
	s.respondJSON(w, r, http.StatusCreated, SessionResponse{Session: sess})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.GetSession(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, SessionResponse{Session: sess})
}

func (s *Server) handleSubmitProposal(w http.ResponseWriter, r *http.Request) {
	var req SubmitProposalRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := s.svc.SubmitProposal(mux.Vars(r)["id"], req.Text)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusCreated, ProposalResponse{Proposal: p})
}

func (s *Server) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	var req SubmitDecisionRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Approved == nil {
		s.respondError(w, r, fmt.Errorf("%w: approved is required", session.ErrInvalidArgument))
		return
	}
	vars := mux.Vars(r)
	p, err := s.svc.SubmitDecision(vars["id"], vars["pid"], *req.Approved)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, ProposalResponse{Proposal: p})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		stats := s.svc.Stats()
		s.respondJSON(w, r, http.StatusOK, monitor.Health{
			Status:      monitor.StatusOK,
			Sessions:    stats.Sessions,
			Subscribers: stats.Subscribers,
		})
		return
	}
	h, err := s.health.Report(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, h)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", session.ErrInvalidArgument, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid request body: %v", session.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		loggerFrom(r.Context(), s.log).Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	log := loggerFrom(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("code", code), zap.Error(err))
	} else {
		log.Debug("request refused", zap.String("code", code), zap.Error(err))
	}
	s.respondJSON(w, r, status, ErrorResponse{Error: ErrorPayload{Code: code, Message: err.Error()}})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
