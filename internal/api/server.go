// Package api serves the run-history HTTP service and the live snapshot
// stream. Reads and writes of runs require the api key when one is set;
// deleting requires the admin key, or the api key when no admin key is set.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"neuraldrive/internal/model"
	"neuraldrive/internal/storage"
)

const (
	Version = "1.0.0"

	defaultListLimit = 20
	maxListLimit     = 100
)

var runIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var securityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Permissions-Policy":      "camera=(), microphone=(), geolocation=()",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
}

type Server struct {
	cfg        Config
	store      storage.Store
	limiter    *RateLimiter
	hub        *Hub
	upgrader   websocket.Upgrader
	controller Controller
	logger     *slog.Logger
	now        func() time.Time
	started    time.Time

	latestMu sync.Mutex
	latest   []byte
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithController routes stream commands to a running simulation.
func WithController(c Controller) Option {
	return func(s *Server) { s.controller = c }
}

// NewServer builds a server over an initialised store.
func NewServer(cfg Config, store storage.Store, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		hub:    NewHub(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow())
	s.upgrader = websocket.Upgrader{CheckOrigin: s.allowOrigin}
	s.started = s.now()
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRun)
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.HandleFunc("/", s.notFound)
	return s.withHeaders(s.rateLimited(mux))
}

// ListenAndServe serves on the configured host and port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub, the limiter sweep and the HTTP server on ln until ctx
// is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)
	go s.sweep(ctx)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("server started",
		"addr", ln.Addr().String(),
		"data_file", s.cfg.DataFile,
		"api_auth", s.cfg.APIKey != "",
		"admin_auth", s.cfg.AdminKey != "",
	)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	every := s.cfg.RateLimitWindow()
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Sweep(s.now())
		}
	}
}

func (s *Server) withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.corsOrigin())
		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Headers", "Content-Type, x-api-key, x-admin-key")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		for k, v := range securityHeaders {
			h.Set(k, v)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		quota := s.limiter.Consume(clientIdentity(r), s.now())
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(quota.Remaining))
		if !quota.Allowed {
			ms := quota.RetryAfter.Milliseconds()
			w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(float64(ms)/1000)), 10))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":        "Too many requests",
				"retryAfterMs": ms,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsOrigin() string {
	if s.cfg.AllowedOrigin == "" {
		return "*"
	}
	return s.cfg.AllowedOrigin
}

func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.corsOrigin() == "*" || origin == s.cfg.AllowedOrigin
}

func (s *Server) hasAPIAccess(r *http.Request) bool {
	return s.cfg.APIKey == "" || r.Header.Get("x-api-key") == s.cfg.APIKey
}

func (s *Server) hasAdminAccess(r *http.Request) bool {
	if s.cfg.AdminKey != "" {
		return r.Header.Get("x-admin-key") == s.cfg.AdminKey
	}
	return s.hasAPIAccess(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFound(w, r)
		return
	}
	now := s.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptimeSeconds": int64(math.Round(now.Sub(s.started).Seconds())),
		"timestamp":     now.UTC().Format(time.RFC3339Nano),
		"version":       Version,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRuns(w, r)
	case http.MethodPost:
		s.createRun(w, r)
	default:
		s.notFound(w, r)
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !s.hasAPIAccess(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	limit := listLimit(r.URL.Query().Get("limit"))
	runs, err := s.store.ListReports(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list runs failed", err)
		return
	}
	if runs == nil {
		runs = []model.GenerationReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": runs,
		"meta": map[string]int{"count": len(runs), "limit": limit},
	})
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	if !s.hasAPIAccess(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	payload, err := s.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Payload too large"})
		case errors.Is(err, errInvalidJSON):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		default:
			s.internalError(w, "create run failed", err)
		}
		return
	}

	report, problems := ParseRun(payload, s.now())
	if len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "Validation error", Details: problems})
		return
	}

	ctx := r.Context()
	if err := s.store.SaveReport(ctx, report); err != nil {
		s.internalError(w, "create run failed", err)
		return
	}
	if s.cfg.MaxRuns > 0 {
		if _, err := s.store.TrimReports(ctx, s.cfg.MaxRuns); err != nil {
			s.internalError(w, "create run failed", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": report})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if r.Method != http.MethodDelete || !runIDPattern.MatchString(id) {
		s.notFound(w, r)
		return
	}
	if !s.hasAdminAccess(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	removed, err := s.store.DeleteReport(r.Context(), id)
	if err != nil {
		s.internalError(w, "delete run failed", err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Run not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": 1})
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "Route not found"})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
}

var errInvalidJSON = errors.New("invalid json body")

// readBody decodes the request body, treating an empty body as an empty
// object.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (any, error) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, errInvalidJSON
	}
	if dec.More() {
		return nil, errInvalidJSON
	}
	return payload, nil
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func listLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n == 0 {
		return defaultListLimit
	}
	return min(maxListLimit, max(1, n))
}

func clientIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
