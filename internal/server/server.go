// Package server implements the mappackd HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/meigma/mappack"
	"github.com/meigma/mappack/store"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// Plain-text response bodies.
const (
	msgMethodNotAllowed = "Method not allowed"
	msgUnauthorized     = "Unauthorized"
	msgInvalidJSON      = "Invalid JSON"
	msgNoMaps           = "No maps provided"
	msgInternal         = "Internal error"
	msgNotFound         = "Not found"
)

// Generator builds or looks up the pack for a pool.
type Generator interface {
	Generate(ctx context.Context, entries []mappack.PoolEntry) (*mappack.Result, error)
}

// Server serves the mappack API.
type Server struct {
	generator    Generator
	internalKey  string
	packs        store.Store
	maxBodyBytes int64
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithPackStore exposes the objects of s at GET /packs/{name}.
func WithPackStore(s store.Store) Option {
	return func(srv *Server) {
		srv.packs = s
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger for request handling.
func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) {
		srv.logger = logger
	}
}

// New creates a Server. Callers must present "Bearer {internalKey}".
func New(generator Generator, internalKey string, opts ...Option) *Server {
	s := &Server{
		generator:    generator,
		internalKey:  internalKey,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log returns a logger carrying the request ID of ctx.
func (s *Server) log(ctx context.Context) *slog.Logger {
	logger := s.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if id := RequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	return logger
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.handleGenerate)
	mux.HandleFunc("/mappacks", s.handleGenerate)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.packs != nil {
		mux.HandleFunc("GET /packs/{name}", s.handlePack)
	}
	return requestIDMiddleware(s.logRequests(mux))
}

// generateRequest is the body of a generate request.
type generateRequest struct {
	Maps json.RawMessage `json:"maps"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeText(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req generateRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, s.maxBodyBytes), &req); err != nil {
		s.log(ctx).Debug("invalid request body", "error", err)
		writeText(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	var entries []mappack.PoolEntry
	if len(req.Maps) == 0 || json.Unmarshal(req.Maps, &entries) != nil || len(entries) == 0 {
		writeText(w, http.StatusBadRequest, msgNoMaps)
		return
	}

	res, err := s.generator.Generate(ctx, entries)
	switch {
	case errors.Is(err, mappack.ErrNoMaps):
		writeText(w, http.StatusBadRequest, msgNoMaps)
		return
	case err != nil:
		s.log(ctx).Error("failed to process mappack", "maps", len(entries), "error", err)
		writeText(w, http.StatusInternalServerError, msgInternal)
		return
	}

	s.log(ctx).Info("mappack ready",
		"key", res.Key.String(),
		"cached", res.Cached,
		"files", res.Files,
		"maps", len(entries),
	)
	writeJSON(w, http.StatusOK, res)
}

// authorized compares the Authorization header with the expected value in
// constant time.
func (s *Server) authorized(r *http.Request) bool {
	if s.internalKey == "" {
		return false
	}
	want := "Bearer " + s.internalKey
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handlePack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	if _, err := mappack.ParseObjectName(name); err != nil {
		writeText(w, http.StatusNotFound, msgNotFound)
		return
	}

	rc, err := s.packs.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		writeText(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		s.log(ctx).Error("failed to open pack", "name", name, "error", err)
		writeText(w, http.StatusInternalServerError, msgInternal)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", mappack.ContentTypeZip)
	h.Set("Content-Disposition", `attachment; filename="`+name+`"`)
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log(ctx).Warn("pack download interrupted", "name", name, "error", err)
	}
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log(r.Context()).Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// decodeJSON decodes a body holding exactly one JSON value.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
