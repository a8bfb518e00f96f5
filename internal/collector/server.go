package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentrail/agentrail/internal/api"
)

// Config holds collector server settings.
type Config struct {
	Addr    string   `yaml:"addr"`
	DBPath  string   `yaml:"db_path"`
	APIKeys []string `yaml:"api_keys"` // empty disables auth
}

// DefaultConfig returns the settings for a local dev collector.
func DefaultConfig() Config {
	return Config{
		Addr:   ":8040",
		DBPath: "agentrail.db",
	}
}

// Server serves the ingest API over HTTP.
type Server struct {
	cfg   Config
	store *Store
	log   *slog.Logger

	mu   sync.RWMutex
	keys map[string]bool
}

// NewServer creates a collector server over store.
func NewServer(cfg Config, store *Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:   cfg,
		store: store,
		log:   log,
	}
	s.SetAPIKeys(cfg.APIKeys)
	return s
}

// SetAPIKeys replaces the accepted key set. An empty set disables auth.
// Called by the config reloader for key rotation.
func (s *Server) SetAPIKeys(keys []string) {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = true
		}
	}
	s.mu.Lock()
	s.keys = set
	s.mu.Unlock()
}

// Handler returns the ingest API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/health", s.handleHealth)
	mux.HandleFunc("POST /v2/create_session", s.auth(s.handleSession))
	mux.HandleFunc("POST /v2/update_session", s.auth(s.handleSession))
	mux.HandleFunc("POST /v2/create_events", s.auth(s.handleEvents))
	return mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("collector listening", "addr", s.cfg.Addr, "db", s.cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		open := len(s.keys) == 0
		ok := open || s.keys[r.Header.Get(api.APIKeyHeader)]
		s.mu.RUnlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Session map[string]any `json:"session"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.store.UpsertSession(body.Session); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(body.Events) == 0 {
		writeError(w, http.StatusBadRequest, "no events")
		return
	}

	if err := s.store.InsertEvents(body.Events); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info("ingested events", "count", len(body.Events))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ingested": len(body.Events)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
