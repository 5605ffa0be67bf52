// Package api serves the control and status surface of the post-processing
// daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/internal/diag"
	"github.com/video-system/go-camera-pp/pkg/pipeline"
	"github.com/video-system/go-camera-pp/pkg/sfl"
)

// PipeSource reports the pipes of a session
type PipeSource interface {
	ListPipes() []string
	Statuses() map[string]pipeline.PipeStatus
}

// SFLController is the special function library surface the driver uses
type SFLController interface {
	Status() sfl.Status
	SetType(t sfl.Type) error
	SetEnable(t sfl.Type, enable bool) error
	SetRunEnable(t sfl.Type, enable bool) error
}

// StatsSource reports session counters
type StatsSource interface {
	Snapshot() diag.Stats
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host  string
	Port  int
	Pipes PipeSource
	SFL   SFLController
	Stats StatsSource
	Log   *logrus.Entry
}

// Server is the HTTP API server
type Server struct {
	cfg    ServerConfig
	log    *logrus.Entry
	server *http.Server
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{cfg: cfg, log: cfg.Log}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("component", "api")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/pipes", s.handlePipes)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/sfl", s.handleSFL)
	mux.HandleFunc("/api/v1/sfl/type", s.handleSFLType)
	mux.HandleFunc("/api/v1/sfl/enable", s.handleSFLFlag(SFLController.SetEnable))
	mux.HandleFunc("/api/v1/sfl/run", s.handleSFLFlag(SFLController.SetRunEnable))

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}

	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server. It returns http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	s.log.Infof("API server starting on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the API server
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("API server shutdown")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("write response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "go-camera-pp",
	})
}

func (s *Server) handlePipes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ids":   s.cfg.Pipes.ListPipes(),
		"pipes": s.cfg.Pipes.Statuses(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Stats == nil {
		http.Error(w, "stats unavailable", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Stats.Snapshot())
}

func (s *Server) handleSFL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.SFL.Status())
}

func (s *Server) handleSFLType(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Type sfl.Type `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.cfg.SFL.SetType(req.Type); err != nil {
		s.sflError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"type":   req.Type,
	})
}

func (s *Server) handleSFLFlag(set func(SFLController, sfl.Type, bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Type   sfl.Type `json:"type"`
			Enable bool     `json:"enable"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := set(s.cfg.SFL, req.Type, req.Enable); err != nil {
			s.sflError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"type":   req.Type,
			"enable": req.Enable,
		})
	}
}

func (s *Server) sflError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sfl.ErrInvalidType):
		status = http.StatusBadRequest
	case errors.Is(err, sfl.ErrNoLibrary):
		status = http.StatusNotFound
	case errors.Is(err, sfl.ErrInProgress):
		status = http.StatusConflict
	}
	s.log.WithError(err).Warn("sfl request refused")
	http.Error(w, err.Error(), status)
}
