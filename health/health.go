// Package health serves the liveness endpoint for the collection service.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// StatusSource reports the pipeline's last success and row count.
type StatusSource interface {
	Status() (lastSuccess time.Time, rows int)
}

// Status is the /health response body.
type Status struct {
	Status    string    `json:"status"`
	LastCycle time.Time `json:"lastCycle"`
	TableRows int       `json:"tableRows"`
}

// Server exposes /health. The service is unhealthy when the last successful
// cycle is older than twice the collection interval.
type Server struct {
	source   StatusSource
	interval time.Duration
	srv      *http.Server
	logger   *zap.Logger
}

// New creates the health server on the given port.
func New(source StatusSource, interval time.Duration, port int, logger *zap.Logger) *Server {
	s := &Server{source: source, interval: interval, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("health server starting", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server error: %w", err)
	}
	return nil
}

// Stop closes the server.
func (s *Server) Stop() error {
	return s.srv.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	lastCycle, rows := s.source.Status()
	status := Status{Status: "healthy", LastCycle: lastCycle, TableRows: rows}

	w.Header().Set("Content-Type", "application/json")
	if !lastCycle.IsZero() && time.Since(lastCycle) > 2*s.interval {
		status.Status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}
