// Package monitor serves the health snapshot and prometheus metrics.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"launch-alerts/internal/resilience"
	"launch-alerts/internal/scheduler"
)

// Sources supplies the data behind /health.
type Sources struct {
	Health func() resilience.HealthSnapshot
	Cycles func() map[string]scheduler.CycleState
}

// Server exposes /health and /metrics.
type Server struct {
	addr     string
	sources  Sources
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

// NewServer builds the monitoring server.
func NewServer(addr string, sources Sources, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	return &Server{
		addr:     addr,
		sources:  sources,
		gatherer: gatherer,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}
}

type cycleView struct {
	Interval string     `json:"interval"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	Running  bool       `json:"running"`
}

type healthResponse struct {
	resilience.HealthSnapshot
	Cycles map[string]cycleView `json:"cycles,omitempty"`
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var resp healthResponse
	if s.sources.Health != nil {
		resp.HealthSnapshot = s.sources.Health()
	}
	if s.sources.Cycles != nil {
		resp.Cycles = make(map[string]cycleView)
		for name, st := range s.sources.Cycles() {
			view := cycleView{Interval: st.Interval.String(), Running: st.Running}
			if !st.LastRun.IsZero() {
				last := st.LastRun.UTC()
				view.LastRun = &last
			}
			if st.LastErr != nil {
				view.LastErr = st.LastErr.Error()
			}
			resp.Cycles[name] = view
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("encode health response")
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("monitor listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Msg("monitor stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
