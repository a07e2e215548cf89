// Package api exposes the HTTP interface for the tracker service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/metrics"
	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// MappingService is the mapping surface the handlers need.
type MappingService interface {
	Current(ctx context.Context) (tracker.Mapping, error)
	Refresh(ctx context.Context) (*tracker.RefreshResult, error)
	Statistics(ctx context.Context) (*tracker.MappingStatistics, error)
}

// PipelineRunner triggers one full scrape cycle.
type PipelineRunner interface {
	Run(ctx context.Context) (*tracker.RunSummary, error)
}

// SyncRunner triggers one workspace sync.
type SyncRunner interface {
	Run(ctx context.Context) (*tracker.SyncResult, error)
}

// Server wires HTTP handlers to the stores and engines.
type Server struct {
	router   chi.Router
	store    tracker.DistributorStore
	history  tracker.HistoryStore
	mappings MappingService
	pipeline PipelineRunner
	syncer   SyncRunner
	clock    tracker.Clock
	logger   *zap.Logger

	runMu   sync.Mutex
	running bool
}

// NewServer constructs a Server with middleware and routes. The syncer
// may be nil when sync is disabled.
func NewServer(
	store tracker.DistributorStore,
	history tracker.HistoryStore,
	mappings MappingService,
	pipeline PipelineRunner,
	syncer SyncRunner,
	clock tracker.Clock,
	logger *zap.Logger,
) *Server {
	s := &Server{
		store:    store,
		history:  history,
		mappings: mappings,
		pipeline: pipeline,
		syncer:   syncer,
		clock:    clock,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/distributors", s.listDistributors)
		r.Get("/distributors/{distributor_id}/changes", s.listChanges)
		r.Get("/statistics", s.statistics)
		r.Get("/mappings", s.listMappings)
		r.Post("/mappings/refresh", s.refreshMappings)
		r.Post("/runs/scrape", s.triggerScrape)
		r.Post("/runs/sync", s.triggerSync)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.mappings.Current(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type distributorResponse struct {
	ID           int64    `json:"id"`
	CompanyName  string   `json:"company_name"`
	PartnerType  string   `json:"partner_type"`
	Address      string   `json:"address"`
	Region       string   `json:"region,omitempty"`
	CountryState string   `json:"country_state,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Email        string   `json:"contact_email,omitempty"`
	WebsiteURL   string   `json:"website_url,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Active       bool     `json:"is_active"`
	SourceID     *int64   `json:"unifi_id,omitempty"`
	DataSource   string   `json:"data_source"`
	SyncStatus   string   `json:"sync_status"`
}

func toDistributorResponse(d tracker.Distributor) distributorResponse {
	return distributorResponse{
		ID:           d.ID,
		CompanyName:  d.OrganizationName,
		PartnerType:  string(d.PartnerType),
		Address:      d.Address,
		Region:       d.Region,
		CountryState: d.CountryState,
		Phone:        d.Phone,
		Email:        d.Email,
		WebsiteURL:   d.WebsiteURL,
		Latitude:     d.Latitude,
		Longitude:    d.Longitude,
		Active:       d.Active,
		SourceID:     d.SourceID,
		DataSource:   string(d.DataSource),
		SyncStatus:   string(d.SyncStatus),
	}
}

func (s *Server) listDistributors(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.SyncCandidates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list distributors")
		return
	}

	region := r.URL.Query().Get("region")
	var activeOnly bool
	if v := r.URL.Query().Get("active"); v != "" {
		if activeOnly, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid active filter")
			return
		}
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	out := make([]distributorResponse, 0, len(all))
	for _, d := range all {
		if activeOnly && !d.Active {
			continue
		}
		if region != "" && d.Region != region {
			continue
		}
		out = append(out, toDistributorResponse(d))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distributors": out,
		"count":        len(out),
	})
}

func (s *Server) listChanges(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "distributor_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid distributor id")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	entries, err := s.history.ChangesForDistributor(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch changes")
		return
	}
	type changeResponse struct {
		ID         int64            `json:"id"`
		Kind       string           `json:"change_type"`
		OldData    tracker.Snapshot `json:"old_data,omitempty"`
		NewData    tracker.Snapshot `json:"new_data,omitempty"`
		DetectedAt time.Time        `json:"detected_at"`
	}
	out := make([]changeResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, changeResponse{
			ID:         e.ID,
			Kind:       string(e.Kind),
			OldData:    e.OldData,
			NewData:    e.NewData,
			DetectedAt: e.DetectedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": out, "count": len(out)})
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	mappingStats, err := s.mappings.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute mapping statistics")
		return
	}
	recent, err := s.history.RecentSummary(r.Context(), s.clock.Now().Add(-7*24*time.Hour))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to summarize recent changes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distributors":   stats,
		"mappings":       mappingStats,
		"recent_changes": recent,
	})
}

func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	current, err := s.mappings.Current(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load mappings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mappings":     current,
		"regions":      current.Regions(),
		"combinations": current.Total(),
	})
}

func (s *Server) refreshMappings(w http.ResponseWriter, r *http.Request) {
	result, err := s.mappings.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "mapping refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) triggerScrape(w http.ResponseWriter, _ *http.Request) {
	if !s.tryStartRun() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	go func() {
		defer s.finishRun()
		if _, err := s.pipeline.Run(context.Background()); err != nil {
			s.logger.Error("triggered pipeline run failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) triggerSync(w http.ResponseWriter, _ *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusConflict, "workspace sync is not configured")
		return
	}
	if !s.tryStartRun() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	go func() {
		defer s.finishRun()
		if _, err := s.syncer.Run(context.Background()); err != nil {
			s.logger.Error("triggered sync run failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) tryStartRun() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Server) finishRun() {
	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
