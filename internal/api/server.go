// Package api exposes the engine's produced interfaces over HTTP for the
// dashboard and report collaborators.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/citelens/citelens/internal/archive"
	"github.com/citelens/citelens/internal/config"
	"github.com/citelens/citelens/internal/ingest"
	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/internal/monitoring"
	"github.com/citelens/citelens/internal/platforms"
	"github.com/citelens/citelens/internal/scheduler"
	"github.com/citelens/citelens/internal/stats"
	"github.com/citelens/citelens/internal/store"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server routes dashboard requests to the engine services.
type Server struct {
	config     *config.Config
	store      store.Store
	scheduler  *scheduler.Service
	ingestor   *ingest.Service
	aggregator *stats.Aggregator
	analyzer   *stats.Analyzer
	monitor    *monitoring.Service
	registry   *platforms.Registry
	archiver   archive.Archiver
	clock      scheduler.Clock
}

// NewServer creates the API server.
func NewServer(
	cfg *config.Config,
	st store.Store,
	sched *scheduler.Service,
	ingestor *ingest.Service,
	aggregator *stats.Aggregator,
	analyzer *stats.Analyzer,
	monitor *monitoring.Service,
	registry *platforms.Registry,
	archiver archive.Archiver,
	clock scheduler.Clock,
) *Server {
	return &Server{
		config:     cfg,
		store:      st,
		scheduler:  sched,
		ingestor:   ingestor,
		aggregator: aggregator,
		analyzer:   analyzer,
		monitor:    monitor,
		registry:   registry,
		archiver:   archiver,
		clock:      clock,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	router.HandleFunc("/trigger", s.handleTrigger).Methods("POST")

	router.HandleFunc("/api/clients", s.handleCreateClient).Methods("POST")
	router.HandleFunc("/api/clients/{id}", s.handlePatchClient).Methods("PATCH")
	router.HandleFunc("/api/clients/{id}/rollup", s.handleRollup).Methods("GET")
	router.HandleFunc("/api/clients/{id}/trend", s.handleTrend).Methods("GET")
	router.HandleFunc("/api/clients/{id}/top-queries", s.handleTopQueries).Methods("GET")

	router.HandleFunc("/api/queries", s.handleCreateQuery).Methods("POST")
	router.HandleFunc("/api/queries/due", s.handleDueQueries).Methods("GET")
	router.HandleFunc("/api/queries/{id}", s.handlePatchQuery).Methods("PATCH")

	router.HandleFunc("/api/citations", s.handleRecordCitation).Methods("POST")

	router.HandleFunc("/api/reports", s.handleListReports).Methods("GET")
	router.HandleFunc("/api/reports/{name}", s.handleGetReport).Methods("GET")

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.monitor.GetMetrics()))
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	// The request context dies with the response; the cycle runs on its own.
	go func() {
		if err := s.monitor.RunCycle(context.Background()); err != nil {
			logrus.Errorf("Manual monitoring trigger failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Monitoring cycle triggered"})
}

type createClientRequest struct {
	Name     string   `json:"name"`
	Industry string   `json:"industry"`
	Keywords []string `json:"keywords"`
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	client := &models.Client{
		Name:     req.Name,
		Industry: req.Industry,
		Keywords: req.Keywords,
		IsActive: true,
	}
	if err := s.store.CreateClient(r.Context(), client); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

type patchClientRequest struct {
	Name     *string  `json:"name,omitempty"`
	Industry *string  `json:"industry,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Active   *bool    `json:"active,omitempty"`
}

func (s *Server) handlePatchClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}

	var req patchClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	client, err := s.store.GetClient(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			writeError(w, http.StatusUnprocessableEntity, "name must not be empty")
			return
		}
		client.Name = *req.Name
	}
	if req.Industry != nil {
		client.Industry = *req.Industry
	}
	if req.Keywords != nil {
		client.Keywords = req.Keywords
	}
	if req.Active != nil {
		client.IsActive = *req.Active
	}

	if err := s.store.UpdateClient(r.Context(), client); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

type createQueryRequest struct {
	ClientID  int64    `json:"client_id"`
	Text      string   `json:"text"`
	Platforms []string `json:"platforms"`
	Frequency string   `json:"frequency"`
	Priority  string   `json:"priority"`
}

func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var req createQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusUnprocessableEntity, "text is required")
		return
	}
	frequency := models.CheckFrequency(req.Frequency)
	if !frequency.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "frequency must be hourly, daily, or weekly")
		return
	}
	priority := models.QueryPriority(req.Priority)
	if !priority.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "priority must be high, medium, or low")
		return
	}
	if _, err := s.store.GetClient(r.Context(), req.ClientID); err != nil {
		writeStoreError(w, err)
		return
	}

	targets := req.Platforms
	if len(targets) == 0 {
		targets = s.config.DefaultPlatforms
	}
	for _, name := range targets {
		if _, ok := s.registry.Get(name); !ok {
			writeError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("unknown platform %q; registered platforms: %s", name, strings.Join(s.registry.Names(), ", ")))
			return
		}
	}

	query := &models.MonitoringQuery{
		ClientID:  req.ClientID,
		Text:      req.Text,
		Platforms: targets,
		Frequency: frequency,
		Priority:  priority,
		IsActive:  true,
	}
	if err := s.store.CreateQuery(r.Context(), query); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, query)
}

func (s *Server) handleDueQueries(w http.ResponseWriter, r *http.Request) {
	now := s.clock()
	if raw := r.URL.Query().Get("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "now must be RFC3339")
			return
		}
		now = parsed
	}

	due, err := s.scheduler.DueQueries(r.Context(), now)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}

type patchQueryRequest struct {
	Frequency *string `json:"frequency,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

func (s *Server) handlePatchQuery(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query id")
		return
	}

	var req patchQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Frequency != nil {
		frequency := models.CheckFrequency(*req.Frequency)
		if !frequency.Valid() {
			writeError(w, http.StatusUnprocessableEntity, "frequency must be hourly, daily, or weekly")
			return
		}
		if err := s.scheduler.ChangeFrequency(r.Context(), id, frequency); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	if req.Active != nil {
		if err := s.scheduler.SetActive(r.Context(), id, *req.Active); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	query, err := s.store.GetQuery(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, query)
}

type recordCitationRequest struct {
	QueryID    int64      `json:"query_id"`
	Platform   string     `json:"platform"`
	Position   *int       `json:"position,omitempty"`
	Sentiment  *string    `json:"sentiment,omitempty"`
	Context    string     `json:"context"`
	DetectedAt *time.Time `json:"detected_at,omitempty"`
}

func (s *Server) handleRecordCitation(w http.ResponseWriter, r *http.Request) {
	var req recordCitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var sentiment *models.Sentiment
	if req.Sentiment != nil {
		v := models.Sentiment(*req.Sentiment)
		if v != models.SentimentPositive && v != models.SentimentNeutral && v != models.SentimentNegative {
			writeError(w, http.StatusUnprocessableEntity, "sentiment must be positive, neutral, or negative")
			return
		}
		sentiment = &v
	}

	detectedAt := s.clock()
	if req.DetectedAt != nil {
		detectedAt = *req.DetectedAt
	}

	citation, err := s.ingestor.Record(r.Context(), req.QueryID, req.Platform, req.Position, sentiment, req.Context, detectedAt)
	if err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, citation)
}

func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	id, ok := s.clientID(w, r)
	if !ok {
		return
	}

	rollup, err := s.aggregator.Rollup(r.Context(), id, s.clock())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	id, ok := s.clientID(w, r)
	if !ok {
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	trend, err := s.analyzer.DailyTrend(r.Context(), id, days, s.clock())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (s *Server) handleTopQueries(w http.ResponseWriter, r *http.Request) {
	id, ok := s.clientID(w, r)
	if !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	top, err := s.analyzer.TopQueries(r.Context(), id, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	names, err := s.archiver.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.archiver.Retrieve(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) clientID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return 0, false
	}
	if _, err := s.store.GetClient(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnknownQuery):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrQueryInactive),
		errors.Is(err, ingest.ErrInvalidPlatform),
		errors.Is(err, ingest.ErrInvalidPosition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeStoreError(w, err)
	}
}
