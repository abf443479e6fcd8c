// Package api exposes the HTTP surface: event intake, alert and strategy
// reads, manual scan triggers, health probes, and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sgerhart/alertflux/internal/ingest"
	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/scheduler"
	"github.com/sgerhart/alertflux/internal/store"
	"github.com/sgerhart/alertflux/internal/strategy"
)

// maxIntakeBodySize bounds POST /events payloads.
const maxIntakeBodySize = 4 << 20

// IntakeSecretHeader authenticates intake requests when a secret is
// configured.
const IntakeSecretHeader = "X-Intake-Secret"

// Server wires the HTTP routes to the aggregation components.
type Server struct {
	router    *chi.Mux
	store     store.Store
	loader    *strategy.Loader
	intake    *ingest.Intake
	scheduler *scheduler.Scheduler
	nc        *nats.Conn
	metrics   *metrics.Metrics
	logger    *slog.Logger
	secret    string
}

// NewServer creates the HTTP server. nc and m may be nil; an empty secret
// disables intake authentication.
func NewServer(st store.Store, loader *strategy.Loader, intake *ingest.Intake, sched *scheduler.Scheduler, nc *nats.Conn, m *metrics.Metrics, secret string, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     st,
		loader:    loader,
		intake:    intake,
		scheduler: sched,
		nc:        nc,
		metrics:   m,
		logger:    logger,
		secret:    secret,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", s.handleIntake)
		r.Get("/alerts", s.handleListAlerts)
		r.Get("/alerts/{alertID}", s.handleGetAlert)
		r.Get("/strategies", s.handleListStrategies)
		r.Post("/strategies/{ruleID}/scan", s.handleScanStrategy)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	if s.metrics != nil {
		if n, ok := stats["active_alerts"].(int); ok {
			s.metrics.SetActiveAlerts(float64(n))
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"stats":     stats,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	natsConnected := s.nc != nil && s.nc.IsConnected()
	snapshot := s.loader.GetSnapshot()
	strategiesLoaded := len(snapshot.Strategies) > 0

	// NATS gates readiness only when it is wired at all.
	ready := strategiesLoaded && (s.nc == nil || natsConnected)
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]any{
		"status":            status,
		"timestamp":         time.Now().UTC(),
		"nats_connected":    natsConnected,
		"strategies_loaded": len(snapshot.Strategies),
	})
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" && r.Header.Get(IntakeSecretHeader) != s.secret {
		s.writeError(w, http.StatusUnauthorized, "invalid intake secret")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIntakeBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	events, err := ingest.DecodeEventBatch(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(events) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty event batch")
		return
	}
	// Unlike the NATS path, the receiver requires an identified source.
	for i := range events {
		if strings.TrimSpace(events[i].SourceID) == "" {
			s.writeError(w, http.StatusBadRequest, "missing source_id")
			return
		}
	}

	result, err := s.intake.ProcessBatch(events)
	if err != nil {
		s.logger.Error("Intake batch failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to process events")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"result":    result,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := alertFilterFromQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := s.store.ListAlerts(filter)
	if err != nil {
		s.logger.Error("Failed to list alerts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"alerts":    alerts,
		"count":     len(alerts),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	alert, err := s.store.GetAlert(alertID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.logger.Error("Failed to load alert", "alert_id", alertID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load alert")
		return
	}

	eventIDs, err := s.store.ListAlertEventIDs(alertID)
	if err != nil {
		s.logger.Error("Failed to load alert events", "alert_id", alertID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load alert events")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"alert":       alert,
		"event_ids":   eventIDs,
		"event_count": len(eventIDs),
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	snapshot := s.loader.GetSnapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"strategies": snapshot.Strategies,
		"count":      len(snapshot.Strategies),
		"version":    snapshot.Version,
	})
}

func (s *Server) handleScanStrategy(w http.ResponseWriter, r *http.Request) {
	ruleID, err := strconv.ParseInt(chi.URLParam(r, "ruleID"), 10, 64)
	if err != nil || ruleID <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	switch err := s.scheduler.ScanStrategy(ruleID); {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"message":   "scan completed",
			"rule_id":   ruleID,
			"timestamp": time.Now().UTC(),
		})
	case errors.Is(err, scheduler.ErrUnknownStrategy):
		s.writeError(w, http.StatusNotFound, "unknown strategy")
	case errors.Is(err, scheduler.ErrScanInFlight):
		s.writeError(w, http.StatusConflict, "scan already in flight")
	default:
		s.logger.Error("Manual scan failed", "rule_id", ruleID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "scan failed")
	}
}

// alertFilterFromQuery maps list query parameters onto a store filter.
func alertFilterFromQuery(r *http.Request) (store.AlertFilter, error) {
	var filter store.AlertFilter
	q := r.URL.Query()

	if v := q.Get("rule_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("invalid rule_id")
		}
		filter.RuleID = id
	}
	if v := q.Get("fingerprint"); v != "" {
		filter.Fingerprint = v
	}
	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			filter.Statuses = append(filter.Statuses, model.AlertStatus(strings.TrimSpace(s)))
		}
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("invalid active flag")
		}
		filter.ActiveOnly = active
	}
	if v := q.Get("session"); v != "" {
		session, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("invalid session flag")
		}
		filter.SessionOnly = session
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]any{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
