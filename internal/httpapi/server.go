package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/plate"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/service"
	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
	"github.com/BrandonDHaskell/gatelog/internal/metrics"
)

type Dependencies struct {
	Logger     *zap.Logger
	Addr       string
	Ledger     *service.LedgerService
	Decisions  *service.DecisionDesk
	Lookups    *service.LookupDesk
	Resolver   *service.Resolver
	Enrichment *service.EnrichmentService
	Metrics    *metrics.Metrics

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	// JWTSecret enables bearer-token auth on /v1 when non-empty.
	JWTSecret string
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     chi.Router
	ledger     *service.LedgerService
	decisions  *service.DecisionDesk
	lookups    *service.LookupDesk
	resolver   *service.Resolver
	enrichment *service.EnrichmentService
	metrics    *metrics.Metrics
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	enrichment := d.Enrichment
	if enrichment == nil {
		enrichment = service.NewEnrichmentService(service.EnrichmentDependencies{
			Tables: d.Resolver.Tables(),
			Logger: logger,
		})
	}

	s := &Server{
		logger:     logger,
		router:     chi.NewRouter(),
		ledger:     d.Ledger,
		decisions:  d.Decisions,
		lookups:    d.Lookups,
		resolver:   d.Resolver,
		enrichment: enrichment,
		metrics:    d.Metrics,
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if d.JWTSecret != "" {
			r.Use(jwtAuth([]byte(d.JWTSecret)))
		}

		r.Route("/reference", func(r chi.Router) {
			r.Get("/authorities", s.handleAuthorities)
			r.Get("/purposes", s.handlePurposes)
			r.Get("/vehicles", s.handleVehicles)
		})

		r.Post("/plates/validate", s.handleValidatePlate)
		r.Post("/lookups", s.handleLookup)

		r.Post("/entries", s.handleApprove)
		r.Get("/entries/inside", s.handleInside)
		r.Post("/entries/{id}/exit", s.handleRequestExit)

		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleRequestClearHistory)
		r.Get("/history/export", s.handleExport)

		r.Get("/decisions", s.handlePendingDecisions)
		r.Post("/decisions/{id}", s.handleResolveDecision)

		r.Route("/enrich", func(r chi.Router) {
			r.Post("/plate-scan", s.handlePlateScan)
			r.Post("/purpose", s.handleSuggestPurpose)
			r.Post("/screening-questions", s.handleScreeningQuestions)
		})
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Reference data ───────────────────────────────────────────────────────────

func (s *Server) handleAuthorities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Tables().Authorities())
}

func (s *Server) handlePurposes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Tables().Purposes())
}

func (s *Server) handleVehicles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Tables().Vehicles())
}

// ── Lookup ───────────────────────────────────────────────────────────────────

func (s *Server) handleValidatePlate(w http.ResponseWriter, r *http.Request) {
	var req validatePlateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := plate.Normalize(req.Plate)
	writeJSON(w, http.StatusOK, validatePlateResponse{Plate: p, Valid: plate.IsValid(p)})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.resolver.Resolve(plate.Normalize(req.LicensePlate), req.Purpose)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInputRequired):
			s.metrics.IncrementLookup("input_required")
		case errors.Is(err, service.ErrInvalidFormat):
			s.metrics.IncrementLookup("invalid_format")
		}
		s.writeServiceError(w, err)
		return
	}

	if len(res.Authorities) == 0 {
		s.metrics.IncrementLookup("no_authority")
	} else {
		s.metrics.IncrementLookup("resolved")
	}

	res, err = s.lookups.Put(res)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ── Entries ──────────────────────────────────────────────────────────────────

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// The lookup is spent up front; a failed approval hands it back.
	var lookup *types.LookupResult
	if res, ok := s.lookups.Take(req.LookupID); ok {
		lookup = &res
	}

	numPeople := 1
	if req.NumPeople != nil {
		numPeople = *req.NumPeople
	}

	var purpose string
	if lookup != nil {
		purpose = lookup.PurposeText
	}

	entry, err := s.ledger.Approve(r.Context(), service.ApproveRequest{
		NumPeople:   numPeople,
		Purpose:     purpose,
		Lookup:      lookup,
		AuthorityID: req.AuthorityID,
		OperatorID:  operatorFromContext(r.Context()),
	})
	if err != nil {
		if lookup != nil {
			s.lookups.Restore(*lookup)
		}
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleInside(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Inside())
}

func (s *Server) handleRequestExit(w http.ResponseWriter, r *http.Request) {
	pending, err := s.decisions.Request(types.Action{
		Kind:    types.ActionMarkExit,
		EntryID: chi.URLParam(r, "id"),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, pending)
}

// ── History ──────────────────────────────────────────────────────────────────

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.History())
}

func (s *Server) handleRequestClearHistory(w http.ResponseWriter, _ *http.Request) {
	pending, err := s.decisions.Request(types.Action{Kind: types.ActionClearHistory})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, pending)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	art, err := s.ledger.ExportHistory()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+art.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		s.logger.Warn("write export", zap.Error(err))
	}
}

// ── Decisions ────────────────────────────────────────────────────────────────

func (s *Server) handlePendingDecisions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.decisions.Pending())
}

func (s *Server) handleResolveDecision(w http.ResponseWriter, r *http.Request) {
	var req resolveDecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := s.decisions.Resolve(r.Context(), chi.URLParam(r, "id"), req.Confirmed)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// writeServiceError maps service sentinels onto status codes. Anything
// unrecognised is logged and reported as a 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInputRequired):
		writeError(w, http.StatusBadRequest, "input_required", err.Error())
	case errors.Is(err, service.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
	case errors.Is(err, service.ErrInvalidNumPeople):
		writeError(w, http.StatusBadRequest, "invalid_num_people", err.Error())
	case errors.Is(err, service.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, "invalid_action", err.Error())
	case errors.Is(err, service.ErrApprovalRequiresLookup):
		writeError(w, http.StatusConflict, "approval_requires_lookup", err.Error())
	case errors.Is(err, service.ErrAuthorityNotSelected):
		writeError(w, http.StatusUnprocessableEntity, "authority_not_selected", err.Error())
	case errors.Is(err, service.ErrDecisionNotFound):
		writeError(w, http.StatusNotFound, "decision_not_found", err.Error())
	case errors.Is(err, service.ErrExportEmpty):
		writeError(w, http.StatusNotFound, "export_empty", err.Error())
	case errors.Is(err, service.ErrEnrichmentUnavailable):
		writeError(w, http.StatusServiceUnavailable, "enrichment_unavailable", err.Error())
	case errors.Is(err, service.ErrEnrichmentFailure):
		writeError(w, http.StatusBadGateway, "enrichment_failed", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
