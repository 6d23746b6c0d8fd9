// Package server exposes the enrichment pipeline over a thin HTTP surface.
// It is glue only: decode, delegate, encode.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"finance-enricher/internal/cache"
	"finance-enricher/internal/common/errors"
	"finance-enricher/internal/common/logging"
	"finance-enricher/internal/enrich"
	"finance-enricher/internal/label"
	"finance-enricher/internal/store"
)

// Server wires HTTP routes to the enrichment facade.
type Server struct {
	enricher *enrich.Enricher
	labelCfg label.Config
	durable  store.Store
	logger   logging.Logger
}

func New(enricher *enrich.Enricher, labelCfg label.Config, durable store.Store, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Server{
		enricher: enricher,
		labelCfg: labelCfg,
		durable:  durable,
		logger:   logger,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/enrich/tags", s.handleSuggestTags).Methods("POST")
	api.HandleFunc("/enrich/story", s.handleMonthlyStory).Methods("POST")
	api.HandleFunc("/enrich/deepdive", s.handleDeepDive).Methods("POST")
	api.HandleFunc("/labels/derive", s.handleDeriveLabel).Methods("POST")
	api.HandleFunc("/cache/{scope}", s.handleInvalidate).Methods("DELETE")

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	return r
}

type enrichRequest struct {
	Period  string          `json:"period"`
	Topic   string          `json:"topic,omitempty"`
	Tier    string          `json:"tier,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func (r *enrichRequest) tier() cache.Tier {
	if r.Tier == string(cache.TierPremium) {
		return cache.TierPremium
	}
	return cache.TierDefault
}

func (s *Server) handleSuggestTags(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEnrichRequest(w, r)
	if !ok {
		return
	}

	tags, err := s.enricher.SuggestTags(r.Context(), req.Period, req.tier(), req.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (s *Server) handleMonthlyStory(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEnrichRequest(w, r)
	if !ok {
		return
	}

	story, err := s.enricher.MonthlyStory(r.Context(), req.Period, req.tier(), req.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, story)
}

func (s *Server) handleDeepDive(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEnrichRequest(w, r)
	if !ok {
		return
	}
	if req.Topic == "" {
		s.writeError(w, errors.ValidationError("topic is required for deep dives"))
		return
	}

	dive, err := s.enricher.DeepDive(r.Context(), req.Period, req.Topic, req.tier(), req.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dive)
}

type deriveRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleDeriveLabel(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ValidationError("invalid request body"))
		return
	}

	merchant, cleaned := label.ImproveTransactionDescription(req.Description, s.labelCfg)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"label":       merchant,
		"description": cleaned,
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	scope := mux.Vars(r)["scope"]
	if scope == "" {
		s.writeError(w, errors.ValidationError("scope is required"))
		return
	}

	s.enricher.InvalidatePeriod(r.Context(), scope)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}

	if s.durable != nil {
		if err := s.durable.Health(); err != nil {
			// The pipeline still works memory-only; report degraded, not down.
			status["status"] = "degraded"
			status["store"] = err.Error()
		}
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) decodeEnrichRequest(w http.ResponseWriter, r *http.Request) (*enrichRequest, bool) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ValidationError("invalid request body"))
		return nil, false
	}
	if req.Period == "" {
		s.writeError(w, errors.ValidationError("period is required"))
		return nil, false
	}
	return &req, true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch errors.GetType(err) {
	case errors.ErrTypeValidation:
		code = http.StatusBadRequest
	case errors.ErrTypeRateLimit:
		code = http.StatusTooManyRequests
	case errors.ErrTypeCancelled, errors.ErrTypeQueueCleared:
		code = http.StatusConflict
	}

	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
