package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/cache"
	"github.com/Sternrassler/crm-cache/pkg/client"
	"github.com/Sternrassler/crm-cache/pkg/config"
	"github.com/Sternrassler/crm-cache/pkg/contacts"
	"github.com/Sternrassler/crm-cache/pkg/domain"
	"github.com/Sternrassler/crm-cache/pkg/leads"
	"github.com/Sternrassler/crm-cache/pkg/metrics"
)

const maxBodyBytes = 1 << 20

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /cache/stats", s.handleStats)
	mux.HandleFunc("GET /cache/config", s.handleGetConfig)
	mux.HandleFunc("PUT /cache/config", s.handlePutConfig)
	mux.HandleFunc("POST /cache/reset", s.handleReset)

	mux.HandleFunc("POST /contacts/check", s.handleCheckContact)
	mux.HandleFunc("GET /contacts/duplicates", s.handleDuplicates)

	mux.HandleFunc("GET /leads", s.handleListLeads)
	mux.HandleFunc("POST /leads/{id}/status", s.handleLeadStatus)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			http.Error(w, "preference store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.client.Stats())
}

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeConfig(w, s.prefs.Get())
}

func (s *server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := config.ParsePatch(raw)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error())
		return
	}

	next, err := s.prefs.Set(r.Context(), patch)
	if errors.Is(err, config.ErrInvalidPatch) {
		writeProblem(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		// Applied in memory but not persisted.
		s.logger.Warn().Err(err).Msg("Cache preferences not persisted")
		w.Header().Set("Warning", `199 - "preferences not persisted"`)
	}
	s.writeConfig(w, next)
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.prefs.Reset(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Persisted preferences not removed")
	}
	s.client.Clear()
	s.logger.Info().Msg("Cache reset")
	s.writeConfig(w, s.prefs.Get())
}

func (s *server) writeConfig(w http.ResponseWriter, cfg config.CacheConfig) {
	data, err := config.MarshalPersistedConfig(cfg)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *server) handleCheckContact(w http.ResponseWriter, r *http.Request) {
	var c contacts.Candidate
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&c); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid candidate: "+err.Error())
		return
	}
	res, err := s.contacts.ValidateContactUniqueness(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := s.contacts.FindDuplicateGroups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = [][]contacts.Contact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	var statuses []leads.Status
	for _, st := range r.URL.Query()["status"] {
		statuses = append(statuses, leads.Status(st))
	}
	list, err := s.leads.ListLeads(r.Context(), statuses...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) handleLeadStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status leads.Status `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	l, err := s.leads.ChangeStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// statusFor maps an error to the HTTP status returned to admin clients.
func statusFor(err error) int {
	if kind, ok := domain.KindOf(err); ok {
		switch kind {
		case domain.KindValidation, domain.KindFormat:
			return http.StatusBadRequest
		case domain.KindNotFound:
			return http.StatusNotFound
		case domain.KindConflict:
			return http.StatusConflict
		case domain.KindPolicyViolation, domain.KindInvalidTransition:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	}
	switch {
	case errors.Is(err, cache.ErrCacheUnavailable), errors.Is(err, client.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case client.StatusCode(err) != 0:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var bre *domain.BusinessRuleError
	if errors.As(err, &bre) {
		writeJSON(w, statusFor(err), map[string]any{
			"kind":    bre.Kind,
			"message": bre.Message,
			"details": bre.Details,
		})
		return
	}
	writeProblem(w, statusFor(err), err.Error())
}

func writeProblem(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
