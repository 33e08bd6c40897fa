package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/budgetwise/internal/rules"
)

// handleListRules returns the caller's rules in evaluation order
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.services.Rules.ListRules(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeRuleError(w, "listing rules", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var input rules.RuleInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	rule, err := s.services.Rules.CreateRule(r.Context(), userIDFrom(r.Context()), input)
	if err != nil {
		writeRuleError(w, "creating rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.services.Rules.GetRule(r.Context(), userIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeRuleError(w, "getting rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpdateRule applies a partial update; omitted fields keep their values
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var input rules.RuleInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	rule, err := s.services.Rules.UpdateRule(r.Context(), userIDFrom(r.Context()), r.PathValue("id"), input)
	if err != nil {
		writeRuleError(w, "updating rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Rules.DeleteRule(r.Context(), userIDFrom(r.Context()), r.PathValue("id")); err != nil {
		writeRuleError(w, "deleting rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRuleError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, rules.ErrInvalidRule), errors.Is(err, rules.ErrTooManyRules):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rules.ErrNotFound):
		writeError(w, http.StatusNotFound, "Rule not found")
	default:
		slog.Error("Error "+action, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
