// Package handler manages custom classification rules over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/categorization"
	"github.com/FACorreiaa/bwa-insights/pkg/middleware"
)

// RuleService is the part of the categorization service the handler uses.
type RuleService interface {
	Classify(label string) bwa.Classification
	Explain(label string) (categorization.Rule, bool)
	ListRules(ctx context.Context) ([]categorization.CustomRule, error)
	CreateRule(ctx context.Context, keyword string, class bwa.Classification) (*categorization.CustomRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

var _ RuleService = (*categorization.Service)(nil)

// RulesHandler serves /api/classification-rules.
type RulesHandler struct {
	svc    RuleService
	logger *slog.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(svc RuleService, logger *slog.Logger) *RulesHandler {
	return &RulesHandler{svc: svc, logger: logger}
}

// Register adds the handler's routes to mux.
func (h *RulesHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/classification-rules", h.List)
	mux.HandleFunc("POST /api/classification-rules", h.Create)
	mux.HandleFunc("DELETE /api/classification-rules/{id}", h.Delete)
	mux.HandleFunc("GET /api/classify", h.Classify)
}

// List handles GET /api/classification-rules
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		h.logger.Error("failed to list classification rules", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Regeln konnten nicht geladen werden.")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

type createRuleRequest struct {
	Keyword        string `json:"keyword"`
	Classification string `json:"classification"`
}

// Create handles POST /api/classification-rules
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<14)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return
	}
	class, err := bwa.ParseClassification(req.Classification)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Unbekannter Typ.")
		return
	}

	rule, err := h.svc.CreateRule(r.Context(), req.Keyword, class)
	switch {
	case errors.Is(err, categorization.ErrEmptyKeyword):
		middleware.WriteError(w, http.StatusBadRequest, "Das Stichwort darf nicht leer sein.")
		return
	case errors.Is(err, categorization.ErrRuleClassification):
		middleware.WriteError(w, http.StatusBadRequest, "Regeln können nur Einnahmen, Ausgaben oder Summen zuordnen.")
		return
	case errors.Is(err, categorization.ErrRuleShadowed):
		middleware.WriteError(w, http.StatusConflict, "Das Stichwort wird bereits von einer Standardregel erfasst.")
		return
	case errors.Is(err, categorization.ErrRuleExists):
		middleware.WriteError(w, http.StatusConflict, "Für dieses Stichwort existiert bereits eine Regel.")
		return
	case err != nil:
		h.logger.Error("failed to create classification rule", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Die Regel konnte nicht gespeichert werden.")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"rule": rule})
}

// Delete handles DELETE /api/classification-rules/{id}
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Ungültige ID.")
		return
	}

	err = h.svc.DeleteRule(r.Context(), id)
	if errors.Is(err, categorization.ErrRuleNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Regel nicht gefunden.")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete classification rule", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Die Regel konnte nicht gelöscht werden.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Classify handles GET /api/classify?label=, a preview of how a label would
// be classified on the next import.
func (h *RulesHandler) Classify(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	resp := map[string]any{
		"label":          label,
		"classification": h.svc.Classify(label),
	}
	if rule, ok := h.svc.Explain(label); ok {
		resp["keyword"] = rule.Keyword
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}
