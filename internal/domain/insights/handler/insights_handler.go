// Package handler serves the read-only trend and category endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/categorization"
	"github.com/FACorreiaa/bwa-insights/internal/domain/insights"
	"github.com/FACorreiaa/bwa-insights/pkg/middleware"
)

// InsightsService is the read side used by the handler.
type InsightsService interface {
	QueryTrends(ctx context.Context, filter insights.TrendFilter) (*insights.TrendResult, error)
	MonthlyTotals(ctx context.Context, year *int) ([]insights.MonthlyTotal, error)
	CategoryChanges(ctx context.Context, year, month int, minPercent float64) (*insights.MonthComparison, error)
	ListCategories(ctx context.Context, year *int) ([]insights.CategorySummary, error)
	SearchCategories(ctx context.Context, query string, year *int, limit int) ([]categorization.CategoryMatch, error)
	ListYears(ctx context.Context) ([]int, error)
}

var _ InsightsService = (*insights.Service)(nil)

// InsightsHandler serves trend queries.
type InsightsHandler struct {
	svc    InsightsService
	logger *slog.Logger
}

// NewInsightsHandler constructs a new handler.
func NewInsightsHandler(svc InsightsService, logger *slog.Logger) *InsightsHandler {
	return &InsightsHandler{svc: svc, logger: logger}
}

// Register adds the handler's routes to mux.
func (h *InsightsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/trends", h.Trends)
	mux.HandleFunc("GET /api/trends/monthly", h.MonthlyTotals)
	mux.HandleFunc("GET /api/trends/changes", h.Changes)
	mux.HandleFunc("GET /api/categories", h.Categories)
	mux.HandleFunc("GET /api/years", h.Years)
}

// Trends handles GET /api/trends?year=2024&category=Personalkosten&category=...
func (h *InsightsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	result, err := h.svc.QueryTrends(r.Context(), insights.TrendFilter{
		Year:       year,
		Categories: r.URL.Query()["category"],
	})
	if err != nil {
		h.internalError(w, "failed to query trends", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// MonthlyTotals handles GET /api/trends/monthly?year=
func (h *InsightsHandler) MonthlyTotals(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	totals, err := h.svc.MonthlyTotals(r.Context(), year)
	if err != nil {
		h.internalError(w, "failed to compute monthly totals", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"months": totals})
}

// Changes handles GET /api/trends/changes?year=&month=&min_percent=
func (h *InsightsHandler) Changes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, errY := strconv.Atoi(q.Get("year"))
	month, errM := strconv.Atoi(q.Get("month"))
	if errY != nil || errM != nil || !bwa.ValidMonth(month) {
		middleware.WriteError(w, http.StatusBadRequest, "Jahr und Monat sind erforderlich.")
		return
	}

	minPercent := 0.0
	if raw := q.Get("min_percent"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Ungültiger Schwellenwert.")
			return
		}
		minPercent = v
	}

	cmp, err := h.svc.CategoryChanges(r.Context(), year, month, minPercent)
	if err != nil {
		h.internalError(w, "failed to compare months", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, cmp)
}

// Categories handles GET /api/categories?year=&q=&limit=
// With q set, categories are ranked by similarity instead of listed.
func (h *InsightsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}

	if query := r.URL.Query().Get("q"); query != "" {
		limit, err := middleware.OptionalInt(r, "limit")
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Ungültiges Limit.")
			return
		}
		n := 0
		if limit != nil {
			n = *limit
		}
		matches, err := h.svc.SearchCategories(r.Context(), query, year, n)
		if err != nil {
			h.internalError(w, "failed to search categories", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"matches": matches})
		return
	}

	categories, err := h.svc.ListCategories(r.Context(), year)
	if err != nil {
		h.internalError(w, "failed to list categories", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// Years handles GET /api/years
func (h *InsightsHandler) Years(w http.ResponseWriter, r *http.Request) {
	years, err := h.svc.ListYears(r.Context())
	if err != nil {
		h.internalError(w, "failed to list years", err)
		return
	}
	if years == nil {
		years = []int{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"years": years})
}

func (h *InsightsHandler) yearParam(w http.ResponseWriter, r *http.Request) (*int, bool) {
	year, err := middleware.OptionalInt(r, "year")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Ungültiges Jahr.")
		return nil, false
	}
	return year, true
}

func (h *InsightsHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	middleware.WriteError(w, http.StatusInternalServerError, "Die Auswertung ist fehlgeschlagen.")
}
