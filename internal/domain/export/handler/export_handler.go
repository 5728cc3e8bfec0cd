// Package handler serves CSV and XLSX downloads of imported line items.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/export"
	"github.com/FACorreiaa/bwa-insights/pkg/middleware"
)

// ExportService is the query side used by the handler.
type ExportService interface {
	QueryForExport(ctx context.Context, filter export.ExportFilter) ([]bwa.LineItem, error)
	CountForExport(ctx context.Context, filter export.ExportFilter) (int, error)
}

var _ ExportService = (*export.Service)(nil)

// ExportHandler handles export downloads.
type ExportHandler struct {
	svc    ExportService
	logger *slog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(svc ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{svc: svc, logger: logger}
}

// Register adds the handler's routes to mux.
func (h *ExportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/export", h.Download)
	mux.HandleFunc("GET /api/export/count", h.Count)
}

// Download handles GET /api/export?start=2024-01&end=2024-03&type=revenue&format=german
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	filter, problem := parseFilter(r)
	if problem != "" {
		middleware.WriteError(w, http.StatusBadRequest, problem)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Unbekanntes Exportformat.")
		return
	}

	items, err := h.svc.QueryForExport(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	name := export.FileName(filter, items, format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	if err := export.Write(w, format, items); err != nil {
		// headers are already sent
		h.logger.Error("failed to write export", slog.String("file", name), "error", err)
		return
	}
	h.logger.Info("export downloaded",
		slog.String("format", string(format)),
		slog.Int("rows", len(items)),
	)
}

// Count handles GET /api/export/count with the same filter parameters.
func (h *ExportHandler) Count(w http.ResponseWriter, r *http.Request) {
	filter, problem := parseFilter(r)
	if problem != "" {
		middleware.WriteError(w, http.StatusBadRequest, problem)
		return
	}

	n, err := h.svc.CountForExport(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *ExportHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, export.ErrInvalidRange):
		middleware.WriteError(w, http.StatusBadRequest, "Das Startdatum liegt nach dem Enddatum.")
	case errors.Is(err, export.ErrInvalidType):
		middleware.WriteError(w, http.StatusBadRequest, "Unbekannter Typ.")
	default:
		h.logger.Error("export query failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Der Export ist fehlgeschlagen.")
	}
}

// parseFilter reads start, end (YYYY-MM or YYYY-MM-DD) and repeated type
// parameters. A non-empty problem is the message for the client.
func parseFilter(r *http.Request) (filter export.ExportFilter, problem string) {
	q := r.URL.Query()

	start, err := parseDate(q.Get("start"))
	if err != nil {
		return filter, "Ungültiges Startdatum."
	}
	end, err := parseDate(q.Get("end"))
	if err != nil {
		return filter, "Ungültiges Enddatum."
	}
	filter.StartDate, filter.EndDate = start, end

	for _, raw := range q["type"] {
		c, err := bwa.ParseClassification(raw)
		if err != nil {
			return filter, "Unbekannter Typ: " + raw
		}
		filter.Types = append(filter.Types, c)
	}
	return filter, ""
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", s)
}
