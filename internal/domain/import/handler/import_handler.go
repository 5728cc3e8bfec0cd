// Package handler exposes document imports and period administration over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/parser"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/bwa-insights/internal/domain/import/service"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/sniffer"
	"github.com/FACorreiaa/bwa-insights/pkg/middleware"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
	"github.com/FACorreiaa/bwa-insights/pkg/storage"
)

// multipart overhead allowed on top of the document size limit
const formOverhead = 1 << 20

// ImportService is the part of the import service the handler uses.
type ImportService interface {
	ImportPDF(ctx context.Context, data []byte, fileName string, year int) (*importservice.ImportResult, error)
	ListPeriods(ctx context.Context, year *int) ([]bwa.Period, error)
	DeletePeriod(ctx context.Context, year, month int) error
	ListImports(ctx context.Context, limit int) ([]repository.ImportLogEntry, error)
	StoredFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.FileInfo, error)
	StoredFileInfo(ctx context.Context, id uuid.UUID) (*storage.FileInfo, error)
}

var _ ImportService = (*importservice.ImportService)(nil)

// ImportHandler handles upload and period endpoints
type ImportHandler struct {
	importSvc ImportService
	maxSize   int64
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc ImportService, maxSize int64, logger *slog.Logger) *ImportHandler {
	if maxSize <= 0 {
		maxSize = sniffer.DefaultMaxSize
	}
	return &ImportHandler{
		importSvc: importSvc,
		maxSize:   maxSize,
		logger:    logger,
	}
}

// Register adds the handler's routes to mux.
func (h *ImportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/imports", h.Upload)
	mux.HandleFunc("GET /api/imports", h.ListImports)
	mux.HandleFunc("GET /api/periods", h.ListPeriods)
	mux.HandleFunc("DELETE /api/periods/{year}/{month}", h.DeletePeriod)
	mux.HandleFunc("GET /api/files/{id}", h.DownloadFile)
	mux.HandleFunc("GET /api/files/{id}/info", h.FileInfo)
}

type uploadResponse struct {
	*importservice.ImportResult
	Message string `json:"message"`
}

// partialFailureResponse reports a storage failure together with the months
// committed before it, so the client knows what to retry.
type partialFailureResponse struct {
	Error          string         `json:"error"`
	ImportedMonths []bwa.MonthKey `json:"imported_months"`
	SkippedMonths  []bwa.MonthKey `json:"skipped_months"`
}

// Upload handles POST /api/imports (multipart field "file", optional "year").
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+formOverhead)
	if err := r.ParseMultipartForm(h.maxSize + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Die Datei ist zu groß.")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Ungültiger Upload.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Bitte eine PDF-Datei im Feld \"file\" hochladen.")
		return
	}
	defer file.Close()

	year := 0
	if raw := r.FormValue("year"); raw != "" {
		year, err = strconv.Atoi(raw)
		if err != nil || year < 1900 || year > 2200 {
			middleware.WriteError(w, http.StatusBadRequest, "Ungültiges Jahr.")
			return
		}
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxSize+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Die Datei konnte nicht gelesen werden.")
		return
	}

	result, err := h.importSvc.ImportPDF(r.Context(), data, header.Filename, year)
	if err != nil {
		status, msg := importErrorResponse(err)
		h.logger.Warn("import failed",
			slog.String("file", header.Filename),
			slog.Int("status", status),
			"error", err,
		)
		var storageErr *importservice.StorageError
		if errors.As(err, &storageErr) && result != nil {
			middleware.WriteJSON(w, status, partialFailureResponse{
				Error:          msg,
				ImportedMonths: result.ImportedMonths,
				SkippedMonths:  result.SkippedMonths,
			})
			return
		}
		middleware.WriteError(w, status, msg)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, uploadResponse{ImportResult: result, Message: result.Message()})
}

// importErrorResponse maps an import error to a status and a plain-language
// message. Diagnostic detail stays in the logs.
func importErrorResponse(err error) (int, string) {
	var formatErr *money.FormatError
	var structErr *parser.StructuralError
	var storageErr *importservice.StorageError
	switch {
	case errors.Is(err, sniffer.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "Die Datei ist zu groß."
	case errors.Is(err, sniffer.ErrEmptyFile):
		return http.StatusBadRequest, "Die Datei ist leer."
	case errors.Is(err, sniffer.ErrNotPDF), errors.Is(err, sniffer.ErrBadExtension):
		return http.StatusBadRequest, "Nur PDF-Dateien werden unterstützt."
	case errors.Is(err, parser.ErrNoTextLayer):
		return http.StatusUnprocessableEntity, "Das PDF enthält keinen Text (gescanntes Dokument?)."
	case errors.Is(err, importservice.ErrNoYear):
		return http.StatusUnprocessableEntity, "Das Berichtsjahr konnte nicht ermittelt werden. Bitte das Jahr angeben."
	case errors.As(err, &formatErr):
		return http.StatusUnprocessableEntity, "Der Bericht enthält einen ungültigen Betrag (" + formatErr.Token + "). Es wurde nichts importiert."
	case errors.As(err, &structErr):
		return http.StatusUnprocessableEntity, "Der Aufbau des Berichts wurde nicht erkannt. Es wurde nichts importiert."
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "Die Daten konnten nicht gespeichert werden. Bitte später erneut versuchen."
	default:
		return http.StatusInternalServerError, "Der Import ist fehlgeschlagen."
	}
}

// ListImports handles GET /api/imports?limit=
func (h *ImportHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	limit, err := middleware.OptionalInt(r, "limit")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Ungültiges Limit.")
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	entries, err := h.importSvc.ListImports(r.Context(), n)
	if err != nil {
		h.logger.Error("failed to list imports", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Importe konnten nicht geladen werden.")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"imports": entries,
		"count":   len(entries),
	})
}

// ListPeriods handles GET /api/periods?year=
func (h *ImportHandler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	year, err := middleware.OptionalInt(r, "year")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Ungültiges Jahr.")
		return
	}

	periods, err := h.importSvc.ListPeriods(r.Context(), year)
	if err != nil {
		h.logger.Error("failed to list periods", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Zeiträume konnten nicht geladen werden.")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"periods": periods,
		"count":   len(periods),
	})
}

// DeletePeriod handles DELETE /api/periods/{year}/{month}
func (h *ImportHandler) DeletePeriod(w http.ResponseWriter, r *http.Request) {
	year, errY := strconv.Atoi(r.PathValue("year"))
	month, errM := strconv.Atoi(r.PathValue("month"))
	if errY != nil || errM != nil || !bwa.ValidMonth(month) {
		middleware.WriteError(w, http.StatusBadRequest, "Ungültiger Zeitraum.")
		return
	}

	err := h.importSvc.DeletePeriod(r.Context(), year, month)
	if errors.Is(err, repository.ErrPeriodNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Zeitraum nicht gefunden.")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete period", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Zeitraum konnte nicht gelöscht werden.")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DownloadFile handles GET /api/files/{id}, streaming an archived original.
func (h *ImportHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Ungültige Datei-ID.")
		return
	}

	rc, info, err := h.importSvc.StoredFile(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Datei nicht gefunden.")
		return
	}
	if err != nil {
		h.logger.Error("failed to open archived document", slog.String("file_id", id.String()), "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Die Datei konnte nicht geladen werden.")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("archived document download interrupted", slog.String("file_id", id.String()), "error", err)
	}
}

// FileInfo handles GET /api/files/{id}/info
func (h *ImportHandler) FileInfo(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Ungültige Datei-ID.")
		return
	}

	info, err := h.importSvc.StoredFileInfo(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Datei nicht gefunden.")
		return
	}
	if err != nil {
		h.logger.Error("failed to read archived document info", slog.String("file_id", id.String()), "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Die Datei konnte nicht geladen werden.")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, info)
}
