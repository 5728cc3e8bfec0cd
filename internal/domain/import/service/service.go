// Package service coordinates parsing and per-month persistence of BWA reports.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/parser"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/repository"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/sniffer"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
	"github.com/FACorreiaa/bwa-insights/pkg/storage"
)

var tracer = otel.Tracer("github.com/FACorreiaa/bwa-insights/internal/domain/import/service")

// ErrNoYear is returned when neither the caller nor the document text names
// a reporting year.
var ErrNoYear = errors.New("reporting year could not be determined")

// StorageError wraps a persistence failure that is not a duplicate period.
// Months listed in the accompanying result were committed before it occurred.
type StorageError struct {
	Month bwa.MonthKey
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to store period %s: %v", e.Month, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ImportResult reports the per-month outcome of one import.
type ImportResult struct {
	ImportedMonths   []bwa.MonthKey             `json:"imported_months"`
	SkippedMonths    []bwa.MonthKey             `json:"skipped_months"`
	LineItemsCreated int                        `json:"line_items_created"`
	Warnings         []parser.ValidationWarning `json:"warnings"`
	StoredFileID     string                     `json:"stored_file_id,omitempty"`
}

// Status condenses the result for the import log.
func (r *ImportResult) Status() repository.ImportStatus {
	switch {
	case len(r.ImportedMonths) == 0:
		return repository.ImportStatusSkipped
	case len(r.SkippedMonths) > 0:
		return repository.ImportStatusPartial
	default:
		return repository.ImportStatusImported
	}
}

// Message summarizes the outcome for end users. Skipped months are
// informational, not failures.
func (r *ImportResult) Message() string {
	var parts []string
	if n := len(r.ImportedMonths); n > 0 {
		parts = append(parts, fmt.Sprintf("%d Monat(e) importiert (%s).", n, joinMonths(r.ImportedMonths)))
	}
	if n := len(r.SkippedMonths); n > 0 {
		parts = append(parts, fmt.Sprintf("%d Monat(e) bereits vorhanden und übersprungen (%s).", n, joinMonths(r.SkippedMonths)))
	}
	if n := len(r.Warnings); n > 0 {
		parts = append(parts, fmt.Sprintf("%d Plausibilitätswarnung(en) zu den Gesamtkosten.", n))
	}
	if len(parts) == 0 {
		return "Keine Monate gefunden."
	}
	return strings.Join(parts, " ")
}

func joinMonths(keys []bwa.MonthKey) string {
	labels := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = k.String()
	}
	return strings.Join(labels, ", ")
}

// TextExtractor turns document bytes into report text.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// ImportService orchestrates document inspection, parsing, and persistence.
type ImportService struct {
	repo      repository.PeriodRepository
	parser    *parser.Parser
	extractor TextExtractor
	storage   storage.Storage
	maxSize   int64
	logger    *slog.Logger
}

// NewImportService creates a new import service
func NewImportService(repo repository.PeriodRepository, p *parser.Parser, logger *slog.Logger) *ImportService {
	if p == nil {
		p = parser.NewParser(parser.DefaultConfig())
	}
	return &ImportService{
		repo:      repo,
		parser:    p,
		extractor: parser.NewPDFExtractor(parser.DefaultMaxPages),
		maxSize:   sniffer.DefaultMaxSize,
		logger:    logger,
	}
}

// WithExtractor replaces the PDF text extractor.
func (s *ImportService) WithExtractor(e TextExtractor) *ImportService {
	s.extractor = e
	return s
}

// WithStorage archives uploaded originals in st.
func (s *ImportService) WithStorage(st storage.Storage) *ImportService {
	s.storage = st
	return s
}

// WithMaxUploadSize sets the largest accepted document in bytes.
func (s *ImportService) WithMaxUploadSize(n int64) *ImportService {
	if n > 0 {
		s.maxSize = n
	}
	return s
}

// ============================================================================
// Import
// ============================================================================

// Import parses rawText and persists every reporting month it contains.
// Each month is created independently: months already present are reported
// as skipped and never modified. A parse error rejects the whole document
// before anything is written. A *StorageError is returned together with the
// months committed so far.
func (s *ImportService) Import(ctx context.Context, rawText string, year int, sourceFile string) (*ImportResult, error) {
	result, err := s.importText(ctx, rawText, year, sourceFile)
	s.countRejection(year, err)
	return result, err
}

// importText parses and persists without recording a rejection, so callers
// that retry with another year only count the final outcome.
func (s *ImportService) importText(ctx context.Context, rawText string, year int, sourceFile string) (*ImportResult, error) {
	ctx, span := tracer.Start(ctx, "import.Import")
	defer span.End()
	span.SetAttributes(attribute.Int("bwa.year", year), attribute.String("bwa.source_file", sourceFile))

	start := time.Now()
	defer func() { importDuration.Observe(time.Since(start).Seconds()) }()

	parsed, err := s.parse(ctx, rawText, year)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, err
	}

	result, err := s.persist(ctx, parsed, sourceFile)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return result, err
	}

	span.SetAttributes(
		attribute.Int("bwa.months_imported", len(result.ImportedMonths)),
		attribute.Int("bwa.months_skipped", len(result.SkippedMonths)),
	)
	return result, nil
}

// countRejection records a document rejected before persistence. Storage
// failures are not rejections.
func (s *ImportService) countRejection(year int, err error) {
	var storageErr *StorageError
	if err == nil || errors.As(err, &storageErr) {
		return
	}
	documentsRejected.WithLabelValues(rejectReason(err)).Inc()
	s.logger.Warn("document rejected", "year", year, "error", err)
}

func (s *ImportService) parse(ctx context.Context, rawText string, year int) (*parser.ParseResult, error) {
	_, span := tracer.Start(ctx, "import.parse")
	defer span.End()

	parsed, err := s.parser.Parse(rawText, year)
	if err != nil {
		return nil, err
	}

	for _, w := range parsed.Warnings {
		crossCheckWarnings.Inc()
		s.logger.Warn("total costs cross-check mismatch",
			slog.Int("month", w.Month),
			slog.String("label", w.Label),
			slog.String("computed", w.Computed.StringFixed(2)),
			slog.String("reported", w.Reported.StringFixed(2)),
			slog.String("difference", w.Difference().StringFixed(2)),
		)
	}

	span.SetAttributes(attribute.Int("bwa.records", len(parsed.Records)))
	return parsed, nil
}

func (s *ImportService) persist(ctx context.Context, parsed *parser.ParseResult, sourceFile string) (*ImportResult, error) {
	result := &ImportResult{
		ImportedMonths: []bwa.MonthKey{},
		SkippedMonths:  []bwa.MonthKey{},
		Warnings:       parsed.Warnings,
	}

	var source *string
	if sourceFile != "" {
		source = &sourceFile
	}

	byMonth := parsed.ByMonth()
	for _, key := range parsed.Months() {
		created, skipped, err := s.persistMonth(ctx, key, byMonth[key], source)
		if err != nil {
			s.logger.Error("failed to store period",
				slog.String("period", key.String()),
				"error", err,
			)
			return result, &StorageError{Month: key, Err: err}
		}
		if skipped {
			monthsSkipped.Inc()
			s.logger.Info("period already imported, skipping", slog.String("period", key.String()))
			result.SkippedMonths = append(result.SkippedMonths, key)
			continue
		}
		monthsImported.Inc()
		result.ImportedMonths = append(result.ImportedMonths, key)
		result.LineItemsCreated += created
	}

	s.logger.Info("import finished",
		slog.String("source_file", sourceFile),
		slog.Int("imported", len(result.ImportedMonths)),
		slog.Int("skipped", len(result.SkippedMonths)),
		slog.Int("line_items", result.LineItemsCreated),
	)
	return result, nil
}

// persistMonth creates one period with its items. A period that already
// exists, or that a concurrent import created between the check and the
// insert, is reported as skipped.
func (s *ImportService) persistMonth(ctx context.Context, key bwa.MonthKey, records []bwa.ParsedRecord, source *string) (int, bool, error) {
	ctx, span := tracer.Start(ctx, "import.persistMonth",
		trace.WithAttributes(attribute.String("bwa.period", key.String())),
	)
	defer span.End()

	exists, err := s.repo.PeriodExists(ctx, key.Year, key.Month)
	if err != nil {
		return 0, false, err
	}
	if exists {
		return 0, true, nil
	}

	period := &bwa.Period{Year: key.Year, Month: key.Month, SourceFile: source}
	items := toLineItems(records)

	err = s.repo.CreatePeriodWithItems(ctx, period, items)
	if errors.Is(err, repository.ErrDuplicatePeriod) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return len(items), false, nil
}

func toLineItems(records []bwa.ParsedRecord) []bwa.LineItem {
	items := make([]bwa.LineItem, 0, len(records))
	for _, rec := range records {
		item := bwa.LineItem{
			Category:       rec.Category,
			Year:           rec.Year,
			Month:          rec.Month,
			Amount:         rec.Amount,
			Classification: rec.Classification,
		}
		if rec.Group != "" {
			group := rec.Group
			item.Group = &group
		}
		items = append(items, item)
	}
	return items
}

func rejectReason(err error) string {
	var formatErr *money.FormatError
	var structErr *parser.StructuralError
	switch {
	case errors.As(err, &formatErr):
		return "format"
	case errors.As(err, &structErr):
		return "structure"
	case errors.Is(err, ErrNoYear):
		return "year"
	case errors.Is(err, parser.ErrNoTextLayer):
		return "no_text"
	case errors.Is(err, sniffer.ErrNotPDF), errors.Is(err, sniffer.ErrEmptyFile),
		errors.Is(err, sniffer.ErrFileTooLarge), errors.Is(err, sniffer.ErrBadExtension):
		return "upload"
	default:
		return "other"
	}
}

// ============================================================================
// PDF uploads
// ============================================================================

// ImportPDF inspects an uploaded document, archives it, extracts its text
// layer, and imports it. year may be zero, in which case it is taken from
// the report header or, failing that, the most frequent year in the text.
// Every attempt is written to the import log.
func (s *ImportService) ImportPDF(ctx context.Context, data []byte, fileName string, year int) (*ImportResult, error) {
	ctx, span := tracer.Start(ctx, "import.ImportPDF")
	defer span.End()

	entry := &repository.ImportLogEntry{}
	if fileName != "" {
		entry.SourceFile = &fileName
	}

	result, err := s.importPDF(ctx, data, fileName, year, entry)
	s.recordImport(ctx, entry, result, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *ImportService) importPDF(ctx context.Context, data []byte, fileName string, year int, entry *repository.ImportLogEntry) (*ImportResult, error) {
	doc, err := sniffer.DetectDocument(data, fileName, s.maxSize)
	if err != nil {
		s.countRejection(year, err)
		return nil, err
	}
	entry.Fingerprint = &doc.Fingerprint

	storedID, ok := s.archive(ctx, data, fileName, entry)

	result, err := s.importDocument(ctx, data, fileName, year)
	if result == nil || len(result.ImportedMonths) == 0 {
		// Only originals that contributed at least one month are kept.
		if ok {
			s.discardArchive(ctx, storedID, entry)
		}
		storedID = uuid.Nil
	}
	if result != nil && storedID != uuid.Nil {
		result.StoredFileID = storedID.String()
	}
	return result, err
}

// importDocument extracts the text layer and imports it. Without a caller
// year, a document whose header prints none is retried once with the year
// suggested by the text; only the final outcome counts as a rejection.
func (s *ImportService) importDocument(ctx context.Context, data []byte, fileName string, year int) (*ImportResult, error) {
	text, err := s.extractor.ExtractText(data)
	if err != nil {
		err = fmt.Errorf("failed to extract text: %w", err)
		s.countRejection(year, err)
		return nil, err
	}

	result, err := s.importText(ctx, text, year, fileName)
	var structErr *parser.StructuralError
	if year == 0 && errors.As(err, &structErr) && structErr.Reason == parser.ReasonNoYear {
		suggested, found := sniffer.SuggestYear(text, time.Now().Year()+1)
		if !found {
			s.countRejection(year, ErrNoYear)
			return nil, ErrNoYear
		}
		s.logger.Info("using reporting year found in document text", slog.Int("year", suggested))
		year = suggested
		result, err = s.importText(ctx, text, year, fileName)
	}
	s.countRejection(year, err)
	return result, err
}

// archive stores the original document. Failures are logged and do not
// block the import.
func (s *ImportService) archive(ctx context.Context, data []byte, fileName string, entry *repository.ImportLogEntry) (uuid.UUID, bool) {
	if s.storage == nil {
		return uuid.Nil, false
	}
	info, err := s.storage.Upload(ctx, fileName, "application/pdf", bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("failed to archive uploaded document", "file", fileName, "error", err)
		return uuid.Nil, false
	}
	entry.StoragePath = &info.Path
	return info.ID, true
}

func (s *ImportService) discardArchive(ctx context.Context, id uuid.UUID, entry *repository.ImportLogEntry) {
	if err := s.storage.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to remove archived document", slog.String("file_id", id.String()), "error", err)
		return
	}
	entry.StoragePath = nil
}

// StoredFile opens an archived original by the ID returned as
// stored_file_id. It returns storage.ErrNotFound when archiving is disabled
// or the file is unknown.
func (s *ImportService) StoredFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.FileInfo, error) {
	if s.storage == nil {
		return nil, nil, storage.ErrNotFound
	}
	return s.storage.Download(ctx, id)
}

// StoredFileInfo returns the metadata of an archived original.
func (s *ImportService) StoredFileInfo(ctx context.Context, id uuid.UUID) (*storage.FileInfo, error) {
	if s.storage == nil {
		return nil, storage.ErrNotFound
	}
	return s.storage.GetInfo(ctx, id)
}

func (s *ImportService) recordImport(ctx context.Context, entry *repository.ImportLogEntry, result *ImportResult, importErr error) {
	if result != nil {
		entry.ImportedMonths = len(result.ImportedMonths)
		entry.SkippedMonths = len(result.SkippedMonths)
		entry.ItemsCreated = result.LineItemsCreated
		entry.Warnings = len(result.Warnings)
		entry.Status = result.Status()
	}

	var storageErr *StorageError
	switch {
	case importErr == nil:
	case errors.As(importErr, &storageErr):
		entry.Status = repository.ImportStatusFailed
	default:
		entry.Status = repository.ImportStatusRejected
	}
	if importErr != nil {
		msg := importErr.Error()
		entry.ErrorMessage = &msg
	}

	// The log is an audit trail; losing one entry must not fail the import.
	if err := s.repo.RecordImport(ctx, entry); err != nil {
		s.logger.Error("failed to record import", "error", err)
	}
}

// ============================================================================
// Periods
// ============================================================================

// ListPeriods returns imported periods, optionally for one year.
func (s *ImportService) ListPeriods(ctx context.Context, year *int) ([]bwa.Period, error) {
	return s.repo.ListPeriods(ctx, year)
}

// DeletePeriod removes one period and its line items so it can be re-imported.
func (s *ImportService) DeletePeriod(ctx context.Context, year, month int) error {
	if !bwa.ValidMonth(month) {
		return fmt.Errorf("invalid month %d", month)
	}
	if err := s.repo.DeletePeriod(ctx, year, month); err != nil {
		return err
	}
	s.logger.Info("period deleted", slog.Int("year", year), slog.Int("month", month))
	return nil
}

// ListImports returns the most recent import attempts.
func (s *ImportService) ListImports(ctx context.Context, limit int) ([]repository.ImportLogEntry, error) {
	return s.repo.ListImports(ctx, limit)
}
