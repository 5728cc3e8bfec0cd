package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/parser"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/repository"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/sniffer"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
	"github.com/FACorreiaa/bwa-insights/pkg/storage"
)

const quarterReport = "Musterfirma GmbH BWA Jahresübersicht 2024 Bezeichnung Jan Feb Mär Gesamt " +
	"Umsatzerlöse 10.000,00 12.000,00 15.750,45 37.750,45 " +
	"Wareneinkauf Aufwand 2.000,00 2.500,00 3.000,00 7.500,00 " +
	"Rohertrag 8.000,00 9.500,00 12.750,45 30.250,45 " +
	"Personalkosten 5.000,00 5.000,00 8.250,00 18.250,00 " +
	"Raumkosten 1.000,00 1.000,00 1.000,00 3.000,00 " +
	"Gesamtkosten 8.000,00 8.500,00 12.250,00 28.750,00 " +
	"Betriebsergebnis 2.000,00 3.500,00 3.500,45 9.000,45 " +
	"Steuern Einkommen u. Ertrag 500,00 700,00 700,00 1.900,00"

// fakeRepo is an in-memory PeriodRepository with a unique (year, month) key.
type fakeRepo struct {
	mu      sync.Mutex
	periods map[bwa.MonthKey]*bwa.Period
	items   map[bwa.MonthKey][]bwa.LineItem
	imports []repository.ImportLogEntry

	// raceOn makes CreatePeriodWithItems behave as if a concurrent request
	// committed the month after the existence check.
	raceOn map[bwa.MonthKey]bool
	failOn map[bwa.MonthKey]error

	existsCalls int
	createCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		periods: make(map[bwa.MonthKey]*bwa.Period),
		items:   make(map[bwa.MonthKey][]bwa.LineItem),
		raceOn:  make(map[bwa.MonthKey]bool),
		failOn:  make(map[bwa.MonthKey]error),
	}
}

func (r *fakeRepo) PeriodExists(_ context.Context, year, month int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.existsCalls++
	_, ok := r.periods[bwa.MonthKey{Year: year, Month: month}]
	return ok, nil
}

func (r *fakeRepo) CreatePeriodWithItems(_ context.Context, period *bwa.Period, items []bwa.LineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	key := bwa.MonthKey{Year: period.Year, Month: period.Month}
	if err := r.failOn[key]; err != nil {
		return err
	}
	if r.raceOn[key] {
		r.periods[key] = &bwa.Period{ID: uuid.New(), Year: key.Year, Month: key.Month}
		return repository.ErrDuplicatePeriod
	}
	if _, ok := r.periods[key]; ok {
		return repository.ErrDuplicatePeriod
	}
	period.ID = uuid.New()
	period.ItemCount = len(items)
	r.periods[key] = period
	stored := make([]bwa.LineItem, len(items))
	copy(stored, items)
	r.items[key] = stored
	return nil
}

func (r *fakeRepo) ListPeriods(_ context.Context, year *int) ([]bwa.Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []bwa.Period{}
	for k, p := range r.periods {
		if year == nil || *year == k.Year {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bwa.MonthKey{Year: out[i].Year, Month: out[i].Month}.Before(bwa.MonthKey{Year: out[j].Year, Month: out[j].Month})
	})
	return out, nil
}

func (r *fakeRepo) GetPeriod(_ context.Context, year, month int) (*bwa.Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.periods[bwa.MonthKey{Year: year, Month: month}]
	if !ok {
		return nil, repository.ErrPeriodNotFound
	}
	return p, nil
}

func (r *fakeRepo) DeletePeriod(_ context.Context, year, month int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := bwa.MonthKey{Year: year, Month: month}
	if _, ok := r.periods[key]; !ok {
		return repository.ErrPeriodNotFound
	}
	delete(r.periods, key)
	delete(r.items, key)
	return nil
}

func (r *fakeRepo) RecordImport(_ context.Context, entry *repository.ImportLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imports = append(r.imports, *entry)
	return nil
}

func (r *fakeRepo) ListImports(_ context.Context, limit int) ([]repository.ImportLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.imports, nil
}

func (r *fakeRepo) itemCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, items := range r.items {
		n += len(items)
	}
	return n
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) ExtractText([]byte) (string, error) { return f.text, f.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *fakeRepo) *ImportService {
	return NewImportService(repo, parser.NewParser(parser.DefaultConfig()), testLogger())
}

func months(keys ...int) []bwa.MonthKey {
	out := make([]bwa.MonthKey, 0, len(keys))
	for _, m := range keys {
		out = append(out, bwa.MonthKey{Year: 2024, Month: m})
	}
	return out
}

func TestImport_CreatesOnePeriodPerMonth(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	res, err := svc.Import(context.Background(), quarterReport, 2024, "bwa_2024.pdf")
	require.NoError(t, err)

	assert.Equal(t, months(1, 2, 3), res.ImportedMonths)
	assert.Empty(t, res.SkippedMonths)
	assert.Equal(t, 24, res.LineItemsCreated)
	assert.Equal(t, repository.ImportStatusImported, res.Status())

	march := repo.periods[bwa.MonthKey{Year: 2024, Month: 3}]
	require.NotNil(t, march)
	require.NotNil(t, march.SourceFile)
	assert.Equal(t, "bwa_2024.pdf", *march.SourceFile)

	var personal, totals *bwa.LineItem
	for i, it := range repo.items[bwa.MonthKey{Year: 2024, Month: 3}] {
		switch it.Category {
		case "Personalkosten":
			personal = &repo.items[bwa.MonthKey{Year: 2024, Month: 3}][i]
		case "Gesamtkosten":
			totals = &repo.items[bwa.MonthKey{Year: 2024, Month: 3}][i]
		}
	}
	require.NotNil(t, personal)
	assert.Equal(t, bwa.Expense, personal.Classification)
	assert.True(t, decimal.RequireFromString("8250").Equal(personal.Amount))
	require.NotNil(t, personal.Group)
	assert.Equal(t, "Gesamtkosten", *personal.Group)

	require.NotNil(t, totals)
	assert.Equal(t, bwa.Summary, totals.Classification)
}

func TestImport_SecondImportSkipsEveryMonth(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Import(ctx, quarterReport, 2024, "bwa.pdf")
	require.NoError(t, err)
	before := make(map[bwa.MonthKey][]bwa.LineItem)
	for k, v := range repo.items {
		before[k] = append([]bwa.LineItem(nil), v...)
	}

	res, err := svc.Import(ctx, quarterReport, 2024, "bwa-copy.pdf")
	require.NoError(t, err)

	assert.Empty(t, res.ImportedMonths)
	assert.Equal(t, months(1, 2, 3), res.SkippedMonths)
	assert.Zero(t, res.LineItemsCreated)
	assert.Equal(t, repository.ImportStatusSkipped, res.Status())
	assert.Equal(t, before, repo.items)
	assert.Equal(t, "bwa.pdf", *repo.periods[bwa.MonthKey{Year: 2024, Month: 1}].SourceFile)
}

func TestImport_ExistingMonthIsSkippedIndependently(t *testing.T) {
	repo := newFakeRepo()
	existing := &bwa.Period{ID: uuid.New(), Year: 2024, Month: 2}
	repo.periods[bwa.MonthKey{Year: 2024, Month: 2}] = existing
	repo.items[bwa.MonthKey{Year: 2024, Month: 2}] = []bwa.LineItem{
		{Category: "Umsatzerlöse", Amount: decimal.RequireFromString("1"), Classification: bwa.Revenue},
	}

	res, err := newTestService(repo).Import(context.Background(), quarterReport, 2024, "")
	require.NoError(t, err)

	assert.Equal(t, months(1, 3), res.ImportedMonths)
	assert.Equal(t, months(2), res.SkippedMonths)
	assert.Equal(t, 16, res.LineItemsCreated)
	assert.Equal(t, repository.ImportStatusPartial, res.Status())

	assert.Same(t, existing, repo.periods[bwa.MonthKey{Year: 2024, Month: 2}])
	assert.Len(t, repo.items[bwa.MonthKey{Year: 2024, Month: 2}], 1)
	assert.Nil(t, repo.periods[bwa.MonthKey{Year: 2024, Month: 1}].SourceFile)
}

func TestImport_ConcurrentInsertCountsAsSkipped(t *testing.T) {
	repo := newFakeRepo()
	repo.raceOn[bwa.MonthKey{Year: 2024, Month: 1}] = true

	res, err := newTestService(repo).Import(context.Background(), quarterReport, 2024, "bwa.pdf")
	require.NoError(t, err)

	assert.Equal(t, months(2, 3), res.ImportedMonths)
	assert.Equal(t, months(1), res.SkippedMonths)
}

func TestImport_ConcurrentRequestsImportEachMonthOnce(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	const workers = 8
	results := make([]*ImportResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Import(context.Background(), quarterReport, 2024, "bwa.pdf")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	imported := 0
	for _, res := range results {
		require.NotNil(t, res)
		imported += len(res.ImportedMonths)
		assert.Equal(t, 3, len(res.ImportedMonths)+len(res.SkippedMonths))
	}
	assert.Equal(t, 3, imported)
	assert.Equal(t, 24, repo.itemCount())
}

func TestImport_StorageErrorStopsAndReportsProgress(t *testing.T) {
	repo := newFakeRepo()
	dbErr := errors.New("connection refused")
	repo.failOn[bwa.MonthKey{Year: 2024, Month: 2}] = dbErr

	res, err := newTestService(repo).Import(context.Background(), quarterReport, 2024, "bwa.pdf")

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, bwa.MonthKey{Year: 2024, Month: 2}, storageErr.Month)
	assert.ErrorIs(t, err, dbErr)

	require.NotNil(t, res)
	assert.Equal(t, months(1), res.ImportedMonths)
	assert.NotContains(t, repo.periods, bwa.MonthKey{Year: 2024, Month: 3})
}

func TestImport_ParseErrorsPersistNothing(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		check func(t *testing.T, err error)
	}{
		{
			name: "malformed amount",
			text: "BWA 2024 Jan Feb Umsatzerlöse 1.000,00 1,2,3 Personalkosten 500,00 500,00",
			check: func(t *testing.T, err error) {
				var formatErr *money.FormatError
				assert.ErrorAs(t, err, &formatErr)
			},
		},
		{
			name: "no month header",
			text: "Umsatzerlöse 1.000,00 Personalkosten 500,00",
			check: func(t *testing.T, err error) {
				var structErr *parser.StructuralError
				assert.ErrorAs(t, err, &structErr)
			},
		},
		{
			name: "short row",
			text: "Jan Feb Umsatzerlöse 1.000,00\nPersonalkosten 500,00 500,00",
			check: func(t *testing.T, err error) {
				var structErr *parser.StructuralError
				assert.ErrorAs(t, err, &structErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			res, err := newTestService(repo).Import(context.Background(), tt.text, 2024, "bad.pdf")
			require.Error(t, err)
			assert.Nil(t, res)
			tt.check(t, err)
			assert.Zero(t, repo.existsCalls)
			assert.Zero(t, repo.createCalls)
		})
	}
}

func TestImport_CrossCheckWarningDoesNotBlock(t *testing.T) {
	text := "Jan Umsatzerlöse 1.000,00 Personalkosten 400,00 Raumkosten 100,00 Gesamtkosten 600,00"

	res, err := newTestService(newFakeRepo()).Import(context.Background(), text, 2024, "")
	require.NoError(t, err)

	assert.Equal(t, months(1), res.ImportedMonths)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, res.Warnings[0].Month)
}

func TestImportPDF(t *testing.T) {
	pdf := []byte("%PDF-1.7\n...binary...")

	t.Run("archives, imports, and logs", func(t *testing.T) {
		repo := newFakeRepo()
		store, err := storage.NewLocalStorage(t.TempDir())
		require.NoError(t, err)

		svc := newTestService(repo).
			WithExtractor(fakeExtractor{text: quarterReport}).
			WithStorage(store)

		res, err := svc.ImportPDF(context.Background(), pdf, "BWA_2024.pdf", 2024)
		require.NoError(t, err)
		assert.Equal(t, months(1, 2, 3), res.ImportedMonths)
		assert.NotEmpty(t, res.StoredFileID)

		require.Len(t, repo.imports, 1)
		entry := repo.imports[0]
		assert.Equal(t, repository.ImportStatusImported, entry.Status)
		assert.Equal(t, 3, entry.ImportedMonths)
		assert.Equal(t, 24, entry.ItemsCreated)
		require.NotNil(t, entry.Fingerprint)
		assert.Equal(t, sniffer.Fingerprint(pdf), *entry.Fingerprint)
		assert.NotNil(t, entry.StoragePath)
		assert.Nil(t, entry.ErrorMessage)
	})

	t.Run("year taken from document text", func(t *testing.T) {
		repo := newFakeRepo()
		text := "Geschäftsjahr 2023 Auswertung Jan Feb Umsatzerlöse 1.000,00 2.000,00 Personalkosten 500,00 500,00"
		svc := newTestService(repo).WithExtractor(fakeExtractor{text: text})

		res, err := svc.ImportPDF(context.Background(), pdf, "bwa.pdf", 0)
		require.NoError(t, err)
		assert.Equal(t, []bwa.MonthKey{{Year: 2023, Month: 1}, {Year: 2023, Month: 2}}, res.ImportedMonths)
	})

	t.Run("year retry is not a rejection", func(t *testing.T) {
		var logs bytes.Buffer
		repo := newFakeRepo()
		text := "Geschäftsjahr 2023 Auswertung Jan Umsatzerlöse 1.000,00 Personalkosten 500,00"
		svc := NewImportService(repo, nil, slog.New(slog.NewTextHandler(&logs, nil))).
			WithExtractor(fakeExtractor{text: text})

		res, err := svc.ImportPDF(context.Background(), pdf, "bwa.pdf", 0)
		require.NoError(t, err)
		assert.Equal(t, []bwa.MonthKey{{Year: 2023, Month: 1}}, res.ImportedMonths)
		assert.NotContains(t, logs.String(), "document rejected")
		assert.Equal(t, repository.ImportStatusImported, repo.imports[0].Status)
	})

	t.Run("no year anywhere is rejected once", func(t *testing.T) {
		var logs bytes.Buffer
		repo := newFakeRepo()
		svc := NewImportService(repo, nil, slog.New(slog.NewTextHandler(&logs, nil))).
			WithExtractor(fakeExtractor{text: "Jan Umsatzerlöse 1.000,00"})

		_, err := svc.ImportPDF(context.Background(), pdf, "bwa.pdf", 0)
		assert.ErrorIs(t, err, ErrNoYear)
		assert.Equal(t, 1, strings.Count(logs.String(), "document rejected"))
	})

	t.Run("no year anywhere", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo).WithExtractor(fakeExtractor{text: "Jan Umsatzerlöse 1.000,00"})

		_, err := svc.ImportPDF(context.Background(), pdf, "bwa.pdf", 0)
		assert.ErrorIs(t, err, ErrNoYear)
		require.Len(t, repo.imports, 1)
		assert.Equal(t, repository.ImportStatusRejected, repo.imports[0].Status)
	})

	t.Run("not a pdf", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo).WithExtractor(fakeExtractor{text: quarterReport})

		_, err := svc.ImportPDF(context.Background(), []byte("plain text"), "bwa.pdf", 2024)
		assert.ErrorIs(t, err, sniffer.ErrNotPDF)
		assert.Zero(t, repo.createCalls)
		require.Len(t, repo.imports, 1)
		assert.Equal(t, repository.ImportStatusRejected, repo.imports[0].Status)
		require.NotNil(t, repo.imports[0].ErrorMessage)
	})

	t.Run("scanned pdf without text", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo).WithExtractor(fakeExtractor{err: parser.ErrNoTextLayer})

		_, err := svc.ImportPDF(context.Background(), pdf, "scan.pdf", 2024)
		assert.ErrorIs(t, err, parser.ErrNoTextLayer)
	})

	t.Run("upload too large", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo).WithMaxUploadSize(8)

		_, err := svc.ImportPDF(context.Background(), pdf, "bwa.pdf", 2024)
		assert.ErrorIs(t, err, sniffer.ErrFileTooLarge)
	})
}

func TestImportPDF_ArchivedOriginals(t *testing.T) {
	pdf := []byte("%PDF-1.7\n...binary...")
	ctx := context.Background()

	newService := func(t *testing.T, repo *fakeRepo, text string) (*ImportService, *storage.LocalStorage) {
		store, err := storage.NewLocalStorage(t.TempDir())
		require.NoError(t, err)
		return newTestService(repo).WithExtractor(fakeExtractor{text: text}).WithStorage(store), store
	}

	t.Run("imported original can be downloaded", func(t *testing.T) {
		svc, _ := newService(t, newFakeRepo(), quarterReport)

		res, err := svc.ImportPDF(ctx, pdf, "BWA_2024.pdf", 2024)
		require.NoError(t, err)
		id, err := uuid.Parse(res.StoredFileID)
		require.NoError(t, err)

		info, err := svc.StoredFileInfo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(len(pdf)), info.Size)

		rc, _, err := svc.StoredFile(ctx, id)
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, pdf, got)
	})

	t.Run("rejected original is removed", func(t *testing.T) {
		repo := newFakeRepo()
		svc, _ := newService(t, repo, "Umsatzerlöse 1.000,00")

		res, err := svc.ImportPDF(ctx, pdf, "bad.pdf", 2024)
		require.Error(t, err)
		assert.Nil(t, res)
		require.Len(t, repo.imports, 1)
		assert.Nil(t, repo.imports[0].StoragePath)
	})

	t.Run("fully skipped re-upload is removed", func(t *testing.T) {
		repo := newFakeRepo()
		svc, store := newService(t, repo, quarterReport)

		first, err := svc.ImportPDF(ctx, pdf, "BWA_2024.pdf", 2024)
		require.NoError(t, err)
		second, err := svc.ImportPDF(ctx, pdf, "BWA_2024.pdf", 2024)
		require.NoError(t, err)

		assert.Empty(t, second.StoredFileID)
		assert.Equal(t, months(1, 2, 3), second.SkippedMonths)
		require.Len(t, repo.imports, 2)
		assert.Nil(t, repo.imports[1].StoragePath)

		firstID, err := uuid.Parse(first.StoredFileID)
		require.NoError(t, err)
		_, err = store.GetInfo(ctx, firstID)
		assert.NoError(t, err)
	})

	t.Run("archiving disabled", func(t *testing.T) {
		svc := newTestService(newFakeRepo())
		_, _, err := svc.StoredFile(ctx, uuid.New())
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = svc.StoredFileInfo(ctx, uuid.New())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestDeletePeriod(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Import(ctx, quarterReport, 2024, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeletePeriod(ctx, 2024, 2))
	assert.ErrorIs(t, svc.DeletePeriod(ctx, 2024, 2), repository.ErrPeriodNotFound)
	assert.Error(t, svc.DeletePeriod(ctx, 2024, 13))

	res, err := svc.Import(ctx, quarterReport, 2024, "")
	require.NoError(t, err)
	assert.Equal(t, months(2), res.ImportedMonths)

	year := 2024
	periods, err := svc.ListPeriods(ctx, &year)
	require.NoError(t, err)
	assert.Len(t, periods, 3)
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, "format", rejectReason(&money.FormatError{Token: "x"}))
	assert.Equal(t, "structure", rejectReason(&parser.StructuralError{Reason: "x"}))
	assert.Equal(t, "upload", rejectReason(sniffer.ErrNotPDF))
	assert.Equal(t, "other", rejectReason(errors.New("boom")))
	assert.True(t, strings.HasPrefix(rejectReason(ErrNoYear), "year"))
}

func TestImportResult_Message(t *testing.T) {
	res := &ImportResult{
		ImportedMonths: months(1, 2),
		SkippedMonths:  months(3),
		Warnings:       []parser.ValidationWarning{{Month: 1}},
	}
	assert.Equal(t,
		"2 Monat(e) importiert (01/2024, 02/2024). 1 Monat(e) bereits vorhanden und übersprungen (03/2024). 1 Plausibilitätswarnung(en) zu den Gesamtkosten.",
		res.Message())

	assert.Equal(t, "Keine Monate gefunden.", (&ImportResult{}).Message())
}
