// Command bwa imports, inspects, and exports BWA reports from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/categorization"
	"github.com/FACorreiaa/bwa-insights/internal/domain/export"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/parser"
	importrepo "github.com/FACorreiaa/bwa-insights/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/bwa-insights/internal/domain/import/service"
	"github.com/FACorreiaa/bwa-insights/pkg/config"
	"github.com/FACorreiaa/bwa-insights/pkg/db"
	"github.com/FACorreiaa/bwa-insights/pkg/logging"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	if errors.Is(err, errUsage) {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "BWA Insights CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  bwa <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  parse     Parse a report (.pdf or extracted .txt) without storing it")
	fmt.Fprintln(w, "  import    Parse a report and store every month not yet imported")
	fmt.Fprintln(w, "  export    Write imported line items as CSV or XLSX")
	fmt.Fprintln(w, "  migrate   Apply database migrations")
	fmt.Fprintln(w, "\nRun 'bwa <command> -h' for more information on a command.")
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "parse":
		return runParse(args[1:], stdout)
	case "import":
		return runImport(ctx, args[1:], stdout)
	case "export":
		return runExport(ctx, args[1:], stdout)
	case "migrate":
		return runMigrate(ctx)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

// readDocument returns the file's bytes and, for .txt files, its text.
func readDocument(path string) (data []byte, text string, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return data, string(data), nil
	}
	return data, "", nil
}

func runParse(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	file := fs.String("file", "", "report to parse (.pdf or .txt)")
	year := fs.Int("year", 0, "reporting year (default: taken from the report header)")
	locale := fs.String("locale", "german", "amount notation: german or standard")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required: %w", errUsage)
	}

	loc, err := money.LocaleByName(*locale)
	if err != nil {
		return err
	}

	data, text, err := readDocument(*file)
	if err != nil {
		return err
	}
	if text == "" {
		text, err = parser.NewPDFExtractor(parser.DefaultMaxPages).ExtractText(data)
		if err != nil {
			return err
		}
	}

	p := parser.NewParser(parser.Config{Locale: loc, Classifier: categorization.NewDefaultEngine()})
	res, err := p.Parse(text, *year)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Monat\tEinnahmen\tAusgaben\tSonstiges\tZeilen\t")
	byMonth := res.ByMonth()
	for _, key := range res.Months() {
		totals := res.MonthTotals[key]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t\n", key,
			loc.Format(totals[bwa.Revenue]),
			loc.Format(totals[bwa.Expense]),
			loc.Format(totals[bwa.Other]),
			len(byMonth[key]),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(stdout, "Warnung: %s\n", w.Message())
	}
	return nil
}

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "report to import (.pdf or .txt)")
	year := fs.Int("year", 0, "reporting year (default: taken from the report)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required: %w", errUsage)
	}

	cfg, logger, database, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	classifier := categorization.NewService(categorization.NewRepository(database.Pool), logger)
	if err := classifier.Reload(ctx); err != nil {
		return err
	}
	p := parser.NewParser(parser.Config{
		Locale:     cfg.Import.Locale,
		Classifier: classifier,
		Tolerance:  cfg.Import.Tolerance,
	})
	svc := importservice.NewImportService(importrepo.NewPostgresPeriodRepository(database.Pool), p, logger).
		WithMaxUploadSize(cfg.Server.MaxUploadBytes)

	data, text, err := readDocument(*file)
	if err != nil {
		return err
	}

	var result *importservice.ImportResult
	if text != "" {
		result, err = svc.Import(ctx, text, *year, filepath.Base(*file))
	} else {
		result, err = svc.ImportPDF(ctx, data, filepath.Base(*file), *year)
	}
	if result != nil {
		fmt.Fprintln(stdout, result.Message())
	}
	return err
}

func runExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	start := fs.String("start", "", "first month, YYYY-MM")
	end := fs.String("end", "", "last month, YYYY-MM")
	types := fs.String("types", "revenue,expense", "comma-separated line item types")
	format := fs.String("format", "standard", "standard, german, or xlsx")
	out := fs.String("out", "", "output file (default: suggested name in the current directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter, err := exportFilter(*start, *end, *types)
	if err != nil {
		return err
	}
	f, err := export.ParseFormat(*format)
	if err != nil {
		return err
	}

	_, logger, database, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	svc := export.NewService(export.NewRepository(database.Pool), logger)

	tmp, err := os.CreateTemp(".", ".bwa-export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	name, n, err := svc.Export(ctx, filter, f, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	target := *out
	if target == "" {
		target = name
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d Zeilen nach %s exportiert.\n", n, target)
	return nil
}

func exportFilter(start, end, types string) (export.ExportFilter, error) {
	var filter export.ExportFilter
	for _, b := range []struct {
		raw string
		dst **time.Time
	}{{start, &filter.StartDate}, {end, &filter.EndDate}} {
		if b.raw == "" {
			continue
		}
		t, err := time.Parse("2006-01", b.raw)
		if err != nil {
			return filter, fmt.Errorf("invalid month %q, want YYYY-MM", b.raw)
		}
		*b.dst = &t
	}
	for _, raw := range strings.Split(types, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, err := bwa.ParseClassification(raw)
		if err != nil {
			return filter, err
		}
		filter.Types = append(filter.Types, c)
	}
	return filter, nil
}

func runMigrate(ctx context.Context) error {
	_, logger, database, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.RunMigrations(ctx); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

// connect loads configuration and opens the database.
func connect(ctx context.Context) (*config.Config, *slog.Logger, *db.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		JSON:   cfg.Logging.JSON,
		Output: os.Stderr,
	})

	database, err := db.New(ctx, db.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        4,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, database, nil
}
