package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/FACorreiaa/bwa-insights/internal/domain/categorization"
	categorizationhandler "github.com/FACorreiaa/bwa-insights/internal/domain/categorization/handler"
	"github.com/FACorreiaa/bwa-insights/internal/domain/export"
	exporthandler "github.com/FACorreiaa/bwa-insights/internal/domain/export/handler"
	importhandler "github.com/FACorreiaa/bwa-insights/internal/domain/import/handler"
	"github.com/FACorreiaa/bwa-insights/internal/domain/import/parser"
	importrepo "github.com/FACorreiaa/bwa-insights/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/bwa-insights/internal/domain/import/service"
	"github.com/FACorreiaa/bwa-insights/internal/domain/insights"
	insightshandler "github.com/FACorreiaa/bwa-insights/internal/domain/insights/handler"
	"github.com/FACorreiaa/bwa-insights/pkg/config"
	"github.com/FACorreiaa/bwa-insights/pkg/db"
	"github.com/FACorreiaa/bwa-insights/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	PeriodRepo   importrepo.PeriodRepository
	InsightsRepo *insights.Repository
	ExportRepo   *export.Repository
	RuleRepo     *categorization.Repository

	// Services
	Classifier      *categorization.Service
	ImportService   *importservice.ImportService
	InsightsService *insights.Service
	ExportService   *export.Service
	FileStorage     storage.Storage

	// Handlers
	ImportHandler   *importhandler.ImportHandler
	InsightsHandler *insightshandler.InsightsHandler
	ExportHandler   *exporthandler.ExportHandler
	RulesHandler    *categorizationhandler.RulesHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects and applies migrations.
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        d.Config.Database.MaxConns,
		MinConns:        d.Config.Database.MinConns,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
		ConnectAttempts: d.Config.Database.ConnectAttempts,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		d.DB.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.PeriodRepo = importrepo.NewPostgresPeriodRepository(d.DB.Pool)
	d.InsightsRepo = insights.NewRepository(d.DB.Pool)
	d.ExportRepo = export.NewRepository(d.DB.Pool)
	d.RuleRepo = categorization.NewRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices(ctx context.Context) error {
	d.Classifier = categorization.NewService(d.RuleRepo, d.Logger)
	if err := d.Classifier.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load classification rules: %w", err)
	}

	p := parser.NewParser(parser.Config{
		Locale:     d.Config.Import.Locale,
		Classifier: d.Classifier,
		Tolerance:  d.Config.Import.Tolerance,
	})

	d.ImportService = importservice.NewImportService(d.PeriodRepo, p, d.Logger).
		WithMaxUploadSize(d.Config.Server.MaxUploadBytes)

	if d.Config.Storage.Type != "none" {
		fileStorage, err := storage.New(ctx, &storage.Config{
			Type:      storage.StorageType(d.Config.Storage.Type),
			LocalPath: d.Config.Storage.LocalPath,
			GCSBucket: d.Config.Storage.GCSBucket,
			GCSPrefix: d.Config.Storage.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to init file storage: %w", err)
		}
		d.FileStorage = fileStorage
		d.ImportService.WithStorage(fileStorage)
	}

	d.InsightsService = insights.NewService(d.InsightsRepo, d.Logger)
	d.ExportService = export.NewService(d.ExportRepo, d.Logger)

	d.Logger.Info("services initialized", slog.String("storage", d.Config.Storage.Type))
	return nil
}

func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Config.Server.MaxUploadBytes, d.Logger)
	d.InsightsHandler = insightshandler.NewInsightsHandler(d.InsightsService, d.Logger)
	d.ExportHandler = exporthandler.NewExportHandler(d.ExportService, d.Logger)
	d.RulesHandler = categorizationhandler.NewRulesHandler(d.Classifier, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if c, ok := d.FileStorage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.Logger.Warn("failed to close file storage", "error", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
