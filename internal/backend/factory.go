package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"kakeibo/internal/amqp"
	applog "kakeibo/internal/log"
	"kakeibo/internal/sheets"
	gsheet "kakeibo/internal/sheets/google"
	memsheet "kakeibo/internal/sheets/memory"
	"kakeibo/internal/storage"
	"kakeibo/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var result *BackendResult
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		result = &BackendResult{Remote: repo, Cleanup: repo.Close}
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		result = &BackendResult{Remote: memory.New()}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result.Broker = f.createBroker(config)
	result.Exporter = f.createExporter(ctx, config)

	cleanupRemote := result.Cleanup
	broker := result.Broker
	result.Cleanup = func() error {
		var errs []error
		if broker != nil {
			errs = append(errs, broker.Close())
		}
		if cleanupRemote != nil {
			errs = append(errs, cleanupRemote())
		}
		return errors.Join(errs...)
	}
	return result, nil
}

// createBroker connects to AMQP when configured. A broker that cannot be
// reached leaves the instance working on its own.
func (f *DefaultFactory) createBroker(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	origin := config.InstanceID
	if origin == "" {
		origin = uuid.NewString()
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, origin)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without real-time sync", applog.FieldError, err)
		return nil
	}
	f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, applog.FieldOrigin, origin)
	return client
}

// createExporter builds the Google Sheets exporter when a spreadsheet is
// configured. The memory backend falls back to an in-process sheet.
func (f *DefaultFactory) createExporter(ctx context.Context, config Config) sheets.MonthExporter {
	if config.GoogleSpreadsheetID != "" {
		cfg := gsheet.ConfigFromEnv()
		cfg.SpreadsheetID = config.GoogleSpreadsheetID
		cfg.SheetName = config.GoogleSheetName
		client, err := gsheet.New(ctx, cfg)
		if err != nil {
			f.logger.Warn("Failed to initialize Google Sheets exporter, export disabled", applog.FieldError, err)
			return nil
		}
		f.logger.Info("Initialized Google Sheets exporter", "sheet", config.GoogleSheetName)
		return client
	}
	if config.Type == MemoryBackend {
		return memsheet.New()
	}
	return nil
}
