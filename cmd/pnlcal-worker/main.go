package main

import (
	"context"
	"errors"
	"os"
	"time"

	"pnlcal/internal/amqp"
	"pnlcal/internal/backend"
	"pnlcal/internal/cli"
	"pnlcal/internal/config"
	applog "pnlcal/internal/log"
	"pnlcal/internal/sheets"
	gsheet "pnlcal/internal/sheets/google"
	"pnlcal/internal/sheets/memory"
	"pnlcal/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting pnlcal-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	// The worker reads the store directly; change events come from AMQP.
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	backendCfg.AMQPURL = ""
	backendCfg.CacheTTL = 0
	result, err := backend.NewFactory(logger.Logger, nil).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
	}()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	mirror, err := newMirror(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize sheet mirror", applog.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(result.Backend, mirror, worker.WithInterval(cfg.SyncInterval))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := syncWorker.Stop(ctx); err != nil {
			logger.Warn("Sync worker stop", applog.FieldError, err)
		}
	})

	if err := syncWorker.Start(ctx); err != nil {
		logger.Error("Failed to start sync worker", applog.FieldError, err)
		os.Exit(1)
	}

	go func() {
		err := amqpClient.ConsumeEntryChanges(ctx, syncWorker.HandleEntryChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

// newMirror connects to the spreadsheet, or keeps an in-process mirror when
// no spreadsheet is configured.
func newMirror(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.EntryMirror, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("No GOOGLE_SPREADSHEET_ID provided, mirroring in memory only")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}
