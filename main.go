package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labelsync/internal/auth"
	"labelsync/internal/config"
	"labelsync/internal/handler"
	"labelsync/internal/lock"
	"labelsync/internal/logger"
	"labelsync/internal/mailbox"
	"labelsync/internal/repository"
	"labelsync/internal/repository/memory"
	"labelsync/internal/repository/postgres"
	"labelsync/internal/repository/sheets"
	"labelsync/internal/repository/sqlite"
	"labelsync/internal/router"
	"labelsync/internal/scheduler"
	"labelsync/internal/service"
	"labelsync/internal/sse"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatal("Config validation failed:", err)
	}

	// Initialize logger
	appLogger := logger.New().SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the database when one is configured; it backs run history, the
	// run lock and optionally the store
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		defer db.Close()

		if err := postgres.InitializeDatabase(ctx, db); err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
	}

	// Initialize run history and the run lock
	var runRepo repository.RunRepository
	var locker lock.Locker
	if db != nil {
		runRepo = postgres.NewPostgresRunRepository(db)
		locker = lock.NewPostgresLocker(db, appLogger)
		appLogger.Info("Using PostgreSQL run history and advisory locks")
	} else {
		runRepo = memory.NewInMemoryRunRepository()
		locker = lock.NewMemoryLocker()
		appLogger.Info("Using in-memory run history and locks")
	}

	// Google APIs share one authorized HTTP client
	var googleClient *http.Client
	if cfg.NeedsGoogleAuth() {
		googleClient, err = auth.NewHTTPClient(ctx, cfg.CredentialsFile, cfg.TokenFile, appLogger, auth.DefaultScopes...)
		if err != nil {
			log.Fatal("Failed to authorize Google APIs:", err)
		}
	}

	mailboxClient, closeMailbox, err := newMailboxClient(ctx, cfg, googleClient, appLogger)
	if err != nil {
		log.Fatal("Failed to create mailbox client:", err)
	}
	defer closeMailbox()

	store, closeStore, err := newSheetStore(ctx, cfg, db, googleClient, appLogger)
	if err != nil {
		log.Fatal("Failed to create sheet store:", err)
	}
	defer closeStore()

	// Initialize the ingestor
	ingestService := service.NewIngestService(
		service.IngestOptions{
			LabelName:     cfg.LabelName,
			SpreadsheetID: cfg.SpreadsheetID,
			SheetName:     cfg.SheetName,
			IndexedDedup:  cfg.DedupMode == config.DedupIndex,
		},
		mailboxClient,
		store,
		appLogger,
		service.WithRunRepository(runRepo),
	)

	// Initialize SSE manager for run updates
	sseManager := sse.NewSSEManager(appLogger)
	defer sseManager.Close()

	// Initialize and start the periodic ingest job
	ingestJob := scheduler.NewIngestJob(ingestService, locker, cfg.LabelName, cfg.Interval(), sseManager, appLogger)
	go ingestJob.Start()

	// Initialize handlers
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	runHandler := handler.NewRunHandler(ingestJob, runRepo, sseManager, e.Logger)
	router.SetupRoutes(e, runHandler, cfg.AdminToken)

	// Start server
	go func() {
		appLogger.Info("Starting server on port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Failed to start server:", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Failed to shut down server:", err)
	}
	ingestJob.Stop()
}

func newMailboxClient(ctx context.Context, cfg *config.Config, googleClient *http.Client, appLogger *logger.Logger) (service.MailboxClient, func(), error) {
	switch cfg.MailboxBackend {
	case config.MailboxIMAP:
		client := mailbox.NewIMAPClient(mailbox.IMAPOptions{
			Host:            cfg.IMAPHost,
			Port:            cfg.IMAPPort,
			Username:        cfg.IMAPUsername,
			Password:        cfg.IMAPPassword,
			UseTLS:          cfg.IMAPTLS,
			GmailExtensions: cfg.IMAPGmailExtensions(),
		}, appLogger)
		appLogger.Info("Reading label", cfg.LabelName, "over IMAP from", cfg.IMAPHost)
		return client, func() { client.Close() }, nil
	default:
		client, err := mailbox.NewGmailClient(ctx, googleClient, appLogger)
		if err != nil {
			return nil, nil, err
		}
		appLogger.Info("Reading label", cfg.LabelName, "from the Gmail API")
		return client, func() {}, nil
	}
}

// newSheetStore builds the configured store. Local stores are provisioned
// with the configured spreadsheet and sheet; Google spreadsheets must exist.
func newSheetStore(ctx context.Context, cfg *config.Config, db *sql.DB, googleClient *http.Client, appLogger *logger.Logger) (repository.SheetStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		store := postgres.NewPostgresSheetStore(db)
		if err := store.CreateSpreadsheet(ctx, cfg.SpreadsheetID, cfg.SheetName); err != nil {
			return nil, nil, err
		}
		appLogger.Info("Using PostgreSQL sheet store")
		return store, func() {}, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := store.CreateSpreadsheet(ctx, cfg.SpreadsheetID, cfg.SheetName); err != nil {
			store.Close()
			return nil, nil, err
		}
		appLogger.Info("Using SQLite sheet store at", store.Path())
		return store, func() { store.Close() }, nil
	case config.StoreMemory:
		store := memory.NewInMemorySheetStore()
		store.CreateSpreadsheet(cfg.SpreadsheetID, cfg.SheetName)
		appLogger.Warn("Using in-memory sheet store; rows are lost on restart")
		return store, func() {}, nil
	default:
		store, err := sheets.NewGoogleSheetStore(ctx, googleClient, appLogger)
		if err != nil {
			return nil, nil, err
		}
		appLogger.Info("Using Google Sheets store")
		return store, func() {}, nil
	}
}
