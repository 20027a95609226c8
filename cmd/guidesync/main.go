package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/maxstewm/asian-guide-web/internal/blob"
	"github.com/maxstewm/asian-guide-web/internal/config"
	"github.com/maxstewm/asian-guide-web/internal/publisher"
	"github.com/maxstewm/asian-guide-web/internal/service"
	"github.com/maxstewm/asian-guide-web/internal/storage/postgres"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "guidesync",
	Short: "Sync travel guide articles between Markdown trees, Postgres and blob storage",
	Long: `guidesync moves travel and food articles between a directory of
Markdown folders and the guide database.

  guidesync import [dir]     # load article folders into the database
  guidesync export           # write published articles to Markdown folders
  guidesync serve            # run the article API
  guidesync status           # show the last import and export runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(importCmd, exportCmd, serveCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sqlx.DB
	articles  *postgres.ArticleStore
	images    *postgres.ImageStore
	countries *postgres.CountryStore
	authors   *postgres.AuthorStore
	runs      *postgres.RunStore
	txManager *postgres.TransactionManager
	blobs     *blob.SupabaseStore
	janitor   *service.Janitor
	publisher service.Publisher
	rabbitMQ  *publisher.RabbitMQ
}

// bootstrap loads the configuration and connects to the database, the blob
// store and, when configured, RabbitMQ.
func bootstrap() (*app, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	blobs, err := blob.NewSupabaseStore(cfg.Storage)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		articles:  postgres.NewArticleStore(db),
		images:    postgres.NewImageStore(db),
		countries: postgres.NewCountryStore(db),
		authors:   postgres.NewAuthorStore(db),
		runs:      postgres.NewRunStore(db),
		txManager: postgres.NewTransactionManager(db),
		blobs:     blobs,
		janitor:   service.NewJanitor(blobs, logger, service.DefaultCleanupTimeout),
	}

	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(cfg.RabbitMQ, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.rabbitMQ = rabbitMQ
		a.publisher = rabbitMQ
	}

	return a, nil
}

func (a *app) Close() {
	a.janitor.Wait()
	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(); err != nil {
			a.logger.Warn("close rabbitmq", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
