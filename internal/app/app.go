package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rfpdesk/internal/config"
	"github.com/rfpdesk/internal/dispatch"
	"github.com/rfpdesk/internal/generation"
	"github.com/rfpdesk/internal/mailer"
	"github.com/rfpdesk/internal/printer"
	"github.com/rfpdesk/internal/records"
	"github.com/rfpdesk/internal/regulated"
	"github.com/rfpdesk/internal/settings"
	"github.com/rfpdesk/internal/store"
	"github.com/rfpdesk/internal/task"
	"github.com/rfpdesk/internal/workflow"
)

type App struct {
	config     *config.Config
	logger     *slog.Logger
	settings   *settings.File
	source     *store.PgSource
	journal    *store.Journal
	mailer     *mailer.Mailer
	tasks      *task.Orchestrator
	controller *workflow.Controller
}

func (app *App) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.tasks.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn("app: task shutdown", "err", err)
	}
	app.journal.Close()
	app.source.Close()
}

// Controller returns the workflow controller for headless use.
func (app *App) Controller() *workflow.Controller {
	return app.controller
}

// Settings returns the workflow settings file.
func (app *App) Settings() *settings.File {
	return app.settings
}

// Journal returns the dispatch journal.
func (app *App) Journal() *store.Journal {
	return app.journal
}

// New wires the service. Background jobs run under ctx.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := newLogger(cfg)

	st, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	journal, err := store.OpenJournal(ctx, cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	source, err := store.OpenPgSource(ctx, cfg.DatabaseURL)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("open record source: %w", err)
	}

	m, err := newMailer(cfg)
	if err != nil {
		journal.Close()
		source.Close()
		return nil, err
	}

	tasks := task.New(logger)
	recs := records.NewStore()
	outputDir := func() string { return settings.Get(st, settings.KeyOutputFolder) }

	gen := generation.NewEngine(
		&lazyPrinter{template: cfg.DocumentTemplate, tempDir: func() string { return settings.Get(st, settings.KeyTempFolder) }},
		printer.NewPackager(),
		logger,
	)

	collab := dispatch.Collaborators{
		Vouchers:    &outputVoucher{dir: outputDir},
		Archiver:    &outputArchiver{dir: outputDir, logger: logger},
		Mailer:      m,
		OpenGateway: openGateway,
	}
	if cfg.RegulatedURL != "" {
		collab.Regulated = regulatedChannel{regulated.NewClient(regulated.Config{
			BaseURL:   cfg.RegulatedURL,
			HostID:    cfg.RegulatedHostID,
			PartnerID: cfg.RegulatedPartnerID,
			UserID:    cfg.RegulatedUserID,
		}, nil)}
	}

	ctl := workflow.New(ctx, workflow.Deps{
		Tasks:      tasks,
		Records:    recs,
		Settings:   st,
		Source:     source,
		Generator:  gen,
		Dispatcher: dispatch.NewEngine(collab, logger),
		Journal:    journal,
		Logger:     logger,
	})

	logger.Debug("app: wired", "settings", cfg.SettingsPath, "journal", cfg.JournalPath)
	return &App{
		config:     cfg,
		logger:     logger,
		settings:   st,
		source:     source,
		journal:    journal,
		mailer:     m,
		tasks:      tasks,
		controller: ctl,
	}, nil
}

func (app *App) Start(ctx context.Context) error {
	// Create an errgroup derived from the parent context
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done() // Wait for OS signal or parent context to fail

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop the running job before the listener.
		if err := app.tasks.Shutdown(shutdownCtx); err != nil {
			app.logger.Warn("task shutdown", "err", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	slog.SetDefault(logger)
	return logger
}

func newMailer(cfg *config.Config) (*mailer.Mailer, error) {
	mcfg := &mailer.Config{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPortNumber(),
		User:          cfg.SMTPUser,
		Pass:          cfg.SMTPPass,
		FromName:      cfg.SMTPFromName,
		FromAddress:   cfg.SMTPFromEmail,
		RatePerMinute: cfg.SMTPRatePerMinute,
	}
	if cfg.DestinationEmail != "" {
		for _, addr := range strings.Split(cfg.DestinationEmail, ",") {
			if trimmed := strings.TrimSpace(addr); trimmed != "" {
				mcfg.To = append(mcfg.To, trimmed)
			}
		}
	}

	if keyPath := resolvedKeyPath(cfg.PGPPublicKeyPath); keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read PGP public key at %s: %w", keyPath, err)
		}
		mcfg.PGPPublicKey = string(key)
	}

	m := mailer.New(mcfg)
	if mcfg.PGPPublicKey != "" {
		if err := m.CanEncrypt(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// resolvedKeyPath returns the PGP key path, or empty if not configured. It
// checks the configured path first, then the Docker secret.
func resolvedKeyPath(configured string) string {
	if configured != "" {
		path := configured
		if !filepath.IsAbs(path) {
			cwd, _ := os.Getwd()
			path = filepath.Join(cwd, path)
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	const dockerSecretPath = "/run/secrets/pgp_public_key"
	if _, err := os.Stat(dockerSecretPath); err == nil {
		return dockerSecretPath
	}
	return ""
}
