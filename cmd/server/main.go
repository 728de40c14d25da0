// Command server runs the paragraph backend: an HTTP API for asynchronous
// paragraph ingestion and word search, plus the scheduled daily digest job.
//
// @title        Paragraph Backend API
// @version      1.0
// @description  Asynchronous paragraph ingestion, indexing, and word search.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-paragraph-backend/internal/config"
	httpapi "github.com/tbourn/go-paragraph-backend/internal/http"
	"github.com/tbourn/go-paragraph-backend/internal/mail"
	"github.com/tbourn/go-paragraph-backend/internal/observability"
	"github.com/tbourn/go-paragraph-backend/internal/repo"
	"github.com/tbourn/go-paragraph-backend/internal/schedule"
	"github.com/tbourn/go-paragraph-backend/internal/sysutil"
	"github.com/tbourn/go-paragraph-backend/internal/tasks"

	_ "github.com/tbourn/go-paragraph-backend/docs" // swagger spec registration
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// smtpAuth returns PLAIN auth when credentials are configured, nil otherwise
// (open relay, typical for dev).
func smtpAuth(cfg config.SMTPConfig) smtp.Auth {
	if cfg.Username == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		host = cfg.Addr
	}
	return smtp.PlainAuth("", cfg.Username, cfg.Password, host)
}

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin not installed")
		}
	}

	// Ingestion pipeline: shared indexing service + worker pool.
	paraSvc := httpapi.NewParagraphService(db, cfg.MaxInputRunes)
	runner := tasks.NewRunner(paraSvc, cfg.Workers.Count, cfg.Workers.QueueCap, tasks.Policy{
		MaxAttempts: uint64(cfg.Workers.MaxAttempts),
		BaseDelay:   cfg.Workers.BaseDelay,
		Multiplier:  cfg.Workers.Multiplier,
	})
	runner.ResultTTL = cfg.Workers.ResultTTL
	runner.Start(ctx)

	// Daily digest job.
	var scheduler *schedule.Scheduler
	if cfg.Report.Enabled {
		var sender mail.Sender = mail.LogSender{}
		if cfg.SMTP.Enabled {
			sender = &mail.SMTPSender{
				Addr: cfg.SMTP.Addr,
				From: cfg.SMTP.From,
				Auth: smtpAuth(cfg.SMTP),
			}
		}
		reportSvc := httpapi.NewReportService(db, sender, cfg.Report.TopN)
		scheduler, err = schedule.New("daily-digest", cfg.Report.Cron, reportSvc.RunOnce)
		if err != nil {
			log.Fatal().Err(err).Str("cron", cfg.Report.Cron).Msg("invalid report schedule")
		}
		scheduler.Start(ctx)
	}

	// HTTP transport.
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, paraSvc, runner, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := runner.Shutdown(); err != nil {
		log.Error().Err(err).Msg("task runner shutdown")
	}
	log.Info().Msg("server stopped")
}
