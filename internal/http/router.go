// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-paragraph-backend/internal/config"
	"github.com/tbourn/go-paragraph-backend/internal/domain"
	"github.com/tbourn/go-paragraph-backend/internal/http/handlers"
	"github.com/tbourn/go-paragraph-backend/internal/http/middleware"
	"github.com/tbourn/go-paragraph-backend/internal/mail"
	"github.com/tbourn/go-paragraph-backend/internal/repo"
	"github.com/tbourn/go-paragraph-backend/internal/services"
	"github.com/tbourn/go-paragraph-backend/internal/tasks"
)

// paragraphRepoShim adapts the repository free functions to the
// services.ParagraphRepo interface expected by the ParagraphService. This
// keeps services decoupled from the concrete repo package while reusing
// existing functions.
type paragraphRepoShim struct{}

// CreateParagraph proxies repo.CreateParagraph.
func (paragraphRepoShim) CreateParagraph(ctx context.Context, db *gorm.DB, userID, content string, idx domain.WordIndex) (*domain.Paragraph, error) {
	return repo.CreateParagraph(ctx, db, userID, content, idx)
}

// GetUser proxies repo.GetUser.
func (paragraphRepoShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// CountParagraphs proxies repo.CountParagraphs (pagination support).
func (paragraphRepoShim) CountParagraphs(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountParagraphs(ctx, db, userID)
}

// ListParagraphsPage proxies repo.ListParagraphsPage (pagination support).
func (paragraphRepoShim) ListParagraphsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Paragraph, error) {
	return repo.ListParagraphsPage(ctx, db, userID, offset, limit)
}

// searchRepoShim adapts repository functions to services.SearchRepo.
type searchRepoShim struct{}

// ListParagraphs proxies repo.ListParagraphs.
func (searchRepoShim) ListParagraphs(ctx context.Context, db *gorm.DB, userID string) ([]domain.Paragraph, error) {
	return repo.ListParagraphs(ctx, db, userID)
}

// reportRepoShim adapts repository functions to services.ReportRepo.
type reportRepoShim struct{}

// ListParagraphsWindow proxies repo.ListParagraphsWindow.
func (reportRepoShim) ListParagraphsWindow(ctx context.Context, db *gorm.DB, userID string, start, end time.Time) ([]domain.Paragraph, error) {
	return repo.ListParagraphsWindow(ctx, db, userID, start, end)
}

// ListActiveUsers proxies repo.ListActiveUsers.
func (reportRepoShim) ListActiveUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	return repo.ListActiveUsers(ctx, db)
}

// userRepoShim adapts repository functions to services.UserRepo.
type userRepoShim struct{}

// CreateUser proxies repo.CreateUser.
func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, name, email string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, name, email)
}

// GetUser proxies repo.GetUser.
func (userRepoShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// idemStore persists submission idempotency records via the repo package.
// It implements handlers.IdempotencyStore.
type idemStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup returns the task id stored for (userID, key) if a non-expired
// record exists. Lookup failures are swallowed: a broken idempotency store
// must not block submissions.
func (s idemStore) Lookup(ctx context.Context, userID, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, key, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.TaskID, true, nil
}

// Remember stores the (userID, key) → taskID association with the configured TTL.
func (s idemStore) Remember(ctx context.Context, userID, key, taskID string) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, key, taskID, http.StatusAccepted, s.ttl)
	return err
}

// NewParagraphService constructs the ingestion service over the repository
// shim. The caller shares the returned service between the task runner (as
// its Indexer) and RegisterRoutes.
func NewParagraphService(db *gorm.DB, maxInputRunes int) *services.ParagraphService {
	svc := services.NewParagraphService(db, paragraphRepoShim{})
	if maxInputRunes > 0 {
		svc.MaxInputRunes = maxInputRunes
	}
	return svc
}

// NewReportService constructs the digest reporter over the repository shim.
func NewReportService(db *gorm.DB, sender mail.Sender, topN int) *services.ReportService {
	svc := services.NewReportService(db, reportRepoShim{}, sender)
	if topN > 0 {
		svc.TopN = topN
	}
	return svc
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and
// rate limiting, compression, CORS and security headers, health and metrics
// endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, paraSvc *services.ParagraphService, runner *tasks.Runner, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	searchSvc := services.NewSearchService(db, searchRepoShim{})
	userSvc := services.NewUserService(db, userRepoShim{})
	h := handlers.New(paraSvc, searchSvc, userSvc, runner, idemStore{db: db, ttl: cfg.IdempotencyTTL})

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Paragraphs
		api.POST("/paragraphs", h.SubmitParagraphs)
		api.GET("/paragraphs", h.ListParagraphs)
		api.GET("/paragraphs/search", h.SearchParagraphs)

		// Ingestion tasks
		api.GET("/tasks/:id", h.GetTask)

		// Users
		api.POST("/users", h.CreateUser)
		api.GET("/users/:id", h.GetUser)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
