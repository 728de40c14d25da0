// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, ingestion worker sizing,
// the report schedule, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-paragraph-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// WorkerConfig sizes the asynchronous ingestion pool and its retry policy.
type WorkerConfig struct {
	Count       int           // WORKER_COUNT: concurrent ingestion workers
	QueueCap    int           // WORKER_QUEUE_CAP: pending task slots
	MaxAttempts int           // WORKER_MAX_ATTEMPTS: retries after the first try
	BaseDelay   time.Duration // WORKER_BASE_DELAY: first retry delay
	Multiplier  float64       // WORKER_BACKOFF_MULTIPLIER: delay growth per retry
	ResultTTL   time.Duration // WORKER_RESULT_TTL: how long finished tasks stay pollable
}

// ReportConfig controls the daily digest job.
type ReportConfig struct {
	Enabled bool   // REPORT_ENABLED
	Cron    string // REPORT_CRON: standard cron expression
	TopN    int    // REPORT_TOP_N: ranked words per digest
}

// SMTPConfig configures outbound digest delivery. When Enabled is false the
// application falls back to a log-only sender.
type SMTPConfig struct {
	Enabled  bool   // SMTP_ENABLED
	Addr     string // SMTP_ADDR in host:port form
	From     string // SMTP_FROM sender address
	Username string // SMTP_USERNAME (optional)
	Password string // SMTP_PASSWORD (optional)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath        string // SQLite path
	MaxInputRunes int    // ingestion input cap in runes

	// Ingestion workers
	Workers WorkerConfig

	// Daily digest
	Report ReportConfig
	SMTP   SMTPConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:        getenv("DB_PATH", "app.db"),
		MaxInputRunes: getint("MAX_INPUT_RUNES", 100_000),

		// Ingestion workers
		Workers: WorkerConfig{
			Count:       getint("WORKER_COUNT", 4),
			QueueCap:    getint("WORKER_QUEUE_CAP", 256),
			MaxAttempts: getint("WORKER_MAX_ATTEMPTS", 3),
			BaseDelay:   getdur("WORKER_BASE_DELAY", 500*time.Millisecond),
			Multiplier:  getfloat("WORKER_BACKOFF_MULTIPLIER", 2.0),
			ResultTTL:   getdur("WORKER_RESULT_TTL", time.Hour),
		},

		// Daily digest
		Report: ReportConfig{
			Enabled: getbool("REPORT_ENABLED", true),
			Cron:    getenv("REPORT_CRON", "46 22 * * *"),
			TopN:    getint("REPORT_TOP_N", 5),
		},
		SMTP: SMTPConfig{
			Enabled:  getbool("SMTP_ENABLED", false),
			Addr:     getenv("SMTP_ADDR", "localhost:25"),
			From:     getenv("SMTP_FROM", "reports@localhost"),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-paragraph-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxInputRunes <= 0 {
		return cfg, errors.New("MAX_INPUT_RUNES must be > 0")
	}
	if cfg.Workers.Count < 1 {
		return cfg, errors.New("WORKER_COUNT must be >= 1")
	}
	if cfg.Workers.QueueCap < 1 {
		return cfg, errors.New("WORKER_QUEUE_CAP must be >= 1")
	}
	if cfg.Workers.MaxAttempts < 0 {
		return cfg, errors.New("WORKER_MAX_ATTEMPTS must be >= 0")
	}
	if cfg.Workers.BaseDelay <= 0 {
		return cfg, errors.New("WORKER_BASE_DELAY must be > 0")
	}
	if cfg.Workers.Multiplier < 1 {
		return cfg, errors.New("WORKER_BACKOFF_MULTIPLIER must be >= 1")
	}
	if cfg.Workers.ResultTTL <= 0 {
		return cfg, errors.New("WORKER_RESULT_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Report.Cron) == "" {
		return cfg, errors.New("REPORT_CRON must not be empty")
	}
	if cfg.Report.TopN < 1 {
		return cfg, errors.New("REPORT_TOP_N must be >= 1")
	}
	if cfg.SMTP.Enabled {
		if strings.TrimSpace(cfg.SMTP.Addr) == "" {
			return cfg, errors.New("SMTP_ADDR must not be empty when SMTP_ENABLED")
		}
		if strings.TrimSpace(cfg.SMTP.From) == "" {
			return cfg, errors.New("SMTP_FROM must not be empty when SMTP_ENABLED")
		}
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
