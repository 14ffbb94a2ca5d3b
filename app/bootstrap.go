package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"contactbook/internal/auth"
	"contactbook/internal/contact"
	"contactbook/internal/db"
	"contactbook/internal/mail"
	"contactbook/internal/maintenance"
	"contactbook/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

// Config is read from the environment once at startup; nothing else in the
// process consults env vars after Build returns.
type Config struct {
	DatabaseURL string
	Port        string
	AppEnv      string
	BaseURL     string
	SentryDSN   string
	CronSecret  string

	AccessSecret       string
	RefreshSecret      string
	VerificationSecret string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	VerificationTTL    time.Duration

	BcryptCost int

	AuthRateLimitMax       int
	AuthRateLimitWindow    time.Duration
	ContactRateLimitMax    int
	ContactRateLimitWindow time.Duration

	UnverifiedRetention time.Duration
	CleanupBatchSize    int

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Port:      envOrDefault("PORT", "8080"),
		AppEnv:    envOrDefault("APP_ENV", "development"),
		BaseURL:   envOrDefault("APP_BASE_URL", "http://localhost:8080"),
		SentryDSN: os.Getenv("SENTRY_DSN"),

		CronSecret: os.Getenv("CRON_SECRET"),

		AccessTTL:       envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTTL:      envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
		VerificationTTL: envHoursOrDefault("VERIFICATION_TOKEN_TTL_HOURS", 24),

		BcryptCost: envIntOrDefault("BCRYPT_COST", bcrypt.DefaultCost),

		AuthRateLimitMax:       envIntOrDefault("AUTH_RATE_LIMIT_MAX", 10),
		AuthRateLimitWindow:    envSecondsOrDefault("AUTH_RATE_LIMIT_WINDOW_SECONDS", 60),
		ContactRateLimitMax:    envIntOrDefault("CONTACT_RATE_LIMIT_MAX", 5),
		ContactRateLimitWindow: envSecondsOrDefault("CONTACT_RATE_LIMIT_WINDOW_SECONDS", 60),

		UnverifiedRetention: envDaysOrDefault("UNVERIFIED_RETENTION_DAYS", 7),
		CleanupBatchSize:    envIntOrDefault("CLEANUP_BATCH_SIZE", 500),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
	}

	var err error
	if cfg.DatabaseURL, err = mustEnv("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	if cfg.AccessSecret, err = mustEnv("JWT_ACCESS_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshSecret, err = mustEnv("JWT_REFRESH_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.VerificationSecret, err = mustEnv("JWT_VERIFICATION_SECRET"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

type Runtime struct {
	Handler http.Handler
	Config  Config
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:       cfg.AccessSecret,
		RefreshSecret:      cfg.RefreshSecret,
		VerificationSecret: cfg.VerificationSecret,
		AccessTTL:          cfg.AccessTTL,
		RefreshTTL:         cfg.RefreshTTL,
		VerificationTTL:    cfg.VerificationTTL,
	})

	userRepo := auth.NewRepository(database)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	mailer := mail.NewLogSender(logger)
	authService := auth.NewService(userRepo, hasher, tokenIssuer, mailer, cfg.BaseURL)
	authHandler := auth.NewHandler(authService)

	contactRepo := contact.NewRepository(database)
	contactHandler := contact.NewHandler(contactRepo)

	cleanupHandler := maintenance.NewCleanupHandler(
		userRepo,
		logger,
		cfg.CronSecret,
		cfg.UnverifiedRetention,
		cfg.CleanupBatchSize,
	)

	authLimiter := auth.NewRateLimiter(cfg.AuthRateLimitMax, cfg.AuthRateLimitWindow)
	contactLimiter := auth.NewRateLimiter(cfg.ContactRateLimitMax, cfg.ContactRateLimitWindow)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(tokenIssuer, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/register", authLimiter.Middleware(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /auth/login", authLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh_token", authHandler.Refresh)
	mux.HandleFunc("GET /auth/verify/{token}", authHandler.VerifyEmail)
	mux.HandleFunc("GET /health", healthHandler(database))

	mux.Handle("POST /contacts", contactLimiter.Middleware(protected(contactHandler.CreateContact)))
	mux.Handle("GET /contacts", protected(contactHandler.ListContacts))
	mux.Handle("GET /contacts/search", protected(contactHandler.SearchContacts))
	mux.Handle("GET /contacts/birthdays", protected(contactHandler.UpcomingBirthdays))
	mux.Handle("GET /contacts/{id}", protected(contactHandler.GetContact))
	mux.Handle("PUT /contacts/{id}", protected(contactHandler.UpdateContact))
	mux.Handle("DELETE /contacts/{id}", protected(contactHandler.DeleteContact))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
