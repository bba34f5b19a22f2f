// Command server starts the YaMDb review catalog HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Spacemarine1789/yamdb-final/internal/api"
	"github.com/Spacemarine1789/yamdb-final/internal/auth"
	"github.com/Spacemarine1789/yamdb-final/internal/mail"
	"github.com/Spacemarine1789/yamdb-final/internal/observability/logging"
	"github.com/Spacemarine1789/yamdb-final/internal/observability/metrics"
	"github.com/Spacemarine1789/yamdb-final/internal/server"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

func main() {
	envFile := flag.String("env-file", "", "path to a .env file with YAMDB_* settings")
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	tokenSecret := flag.String("token-secret", "", "secret used to sign access tokens")
	tokenTTL := flag.Duration("token-ttl", 0, "access token lifetime")
	mailDriver := flag.String("mail-driver", "", "confirmation mail driver (smtp or log)")
	smtpAddr := flag.String("smtp-addr", "", "SMTP relay address (host:port)")
	smtpFrom := flag.String("smtp-from", "", "sender address for confirmation mail")
	smtpUser := flag.String("smtp-user", "", "SMTP username")
	smtpPassword := flag.String("smtp-password", "", "SMTP password")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed for cross-origin requests")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	authLimit := flag.Int("rate-auth-limit", 0, "maximum signup/token attempts per window for a single IP")
	authWindow := flag.Duration("rate-auth-window", 0, "window for counting signup/token attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed auth throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed auth throttling")
	redisDB := flag.Int("rate-redis-db", 0, "Redis logical database for auth throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	redisTLSCA := flag.String("rate-redis-tls-ca", "", "path to Redis TLS CA certificate")
	flag.Parse()

	loadEnvFile(*envFile)

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("YAMDB_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("YAMDB_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("YAMDB_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("YAMDB_ADDR"))

	secret := firstNonEmpty(*tokenSecret, os.Getenv("YAMDB_TOKEN_SECRET"))
	if secret == "" {
		logger.Error("token secret is required, set --token-secret or YAMDB_TOKEN_SECRET")
		os.Exit(1)
	}
	tokens, err := auth.NewTokenIssuer(secret, resolveDuration(*tokenTTL, "YAMDB_TOKEN_TTL", auth.DefaultTokenTTL))
	if err != nil {
		logger.Error("failed to configure token issuer", "error", err)
		os.Exit(1)
	}

	mailer, err := configureMailer(*mailDriver, mail.SMTPConfig{
		Addr:     firstNonEmpty(*smtpAddr, os.Getenv("YAMDB_SMTP_ADDR")),
		From:     firstNonEmpty(*smtpFrom, os.Getenv("YAMDB_SMTP_FROM")),
		Username: firstNonEmpty(*smtpUser, os.Getenv("YAMDB_SMTP_USER")),
		Password: firstNonEmpty(*smtpPassword, os.Getenv("YAMDB_SMTP_PASSWORD")),
	}, logger)
	if err != nil {
		logger.Error("failed to configure mailer", "error", err)
		os.Exit(1)
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("YAMDB_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" && driver != "postgres" {
		logger.Error("production mode requires the postgres datastore driver", "driver", driver)
		os.Exit(1)
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("YAMDB_DATA"))
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "YAMDB_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "YAMDB_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "YAMDB_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "YAMDB_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "YAMDB_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "YAMDB_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("YAMDB_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
		if err == nil {
			migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err = storage.EnsureSchema(migrateCtx, store)
			cancel()
		}
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, tokens, mailer)
	handler.Logger = logger
	handler.Metrics = recorder

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "YAMDB_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "YAMDB_RATE_GLOBAL_BURST"),
		AuthLimit:     resolveInt(*authLimit, "YAMDB_RATE_AUTH_LIMIT"),
		AuthWindow:    resolveDuration(*authWindow, "YAMDB_RATE_AUTH_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("YAMDB_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("YAMDB_RATE_REDIS_PASSWORD")),
		RedisDB:       resolveInt(*redisDB, "YAMDB_RATE_REDIS_DB"),
		RedisTimeout:  resolveDuration(*redisTimeout, "YAMDB_RATE_REDIS_TIMEOUT", 2*time.Second),
		RedisTLS: server.RedisTLSConfig{
			CAFile: firstNonEmpty(*redisTLSCA, os.Getenv("YAMDB_RATE_REDIS_TLS_CA")),
		},
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("YAMDB_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("YAMDB_TLS_KEY")),
		},
		RateLimit:   rateCfg,
		CORS:        server.CORSConfig{AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("YAMDB_CORS_ORIGINS")))},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("YaMDb API listening", "addr", listenAddr, "mode", serverMode, "storage", driver)
	logger.Info("metrics endpoint available", "path", "/metrics")

	runErr := srv.Run(ctx, server.RunOptions{ShutdownTimeout: 10 * time.Second})
	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		logger.Error("server error", "error", runErr)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(closeCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	logger.Info("server stopped")
	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		os.Exit(1)
	}
}

// loadEnvFile pulls YAMDB_* settings from a .env file. A missing default file
// is fine; an explicitly named file must exist.
func loadEnvFile(path string) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "load env file %s: %v\n", path, err)
			os.Exit(1)
		}
		return
	}
	_ = godotenv.Load()
}

// configureMailer picks the confirmation mail transport. SMTP is used when
// selected explicitly or when a relay address is configured; otherwise codes
// go to the log, which suits development against the JSON store.
func configureMailer(flagDriver string, smtpCfg mail.SMTPConfig, logger *slog.Logger) (mail.Mailer, error) {
	driver := strings.ToLower(strings.TrimSpace(firstNonEmpty(flagDriver, os.Getenv("YAMDB_MAIL_DRIVER"))))
	switch driver {
	case "smtp":
		return mail.NewSMTPMailer(smtpCfg)
	case "log":
		return mail.NewLogMailer(logging.WithComponent(logger, "mail")), nil
	case "":
		if smtpCfg.Addr != "" {
			return mail.NewSMTPMailer(smtpCfg)
		}
		return mail.NewLogMailer(logging.WithComponent(logger, "mail")), nil
	default:
		return nil, fmt.Errorf("unsupported mail driver %q", driver)
	}
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/catalog.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("YAMDB_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
