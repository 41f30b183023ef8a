// Command server starts the SEOLens API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"seolens/internal/api"
	"seolens/internal/auth"
	"seolens/internal/observability/logging"
	"seolens/internal/observability/metrics"
	"seolens/internal/relay"
	"seolens/internal/server"
	"seolens/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing Postgres connections")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	processorURL := flag.String("processor-url", "", "base URL of the video processing service")
	processorTimeout := flag.Duration("processor-timeout", 0, "timeout for processing service calls")
	tokenSecret := flag.String("token-secret", "", "HMAC secret for signing bearer tokens")
	tokenTTL := flag.Duration("token-ttl", 0, "bearer token lifetime")
	maxUploadBytes := flag.Int64("max-upload-bytes", 0, "cap on inbound multipart upload size in bytes")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("SEOLENS_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("SEOLENS_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	listenAddr := firstNonEmpty(*addr, os.Getenv("SEOLENS_ADDR"))
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	secret := firstNonEmpty(*tokenSecret, os.Getenv("SEOLENS_TOKEN_SECRET"))
	if secret == "" {
		logger.Error("token secret is required: set --token-secret or SEOLENS_TOKEN_SECRET")
		os.Exit(1)
	}
	var tokenOpts []auth.TokenOption
	if ttl := resolveDuration(*tokenTTL, "SEOLENS_TOKEN_TTL", 0); ttl > 0 {
		tokenOpts = append(tokenOpts, auth.WithTTL(ttl))
	}
	tokens, err := auth.NewService(secret, tokenOpts...)
	if err != nil {
		logger.Error("failed to configure token service", "error", err)
		os.Exit(1)
	}

	processorBase := firstNonEmpty(*processorURL, os.Getenv("SEOLENS_PROCESSOR_URL"))
	if processorBase == "" {
		logger.Error("processing service URL is required: set --processor-url or SEOLENS_PROCESSOR_URL")
		os.Exit(1)
	}
	var relayOpts []relay.Option
	if timeout := resolveDuration(*processorTimeout, "SEOLENS_PROCESSOR_TIMEOUT", 0); timeout > 0 {
		relayOpts = append(relayOpts, relay.WithTimeout(timeout))
	}
	relayClient, err := relay.NewClient(processorBase, relayOpts...)
	if err != nil {
		logger.Error("failed to configure relay client", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("SEOLENS_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("SEOLENS_DATA"))
		store, err = storage.NewJSONRepository(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.PostgresOption
		maxConns := resolveInt(*postgresMaxConns, "SEOLENS_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "SEOLENS_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "SEOLENS_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "SEOLENS_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "SEOLENS_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if connectTimeout := resolveDuration(*postgresConnectTimeout, "SEOLENS_POSTGRES_CONNECT_TIMEOUT", 0); connectTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithConnectTimeout(connectTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("SEOLENS_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(ctx, postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, tokens, relayClient, logging.WithComponent(logger, "api"))
	if maxBytes := resolveInt64(*maxUploadBytes, "SEOLENS_MAX_UPLOAD_BYTES"); maxBytes > 0 {
		handler.MaxUploadBytes = maxBytes
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("SEOLENS_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("SEOLENS_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "SEOLENS_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "SEOLENS_RATE_GLOBAL_BURST"),
			LoginLimit:    resolveInt(*loginLimit, "SEOLENS_RATE_LOGIN_LIMIT"),
			LoginWindow:   resolveDuration(*loginWindow, "SEOLENS_RATE_LOGIN_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("SEOLENS_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("SEOLENS_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, "SEOLENS_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("SEOLENS_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		logger.Info("SEOLens API listening", "addr", listenAddr, "processor_url", processorBase, "storage_driver", driver)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		runStoreHealthWorker(groupCtx, logging.WithComponent(logger, "store-health"), store, time.Minute)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(closeCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	logger.Info("server stopped")
}

// runStoreHealthWorker pings the datastore periodically so degradation shows
// up in logs before callers hit it.
func runStoreHealthWorker(ctx context.Context, logger *slog.Logger, store storage.Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := store.Ping(pingCtx); err != nil {
				logger.Warn("datastore ping failed", "error", err)
			}
			cancel()
		}
	}
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
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("SEOLENS_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
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

func resolveInt64(flagValue int64, envKey string) int64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseInt(strings.TrimSpace(env), 10, 64); err == nil {
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
