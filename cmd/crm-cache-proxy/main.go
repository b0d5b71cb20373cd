// Command crm-cache-proxy runs the CRM cache layer as a small admin
// daemon: it exposes cache statistics and preferences, duplicate checks
// against the cached contact list and the lead status workflow, and keeps
// the cache warm by running queued prefetch tasks periodically.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/cache"
	"github.com/Sternrassler/crm-cache/pkg/client"
	"github.com/Sternrassler/crm-cache/pkg/config"
	"github.com/Sternrassler/crm-cache/pkg/contacts"
	"github.com/Sternrassler/crm-cache/pkg/leads"
	"github.com/Sternrassler/crm-cache/pkg/logging"
	"github.com/Sternrassler/crm-cache/pkg/prefetch"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	base := logging.Setup(logging.ConfigFromEnv(os.LookupEnv))
	logger := logging.NewLogger(logging.ComponentProxy)

	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")
	apiBaseURL := getEnv("API_BASE_URL", "http://localhost:3000/api")
	capacity := getEnvInt("CACHE_CAPACITY", cache.DefaultCapacity)
	concurrency := getEnvInt("PREFETCH_CONCURRENCY", prefetch.DefaultConcurrency)
	interval := getEnvDuration("PREFETCH_INTERVAL", 30*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, ready, closeStore := preferenceStore(ctx, redisURL, logger)
	defer closeStore()

	transport, err := client.NewTransport(client.DefaultTransportConfig(apiBaseURL))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create transport")
	}

	srv := newServer(ctx, serverDeps{
		HTTP:        transport,
		Store:       store,
		Capacity:    capacity,
		Concurrency: concurrency,
		Ready:       ready,
		Logger:      base,
	})
	defer srv.Close()

	go srv.runPrefetchLoop(ctx, interval)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("api", apiBaseURL).
		Int("capacity", capacity).
		Dur("prefetch_interval", interval).
		Msg("Starting CRM cache proxy")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

// preferenceStore connects to Redis when redisURL is set and falls back to
// memory when it is empty or unreachable. The returned ready func reports
// the health of the store.
func preferenceStore(ctx context.Context, redisURL string, logger zerolog.Logger) (config.PreferenceStore, func(context.Context) error, func()) {
	if redisURL == "" {
		logger.Info().Msg("REDIS_URL not set, cache preferences are kept in memory")
		return config.NewMemoryStore(), nil, func() {}
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("redis", redisURL).Msg("Redis unreachable, cache preferences are kept in memory")
		redisClient.Close()
		return config.NewMemoryStore(), nil, func() {}
	}
	logger.Info().Str("redis", redisURL).Msg("Connected to Redis")

	ready := func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	return config.NewRedisStore(redisClient), ready, func() { redisClient.Close() }
}

// serverDeps are the collaborators of the admin server.
type serverDeps struct {
	HTTP        client.HTTPClient
	Store       config.PreferenceStore
	Capacity    int
	Concurrency int

	// Ready reports whether the preference store is reachable; nil means
	// always ready.
	Ready func(context.Context) error

	// Logger is the base logger; components add their own field.
	Logger zerolog.Logger
}

type server struct {
	client   *client.CachedClient
	prefs    *config.Service
	prefetch *prefetch.Manager
	contacts *contacts.Service
	leads    *leads.Service
	ready    func(context.Context) error
	logger   zerolog.Logger
}

func newServer(ctx context.Context, d serverDeps) *server {
	prefs := config.NewService(ctx, d.Store, config.DefaultCacheConfig(), d.Logger)
	pm := prefetch.NewManager(
		prefetch.WithConcurrency(d.Concurrency),
		prefetch.WithLogger(d.Logger),
	)
	cc := client.NewCachedClient(d.HTTP, cache.NewStore(d.Capacity), prefs,
		client.WithPrefetchManager(pm),
		client.WithLogger(d.Logger),
	)

	return &server{
		client:   cc,
		prefs:    prefs,
		prefetch: pm,
		contacts: contacts.NewService(contacts.NewHTTPRepository(cc), contacts.WithLogger(d.Logger)),
		leads:    leads.NewService(leads.NewHTTPRepository(cc), d.Logger),
		ready:    d.Ready,
		logger:   logging.WithComponent(d.Logger, logging.ComponentProxy),
	}
}

func (s *server) Close() error {
	return s.client.Close()
}

// runPrefetchLoop executes queued prefetch tasks every interval until ctx
// is done.
func (s *server) runPrefetchLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := s.prefetch.ExecuteAll(ctx)
			for key, err := range res.Failed {
				s.logger.Warn().Err(err).Str("key", key).Msg("Prefetch task failed")
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
