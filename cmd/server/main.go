package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsclient "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpserver "github.com/platemate/platemate-server/internal/adapter/inbound/http"
	"github.com/platemate/platemate-server/internal/adapter/inbound/ws"
	"github.com/platemate/platemate-server/internal/adapter/outbound/dynamo"
	natsadapter "github.com/platemate/platemate-server/internal/adapter/outbound/nats"
	rediscache "github.com/platemate/platemate-server/internal/adapter/outbound/redis"
	"github.com/platemate/platemate-server/internal/app/service"
	"github.com/platemate/platemate-server/internal/config"
	"github.com/platemate/platemate-server/internal/domain/model"
	"github.com/platemate/platemate-server/internal/port/outbound/cache"
	"github.com/platemate/platemate-server/internal/port/outbound/messaging"
	"github.com/platemate/platemate-server/internal/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().Str("address", cfg.Server.Address()).Msg("starting platemate server")

	// System-of-record.
	dynamoClient, err := dynamo.NewClient(ctx, dynamo.ClientConfig{
		Region:   cfg.Dynamo.Region,
		Endpoint: cfg.Dynamo.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to create dynamodb client: %w", err)
	}

	sessionConfig := model.SessionConfig{
		MaxParticipants: cfg.Session.MaxParticipants,
		MatchThreshold:  cfg.Session.MatchThreshold,
		SessionDuration: cfg.Session.Duration,
		MaxMessageLen:   cfg.Session.MaxMessageLen,
	}
	tables := dynamo.Tables{
		Sessions:     cfg.Dynamo.SessionsTable,
		UserSessions: cfg.Dynamo.UserSessionsTable,
		Items:        cfg.Dynamo.ItemsTable,
		CodeIndex:    cfg.Dynamo.CodeIndex,
	}
	sessionRepo := dynamo.NewSessionRepository(dynamoClient, tables, sessionConfig)
	itemRepo := dynamo.NewItemRepository(dynamoClient, tables.Items)

	// Cache tier. A startup failure here degrades rather than aborts: the
	// store reports misses until the tier comes back.
	pool := connectRedis(ctx, cfg.Redis, logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("pool shutdown incomplete")
		}
	}()

	store, err := newStore(ctx, pool, cfg.Redis, cfg.Session.AggregateTTL, logger)
	if err != nil {
		return err
	}

	// Rate limiting: distributed fixed window with a local fallback.
	localCounter := ratelimit.NewLocalCounter(0)
	localCounter.Start()
	defer localCounter.Stop()
	limiter := ratelimit.NewLimiter(
		rediscache.NewRateCounter(pool),
		localCounter,
		store.Available,
		logger,
	)

	// Event publishing is best-effort; the server runs without NATS.
	publisher, natsConn := connectNATS(cfg.NATS, logger)
	if natsConn != nil {
		defer natsConn.Close()
	}

	verifier, err := service.NewTokenVerifier(service.TokenConfig{
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		SigningKey: []byte(cfg.Token.SigningKey),
	})
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	sessionService := service.NewSessionService(sessionRepo, store, publisher, service.SessionServiceConfig{
		Session:           sessionConfig,
		MaxActiveSessions: cfg.Session.MaxActiveSessions,
		AggregateTTL:      cfg.Session.AggregateTTL,
		ListTTL:           cfg.Session.ListTTL,
	}, logger)
	swipeService := service.NewSwipeService(sessionService, sessionRepo, itemRepo, store, publisher, logger)

	// Broadcaster.
	hub := ws.NewHub(logger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	clientConfig := ws.DefaultClientConfig()
	clientConfig.RateLimit = cfg.RateLimit.Limit
	clientConfig.RateWindow = cfg.RateLimit.Window
	wsHandler := ws.NewHandler(hubCtx, hub, sessionService, swipeService, verifier, limiter, clientConfig, logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		ReadTimeout: cfg.Server.ReadTimeout,
	}, wsHandler, healthDetail(store, pool), logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	logger.Info().Str("address", cfg.Server.Address()).Msg("platemate server started")

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")

	// Stop accepting connections first, then tear down the hub so every
	// live websocket gets its close frame, then the deferred pool and
	// counter shutdowns run.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	hubCancel()

	logger.Info().Msg("platemate server stopped gracefully")
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// connectRedis builds the connection pool, falling back to a lazily
// dialing pool when the tier is unreachable at startup.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) *rediscache.Pool {
	poolCfg := rediscache.DefaultPoolConfig()
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.AcquireTimeout = cfg.AcquireTimeout
	poolCfg.IdleTimeout = cfg.IdleTimeout
	poolCfg.DialTimeout = cfg.DialTimeout

	if len(cfg.ClusterAddrs) > 0 {
		client := redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.ClusterAddrs,
			Password:    cfg.Password,
			DialTimeout: cfg.DialTimeout,
		})
		logger.Info().Strs("addrs", cfg.ClusterAddrs).Msg("using redis cluster")
		return rediscache.NewClusterPool(client, nil, logger)
	}

	dial := rediscache.NewClientDialer(&redis.Options{
		Addr:        cfg.Address(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pool, err := rediscache.NewPool(ctx, poolCfg, dial, nil, logger)
	if err != nil {
		logger.Warn().Err(err).Str("address", cfg.Address()).Msg("redis unreachable, starting degraded")
		poolCfg.MinConns = 0
		pool, _ = rediscache.NewPool(ctx, poolCfg, dial, nil, logger)
	} else {
		logger.Info().Str("address", cfg.Address()).Msg("connected to redis")
	}
	return pool
}

func newStore(ctx context.Context, pool *rediscache.Pool, cfg config.RedisConfig, ttl time.Duration, logger zerolog.Logger) (cache.Store, error) {
	base := rediscache.NewService(ctx, pool, ttl, logger)
	if cfg.EncryptionKey == "" {
		return base, nil
	}

	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	secure, err := rediscache.NewSecureService(base, key, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create secure cache: %w", err)
	}
	return secure, nil
}

func connectNATS(cfg config.NATSConfig, logger zerolog.Logger) (messaging.EventPublisher, *natsclient.Conn) {
	opts := []natsclient.Option{
		natsclient.MaxReconnects(cfg.MaxReconnects),
		natsclient.ReconnectWait(cfg.ReconnectWait),
		natsclient.DisconnectErrHandler(func(_ *natsclient.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		natsclient.ReconnectHandler(func(nc *natsclient.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	conn, err := natsclient.Connect(cfg.URL, opts...)
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.URL).Msg("nats unreachable, events disabled")
		return nil, nil
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Msg("connected to nats")
	return natsadapter.NewEventPublisher(conn, cfg.SubjectPrefix), conn
}

func healthDetail(store cache.Store, pool *rediscache.Pool) httpserver.HealthFunc {
	return func(ctx context.Context) map[string]any {
		stats := pool.Stats()
		return map[string]any{
			"status":          "ok",
			"cache_available": store.Available(ctx),
			"pool": map[string]any{
				"total":    stats.Total,
				"borrowed": stats.Borrowed,
			},
		}
	}
}
