package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"live-arena-service/internal/app"
	"live-arena-service/internal/config"
	"live-arena-service/internal/infra/judge"
	"live-arena-service/internal/infra/kafka"
	"live-arena-service/internal/infra/memory"
	pgstore "live-arena-service/internal/infra/postgres"
	redisstore "live-arena-service/internal/infra/redis"
	"live-arena-service/internal/logger"
	"live-arena-service/internal/metrics"
	transport "live-arena-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// closer collects cleanup steps and runs them in reverse order.
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	metrics.Register()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var cleanup closer
	defer func() { cleanup.run() }()

	store, active, err := buildStore(ctx, cfg, log, &cleanup)
	if err != nil {
		return err
	}
	strategies, err := buildStrategies(cfg, log, &cleanup)
	if err != nil {
		return err
	}

	hub := transport.NewHub(log)
	opts := []app.Option{
		app.WithProgressInterval(config.TTLDuration(cfg.Engine.ProgressInterval, 10*time.Second)),
	}
	if cfg.Engine.RoomCodeAttempts > 0 {
		opts = append(opts, app.WithRoomCodeAttempts(cfg.Engine.RoomCodeAttempts))
	}
	engine := app.NewEngine(store, hub, strategies, log, opts...)
	cleanup.add(engine.Shutdown)

	if active != nil {
		recoverSessions(ctx, engine, active, log)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{cfg.Kafka.Topic}, log)
		consumer.RegisterHandler(cfg.Kafka.Topic, kafka.NewHandlers(engine, log).HandleViolation)
		consumer.Start(ctx)
		cleanup.add(func() { _ = consumer.Stop() })
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/ws", transport.NewWSHandler(engine, hub, log).ServeWS)
	transport.NewAPIHandler(engine, log).Register(mux)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting live arena service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// activeLister enumerates sessions that were live when the process stopped.
type activeLister interface {
	ActiveSessionIDs(ctx context.Context) ([]string, error)
}

func buildStore(ctx context.Context, cfg config.Config, log zerolog.Logger, cleanup *closer) (app.SessionStore, activeLister, error) {
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanup.add(func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		cleanup.add(pool.Close)
		primary := pgstore.NewSessionStore(pool)
		if redisClient != nil {
			log.Info().Msg("session store: postgres with redis cache")
			return redisstore.NewCachedStore(redisClient, primary, redisTTL), primary, nil
		}
		log.Info().Msg("session store: postgres")
		return primary, primary, nil
	}

	if redisClient != nil {
		log.Info().Msg("session store: redis")
		return redisstore.NewSessionStore(redisClient, redisTTL), nil, nil
	}
	log.Warn().Msg("session store: in-memory, sessions will not survive a restart")
	return memory.NewSessionStore(), nil, nil
}

func buildStrategies(cfg config.Config, log zerolog.Logger, cleanup *closer) ([]app.Strategy, error) {
	strategies := []app.Strategy{app.NewQuizStrategy()}
	if !cfg.Judge.Enabled {
		log.Warn().Msg("code judge disabled, contests cannot be created")
		return strategies, nil
	}

	caseTimeout := config.TTLDuration(cfg.Judge.Timeout, 10*time.Second)
	dj, err := judge.NewDockerJudge(judge.Config{
		Host:          cfg.Judge.DockerHost,
		CaseTimeout:   caseTimeout,
		MemoryLimitMB: cfg.Judge.MemoryMB,
		CPUShares:     cfg.Judge.CPUShares,
		Workspace:     cfg.Judge.Workspace,
		Parallelism:   cfg.Judge.Parallelism,
	}, log)
	if err != nil {
		return nil, err
	}
	cleanup.add(func() { _ = dj.Close() })

	// A submission may queue behind other cases; allow a few case timeouts.
	submitTimeout := config.TTLDuration(cfg.Engine.JudgeTimeout, 4*caseTimeout)
	return append(strategies, app.NewContestStrategy(dj, submitTimeout)), nil
}

func recoverSessions(ctx context.Context, engine *app.Engine, lister activeLister, log zerolog.Logger) {
	ids, err := lister.ActiveSessionIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list active sessions")
		return
	}
	for _, id := range ids {
		if err := engine.Recover(ctx, id); err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("recover session")
		}
	}
	log.Info().Int("sessions", len(ids)).Msg("recovered active sessions")
}
