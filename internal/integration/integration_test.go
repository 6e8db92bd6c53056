package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
	"live-arena-service/internal/infra/memory"
	pgstore "live-arena-service/internal/infra/postgres"
	pgmigrations "live-arena-service/internal/infra/postgres/migrations"
	infraredis "live-arena-service/internal/infra/redis"
)

type sink struct {
	mu     sync.Mutex
	events []app.Event
}

func (s *sink) Join(string, string) {}

func (s *sink) Send(_ string, evt app.Event) { s.add(evt) }

func (s *sink) Broadcast(_ string, evt app.Event) { s.add(evt) }

func (s *sink) add(evt app.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

func (s *sink) last(typ app.EventType) (app.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == typ {
			return s.events[i], true
		}
	}
	return app.Event{}, false
}

func newEngine(store app.SessionStore, out app.Broadcaster) *app.Engine {
	return app.NewEngine(store, out, []app.Strategy{
		app.NewQuizStrategy(),
		app.NewContestStrategy(memory.StaticJudge{}, time.Second),
	}, zerolog.Nop())
}

func TestQuizSessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	primary := pgstore.NewSessionStore(pool)
	out := &sink{}
	engine := newEngine(infraredis.NewCachedStore(redisClient, primary, 5*time.Minute), out)

	sess, err := engine.Create(ctx, app.CreateRequest{
		Kind:            domain.KindQuiz,
		Title:           "Arithmetic",
		HostID:          "host-1",
		DurationMinutes: 30,
		Items: []domain.Item{{
			Prompt:           "What is 2 + 2?",
			Type:             domain.ItemMultipleChoice,
			Options:          []string{"3", "4", "5"},
			CorrectAnswer:    "4",
			TimeLimitSeconds: 20,
		}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Publish(ctx, "host-1", sess.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	host := app.NewConn("host-conn")
	if err := engine.HostJoin(ctx, host, sess.ID, "host-1"); err != nil {
		t.Fatalf("host join: %v", err)
	}
	alice := app.NewConn("alice-conn")
	if err := engine.ParticipantJoin(ctx, alice, app.JoinRequest{Code: sess.Code, DisplayName: "Alice", UserID: "u1"}); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	bob := app.NewConn("bob-conn")
	if err := engine.ParticipantJoin(ctx, bob, app.JoinRequest{Code: sess.Code, DisplayName: "Bob", UserID: "u2"}); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if err := engine.Start(ctx, host, sess.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.Submit(ctx, bob, app.Attempt{ItemIndex: 0, Answer: "4", ElapsedMs: 1000}); err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if err := engine.Submit(ctx, alice, app.Attempt{ItemIndex: 0, Answer: "3", ElapsedMs: 1000}); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	evt, ok := out.last(app.EventLeaderboard)
	if !ok {
		t.Fatalf("expected a leaderboard broadcast")
	}
	lb := evt.Payload.(domain.Leaderboard)
	if len(lb.Entries) != 2 || lb.Entries[0].DisplayName != "Bob" {
		t.Fatalf("expected bob leading, got %+v", lb.Entries)
	}
	engine.Shutdown()

	ids, err := primary.ActiveSessionIDs(ctx)
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != sess.ID {
		t.Fatalf("expected %s active, got %v", sess.ID, ids)
	}

	// A fresh process sees the stored state and keeps enforcing it.
	restarted := newEngine(infraredis.NewCachedStore(redisClient, primary, 5*time.Minute), &sink{})
	defer restarted.Shutdown()
	if err := restarted.Recover(ctx, sess.ID); err != nil {
		t.Fatalf("recover: %v", err)
	}
	bobAgain := app.NewConn("bob-conn-2")
	if err := restarted.ParticipantJoin(ctx, bobAgain, app.JoinRequest{Code: sess.Code, DisplayName: "Bob", UserID: "u2"}); err != nil {
		t.Fatalf("bob rejoin: %v", err)
	}
	if err := restarted.Submit(ctx, bobAgain, app.Attempt{ItemIndex: 0, Answer: "4"}); err == nil {
		t.Fatalf("expected duplicate answer to be rejected after restart")
	}
	if err := restarted.RecordViolation(ctx, sess.ID, app.ParticipantRef{UserID: "u1"}, app.ViolationReport{Type: "tab_switch", Severity: domain.SeverityHigh}); err != nil {
		t.Fatalf("record violation: %v", err)
	}

	stored, err := primary.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored.Participants) != 2 {
		t.Fatalf("expected two participants, got %d", len(stored.Participants))
	}
	alicePart := stored.FindParticipantByUser("u1")
	if alicePart == nil || len(alicePart.Violations) != 1 || alicePart.IntegrityScore >= 100 {
		t.Fatalf("expected alice's violation to be stored, got %+v", alicePart)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "arena", "POSTGRES_PASSWORD": "arenapass", "POSTGRES_DB": "arena"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://arena:arenapass@%s:%s/arena?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
