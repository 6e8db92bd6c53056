// Package judge runs contest submissions against their test cases in
// throwaway Docker containers.
package judge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"live-arena-service/internal/domain"
	"live-arena-service/internal/metrics"
)

const (
	containerWorkdir = "/workspace"
	inputFile        = "input.txt"
	maxErrorLength   = 512
)

// ErrUnsupportedLanguage is returned for languages without a sandbox image.
var ErrUnsupportedLanguage = errors.New("unsupported language")

type Config struct {
	Host string
	// CaseTimeout bounds one test case, compile time included.
	CaseTimeout   time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	// Workspace is a host directory the daemon can bind-mount.
	Workspace   string
	Parallelism int
}

type execResult struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
}

// DockerJudge implements the engine's judge with one container per test case.
type DockerJudge struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger

	// exec runs a prepared case directory; swapped in tests.
	exec func(ctx context.Context, lang Language, dir string) (execResult, error)
}

func NewDockerJudge(cfg Config, logger zerolog.Logger) (*DockerJudge, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	j := newJudge(cfg, logger)
	j.client = cli
	j.exec = j.runContainer
	return j, nil
}

func newJudge(cfg Config, logger zerolog.Logger) *DockerJudge {
	if cfg.CaseTimeout <= 0 {
		cfg.CaseTimeout = 10 * time.Second
	}
	if cfg.Workspace == "" {
		cfg.Workspace = os.TempDir()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	return &DockerJudge{
		cfg:    cfg,
		tracer: otel.Tracer("live-arena-service/internal/infra/judge"),
		logger: logger.With().Str("component", "judge").Logger(),
	}
}

// Run judges code against every case. Per-case failures, timeouts included,
// are reported on the case; only an unknown language fails the whole run.
func (j *DockerJudge) Run(parent context.Context, code, language string, cases []domain.TestCase) ([]domain.TestResult, error) {
	lang, ok := LookupLanguage(language)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	ctx, span := j.tracer.Start(parent, "judge.run", trace.WithAttributes(
		attribute.String("judge.language", language),
		attribute.Int("judge.cases", len(cases)),
	))
	defer span.End()
	start := time.Now()

	results := make([]domain.TestResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Parallelism)
	for i, tc := range cases {
		g.Go(func() error {
			results[i] = j.runCase(gctx, lang, code, tc)
			return nil
		})
	}
	_ = g.Wait()

	metrics.ObserveJudge(language, time.Since(start).Seconds())
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return results, nil
}

func (j *DockerJudge) runCase(ctx context.Context, lang Language, code string, tc domain.TestCase) domain.TestResult {
	res := domain.TestResult{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput, Hidden: tc.Hidden}

	dir, err := os.MkdirTemp(j.cfg.Workspace, "case-")
	if err != nil {
		res.Error = fmt.Sprintf("prepare workspace: %v", err)
		return res
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, lang.Source), []byte(code), 0o644); err != nil {
		res.Error = fmt.Sprintf("write source: %v", err)
		return res
	}
	if err := os.WriteFile(filepath.Join(dir, inputFile), []byte(tc.Input), 0o644); err != nil {
		res.Error = fmt.Sprintf("write input: %v", err)
		return res
	}

	caseCtx, cancel := context.WithTimeout(ctx, j.cfg.CaseTimeout)
	defer cancel()
	out, err := j.exec(caseCtx, lang, dir)
	switch {
	case out.timedOut:
		res.Error = fmt.Sprintf("time limit exceeded (%s)", j.cfg.CaseTimeout)
	case err != nil:
		res.Error = err.Error()
	case out.exitCode != 0:
		res.ActualOutput = out.stdout
		res.Error = truncate(fmt.Sprintf("exit code %d: %s", out.exitCode, strings.TrimSpace(out.stderr)))
	default:
		res.ActualOutput = out.stdout
		res.Passed = OutputsMatch(out.stdout, tc.ExpectedOutput)
	}
	return res
}

func (j *DockerJudge) runContainer(ctx context.Context, lang Language, dir string) (execResult, error) {
	ctx, span := j.tracer.Start(ctx, "judge.container", trace.WithAttributes(attribute.String("docker.image", lang.Image)))
	defer span.End()

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    j.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: j.cfg.CPUShares,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: dir,
			Target: containerWorkdir,
		}},
	}
	cfg := &container.Config{
		Image:           lang.Image,
		Cmd:             []string{"sh", "-c", lang.Run + " < " + inputFile},
		WorkingDir:      containerWorkdir,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}

	resp, err := j.client.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return execResult{}, fmt.Errorf("container create: %w", err)
	}
	id := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.client.ContainerRemove(removeCtx, id, container.RemoveOptions{Force: true}); err != nil {
			j.logger.Error().Err(err).Str("container_id", id).Msg("failed to remove container")
		}
	}()

	if err := j.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return execResult{}, fmt.Errorf("container start: %w", err)
	}

	var out execResult
	statusCh, errCh := j.client.ContainerWait(ctx, id, container.WaitConditionNextExit)
	select {
	case status := <-statusCh:
		out.exitCode = int(status.StatusCode)
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return out, fmt.Errorf("container wait: %w", err)
		}
		out.timedOut = true
	case <-ctx.Done():
		out.timedOut = true
	}

	if out.timedOut {
		killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := j.client.ContainerKill(killCtx, id, "KILL"); err != nil {
			j.logger.Warn().Err(err).Str("container_id", id).Msg("failed to kill timed out container")
		}
		span.SetStatus(codes.Error, "time limit exceeded")
		return out, nil
	}

	logs, err := j.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return out, fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return out, fmt.Errorf("read logs: %w", err)
	}
	out.stdout = stdout.String()
	out.stderr = stderr.String()
	return out, nil
}

// Close releases the Docker client.
func (j *DockerJudge) Close() error {
	if j.client == nil {
		return nil
	}
	return j.client.Close()
}

// OutputsMatch compares program output line by line, ignoring trailing
// whitespace and a trailing newline.
func OutputsMatch(actual, expected string) bool {
	return normalizeOutput(actual) == normalizeOutput(expected)
}

func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(strings.TrimRight(s, "\n \t"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func truncate(s string) string {
	if len(s) <= maxErrorLength {
		return s
	}
	return s[:maxErrorLength] + "..."
}
