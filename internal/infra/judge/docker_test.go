package judge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"live-arena-service/internal/domain"
)

// echoJudge "runs" programs by reading input.txt and applying fn to it.
func echoJudge(t *testing.T, fn func(input string) (execResult, error)) *DockerJudge {
	t.Helper()
	j := newJudge(Config{Workspace: t.TempDir(), CaseTimeout: time.Second, Parallelism: 3}, zerolog.Nop())
	j.exec = func(ctx context.Context, lang Language, dir string) (execResult, error) {
		if _, err := os.Stat(filepath.Join(dir, lang.Source)); err != nil {
			t.Errorf("source not written: %v", err)
		}
		input, err := os.ReadFile(filepath.Join(dir, inputFile))
		if err != nil {
			return execResult{}, err
		}
		return fn(string(input))
	}
	return j
}

func TestRunGradesEveryCase(t *testing.T) {
	j := echoJudge(t, func(input string) (execResult, error) {
		return execResult{stdout: strings.ToUpper(input) + "\n"}, nil
	})
	cases := []domain.TestCase{
		{Input: "abc", ExpectedOutput: "ABC"},
		{Input: "xyz", ExpectedOutput: "nope", Hidden: true},
		{Input: "q", ExpectedOutput: "Q\n"},
	}

	results, err := j.Run(context.Background(), "print(input().upper())", "py", cases)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !results[0].Passed || results[1].Passed || !results[2].Passed {
		t.Fatalf("unexpected verdicts %+v", results)
	}
	if !results[1].Hidden || results[1].ActualOutput != "XYZ\n" {
		t.Fatalf("expected hidden flag and output kept, got %+v", results[1])
	}
}

func TestRunReportsTimeoutsAndCrashesPerCase(t *testing.T) {
	j := echoJudge(t, func(input string) (execResult, error) {
		switch input {
		case "slow":
			return execResult{timedOut: true}, nil
		case "crash":
			return execResult{exitCode: 1, stderr: "Traceback: boom"}, nil
		case "daemon":
			return execResult{}, errors.New("container create: daemon unreachable")
		}
		return execResult{stdout: input}, nil
	})
	cases := []domain.TestCase{
		{Input: "slow", ExpectedOutput: "slow"},
		{Input: "crash", ExpectedOutput: "crash"},
		{Input: "daemon", ExpectedOutput: "daemon"},
		{Input: "ok", ExpectedOutput: "ok"},
	}

	results, err := j.Run(context.Background(), "code", "python", cases)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if results[0].Passed || !strings.Contains(results[0].Error, "time limit exceeded") {
		t.Fatalf("expected timeout failure, got %+v", results[0])
	}
	if results[1].Passed || !strings.Contains(results[1].Error, "exit code 1") {
		t.Fatalf("expected crash failure, got %+v", results[1])
	}
	if results[2].Passed || !strings.Contains(results[2].Error, "daemon unreachable") {
		t.Fatalf("expected daemon failure, got %+v", results[2])
	}
	if !results[3].Passed {
		t.Fatalf("healthy case must still pass: %+v", results[3])
	}
}

func TestRunHonoursParallelismLimit(t *testing.T) {
	var running, peak atomic.Int32
	j := echoJudge(t, func(input string) (execResult, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return execResult{stdout: input}, nil
	})
	cases := make([]domain.TestCase, 9)
	for i := range cases {
		cases[i] = domain.TestCase{Input: "x", ExpectedOutput: "x"}
	}
	if _, err := j.Run(context.Background(), "code", "go", cases); err != nil {
		t.Fatalf("run: %v", err)
	}
	if peak.Load() > 3 {
		t.Fatalf("ran %d cases at once, limit is 3", peak.Load())
	}
}

func TestRunRejectsUnknownLanguage(t *testing.T) {
	j := newJudge(Config{}, zerolog.Nop())
	_, err := j.Run(context.Background(), "code", "cobol", []domain.TestCase{{Input: "1"}})
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected unsupported language, got %v", err)
	}
}

func TestOutputsMatch(t *testing.T) {
	cases := []struct {
		actual, expected string
		want             bool
	}{
		{"42\n", "42", true},
		{"1 2  \r\n3\r\n", "1 2\n3", true},
		{"42", "43", false},
		{"a\n\nb", "a\nb", false},
	}
	for _, c := range cases {
		if got := OutputsMatch(c.actual, c.expected); got != c.want {
			t.Fatalf("OutputsMatch(%q, %q) = %v", c.actual, c.expected, got)
		}
	}
}

func TestLookupLanguageAliases(t *testing.T) {
	for _, name := range []string{"Python", "py", "JS", "c++", "golang"} {
		if _, ok := LookupLanguage(name); !ok {
			t.Fatalf("expected %q to resolve", name)
		}
	}
}
