package memory

import (
	"context"
	"strings"

	"live-arena-service/internal/domain"
)

// StaticJudge compares submitted code against expected outputs without
// running it. Submissions whose code contains a case's expected output
// pass that case; tests and local demos use it in place of a sandbox.
type StaticJudge struct {
	Err error
}

func (j StaticJudge) Run(ctx context.Context, code, _ string, cases []domain.TestCase) ([]domain.TestResult, error) {
	if j.Err != nil {
		return nil, j.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.TestResult, len(cases))
	for i, tc := range cases {
		passed := strings.Contains(code, strings.TrimSpace(tc.ExpectedOutput))
		actual := ""
		if passed {
			actual = tc.ExpectedOutput
		}
		out[i] = domain.TestResult{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   actual,
			Passed:         passed,
			Hidden:         tc.Hidden,
		}
	}
	return out, nil
}
