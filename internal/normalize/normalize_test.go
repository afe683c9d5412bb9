package normalize

import (
	"testing"
	"time"

	"trialrun/internal/domain/execution"
)

func renderSpec() execution.TestSpec {
	return execution.TestSpec{
		Checks: []execution.CheckSpec{
			{Name: "has-landmark", Points: 3, Params: map[string]any{"selector": "main"}},
			{Name: "has-links", Points: 5, Params: map[string]any{"selector": "a", "count": 3}},
			{Name: "has-title", Points: 2, Params: map[string]any{"selector": "title"}},
		},
	}
}

func TestNormalizeAllChecksPassed(t *testing.T) {
	t.Parallel()

	raw := &execution.RawOutput{
		Report: []byte(`{
			"checks": [
				{"name": "has-landmark", "passed": true, "points": 3},
				{"name": "has-links", "passed": true, "points": 5},
				{"name": "has-title", "passed": true, "points": 2}
			],
			"metrics": {"load_time_ms": 42.0, "element_count": 17}
		}`),
		Duration: 1200 * time.Millisecond,
	}

	result := Normalize(execution.TrackRenderScript, raw, renderSpec())

	if !result.Success {
		t.Fatalf("expected success, got errors %v", result.Errors)
	}
	if result.Score != 10 || result.MaxScore != 10 {
		t.Fatalf("expected full score 10/10, got %d/%d", result.Score, result.MaxScore)
	}
	if len(result.Checks) != 3 {
		t.Fatalf("expected 3 check results, got %d", len(result.Checks))
	}
	if got, ok := result.Metrics["load_time_ms"].(int64); !ok || got != 42 {
		t.Fatalf("expected integral load_time_ms 42, got %v", result.Metrics["load_time_ms"])
	}
}

func TestNormalizePartialCredit(t *testing.T) {
	t.Parallel()

	raw := &execution.RawOutput{
		Report: []byte(`{
			"checks": [
				{"name": "has-landmark", "passed": true, "points": 3},
				{"name": "has-links", "passed": false, "points": 5, "error": "found 2 links, want 3"},
				{"name": "has-title", "passed": true, "points": 2}
			]
		}`),
	}

	result := Normalize(execution.TrackRenderScript, raw, renderSpec())

	if result.Success {
		t.Fatalf("expected failure with a failed check")
	}
	if result.Score != 5 {
		t.Fatalf("expected partial credit 5, got %d", result.Score)
	}
	if result.MaxScore != 10 {
		t.Fatalf("expected max score 10, got %d", result.MaxScore)
	}
	if result.Checks[1].Error != "found 2 links, want 3" {
		t.Fatalf("expected per-check error to be carried, got %q", result.Checks[1].Error)
	}
}

func TestNormalizeNoReportDegradesUniformly(t *testing.T) {
	t.Parallel()

	raw := &execution.RawOutput{
		ExitCode: 137,
		TimedOut: true,
	}

	result := Normalize(execution.TrackRenderScript, raw, renderSpec())

	if result.Success {
		t.Fatalf("expected failure without reporter output")
	}
	if result.Score != 0 {
		t.Fatalf("expected zero score, got %d", result.Score)
	}
	if result.MaxScore != 10 {
		t.Fatalf("max score must be declared independently of outcome, got %d", result.MaxScore)
	}
	if len(result.Checks) != 3 {
		t.Fatalf("expected every declared check present, got %d", len(result.Checks))
	}
	for _, check := range result.Checks {
		if check.Passed {
			t.Fatalf("check %q must not pass without reporter output", check.Name)
		}
		if check.Error != execution.IncompleteRunError {
			t.Fatalf("expected uniform error %q, got %q", execution.IncompleteRunError, check.Error)
		}
	}
	if len(result.Errors) == 0 || result.Errors[0].Type != execution.ErrorKindTimeout {
		t.Fatalf("expected timeout error entry, got %v", result.Errors)
	}
}

func TestNormalizeTruncatedReportTreatedAsFailed(t *testing.T) {
	t.Parallel()

	// Reporter killed mid-write: partial JSON must not be scored.
	raw := &execution.RawOutput{
		Report:   []byte(`{"checks":[{"name":"has-landmark","passed":true,`),
		ExitCode: 137,
	}

	result := Normalize(execution.TrackRenderScript, raw, renderSpec())

	if result.Score != 0 {
		t.Fatalf("partial reporter output must score zero, got %d", result.Score)
	}
	for _, check := range result.Checks {
		if check.Error != execution.IncompleteRunError {
			t.Fatalf("expected uniform incomplete error, got %q", check.Error)
		}
	}
	foundReporterError := false
	for _, detail := range result.Errors {
		if detail.Type == execution.ErrorKindReporter {
			foundReporterError = true
		}
	}
	if !foundReporterError {
		t.Fatalf("expected reporter parse error to surface, got %v", result.Errors)
	}
}

func TestNormalizeMissingCheckFails(t *testing.T) {
	t.Parallel()

	raw := &execution.RawOutput{
		Report: []byte(`{"checks":[{"name":"has-landmark","passed":true,"points":3}]}`),
	}

	result := Normalize(execution.TrackRenderScript, raw, renderSpec())

	if result.Score != 3 {
		t.Fatalf("expected only reported-passed points, got %d", result.Score)
	}
	if result.Checks[1].Passed || result.Checks[2].Passed {
		t.Fatalf("unreported checks must fail")
	}
	if result.Checks[1].Error != "check was not evaluated" {
		t.Fatalf("unexpected error %q", result.Checks[1].Error)
	}
}

func TestNormalizePreservesUnknownReporterFields(t *testing.T) {
	t.Parallel()

	raw := &execution.RawOutput{
		Report: []byte(`{
			"checks": [{"name": "row-count", "passed": true, "points": 4}],
			"metrics": {"row_count": 120.0},
			"pandas_version": "2.2.1"
		}`),
	}
	spec := execution.TestSpec{
		Checks: []execution.CheckSpec{{Name: "row-count", Points: 4}},
	}

	result := Normalize(execution.TrackDataAnalysis, raw, spec)

	if got, ok := result.Metrics["row_count"].(int64); !ok || got != 120 {
		t.Fatalf("expected integral row_count, got %v", result.Metrics["row_count"])
	}
	if got, ok := result.Metrics["pandas_version"].(string); !ok || got != "2.2.1" {
		t.Fatalf("expected unknown field preserved under metrics, got %v", result.Metrics["pandas_version"])
	}
}

func TestNormalizeNonZeroExitFailsDespitePassingChecks(t *testing.T) {
	t.Parallel()

	raw := &execution.RawOutput{
		Report:   []byte(`{"checks":[{"name":"row-count","passed":true,"points":4}]}`),
		ExitCode: 1,
	}
	spec := execution.TestSpec{
		Checks: []execution.CheckSpec{{Name: "row-count", Points: 4}},
	}

	result := Normalize(execution.TrackDataAnalysis, raw, spec)

	if result.Success {
		t.Fatalf("non-zero exit must not be a success")
	}
	if result.Score != 4 {
		t.Fatalf("independently passed checks keep their points, got %d", result.Score)
	}
	if len(result.Errors) != 1 || result.Errors[0].Type != execution.ErrorKindNonZeroExit {
		t.Fatalf("expected non-zero-exit error, got %v", result.Errors)
	}
}

func TestNormalizeScoreNeverExceedsMax(t *testing.T) {
	t.Parallel()

	// Reporter lies about points; declared spec points stay authoritative.
	raw := &execution.RawOutput{
		Report: []byte(`{"checks":[{"name":"row-count","passed":true,"points":9999}]}`),
	}
	spec := execution.TestSpec{
		Checks: []execution.CheckSpec{{Name: "row-count", Points: 4}},
	}

	result := Normalize(execution.TrackDataAnalysis, raw, spec)

	if result.Score != 4 || result.MaxScore != 4 {
		t.Fatalf("expected 4/4, got %d/%d", result.Score, result.MaxScore)
	}
	if result.Score > result.MaxScore {
		t.Fatalf("score %d exceeds max %d", result.Score, result.MaxScore)
	}
}

func TestNormalizeReporterErrorsAppended(t *testing.T) {
	t.Parallel()

	raw := &execution.RawOutput{
		Report: []byte(`{
			"checks": [{"name": "row-count", "passed": false, "points": 4}],
			"errors": [{"type": "runtime", "message": "KeyError: 'price'"}]
		}`),
	}
	spec := execution.TestSpec{
		Checks: []execution.CheckSpec{{Name: "row-count", Points: 4}},
	}

	result := Normalize(execution.TrackDataAnalysis, raw, spec)

	if len(result.Errors) != 1 {
		t.Fatalf("expected one error entry, got %v", result.Errors)
	}
	if result.Errors[0].Type != "runtime" || result.Errors[0].Message != "KeyError: 'price'" {
		t.Fatalf("unexpected error entry %v", result.Errors[0])
	}
}
