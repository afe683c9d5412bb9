// Package normalize maps heterogeneous per-track reporter output into the
// canonical result structure every caller consumes.
package normalize

import (
	"trialrun/internal/domain/execution"
	"trialrun/internal/report"
)

// Per-track metric keys the reporters emit as numbers. JSON decoding turns
// them into float64; they are coerced back to integral values so callers see
// counts as counts.
var integralMetrics = map[execution.Track][]string{
	execution.TrackRenderScript: {"load_time_ms", "element_count"},
	execution.TrackDataAnalysis: {"row_count", "column_count"},
	execution.TrackInfraCLI:     {"resource_count"},
}

// Normalize converts raw sandbox output into a canonical Result. It never
// fails: absent or unusable reporter output produces the deterministic
// degraded result, not an error the caller must handle separately.
func Normalize(track execution.Track, raw *execution.RawOutput, spec execution.TestSpec) execution.Result {
	result := execution.Result{
		MaxScore: spec.MaxScore(),
		Duration: raw.Duration,
	}

	if raw.TimedOut {
		result.Errors = append(result.Errors, execution.ErrorDetail{
			Type:    execution.ErrorKindTimeout,
			Message: "execution exceeded the wall-clock limit",
		})
	}
	if raw.OOMKilled {
		result.Errors = append(result.Errors, execution.ErrorDetail{
			Type:    execution.ErrorKindOOMKilled,
			Message: "execution exceeded the memory limit",
		})
	}

	payload, parseErr := parseReport(raw)
	if payload == nil {
		if parseErr != nil {
			result.Errors = append(result.Errors, execution.ErrorDetail{
				Type:    execution.ErrorKindReporter,
				Message: parseErr.Error(),
			})
		}
		if !raw.TimedOut && !raw.OOMKilled && raw.ExitCode != 0 {
			result.Errors = append(result.Errors, execution.ErrorDetail{
				Type:    execution.ErrorKindNonZeroExit,
				Message: "sandbox exited before the reporter produced output",
			})
		}
		result.Checks = failAllChecks(spec)
		return result
	}

	reported := make(map[string]report.Check, len(payload.Checks))
	for _, check := range payload.Checks {
		reported[check.Name] = check
	}

	allPassed := true
	result.Checks = make([]execution.CheckResult, len(spec.Checks))
	for idx, declared := range spec.Checks {
		outcome := execution.CheckResult{
			Name:   declared.Name,
			Points: declared.Points,
		}

		if check, ok := reported[declared.Name]; ok {
			outcome.Passed = check.Passed
			outcome.Error = check.Error
		} else {
			outcome.Error = "check was not evaluated"
		}

		if outcome.Passed {
			result.Score += declared.Points
		} else {
			allPassed = false
		}
		result.Checks[idx] = outcome
	}

	result.Metrics = mergeMetrics(track, payload)

	for _, detail := range payload.Errors {
		kind := detail.Type
		if kind == "" {
			kind = execution.ErrorKindReporter
		}
		result.Errors = append(result.Errors, execution.ErrorDetail{
			Type:    kind,
			Message: detail.Message,
		})
	}

	if !raw.TimedOut && !raw.OOMKilled && raw.ExitCode != 0 {
		result.Errors = append(result.Errors, execution.ErrorDetail{
			Type:    execution.ErrorKindNonZeroExit,
			Message: "sandbox exited with a non-zero status",
		})
	}

	result.Success = allPassed && len(result.Errors) == 0
	return result
}

// parseReport applies the strict incomplete-output rule: any reporter output
// that is not complete, well-formed JSON counts as no output at all.
func parseReport(raw *execution.RawOutput) (*report.Payload, error) {
	if raw.Report == nil {
		return nil, nil
	}
	return report.Parse(raw.Report)
}

func failAllChecks(spec execution.TestSpec) []execution.CheckResult {
	checks := make([]execution.CheckResult, len(spec.Checks))
	for idx, declared := range spec.Checks {
		checks[idx] = execution.CheckResult{
			Name:   declared.Name,
			Points: declared.Points,
			Error:  execution.IncompleteRunError,
		}
	}
	return checks
}

// mergeMetrics passes reporter metrics through verbatim and folds unknown
// top-level reporter fields in rather than dropping them.
func mergeMetrics(track execution.Track, payload *report.Payload) map[string]any {
	if len(payload.Metrics) == 0 && len(payload.Extra) == 0 {
		return nil
	}

	merged := make(map[string]any, len(payload.Metrics)+len(payload.Extra))
	for key, value := range payload.Metrics {
		merged[key] = value
	}
	for key, value := range payload.Extra {
		if _, exists := merged[key]; !exists {
			merged[key] = value
		}
	}

	for _, key := range integralMetrics[track] {
		if value, ok := merged[key].(float64); ok && value == float64(int64(value)) {
			merged[key] = int64(value)
		}
	}

	return merged
}
