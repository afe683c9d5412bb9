package execution

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseTrack(t *testing.T) {
	t.Parallel()

	for _, track := range Tracks() {
		parsed, err := ParseTrack(string(track))
		if err != nil {
			t.Fatalf("ParseTrack(%q) returned error: %v", track, err)
		}
		if parsed != track {
			t.Fatalf("ParseTrack(%q) = %q", track, parsed)
		}
	}

	if _, err := ParseTrack("quantum-basic"); err == nil {
		t.Fatalf("expected error for unknown track")
	}
	if _, err := ParseTrack(""); err == nil {
		t.Fatalf("expected error for empty track")
	}
	if Track("Render-Script").Valid() {
		t.Fatalf("track identifiers are case-sensitive")
	}
}

func TestMaxScore(t *testing.T) {
	t.Parallel()

	spec := TestSpec{Checks: []CheckSpec{
		{Name: "a", Points: 3},
		{Name: "b", Points: 5},
		{Name: "c", Points: 0},
	}}
	if got := spec.MaxScore(); got != 8 {
		t.Fatalf("MaxScore = %d, want 8", got)
	}
	if got := (TestSpec{}).MaxScore(); got != 0 {
		t.Fatalf("empty spec MaxScore = %d, want 0", got)
	}
}

func TestPolicyNormalizeClampsToDefaults(t *testing.T) {
	t.Parallel()

	defaults := DefaultResourcePolicy()

	// A zero policy must not disable any limit.
	normalized := (ResourcePolicy{}).Normalize()
	if normalized != defaults {
		t.Fatalf("zero policy must normalize to defaults, got %+v", normalized)
	}

	negative := ResourcePolicy{
		MemoryLimitBytes: -1,
		WallClockLimit:   -time.Second,
		PidsLimit:        -5,
	}.Normalize()
	if negative.MemoryLimitBytes != defaults.MemoryLimitBytes {
		t.Fatalf("negative memory limit must clamp, got %d", negative.MemoryLimitBytes)
	}
	if negative.WallClockLimit != defaults.WallClockLimit {
		t.Fatalf("negative wall clock must clamp, got %s", negative.WallClockLimit)
	}
	if negative.PidsLimit != defaults.PidsLimit {
		t.Fatalf("negative pids limit must clamp, got %d", negative.PidsLimit)
	}

	custom := ResourcePolicy{MemoryLimitBytes: 512 * 1024 * 1024}.Normalize()
	if custom.MemoryLimitBytes != 512*1024*1024 {
		t.Fatalf("explicit values must survive normalization, got %d", custom.MemoryLimitBytes)
	}
}

func TestRunnerFaultUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("daemon down")
	fault := &RunnerFault{Op: "create container", Err: cause}

	if !errors.Is(fault, cause) {
		t.Fatalf("RunnerFault must unwrap its cause")
	}
	wrapped := fmt.Errorf("execute: %w", fault)
	var target *RunnerFault
	if !errors.As(wrapped, &target) {
		t.Fatalf("RunnerFault must be matchable through wrapping")
	}
}

func TestIsUserOutcome(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"runner fault", &RunnerFault{Op: "start", Err: errors.New("x")}, false},
		{"image not found", &ImageNotFoundError{Track: TrackInfraCLI}, false},
		{"validation", &ValidationError{Field: "source", Reason: "empty"}, false},
		{"capacity", fmt.Errorf("admit: %w", ErrCapacityExceeded), false},
		{"plain error", errors.New("reporter said no"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUserOutcome(tc.err); got != tc.want {
				t.Fatalf("IsUserOutcome(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
