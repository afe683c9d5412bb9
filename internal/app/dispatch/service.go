// Package dispatch is the engine's public entry point: it validates
// requests, admits them through the capacity controller, drives the sandbox
// runner and normalizes the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"

	"trialrun/internal/domain/execution"
	"trialrun/internal/normalize"
	"trialrun/internal/ports"
	"trialrun/internal/registry"
)

// Service coordinates sandboxed executions with bounded concurrency. The
// capacity semaphore is the sole serialization point between executions.
type Service struct {
	registry *registry.Registry
	runner   ports.SandboxRunner
	policy   execution.ResourcePolicy
	capacity int64
	slots    *semaphore.Weighted
	inUse    atomic.Int64
	inFlight *xsync.MapOf[string, LiveExecution]
	log      *slog.Logger
}

// LiveExecution describes one in-flight sandbox for introspection.
type LiveExecution struct {
	ID          string
	Track       execution.Track
	ChallengeID string
	StartedAt   time.Time
	Deadline    time.Time
}

// NewService constructs a Service with the given host capacity in concurrent
// sandboxes.
func NewService(reg *registry.Registry, runner ports.SandboxRunner, policy execution.ResourcePolicy, capacity int, log *slog.Logger) *Service {
	if capacity <= 0 {
		capacity = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		registry: reg,
		runner:   runner,
		policy:   policy.Normalize(),
		capacity: int64(capacity),
		slots:    semaphore.NewWeighted(int64(capacity)),
		inFlight: xsync.NewMapOf[string, LiveExecution](),
		log:      log,
	}
}

// Execute runs one submission end to end and returns the canonical result.
//
// User-code outcomes (timeout, crash, failed checks, missing reporter
// output) are returned as a Result with Success=false, never as an error.
// Errors are reserved for request validation, capacity rejection and
// infrastructure faults.
func (s *Service) Execute(ctx context.Context, req execution.Request) (execution.Result, error) {
	if err := validate(req); err != nil {
		return execution.Result{}, err
	}

	image, err := s.registry.ImageFor(req.Track)
	if err != nil {
		return execution.Result{}, err
	}

	admitCtx, cancelAdmit := context.WithTimeout(ctx, s.policy.AdmissionTimeout)
	err = s.slots.Acquire(admitCtx, 1)
	cancelAdmit()
	if err != nil {
		if ctx.Err() != nil {
			return execution.Result{}, ctx.Err()
		}
		return execution.Result{}, fmt.Errorf("no slot free within %s: %w", s.policy.AdmissionTimeout, execution.ErrCapacityExceeded)
	}

	id := uuid.NewString()
	started := time.Now()
	s.inUse.Add(1)

	// Slot release and tracker removal share one deferred scope with the
	// runner's own container teardown: a panic mid-execution cannot leak a
	// held slot.
	defer func() {
		s.inFlight.Delete(id)
		s.inUse.Add(-1)
		s.slots.Release(1)
	}()

	s.inFlight.Store(id, LiveExecution{
		ID:          id,
		Track:       req.Track,
		ChallengeID: req.ChallengeID,
		StartedAt:   started,
		Deadline:    started.Add(s.policy.WallClockLimit),
	})

	raw, err := s.runSandbox(ctx, image, req)
	if err != nil {
		return execution.Result{}, err
	}

	result := normalize.Normalize(req.Track, raw, req.TestSpec)
	s.log.Info("execution finished",
		"id", id,
		"challenge", req.ChallengeID,
		"track", req.Track,
		"success", result.Success,
		"score", result.Score,
		"max_score", result.MaxScore,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

// runSandbox isolates the runner call so a panic inside it surfaces as a
// RunnerFault instead of unwinding through Execute.
func (s *Service) runSandbox(ctx context.Context, image registry.Image, req execution.Request) (raw *execution.RawOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &execution.RunnerFault{Op: "run sandbox", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return s.runner.Run(ctx, image, req.Source, req.TestSpec, s.policy)
}

// ExecuteFromSource pulls submissions from the supplied source until it is
// drained or the context ends. Each submission runs on its own goroutine;
// admission control inside Execute bounds how many sandboxes actually run.
//
// If maxRequests is greater than zero the loop stops after that many
// submissions. onReport, when provided, receives every run report.
func (s *Service) ExecuteFromSource(
	ctx context.Context,
	source ports.RequestSource,
	maxRequests int,
	onReport func(execution.RunReport),
) error {
	var wg sync.WaitGroup
	processed := 0

	finish := func(err error) error {
		wg.Wait()
		return err
	}

	for {
		if maxRequests > 0 && processed >= maxRequests {
			return finish(nil)
		}

		sub, err := source.NextSubmission(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return finish(nil)
			}
			return finish(fmt.Errorf("next submission: %w", err))
		}

		wg.Add(1)
		processed++
		go func(sub ports.Submission) {
			defer wg.Done()

			report := execution.RunReport{
				ID:      sub.ID,
				Request: sub.Request,
			}
			if report.ID == "" {
				report.ID = uuid.NewString()
			}

			result, err := s.Execute(ctx, sub.Request)
			if err != nil {
				report.Err = err
			} else {
				report.Result = &result
			}

			if onReport != nil {
				onReport(report)
			}
		}(sub)
	}
}

// WarmImages pre-pulls every registered execution image so the first
// submission on each track does not pay the pull latency.
func (s *Service) WarmImages(ctx context.Context) error {
	return s.runner.EnsureAll(ctx, s.registry.Images())
}

// Close releases the underlying sandbox runner.
func (s *Service) Close() error {
	return s.runner.Close()
}

func validate(req execution.Request) error {
	if !req.Track.Valid() {
		return &execution.ValidationError{Field: "track", Reason: fmt.Sprintf("unknown track %q", req.Track)}
	}
	if req.Source == "" {
		return &execution.ValidationError{Field: "source", Reason: "must not be empty"}
	}
	if len(req.Source) > execution.MaxSourceBytes {
		return &execution.ValidationError{
			Field:  "source",
			Reason: fmt.Sprintf("exceeds %d byte cap", execution.MaxSourceBytes),
		}
	}
	if len(req.TestSpec.Checks) == 0 {
		return &execution.ValidationError{Field: "testSpec", Reason: "must declare at least one check"}
	}
	return nil
}
