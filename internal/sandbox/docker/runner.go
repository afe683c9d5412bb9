// Package docker implements the sandbox runner on the Docker Engine API.
// Every execution gets its own ephemeral container with the resource policy
// applied; teardown is unconditional on every exit path.
package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	typesimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"trialrun/internal/domain/execution"
	"trialrun/internal/registry"
	"trialrun/internal/report"
)

const (
	// createRetryBackoff is slept before the single retry of container
	// creation. Only creation is retried: once untrusted code may have run,
	// retrying would change observable behavior.
	createRetryBackoff = 300 * time.Millisecond
	// killWaitTimeout bounds how long the runner waits for a force-killed
	// container to report its exit.
	killWaitTimeout = 10 * time.Second
	// logJoinGrace bounds the wait for the log stream to drain after exit.
	logJoinGrace = 3 * time.Second
)

// Runner executes submissions in disposable Docker containers.
type Runner struct {
	cli dockerClient
	log *slog.Logger

	mu    sync.Mutex
	pulls map[string]*imagePull
}

type imagePull struct {
	once sync.Once
	err  error
	done bool
}

// New constructs a Runner talking to the daemon configured in the
// environment.
func New(log *slog.Logger) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox runner: create docker client: %w", err)
	}
	return newRunnerWithClient(cli, log), nil
}

func newRunnerWithClient(cli dockerClient, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		cli:   cli,
		log:   log,
		pulls: make(map[string]*imagePull),
	}
}

// Close releases the Docker client.
func (r *Runner) Close() error {
	return r.cli.Close()
}

// Run stages the submission into a fresh container, applies the resource
// policy, races completion against the wall-clock deadline and returns
// whatever the sandbox produced. The container is removed before Run
// returns on every path, including caller cancellation.
func (r *Runner) Run(
	ctx context.Context,
	image registry.Image,
	source string,
	spec execution.TestSpec,
	policy execution.ResourcePolicy,
) (*execution.RawOutput, error) {
	policy = policy.Normalize()

	if err := r.ensureImage(ctx, image.Ref); err != nil {
		return nil, &execution.RunnerFault{Op: "pull image", Err: err}
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, &execution.RunnerFault{Op: "encode test spec", Err: err}
	}

	containerID, cleanup, err := r.createContainer(ctx, image, policy)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	err = r.stageFiles(ctx, containerID, image.Workdir, []fileSpec{
		{Name: image.SourceFilename, Mode: 0o444, Data: []byte(source)},
		{Name: report.SpecFilename, Mode: 0o444, Data: specJSON},
	})
	if err != nil {
		return nil, &execution.RunnerFault{Op: "stage submission", Err: err}
	}

	start := time.Now()
	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, &execution.RunnerFault{Op: "start container", Err: err}
	}

	logs := r.collectLogs(ctx, containerID, policy.LogCaptureBytes)

	waitCtx, cancelWait := context.WithTimeout(ctx, policy.WallClockLimit)
	status, waitErr := r.waitForExit(waitCtx, containerID)
	cancelWait()

	if waitErr != nil {
		if ctx.Err() != nil {
			// Caller cancellation follows the same forced-termination path
			// as timeout; the deferred cleanup removes the container.
			r.forceKill(containerID)
			logs.join(logJoinGrace)
			return nil, ctx.Err()
		}
		if errors.Is(waitErr, context.DeadlineExceeded) {
			return r.finishTimedOut(containerID, logs, start)
		}
		return nil, &execution.RunnerFault{Op: "wait for container", Err: waitErr}
	}

	logs.join(logJoinGrace)
	return r.finish(ctx, containerID, logs, status.StatusCode, false, start)
}

// EnsureAll pre-pulls every supplied image so the first submission on each
// track does not pay the pull latency. Failures are collected, not fatal:
// an image missing at boot may be pushed later and is retried on first use.
func (r *Runner) EnsureAll(ctx context.Context, images []registry.Image) error {
	var errs []error
	for _, img := range images {
		if err := r.ensureImage(ctx, img.Ref); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ImageReady reports whether the image has been pulled successfully.
func (r *Runner) ImageReady(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pull, ok := r.pulls[ref]
	return ok && pull.done
}

func (r *Runner) ensureImage(ctx context.Context, ref string) error {
	r.mu.Lock()
	pull, ok := r.pulls[ref]
	if !ok {
		pull = &imagePull{}
		r.pulls[ref] = pull
	}
	r.mu.Unlock()

	pull.once.Do(func() {
		reader, err := r.cli.ImagePull(ctx, ref, typesimage.PullOptions{})
		if err != nil {
			pull.err = fmt.Errorf("pull image %s: %w", ref, err)
			return
		}
		defer reader.Close()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			pull.err = fmt.Errorf("consume pull output for %s: %w", ref, err)
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if pull.err != nil {
		// Drop the failed entry so a later execution retries the pull
		// instead of inheriting a stale error forever.
		if r.pulls[ref] == pull {
			delete(r.pulls, ref)
		}
		return pull.err
	}
	pull.done = true
	return nil
}

func (r *Runner) createContainer(ctx context.Context, image registry.Image, policy execution.ResourcePolicy) (string, func(), error) {
	config := &container.Config{
		Image:        image.Ref,
		Cmd:          image.Command,
		WorkingDir:   image.Workdir,
		User:         policy.User,
		AttachStdout: true,
		AttachStderr: true,
		Env: []string{
			"TRIALRUN_REPORT_PATH=" + report.Path,
			"TRIALRUN_SPEC_PATH=" + image.Workdir + "/" + report.SpecFilename,
		},
		// Both the workdir and the scratch area are anonymous volumes. The
		// rootfs is read-only and the daemon only permits copy-in to a mount,
		// so staging into a plain rootfs path would be rejected before start.
		Volumes: map[string]struct{}{
			image.Workdir: {},
			scratchDir:    {},
		},
	}
	hostConfig := hardenedHostConfig(policy)

	resp, err := r.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		// One retry for transient daemon contention only.
		r.log.Warn("container create failed, retrying once", "image", image.Ref, "error", err)
		select {
		case <-time.After(createRetryBackoff):
		case <-ctx.Done():
			return "", nil, &execution.RunnerFault{Op: "create container", Err: ctx.Err()}
		}
		resp, err = r.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
		if err != nil {
			return "", nil, &execution.RunnerFault{Op: "create container", Err: err}
		}
	}

	cleanup := func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := r.cli.ContainerRemove(removeCtx, resp.ID, container.RemoveOptions{
			Force:         true,
			RemoveVolumes: true,
		})
		if err != nil && !client.IsErrNotFound(err) {
			r.log.Error("container remove failed", "container", resp.ID, "error", err)
		}
	}

	return resp.ID, cleanup, nil
}

func (r *Runner) waitForExit(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := r.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Runner) forceKill(containerID string) {
	killCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.cli.ContainerKill(killCtx, containerID, "SIGKILL"); err != nil && !client.IsErrNotFound(err) {
		r.log.Error("container kill failed", "container", containerID, "error", err)
	}
}

// finishTimedOut hard-kills the container, waits a bounded time for it to
// die and salvages whatever logs and reporter output exist.
func (r *Runner) finishTimedOut(containerID string, logs *logCollector, start time.Time) (*execution.RawOutput, error) {
	r.forceKill(containerID)

	waitCtx, cancel := context.WithTimeout(context.Background(), killWaitTimeout)
	status, waitErr := r.waitForExit(waitCtx, containerID)
	cancel()
	if waitErr != nil && !errors.Is(waitErr, context.DeadlineExceeded) && !client.IsErrNotFound(waitErr) {
		return nil, &execution.RunnerFault{Op: "wait after kill", Err: waitErr}
	}

	logs.join(logJoinGrace)

	exitCode := int64(-1)
	if status != nil {
		exitCode = status.StatusCode
	}
	return r.finish(context.Background(), containerID, logs, exitCode, true, start)
}

func (r *Runner) finish(
	ctx context.Context,
	containerID string,
	logs *logCollector,
	exitCode int64,
	timedOut bool,
	start time.Time,
) (*execution.RawOutput, error) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}

	oomKilled := false
	inspect, err := r.cli.ContainerInspect(ctx, containerID)
	if err == nil && inspect.State != nil {
		oomKilled = inspect.State.OOMKilled
	}

	reportData, err := r.readReport(ctx, containerID, report.Path)
	if err != nil {
		// Oversized or unreadable reporter output degrades to "no structured
		// result" rather than failing the whole execution.
		r.log.Warn("reporter output unusable", "container", containerID, "error", err)
		reportData = nil
	}

	stdout, stdoutTruncated := logs.stdout.contents()
	stderr, stderrTruncated := logs.stderr.contents()
	if streamErr := logs.streamErr(); streamErr != nil {
		r.log.Warn("log stream ended with error", "container", containerID, "error", streamErr)
	}

	return &execution.RawOutput{
		Stdout:          stdout,
		Stderr:          stderr,
		StdoutTruncated: stdoutTruncated,
		StderrTruncated: stderrTruncated,
		Report:          reportData,
		ExitCode:        exitCode,
		TimedOut:        timedOut,
		OOMKilled:       oomKilled,
		Duration:        time.Since(start),
	}, nil
}
