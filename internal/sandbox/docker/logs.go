package docker

import (
	"context"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// cappedBuffer retains at most cap bytes and records whether anything was
// discarded, so a runaway process cannot exhaust host memory through logs.
type cappedBuffer struct {
	mu        sync.Mutex
	limit     int64
	data      []byte
	truncated bool
}

func newCappedBuffer(limit int64) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - int64(len(b.data))
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.data = append(b.data, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *cappedBuffer) contents() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data), b.truncated
}

// logCollector streams the container's multiplexed output into capped
// buffers concurrently with execution. done closes when the stream ends, so
// the runner can always join deterministically instead of relying on
// callback ordering.
type logCollector struct {
	stdout *cappedBuffer
	stderr *cappedBuffer
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (r *Runner) collectLogs(ctx context.Context, containerID string, limit int64) *logCollector {
	collector := &logCollector{
		stdout: newCappedBuffer(limit),
		stderr: newCappedBuffer(limit),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(collector.done)

		logs, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			collector.setErr(err)
			return
		}
		defer logs.Close()

		if _, err := stdcopy.StdCopy(collector.stdout, collector.stderr, logs); err != nil {
			collector.setErr(err)
		}
	}()

	return collector
}

func (c *logCollector) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// join waits for the log stream to finish, bounded by grace. Returning after
// the grace period is acceptable: the buffers hold whatever arrived.
func (c *logCollector) join(grace time.Duration) {
	select {
	case <-c.done:
	case <-time.After(grace):
	}
}

func (c *logCollector) streamErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
