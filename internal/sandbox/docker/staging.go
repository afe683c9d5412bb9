package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
)

type fileSpec struct {
	Name string
	Mode int64
	Data []byte
}

// stageFiles copies the submission and test spec into the container workdir
// as a tar archive. Files are staged read-only so the sandbox cannot modify
// its own inputs.
func (r *Runner) stageFiles(ctx context.Context, containerID, workdir string, files []fileSpec) error {
	if len(files) == 0 {
		return nil
	}

	archive, err := makeArchive(files)
	if err != nil {
		return err
	}

	return r.cli.CopyToContainer(ctx, containerID, workdir, archive, types.CopyToContainerOptions{AllowOverwriteDirWithFile: true})
}

func makeArchive(files []fileSpec) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	now := time.Now()
	for _, file := range files {
		mode := file.Mode
		if mode == 0 {
			mode = 0o444
		}

		header := &tar.Header{
			Name:    file.Name,
			Mode:    mode,
			Size:    int64(len(file.Data)),
			ModTime: now,
		}

		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write tar contents: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), nil
}

// readReport copies the reporter's structured output out of the container.
// A missing file is not an error: it returns (nil, nil), the explicit
// no-structured-result marker the normalizer keys on.
func (r *Runner) readReport(ctx context.Context, containerID, srcPath string) ([]byte, error) {
	reader, _, err := r.cli.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		return nil, nil
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report archive: %w", err)
		}
		if header.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(io.LimitReader(tr, maxReportBytes+1))
			if err != nil {
				return nil, fmt.Errorf("read report contents: %w", err)
			}
			if int64(len(data)) > maxReportBytes {
				return nil, fmt.Errorf("report exceeds %d bytes", maxReportBytes)
			}
			return data, nil
		}
	}

	return nil, nil
}

// maxReportBytes bounds how much reporter output the engine will parse.
const maxReportBytes int64 = 1024 * 1024
