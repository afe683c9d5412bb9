// Command trialrun-cli runs a single submission through the full engine
// against the local Docker daemon. Intended for challenge authors validating
// test specs and images without the Kafka pipeline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"trialrun/internal/app/dispatch"
	"trialrun/internal/domain/execution"
	"trialrun/internal/registry"
	dockersandbox "trialrun/internal/sandbox/docker"
)

var defaultImages = map[execution.Track]string{
	execution.TrackRenderScript: "trialrun/render-script:latest",
	execution.TrackDataAnalysis: "trialrun/data-analysis:latest",
	execution.TrackInfraCLI:     "trialrun/infra-cli:latest",
}

var defaultSourceFilenames = map[execution.Track]string{
	execution.TrackRenderScript: "index.html",
	execution.TrackDataAnalysis: "analysis.py",
	execution.TrackInfraCLI:     "main.sh",
}

func main() {
	cmd := &cli.Command{
		Name:  "trialrun-cli",
		Usage: "run one challenge submission in the local sandbox",
		Commands: []*cli.Command{
			runCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(2)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute a submission and print the scored result",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "track", Usage: "render-script | data-analysis | infra-cli", Required: true},
			&cli.StringFlag{Name: "source", Usage: "path to the submission file", Required: true},
			&cli.StringFlag{Name: "spec", Usage: "path to the test spec JSON file", Required: true},
			&cli.StringFlag{Name: "image", Usage: "override the track's execution image"},
			&cli.DurationFlag{Name: "timeout", Usage: "wall-clock limit", Value: 30 * time.Second},
			&cli.Int64Flag{Name: "memory-mb", Usage: "memory ceiling in MiB", Value: 256},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	track, err := execution.ParseTrack(cmd.String("track"))
	if err != nil {
		return err
	}

	source, err := os.ReadFile(cmd.String("source"))
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	spec, err := loadTestSpec(cmd.String("spec"))
	if err != nil {
		return err
	}

	imageRef := cmd.String("image")
	if imageRef == "" {
		imageRef = defaultImages[track]
	}

	reg, err := registry.New(registry.Image{
		Track:          track,
		Ref:            imageRef,
		SourceFilename: defaultSourceFilenames[track],
	})
	if err != nil {
		return err
	}

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))

	runner, err := dockersandbox.New(log)
	if err != nil {
		return err
	}

	policy := execution.DefaultResourcePolicy()
	policy.WallClockLimit = cmd.Duration("timeout")
	policy.MemoryLimitBytes = cmd.Int64("memory-mb") * 1024 * 1024

	service := dispatch.NewService(reg, runner, policy, 1, log)
	defer service.Close()

	result, err := service.Execute(ctx, execution.Request{
		Track:    track,
		Source:   string(source),
		TestSpec: spec,
	})
	if err != nil {
		return fmt.Errorf("the sandbox could not run the submission: %w", err)
	}

	printResult(result)

	if !result.Success {
		return cli.Exit("", 1)
	}
	return nil
}

func loadTestSpec(path string) (execution.TestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return execution.TestSpec{}, fmt.Errorf("read test spec: %w", err)
	}

	var spec execution.TestSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return execution.TestSpec{}, fmt.Errorf("parse test spec: %w", err)
	}
	return spec, nil
}

func printResult(result execution.Result) {
	pass := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, check := range result.Checks {
		if check.Passed {
			fmt.Printf("%s %s %s\n", pass("PASS"), check.Name, dim(fmt.Sprintf("(%d pts)", check.Points)))
			continue
		}
		line := fmt.Sprintf("%s %s %s", fail("FAIL"), check.Name, dim(fmt.Sprintf("(%d pts)", check.Points)))
		if check.Error != "" {
			line += " " + dim(check.Error)
		}
		fmt.Println(line)
	}

	for _, detail := range result.Errors {
		fmt.Printf("%s [%s] %s\n", fail("ERR "), detail.Type, detail.Message)
	}

	verdict := fail("FAILED")
	if result.Success {
		verdict = pass("PASSED")
	}
	fmt.Printf("\n%s  score %d/%d  in %s\n", verdict, result.Score, result.MaxScore, result.Duration.Round(time.Millisecond))
}
