// Package config loads the engine configuration: track images, the resource
// policy and transport settings. The file is TOML; scalar fields can be
// overridden from the environment by the daemon.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"trialrun/internal/domain/execution"
	"trialrun/internal/registry"
)

// Config is the full engine configuration.
type Config struct {
	// Capacity is the number of concurrent sandboxes the host admits.
	Capacity int `toml:"capacity"`
	// ListenAddr is where the status HTTP API binds.
	ListenAddr string `toml:"listen_addr"`

	Kafka  Kafka   `toml:"kafka"`
	Policy Policy  `toml:"policy"`
	Tracks []Track `toml:"tracks"`
}

// Kafka holds transport settings.
type Kafka struct {
	Brokers       []string `toml:"brokers"`
	RequestsTopic string   `toml:"requests_topic"`
	ResultsTopic  string   `toml:"results_topic"`
	GroupID       string   `toml:"group_id"`
}

// Policy mirrors execution.ResourcePolicy in file-friendly units.
type Policy struct {
	MemoryLimitMB    int64    `toml:"memory_limit_mb"`
	CPUMillicores    int64    `toml:"cpu_millicores"`
	WallClockLimit   duration `toml:"wall_clock_limit"`
	PidsLimit        int64    `toml:"pids_limit"`
	LogCaptureKB     int64    `toml:"log_capture_kb"`
	ScratchSizeMB    int64    `toml:"scratch_size_mb"`
	User             string   `toml:"user"`
	AdmissionTimeout duration `toml:"admission_timeout"`
}

// Track declares one execution image.
type Track struct {
	Track          string   `toml:"track"`
	Image          string   `toml:"image"`
	Workdir        string   `toml:"workdir"`
	SourceFilename string   `toml:"source_filename"`
	Command        []string `toml:"command"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Capacity:   4,
		ListenAddr: ":8080",
		Kafka: Kafka{
			Brokers:       []string{"localhost:9092"},
			RequestsTopic: "executions",
			ResultsTopic:  "execution-results",
			GroupID:       "trialrun-engine",
		},
	}
}

// Load reads a TOML configuration file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("config: capacity must not be negative")
	}
	seen := make(map[string]bool, len(c.Tracks))
	for _, track := range c.Tracks {
		if _, err := execution.ParseTrack(track.Track); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if track.Image == "" {
			return fmt.Errorf("config: track %q missing image", track.Track)
		}
		if seen[track.Track] {
			return fmt.Errorf("config: duplicate track %q", track.Track)
		}
		seen[track.Track] = true
	}
	return nil
}

// ResourcePolicy converts the file units into the domain policy, with
// defaults filling anything left unset.
func (c Config) ResourcePolicy() execution.ResourcePolicy {
	policy := execution.ResourcePolicy{
		MemoryLimitBytes: c.Policy.MemoryLimitMB * 1024 * 1024,
		NanoCPUs:         c.Policy.CPUMillicores * 1_000_000,
		WallClockLimit:   c.Policy.WallClockLimit.Duration,
		PidsLimit:        c.Policy.PidsLimit,
		LogCaptureBytes:  c.Policy.LogCaptureKB * 1024,
		ScratchSizeBytes: c.Policy.ScratchSizeMB * 1024 * 1024,
		User:             c.Policy.User,
		AdmissionTimeout: c.Policy.AdmissionTimeout.Duration,
	}
	return policy.Normalize()
}

// RegistryImages converts the declared tracks into registry images.
func (c Config) RegistryImages() []registry.Image {
	images := make([]registry.Image, 0, len(c.Tracks))
	for _, track := range c.Tracks {
		images = append(images, registry.Image{
			Track:          execution.Track(track.Track),
			Ref:            track.Image,
			Workdir:        track.Workdir,
			SourceFilename: track.SourceFilename,
			Command:        track.Command,
		})
	}
	return images
}
