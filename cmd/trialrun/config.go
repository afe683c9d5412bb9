package main

import (
	"os"
	"strconv"
	"strings"

	"trialrun/internal/config"
)

const (
	defaultConfigPath = "trialrun.toml"
)

// loadConfig reads the TOML file (when present) and applies environment
// overrides for the settings that differ per deployment.
func loadConfig() (config.Config, error) {
	path := envOrDefault("TRIALRUN_CONFIG", defaultConfigPath)

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = parseBrokerList(brokers)
	}
	cfg.Kafka.RequestsTopic = envOrDefault("KAFKA_REQUESTS_TOPIC", cfg.Kafka.RequestsTopic)
	cfg.Kafka.ResultsTopic = envOrDefault("KAFKA_RESULTS_TOPIC", cfg.Kafka.ResultsTopic)
	cfg.Kafka.GroupID = envOrDefault("KAFKA_GROUP_ID", cfg.Kafka.GroupID)
	cfg.ListenAddr = envOrDefault("TRIALRUN_LISTEN_ADDR", cfg.ListenAddr)

	if capacity := parsePositiveInt(os.Getenv("TRIALRUN_CAPACITY")); capacity > 0 {
		cfg.Capacity = capacity
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBrokerList(raw string) []string {
	fields := strings.Split(raw, ",")
	brokers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func parsePositiveInt(raw string) int {
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
