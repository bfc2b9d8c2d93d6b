package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator's file configuration. Every field has an
// environment override so containerized deploys can skip the file.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	NATS struct {
		URL        string `yaml:"url"`
		StreamName string `yaml:"stream_name"`
	} `yaml:"nats"`
	QuestionBank struct {
		BaseURL      string `yaml:"base_url"`
		APIKeyHeader string `yaml:"api_key_header"`
	} `yaml:"question_bank"`
}

func defaultConfig() *Config {
	var config Config
	config.Server.Port = "8080"
	config.NATS.URL = "nats://localhost:4222"
	config.NATS.StreamName = "ROOM_EVENTS"
	config.QuestionBank.BaseURL = "http://localhost:9090"
	config.QuestionBank.APIKeyHeader = "X-Api-Key"
	return &config
}

// loadConfig reads the YAML file at path on top of the defaults, then
// applies environment overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.QuestionBank.BaseURL = getEnv("QUESTION_BANK_URL", config.QuestionBank.BaseURL)

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
