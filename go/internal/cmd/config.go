package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration, loaded from an optional YAML file
// with environment variables taking precedence.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Relay struct {
		URL string `yaml:"url"`
	} `yaml:"relay"`
	Passage struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"passage"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", defaultString(config.Server.Port, "8080"))
	config.Relay.URL = getEnv("NATS_URL", defaultString(config.Relay.URL, "nats://localhost:4222"))
	config.Passage.BaseURL = getEnv("PASSAGE_API_URL", config.Passage.BaseURL)

	return &config, nil
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
