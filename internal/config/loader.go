package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"consorcio_bot/internal/logger"
)

// Config represents the structure of config.yaml
type Config struct {
	Session struct {
		TTLSeconds   int `yaml:"ttl_seconds"`
		HistoryLimit int `yaml:"history_limit"`
	} `yaml:"session"`
	Writer struct {
		BatchSize           int `yaml:"batch_size"`
		BatchTimeoutSeconds int `yaml:"batch_timeout_seconds"`
		QueueCapacity       int `yaml:"queue_capacity"`
	} `yaml:"writer"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Flow struct {
		QuestionsPath string `yaml:"questions_path"`
	} `yaml:"flow"`
	Log logger.Config `yaml:"log"`
}

// Load reads configuration from a YAML file and fills in defaults.
func Load(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = 86400 // 24h sliding expiry
	}
	if c.Session.HistoryLimit == 0 {
		c.Session.HistoryLimit = 100
	}
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = 10
	}
	if c.Writer.BatchTimeoutSeconds == 0 {
		c.Writer.BatchTimeoutSeconds = 5
	}
	if c.Writer.QueueCapacity == 0 {
		c.Writer.QueueCapacity = 4096
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Flow.QuestionsPath == "" {
		c.Flow.QuestionsPath = "questions.yaml"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// SessionTTL returns the session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// BatchTimeout returns the write-behind drain timeout as a duration.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Writer.BatchTimeoutSeconds) * time.Second
}
