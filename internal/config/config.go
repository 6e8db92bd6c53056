package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Engine struct {
		ProgressInterval string `yaml:"progress_interval"`
		RoomCodeAttempts int    `yaml:"room_code_attempts"`
		JudgeTimeout     string `yaml:"judge_timeout"`
	} `yaml:"engine"`
	Judge struct {
		Enabled     bool   `yaml:"enabled"`
		DockerHost  string `yaml:"docker_host"`
		Timeout     string `yaml:"timeout"`
		MemoryMB    int64  `yaml:"memory_mb"`
		CPUShares   int64  `yaml:"cpu_shares"`
		Workspace   string `yaml:"workspace"`
		Parallelism int    `yaml:"parallelism"`
	} `yaml:"judge"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		GroupID string   `yaml:"group_id"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
}

// Load reads YAML config from path. Environment variables referenced as
// ${NAME} are expanded before parsing.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "live-arena"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "proctoring.violations"
	}
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
