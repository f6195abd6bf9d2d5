package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // session state TTL
}

type SearchConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	ApplicationID string        `yaml:"application_id"`
	AffiliateID   string        `yaml:"affiliate_id"`
	Hits          int           `yaml:"hits"`
	Timeout       time.Duration `yaml:"timeout"`
}

type AIConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	PrimaryModel    string        `yaml:"primary_model"`
	FallbackModel   string        `yaml:"fallback_model"`
	AlternateModels []string      `yaml:"alternate_models"` // tried with the two cheapest variants each
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	Temperature     float64       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Endpoint string `yaml:"endpoint"` // object-storage base URL
	APIKey   string `yaml:"api_key"`
	Bucket   string `yaml:"bucket"`
}

type WorkerConfig struct {
	Count int `yaml:"count"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Search   SearchConfig   `yaml:"search"`
	AI       AIConfig       `yaml:"ai"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path and applies defaults field by field.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 9090
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 15 * time.Minute
	}
	if cfg.Search.Endpoint == "" {
		cfg.Search.Endpoint = "https://app.rakuten.co.jp/services/api/IchibaItem/Search/20220601"
	}
	if cfg.Search.Hits <= 0 {
		cfg.Search.Hits = 10
	}
	if cfg.Search.Timeout <= 0 {
		cfg.Search.Timeout = 10 * time.Second
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.intelligence.io.solutions/api/v1"
	}
	if cfg.AI.PrimaryModel == "" {
		cfg.AI.PrimaryModel = "openai/gpt-oss-120b"
	}
	if cfg.AI.Temperature <= 0 {
		cfg.AI.Temperature = 0.2
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30 * time.Second
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "photos"
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 4
	}
}
