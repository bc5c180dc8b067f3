package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"outreach-mailer/internal/models"
)

const DefaultConfigPath = "./configs/config.yaml"

type LLMConfig struct {
	Provider    string        `yaml:"provider" json:"provider"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Key         string        `yaml:"api_key" json:"-"`
	Model       string        `yaml:"model" json:"model"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries  uint64        `yaml:"max_retries" json:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max" json:"backoff_max"`
}

type PipelineConfig struct {
	ChunkSize       int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap    int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MapConcurrency  int `yaml:"map_concurrency" json:"map_concurrency"`
	MaxCombineChars int `yaml:"max_combine_chars" json:"max_combine_chars"`
	MaxReduceDepth  int `yaml:"max_reduce_depth" json:"max_reduce_depth"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Dir    string `yaml:"dir" json:"dir"`
	DSN    string `yaml:"dsn" json:"-"`
	Debug  bool   `yaml:"debug" json:"debug"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" json:"max_upload_bytes"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

type Config struct {
	LLM      LLMConfig      `yaml:"llm" json:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// Default returns a configuration usable without any file on disk.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: models.DefaultTemperature,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
			BackoffBase: 500 * time.Millisecond,
			BackoffMax:  10 * time.Second,
		},
		Pipeline: PipelineConfig{
			ChunkSize:       models.DefaultChunkSize,
			ChunkOverlap:    models.DefaultChunkOverlap,
			MapConcurrency:  4,
			MaxCombineChars: 12000,
			MaxReduceDepth:  3,
		},
		Storage: StorageConfig{
			Driver: "file",
			Dir:    "./data",
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  10 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads the yaml file at path on top of the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := firstEnv("API_KEY", "OPENAI_API_KEY"); v != "" {
		c.LLM.Key = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q not supported", c.LLM.Provider))
	}
	if c.LLM.Temperature < models.MinTemperature || c.LLM.Temperature > models.MaxTemperature {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f out of range", c.LLM.Temperature))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.BackoffBase <= 0 || c.LLM.BackoffMax < c.LLM.BackoffBase {
		errs = append(errs, errors.New("llm.backoff_base must be positive and not above llm.backoff_max"))
	}

	p := c.Pipeline
	if p.ChunkSize <= 0 {
		errs = append(errs, errors.New("pipeline.chunk_size must be positive"))
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		errs = append(errs, errors.New("pipeline.chunk_overlap must be in [0, chunk_size)"))
	}
	if p.MapConcurrency < 1 {
		errs = append(errs, errors.New("pipeline.map_concurrency must be at least 1"))
	}
	if p.MaxCombineChars < p.ChunkSize {
		errs = append(errs, errors.New("pipeline.max_combine_chars must be at least chunk_size"))
	}
	if p.MaxReduceDepth < 0 {
		errs = append(errs, errors.New("pipeline.max_reduce_depth must not be negative"))
	}

	switch c.Storage.Driver {
	case "file":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the file driver"))
		}
	case "pg", "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the database drivers"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}

	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}

	return errors.Join(errs...)
}
