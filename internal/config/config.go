package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverVercel = "vercel"
	DriverLocal  = "local"
)

// Config is built once at process start and handed to every component
// that needs it.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Model   ModelConfig   `yaml:"model"`
	Cache   CacheConfig   `yaml:"cache"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadSize   int64         `yaml:"max_upload_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Token is the blob store write credential. It may be empty at start-up;
	// uploads then fail at request time.
	Token        string `yaml:"token"`
	APIURL       string `yaml:"api_url"`
	LocalDir     string `yaml:"local_dir"`
	PublicURL    string `yaml:"public_url"`
	RandomSuffix bool   `yaml:"random_suffix"`
}

type ModelConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Name        string  `yaml:"name"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			MaxUploadSize:   10 << 20,
		},
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Driver:       DriverVercel,
			APIURL:       "https://blob.vercel-storage.com",
			LocalDir:     "./data/blobs",
			PublicURL:    "http://localhost:8080",
			RandomSuffix: true,
		},
		Model: ModelConfig{
			Name:        "gpt-4-turbo",
			MaxTokens:   10,
			Temperature: 0.5,
		},
		Cache: CacheConfig{TTL: 5 * time.Minute},
	}
}

// Load reads .env (if present), then the YAML file at path (or $PIZZA_CONFIG
// when path is empty), then applies environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("PIZZA_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Addr = getEnv("HTTP_ADDR", cfg.Server.Addr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}

	cfg.Storage.Driver = getEnv("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Token = getEnv("BLOB_READ_WRITE_TOKEN", cfg.Storage.Token)
	cfg.Storage.APIURL = getEnv("BLOB_API_URL", cfg.Storage.APIURL)
	cfg.Storage.LocalDir = getEnv("STORAGE_LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.PublicURL = getEnv("PUBLIC_BASE_URL", cfg.Storage.PublicURL)

	cfg.Model.APIKey = getEnv("OPENAI_API_KEY", cfg.Model.APIKey)
	cfg.Model.BaseURL = getEnv("OPENAI_BASE_URL", cfg.Model.BaseURL)
	cfg.Model.Name = getEnv("OPENAI_MODEL", cfg.Model.Name)

	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", cfg.Cache.RedisAddr)

	var errs []error
	if v := os.Getenv("MAX_UPLOAD_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		errs = append(errs, envError("MAX_UPLOAD_SIZE", err))
		cfg.Server.MaxUploadSize = n
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, envError("SHUTDOWN_TIMEOUT", err))
		cfg.Server.ShutdownTimeout = d
	}
	if v := os.Getenv("STORAGE_RANDOM_SUFFIX"); v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envError("STORAGE_RANDOM_SUFFIX", err))
		cfg.Storage.RandomSuffix = b
	}
	if v := os.Getenv("MODEL_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envError("MODEL_MAX_TOKENS", err))
		cfg.Model.MaxTokens = n
	}
	if v := os.Getenv("MODEL_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		errs = append(errs, envError("MODEL_TEMPERATURE", err))
		cfg.Model.Temperature = float32(f)
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, envError("CACHE_TTL", err))
		cfg.Cache.TTL = d
	}
	return errors.Join(errs...)
}

// Validate rejects settings no component can run with. Missing credentials
// are allowed on purpose.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverVercel:
		if c.Storage.APIURL == "" {
			errs = append(errs, errors.New("storage.api_url is required for the vercel driver"))
		}
	case DriverLocal:
		if c.Storage.LocalDir == "" || c.Storage.PublicURL == "" {
			errs = append(errs, errors.New("storage.local_dir and storage.public_url are required for the local driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("server.max_upload_size must be positive"))
	}
	if c.Model.MaxTokens <= 0 {
		errs = append(errs, errors.New("model.max_tokens must be positive"))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, errors.New("model.temperature must be within [0, 2]"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envError(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("invalid %s: %w", key, err)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
