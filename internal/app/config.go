package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/utils"
)

// Config is everything the importer reads from its environment. An optional
// YAML file named by IMPORTER_CONFIG overlays the env values, which keeps
// deployment manifests declarative while the env stays the source of truth
// for secrets.
type Config struct {
	Port    string `yaml:"port"`
	WSPort  string `yaml:"wsPort"`
	GinMode string `yaml:"ginMode"`

	RedisAddr string `yaml:"redisAddr"`

	BatchSize     int           `yaml:"batchSize"`
	MaxRetries    int           `yaml:"maxRetries"`
	BaseBackoff   time.Duration `yaml:"-"`
	MaxBackoff    time.Duration `yaml:"-"`
	BaseBackoffMS int           `yaml:"baseBackoffMs"`
	MaxBackoffMS  int           `yaml:"maxBackoffMs"`

	WorkDir      string `yaml:"workDir"`
	ImageBaseURL string `yaml:"imageBaseUrl"`

	HealthIntervalSeconds int `yaml:"healthIntervalSeconds"`

	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:                  utils.GetEnv("PORT", "4200", log),
		WSPort:                utils.GetEnv("WS_PORT", "8080", log),
		GinMode:               utils.GetEnv("GIN_MODE", "debug", log),
		RedisAddr:             utils.GetEnv("REDIS_ADDR", "localhost:6379", log),
		BatchSize:             utils.GetEnvAsInt("BATCH_SIZE", 10, log),
		MaxRetries:            utils.GetEnvAsInt("MAX_RETRIES", 3, log),
		BaseBackoffMS:         utils.GetEnvAsInt("BASE_BACKOFF_MS", 1000, log),
		MaxBackoffMS:          utils.GetEnvAsInt("MAX_BACKOFF_MS", 30000, log),
		WorkDir:               utils.GetEnv("WORK_DIR", os.TempDir(), log),
		ImageBaseURL:          utils.GetEnv("IMAGE_BASE_URL", "", log),
		HealthIntervalSeconds: utils.GetEnvAsInt("HEALTH_INTERVAL_SECONDS", 10, log),
		Environment:           utils.GetEnv("ENVIRONMENT", "development", log),
		Version:               utils.GetEnv("VERSION", "", log),
	}

	if path := strings.TrimSpace(os.Getenv("IMPORTER_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Info("Config file applied", "path", path)
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.BaseBackoff = time.Duration(cfg.BaseBackoffMS) * time.Millisecond
	cfg.MaxBackoff = time.Duration(cfg.MaxBackoffMS) * time.Millisecond
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	return cfg, nil
}

// Retry is the retry policy shared by every queue.
func (c Config) Retry() errs.RetryConfig {
	return errs.RetryConfig{
		MaxRetries:  c.MaxRetries,
		BaseBackoff: c.BaseBackoff,
		MaxBackoff:  c.MaxBackoff,
	}
}
