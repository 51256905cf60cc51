package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      App       `yaml:"app"`
	Database Database  `yaml:"database"`
	Storage  Storage   `yaml:"minio"`
	Queue    *RabbitMQ `yaml:"rabbitmq"`
	Server   Server    `yaml:"server"`
	Worker   Worker    `yaml:"worker"`
}

type App struct {
	Environment string `yaml:"environment" validate:"oneof=production staging develop"`
}

type Database struct {
	URL string `yaml:"url" validate:"required"`
}

type Storage struct {
	URL               string `yaml:"url" validate:"required"`
	AccessID          string `yaml:"access_id"`
	SecretAccessKey   string `yaml:"secret_access_key"`
	UseSSL            bool   `yaml:"use_ssl"`
	UploadsBucket     string `yaml:"uploads_bucket" validate:"required"`
	DerivativesBucket string `yaml:"derivatives_bucket" validate:"required"`
}

type Server struct {
	HttpPort string `yaml:"http_port" validate:"required,numeric"`
}

type Worker struct {
	PollInterval      time.Duration `yaml:"poll_interval_ms" validate:"gt=0"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" validate:"min=1"`
	StaleJobTimeout   time.Duration `yaml:"stale_job_timeout_ms" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout_ms" validate:"gte=0"`
}

type RabbitMQ struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host" validate:"required_if=Enabled true"`
	Port         int    `json:"port" validate:"required_if=Enabled true"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name" validate:"required_if=Enabled true"`
	Kind         string `json:"kind" validate:"required_if=Enabled true"`
}

// envBindings maps config keys to the environment variables recognized for them.
var envBindings = map[string]string{
	"app.environment":             "APP_ENVIRONMENT",
	"server.http_port":            "SERVER_HTTP_PORT",
	"database.url":                "DATABASE_URL",
	"minio.url":                   "MINIO_URL",
	"minio.access_id":             "MINIO_ACCESS_ID",
	"minio.secret_access_key":     "MINIO_SECRET_ACCESS_KEY",
	"minio.use_ssl":               "MINIO_USE_SSL",
	"minio.uploads_bucket":        "UPLOADS_BUCKET",
	"minio.derivatives_bucket":    "DERIVATIVES_BUCKET",
	"worker.poll_interval_ms":     "POLL_INTERVAL_MS",
	"worker.max_concurrent_jobs":  "MAX_CONCURRENT_JOBS",
	"worker.stale_job_timeout_ms": "STALE_JOB_TIMEOUT_MS",
	"worker.shutdown_timeout_ms":  "SHUTDOWN_TIMEOUT_MS",
	"rabbitmq.enabled":            "RABBITMQ_ENABLED",
	"rabbitmq.host":               "RABBITMQ_HOST",
	"rabbitmq.port":               "RABBITMQ_PORT",
	"rabbitmq.user":               "RABBITMQ_USER",
	"rabbitmq.pass":               "RABBITMQ_PASS",
	"rabbitmq.kind":               "RABBITMQ_KIND",
	"rabbitmq.exchange_name":      "RABBITMQ_EXCHANGE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "develop")
	v.SetDefault("server.http_port", "8080")
	v.SetDefault("minio.uploads_bucket", "uploads")
	v.SetDefault("minio.derivatives_bucket", "derivatives")
	v.SetDefault("worker.poll_interval_ms", 5000)
	v.SetDefault("worker.max_concurrent_jobs", 1)
	v.SetDefault("worker.stale_job_timeout_ms", 0)
	v.SetDefault("worker.shutdown_timeout_ms", 10000)
	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.kind", "topic")
	v.SetDefault("rabbitmq.exchange_name", "processing_jobs_exchange")
}

// Load reads path/.env, then path/config.yaml, then the environment. Both files are optional.
// The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		App: App{
			Environment: v.GetString("app.environment"),
		},
		Database: Database{
			URL: v.GetString("database.url"),
		},
		Storage: Storage{
			URL:               v.GetString("minio.url"),
			AccessID:          v.GetString("minio.access_id"),
			SecretAccessKey:   v.GetString("minio.secret_access_key"),
			UseSSL:            v.GetBool("minio.use_ssl"),
			UploadsBucket:     v.GetString("minio.uploads_bucket"),
			DerivativesBucket: v.GetString("minio.derivatives_bucket"),
		},
		Queue: &RabbitMQ{
			Enabled:      v.GetBool("rabbitmq.enabled"),
			Host:         v.GetString("rabbitmq.host"),
			Port:         v.GetInt("rabbitmq.port"),
			User:         v.GetString("rabbitmq.user"),
			Pass:         v.GetString("rabbitmq.pass"),
			Kind:         v.GetString("rabbitmq.kind"),
			ExchangeName: v.GetString("rabbitmq.exchange_name"),
		},
		Server: Server{
			HttpPort: v.GetString("server.http_port"),
		},
		Worker: Worker{
			PollInterval:      time.Duration(v.GetInt64("worker.poll_interval_ms")) * time.Millisecond,
			MaxConcurrentJobs: v.GetInt("worker.max_concurrent_jobs"),
			StaleJobTimeout:   time.Duration(v.GetInt64("worker.stale_job_timeout_ms")) * time.Millisecond,
			ShutdownTimeout:   time.Duration(v.GetInt64("worker.shutdown_timeout_ms")) * time.Millisecond,
		},
	}

	return cfg, nil
}

// Validate is run by commands before they use the config, so help output works
// without a complete environment.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
