// Package config loads process configuration from environment variables
// (TASKFORGE_ prefix) and an optional YAML file. Required connection
// settings that are missing or invalid are a startup-time fatal, never a
// silent runtime default.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Instance string `mapstructure:"instance"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	Broker   BrokerConfig   `mapstructure:"broker"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Mail     MailConfig     `mapstructure:"mail"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
}

type BrokerConfig struct {
	// URL carries the credentials; there is deliberately no default.
	URL                string        `mapstructure:"url" validate:"required"`
	Exchange           string        `mapstructure:"exchange" validate:"required"`
	Queue              string        `mapstructure:"queue" validate:"required"`
	RoutingKey         string        `mapstructure:"routing_key" validate:"required"`
	DeadLetterExchange string        `mapstructure:"dead_letter_exchange" validate:"required"`
	DeadLetterQueue    string        `mapstructure:"dead_letter_queue" validate:"required"`
	Prefetch           int           `mapstructure:"prefetch" validate:"min=1"`
	PublishAttempts    int           `mapstructure:"publish_attempts" validate:"min=1"`
	ReconnectBase      time.Duration `mapstructure:"reconnect_base" validate:"min=1ms"`
	ReconnectCeiling   time.Duration `mapstructure:"reconnect_ceiling" validate:"min=1ms"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}

type WorkerConfig struct {
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" validate:"min=1s"`

	// Tasks maps task name to its max concurrent executions; tasks absent
	// from the map get DefaultConcurrency.
	Tasks              map[string]int `mapstructure:"tasks"`
	DefaultConcurrency int            `mapstructure:"default_concurrency" validate:"min=1"`
}

type HTTPConfig struct {
	// OpsAddr serves /healthz, /readyz and /metrics.
	OpsAddr string `mapstructure:"ops_addr" validate:"required"`
	// APIAddr serves the submit/status endpoints.
	APIAddr string `mapstructure:"api_addr" validate:"required"`
}

type MailConfig struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SweepConfig struct {
	// Schedule is a cron expression; the sweep flips statuses stuck
	// in_flight longer than StaleAge back to retrying.
	Schedule string        `mapstructure:"schedule" validate:"required"`
	StaleAge time.Duration `mapstructure:"stale_age" validate:"min=1m"`
}

// Concurrency returns the ceiling for a task name.
func (w WorkerConfig) Concurrency(task string) int {
	if n, ok := w.Tasks[task]; ok && n > 0 {
		return n
	}
	return w.DefaultConcurrency
}

// Load reads config and validates it. Environment variables take
// precedence over the config file; the file is optional.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("instance", "taskforge-1")
	v.SetDefault("log_level", "info")

	v.SetDefault("broker.url", "")
	v.SetDefault("broker.exchange", "taskforge")
	v.SetDefault("broker.queue", "taskforge.jobs")
	v.SetDefault("broker.routing_key", "taskforge.jobs")
	v.SetDefault("broker.dead_letter_exchange", "taskforge.dlx")
	v.SetDefault("broker.dead_letter_queue", "taskforge.jobs.dead")
	v.SetDefault("broker.prefetch", 32)
	v.SetDefault("broker.publish_attempts", 3)
	v.SetDefault("broker.reconnect_base", "500ms")
	v.SetDefault("broker.reconnect_ceiling", "30s")

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("worker.shutdown_grace", "30s")
	v.SetDefault("worker.default_concurrency", 4)
	v.SetDefault("worker.tasks", map[string]int{})

	v.SetDefault("http.ops_addr", ":8081")
	v.SetDefault("http.api_addr", ":8080")

	v.SetDefault("mail.server", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")

	v.SetDefault("sweep.schedule", "*/5 * * * *")
	v.SetDefault("sweep.stale_age", "30m")

	v.SetConfigName("taskforge")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TASKFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}
