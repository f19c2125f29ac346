package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Redis    Redis    `yaml:"redis"`
	Queue    Queue    `yaml:"queue"`
	Consumer Consumer `yaml:"consumer"`
	Postgres Postgres `yaml:"postgres"`
	Kafka    Kafka    `yaml:"kafka"`
	Anomaly  Anomaly  `yaml:"anomaly"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"telemetry-platform"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port           string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"200ms"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Queue struct {
	ChannelPrefix     string `yaml:"channel_prefix" env:"QUEUE_CHANNEL_PREFIX" env-default:"telemetry_queue"`
	DeadLetterChannel string `yaml:"dead_letter_channel" env:"QUEUE_DEAD_LETTER_CHANNEL" env-default:"telemetry_queue:dead_letter"`
	MaxLength         int64  `yaml:"max_length" env:"QUEUE_MAX_LENGTH" env-default:"100000"`
}

type Consumer struct {
	Concurrency  int           `yaml:"concurrency" env:"CONSUMER_CONCURRENCY" env-default:"4"`
	MaxRetries   int           `yaml:"max_retries" env:"CONSUMER_MAX_RETRIES" env-default:"5"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"CONSUMER_RETRY_BACKOFF" env-default:"500ms"`
	PollTimeout  time.Duration `yaml:"poll_timeout" env:"CONSUMER_POLL_TIMEOUT" env-default:"2s"`
	MetricsPort  string        `yaml:"metrics_port" env:"CONSUMER_METRICS_PORT" env-default:"9091"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"telemetry_user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"telemetry"`
}

type Kafka struct {
	Brokers    []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:""`
	AlertTopic string   `yaml:"alert_topic" env:"KAFKA_ALERT_TOPIC" env-default:"telemetry-alerts"`
}

// Anomaly thresholds mirror the operational limits of the device fleet.
// Range checking is an operational concern of the processor, never an
// admission concern: readings outside these bounds are still accepted,
// stored and then alerted on.
type Anomaly struct {
	TempHigh     float64 `yaml:"temp_high" env:"ANOMALY_TEMP_HIGH" env-default:"80.0"`
	TempLow      float64 `yaml:"temp_low" env:"ANOMALY_TEMP_LOW" env-default:"-20.0"`
	HumidityHigh float64 `yaml:"humidity_high" env:"ANOMALY_HUMIDITY_HIGH" env-default:"95.0"`
	VoltageLow   float64 `yaml:"voltage_low" env:"ANOMALY_VOLTAGE_LOW" env-default:"2.8"`
	CurrentHigh  float64 `yaml:"current_high" env:"ANOMALY_CURRENT_HIGH" env-default:"2.0"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		cleanenv.ReadEnv(cfg)
	}

	return cfg, nil
}
