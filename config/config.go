package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/kafka"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"thistle-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3010"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,PATCH,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeoutSeconds        int      `env:"SHUTDOWN_TIMEOUT_SECONDS" env-default:"15"`

	// Workspace database (one SQLite file per workspace)
	WorkspacePath           string        `env:"WORKSPACE_PATH" env-default:"workspace.db"`
	DatabaseBusyTimeout     time.Duration `env:"DB_BUSY_TIMEOUT" env-default:"5s"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"8"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"4"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"0s"`

	// Presence
	PresenceBatchSize int `env:"PRESENCE_BATCH_SIZE" env-default:"25"`

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	OTLPProtocol string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"http"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`

	// Kafka audit forwarding. Empty brokers keeps audit entries local.
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:""`
	KafkaAuditTopic   string   `env:"KAFKA_AUDIT_TOPIC" env-default:"thistle-audit"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Path:            c.WorkspacePath,
		BusyTimeout:     c.DatabaseBusyTimeout,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName: c.AppName,
		Endpoint:    c.OTLPEndpoint,
		Protocol:    c.OTLPProtocol,
		Insecure:    c.OTLPInsecure,
		Timeout:     10 * time.Second,
	}
}

// KafkaEnabled reports whether audit entries are forwarded to Kafka.
func (c *Config) KafkaEnabled() bool {
	for _, broker := range c.KafkaBrokers {
		if broker != "" {
			return true
		}
	}
	return false
}

func (c *Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaAuditTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}
