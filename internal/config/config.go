package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"alerto-service/internal/util"
)

// Config holds all runtime configuration, loaded once at startup
type Config struct {
	Environment string

	Server     ServerConfig
	Logging    LoggingConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	FCM        FCMConfig
	Janitor    JanitorConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableTLS   bool
	TLSPort     int
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers            []string
	ReportCreatedTopic string
	VerificationTopic  string
	ConsumerGroup      string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

type FCMConfig struct {
	CredentialsFile string
	ProjectID       string
	SendsPerSecond  int
}

type JanitorConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// LoadConfig reads configuration from the environment (and .env in development)
func LoadConfig() *Config {
	// Best effort: a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Environment: util.GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         util.GetEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:    util.GetEnvBool("SERVER_ENABLE_TLS", false),
			TLSPort:      util.GetEnvInt("SERVER_TLS_PORT", 8443),
			AutoCert:     util.GetEnvBool("SERVER_AUTOCERT", false),
			Domain:       util.GetEnv("SERVER_DOMAIN", ""),
			CertFile:     util.GetEnv("SERVER_CERT_FILE", ""),
			KeyFile:      util.GetEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:  util.GetEnv("SERVER_AUTOCERT_DIR", "/var/lib/alerto/autocert"),
			Email:        util.GetEnv("SERVER_ACME_EMAIL", ""),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      util.GetEnv("REDIS_URL", "redis://localhost:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
			PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    util.GetEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "alerto"),
			Username: util.GetEnv("SCYLLA_USERNAME", ""),
			Password: util.GetEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:            util.GetEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ReportCreatedTopic: util.GetEnv("KAFKA_REPORT_CREATED_TOPIC", "alerto.reports.created"),
			VerificationTopic:  util.GetEnv("KAFKA_VERIFICATION_TOPIC", "alerto.reports.verification"),
			ConsumerGroup:      util.GetEnv("KAFKA_CONSUMER_GROUP", "alerto-dispatcher"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  util.GetEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      util.GetEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "alerto"),
			Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
		},
		FCM: FCMConfig{
			CredentialsFile: util.GetEnv("FCM_CREDENTIALS_FILE", ""),
			ProjectID:       util.GetEnv("FCM_PROJECT_ID", ""),
			SendsPerSecond:  util.GetEnvInt("FCM_SENDS_PER_SECOND", 100),
		},
		Janitor: JanitorConfig{
			Interval:  util.GetEnvDuration("JANITOR_INTERVAL", time.Hour),
			Retention: util.GetEnvDuration("JANITOR_RETENTION", 24*time.Hour),
		},
	}

	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetServerAddress returns the listen address for the plain HTTP server
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
