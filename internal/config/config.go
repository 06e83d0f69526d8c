package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Duration is a time.Duration that unmarshals from YAML strings like "910s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete application configuration shared by the
// api-service, the worker-service, and the chaos harness.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Blobstore BlobstoreConfig `yaml:"blobstore"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Worker    WorkerConfig    `yaml:"worker"`
	Harness   HarnessConfig   `yaml:"harness"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	Database        string   `yaml:"database"`
	SSLMode         string   `yaml:"sslmode"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and topology configuration.
// The live queue dead-letters into DeadLetterQueue after DeliveryLimit
// deliveries; that counter lives in the broker, not the application.
type RabbitMQConfig struct {
	Host               string           `yaml:"host"`
	Port               int              `yaml:"port"`
	User               string           `yaml:"user"`
	Password           string           `yaml:"password"`
	VHost              string           `yaml:"vhost"`
	Exchange           string           `yaml:"exchange"`
	Queue              string           `yaml:"queue"`
	RoutingKey         string           `yaml:"routing_key"`
	DeadLetterExchange string           `yaml:"dead_letter_exchange"`
	DeadLetterQueue    string           `yaml:"dead_letter_queue"`
	DeliveryLimit      int              `yaml:"delivery_limit"`
	VisibilityTimeout  Duration         `yaml:"visibility_timeout"`
	Connection         ConnectionConfig `yaml:"connection"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int      `yaml:"retry_attempts"`
	RetryInterval     Duration `yaml:"retry_interval"`
	Heartbeat         Duration `yaml:"heartbeat"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
}

// BlobstoreConfig holds the object store and upload capability settings.
type BlobstoreConfig struct {
	Root          string   `yaml:"root"`
	SigningSecret string   `yaml:"signing_secret"`
	CapabilityTTL Duration `yaml:"capability_ttl"`
	PublicBaseURL string   `yaml:"public_base_url"`
}

// AnalysisConfig holds the external analysis service settings.
type AnalysisConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency        int      `yaml:"concurrency"`
	PrefetchCount      int      `yaml:"prefetch_count"`
	ConfigPollInterval Duration `yaml:"config_poll_interval"`
	ShutdownTimeout    Duration `yaml:"shutdown_timeout"`
}

// HarnessConfig holds chaos harness settings.
type HarnessConfig struct {
	APIBaseURL         string   `yaml:"api_base_url"`
	OwnerID            string   `yaml:"owner_id"`
	ResultPollTimeout  Duration `yaml:"result_poll_timeout"`
	ResultPollInterval Duration `yaml:"result_poll_interval"`
	DLQPollTimeout     Duration `yaml:"dlq_poll_timeout"`
	DLQPollInterval    Duration `yaml:"dlq_poll_interval"`
	InducedDelay       Duration `yaml:"induced_delay"`
	ReportDir          string   `yaml:"report_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the fields the api-service depends on.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Blobstore.Root == "" {
		return fmt.Errorf("blobstore root is required")
	}

	if c.Blobstore.SigningSecret == "" {
		return fmt.Errorf("blobstore signing_secret is required")
	}

	if c.Blobstore.CapabilityTTL <= 0 {
		return fmt.Errorf("blobstore capability_ttl must be greater than 0")
	}

	return nil
}

// ValidateWorkerConfig checks the fields the worker-service depends on,
// including the timeout invariant that prevents two consumers from holding
// the same message in flight.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.PrefetchCount <= 0 {
		return fmt.Errorf("worker prefetch_count must be greater than 0")
	}

	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis timeout must be greater than 0")
	}

	if c.Blobstore.Root == "" {
		return fmt.Errorf("blobstore root is required")
	}

	// The analysis call must give up before the broker could consider the
	// consumer dead, otherwise a hung call can race a redelivery.
	if c.Analysis.Timeout.Std() >= c.RabbitMQ.VisibilityTimeout.Std() {
		return fmt.Errorf(
			"analysis timeout (%s) must be strictly less than queue visibility timeout (%s)",
			c.Analysis.Timeout.Std(), c.RabbitMQ.VisibilityTimeout.Std(),
		)
	}

	return nil
}

// ValidateHarnessConfig checks the fields the chaos harness depends on.
func (c *Config) ValidateHarnessConfig() error {
	if c.Harness.APIBaseURL == "" {
		return fmt.Errorf("harness api_base_url is required")
	}

	if c.Harness.OwnerID == "" {
		return fmt.Errorf("harness owner_id is required")
	}

	if c.Harness.ResultPollTimeout <= 0 {
		return fmt.Errorf("harness result_poll_timeout must be greater than 0")
	}

	if c.Harness.DLQPollTimeout <= 0 {
		return fmt.Errorf("harness dlq_poll_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.RabbitMQ.DeadLetterQueue == "" {
		return fmt.Errorf("rabbitmq dead_letter_queue name is required")
	}

	if c.RabbitMQ.DeliveryLimit <= 0 {
		return fmt.Errorf("rabbitmq delivery_limit must be greater than 0")
	}

	return nil
}
