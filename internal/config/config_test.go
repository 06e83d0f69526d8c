package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "video_analyzer_db", cfg.Database.Database)
				assert.Equal(t, "video_ingest_exchange", cfg.RabbitMQ.Exchange)
				assert.Equal(t, "video_ingest_queue", cfg.RabbitMQ.Queue)
				assert.Equal(t, "video_ingest_dlq", cfg.RabbitMQ.DeadLetterQueue)
				assert.Equal(t, 3, cfg.RabbitMQ.DeliveryLimit)
				assert.Equal(t, 910*time.Second, cfg.RabbitMQ.VisibilityTimeout.Std())
				assert.Equal(t, 900*time.Second, cfg.Analysis.Timeout.Std())
				assert.Equal(t, time.Hour, cfg.Blobstore.CapabilityTTL.Std())
				assert.Equal(t, "video-analyzer-api", cfg.App.Name)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "video_analyzer_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:              "localhost",
			Port:              5672,
			Exchange:          "video_ingest_exchange",
			Queue:             "video_ingest_queue",
			DeadLetterQueue:   "video_ingest_dlq",
			DeliveryLimit:     3,
			VisibilityTimeout: Duration(910 * time.Second),
		},
		Blobstore: BlobstoreConfig{
			Root:          "/tmp/blobs",
			SigningSecret: "secret",
			CapabilityTTL: Duration(time.Hour),
		},
		Analysis: AnalysisConfig{
			Endpoint: "http://localhost:9090/analyze",
			Timeout:  Duration(900 * time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:   4,
			PrefetchCount: 4,
		},
		Harness: HarnessConfig{
			APIBaseURL:        "http://localhost:8080",
			OwnerID:           "chaos-test@video-analyzer.io",
			ResultPollTimeout: Duration(300 * time.Second),
			DLQPollTimeout:    Duration(600 * time.Second),
		},
	}
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty dead-letter queue",
			mutate:    func(c *Config) { c.RabbitMQ.DeadLetterQueue = "" },
			wantErr:   true,
			errString: "dead_letter_queue",
		},
		{
			name:      "zero delivery limit",
			mutate:    func(c *Config) { c.RabbitMQ.DeliveryLimit = 0 },
			wantErr:   true,
			errString: "delivery_limit",
		},
		{
			name:      "missing signing secret",
			mutate:    func(c *Config) { c.Blobstore.SigningSecret = "" },
			wantErr:   true,
			errString: "signing_secret",
		},
		{
			name:      "zero capability ttl",
			mutate:    func(c *Config) { c.Blobstore.CapabilityTTL = 0 },
			wantErr:   true,
			errString: "capability_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "concurrency",
		},
		{
			name:      "zero prefetch",
			mutate:    func(c *Config) { c.Worker.PrefetchCount = 0 },
			wantErr:   true,
			errString: "prefetch_count",
		},
		{
			name: "analysis timeout equals visibility timeout",
			mutate: func(c *Config) {
				c.Analysis.Timeout = c.RabbitMQ.VisibilityTimeout
			},
			wantErr:   true,
			errString: "strictly less than queue visibility timeout",
		},
		{
			name: "analysis timeout exceeds visibility timeout",
			mutate: func(c *Config) {
				c.Analysis.Timeout = Duration(1000 * time.Second)
			},
			wantErr:   true,
			errString: "strictly less than queue visibility timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateHarnessConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateHarnessConfig())

	cfg.Harness.OwnerID = ""
	assert.ErrorContains(t, cfg.ValidateHarnessConfig(), "owner_id")
}

func TestDuration_UnmarshalYAML_Invalid(t *testing.T) {
	var cfg Config
	err := yaml.Unmarshal([]byte("server:\n  read_timeout: \"not-a-duration\"\n"), &cfg)
	assert.Error(t, err)
}
