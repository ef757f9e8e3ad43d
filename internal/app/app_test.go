package app

import (
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("expected HTTPAddr :3000, got %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.KafkaEventsTopic != "orders.events" || cfg.KafkaIngestTopic != "orders.inbound" {
		t.Errorf("unexpected kafka topics: %s / %s", cfg.KafkaEventsTopic, cfg.KafkaIngestTopic)
	}
	if cfg.KafkaMaxRetries != 3 {
		t.Errorf("expected KafkaMaxRetries 3, got %d", cfg.KafkaMaxRetries)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unsupported driver",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: "unsupported storage driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: envPostgresDSN,
		},
		{
			name: "no listeners",
			mutate: func(c *Config) {
				c.GRPCAddr = ""
				c.HTTPAddr = ""
			},
			wantErr: "grpc or http",
		},
		{
			name: "kafka without retries",
			mutate: func(c *Config) {
				c.KafkaBrokers = "localhost:9092"
				c.KafkaMaxRetries = 0
			},
			wantErr: envKafkaMaxRetries,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestConfig_BrokersAndLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = " broker1:9092, ,broker2:9092 "

	brokers := cfg.Brokers()
	if len(brokers) != 2 || brokers[0] != "broker1:9092" || brokers[1] != "broker2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}

	cfg.LogLevel = "debug"
	if cfg.LogrusLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %s", cfg.LogrusLevel())
	}
	cfg.LogLevel = "loud"
	if cfg.LogrusLevel() != log.InfoLevel {
		t.Errorf("expected info level fallback, got %s", cfg.LogrusLevel())
	}
}
