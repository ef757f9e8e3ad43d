package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
)

// Драйверы хранилища заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Переменные окружения.
const (
	envGRPCAddr            = "ORDERS_GRPC_ADDR"
	envHTTPAddr            = "ORDERS_HTTP_ADDR"
	envMetricsAddr         = "ORDERS_METRICS_ADDR"
	envStorageDriver       = "ORDERS_STORAGE_DRIVER"
	envPostgresDSN         = "ORDERS_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERS_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "ORDERS_KAFKA_BROKERS"
	envKafkaEventsTopic    = "ORDERS_KAFKA_EVENTS_TOPIC"
	envKafkaIngestTopic    = "ORDERS_KAFKA_INGEST_TOPIC"
	envKafkaDLQTopic       = "ORDERS_KAFKA_DLQ_TOPIC"
	envKafkaGroupID        = "ORDERS_KAFKA_GROUP_ID"
	envKafkaMaxRetries     = "ORDERS_KAFKA_MAX_RETRIES"
	envKafkaRetryDelay     = "ORDERS_KAFKA_RETRY_DELAY"
	envLogLevel            = "ORDERS_LOG_LEVEL"
	envShutdownTimeout     = "ORDERS_SHUTDOWN_TIMEOUT"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers через запятую; пустая строка отключает Kafka.
	KafkaBrokers     string
	KafkaEventsTopic string
	// Пустой KafkaIngestTopic выключает приём заказов из Kafka.
	KafkaIngestTopic string
	KafkaDLQTopic    string
	KafkaGroupID     string
	KafkaMaxRetries  int
	KafkaRetryDelay  time.Duration

	LogLevel        string
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает базовые значения.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		HTTPAddr:            ":3000",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		KafkaEventsTopic:    kafka.DefaultEventsTopic,
		KafkaIngestTopic:    kafka.DefaultIngestTopic,
		KafkaDLQTopic:       kafka.DefaultDLQTopic,
		KafkaGroupID:        "order-store",
		KafkaMaxRetries:     3,
		KafkaRetryDelay:     200 * time.Millisecond,
		LogLevel:            "info",
		ShutdownTimeout:     5 * time.Second,
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, fmt.Errorf("%s is required for postgres storage", envPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.GRPCAddr == "" && c.HTTPAddr == "" {
		errs = append(errs, errors.New("at least one of grpc or http address must be set"))
	}
	if c.KafkaBrokers != "" && c.KafkaMaxRetries < 1 {
		errs = append(errs, fmt.Errorf("%s must be >= 1", envKafkaMaxRetries))
	}
	return errors.Join(errs...)
}

// Brokers возвращает список брокеров без пустых элементов.
func (c Config) Brokers() []string {
	return splitAndTrim(c.KafkaBrokers)
}

// LogrusLevel возвращает уровень логирования; некорректное значение даёт info.
func (c Config) LogrusLevel() log.Level {
	level, err := log.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// LoadConfig читает .env (если есть) и переменные окружения.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию, а предупреждение возвращается вызывающему.
func LoadConfig(envFiles ...string) (Config, []string) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		cfg, warnings := readConfigFromEnv(os.LookupEnv)
		return cfg, append(warnings, fmt.Sprintf("failed to load .env: %v", err))
	}
	return readConfigFromEnv(os.LookupEnv)
}

type envLookup func(key string) (string, bool)

func readConfigFromEnv(lookup envLookup) (Config, []string) {
	cfg := DefaultConfig()
	var warnings []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaEventsTopic, &cfg.KafkaEventsTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	str(envKafkaGroupID, &cfg.KafkaGroupID)
	str(envLogLevel, &cfg.LogLevel)

	// Пустое значение явно отключает приём заказов из Kafka.
	if v, ok := lookup(envKafkaIngestTopic); ok {
		cfg.KafkaIngestTopic = strings.TrimSpace(v)
	}

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	} else if cfg.PostgresDSN != "" {
		cfg.StorageDriver = StorageDriverPostgres
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envPostgresAutoMigrate, err))
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	if v, ok := lookup(envKafkaMaxRetries); ok {
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envKafkaMaxRetries, err))
		} else {
			cfg.KafkaMaxRetries = parsed
		}
	}

	if v, ok := lookup(envKafkaRetryDelay); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envKafkaRetryDelay, err))
		} else {
			cfg.KafkaRetryDelay = parsed
		}
	}

	if v, ok := lookup(envShutdownTimeout); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envShutdownTimeout, err))
		} else {
			cfg.ShutdownTimeout = parsed
		}
	}

	if v, ok := lookup(envLogLevel); ok && strings.TrimSpace(v) != "" {
		if _, err := log.ParseLevel(strings.TrimSpace(v)); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envLogLevel, err))
			cfg.LogLevel = DefaultConfig().LogLevel
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
