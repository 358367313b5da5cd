package config

import (
	"os"
	"strconv"
	"strings"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// PrefetchConfig bounds in-flight work per stage consumer.
type PrefetchConfig struct {
	PaymentValidation int
	PaymentProcessing int
	Reconcile         int
	AuditLog          int
	ServicingCycle    int
	ACHReturns        int
}

// ReconcileConfig tunes candidate scoring and auto-match.
type ReconcileConfig struct {
	MatchThreshold int
	DateWindowDays int
}

// ACHConfig identifies the originator on generated NACHA files.
type ACHConfig struct {
	ImmediateDestination string
	ImmediateOrigin      string
	DestinationName      string
	OriginName           string
	CompanyName          string
	CompanyID            string
	ODFIRouting          string
	OutputDir            string
}

type Config struct {
	DB            DatabaseConfig
	Kafka         KafkaConfig
	Prefetch      PrefetchConfig
	Reconcile     ReconcileConfig
	ACH           ACHConfig
	DeliveryLimit int
	OutboxBatch   int
	MetricsPort   int
	LogLevel      string
	LogFormat     string
	ServiceName   string
}

func (c Config) Validate() {
	if c.DB.Password == "" {
		panic("DB_PASSWORD environment variable is required")
	}
}

func Load() Config {
	return Config{
		DB: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "loanserve"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "loanserve_core"),
			SSLMode:  getEnv("DB_SSLMODE", "require"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "loanserve-core"),
		},
		Prefetch: PrefetchConfig{
			PaymentValidation: getEnvInt("PREFETCH_PAYMENT_VALIDATION", 20),
			PaymentProcessing: getEnvInt("PREFETCH_PAYMENT_PROCESSING", 5),
			Reconcile:         getEnvInt("PREFETCH_RECONCILE", 5),
			AuditLog:          getEnvInt("PREFETCH_AUDIT_LOG", 100),
			ServicingCycle:    getEnvInt("PREFETCH_SERVICING_CYCLE", 1),
			ACHReturns:        getEnvInt("PREFETCH_ACH_RETURNS", 5),
		},
		Reconcile: ReconcileConfig{
			MatchThreshold: getEnvInt("RECON_MATCH_THRESHOLD", 85),
			DateWindowDays: getEnvInt("RECON_DATE_WINDOW_DAYS", 3),
		},
		ACH: ACHConfig{
			ImmediateDestination: getEnv("ACH_IMMEDIATE_DESTINATION", ""),
			ImmediateOrigin:      getEnv("ACH_IMMEDIATE_ORIGIN", ""),
			DestinationName:      getEnv("ACH_DESTINATION_NAME", ""),
			OriginName:           getEnv("ACH_ORIGIN_NAME", ""),
			CompanyName:          getEnv("ACH_COMPANY_NAME", ""),
			CompanyID:            getEnv("ACH_COMPANY_ID", ""),
			ODFIRouting:          getEnv("ACH_ODFI_ROUTING", ""),
			OutputDir:            getEnv("ACH_OUTPUT_DIR", ""),
		},
		DeliveryLimit: getEnvInt("BROKER_DELIVERY_LIMIT", 6),
		OutboxBatch:   getEnvInt("OUTBOX_BATCH_SIZE", 100),
		MetricsPort:   getEnvInt("METRICS_PORT", 9102),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		ServiceName:   "loanserve-core",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
