package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Orders    OrderConfig
	Auth      AuthConfig
	Reconcile ReconcileConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	StoreTimeout time.Duration
}

type DatabaseConfig struct {
	DSN           string
	SQLiteDSN     string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Addr     string
	LockTTL  time.Duration
	LockWait time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	Notifications        string
	OrderCreated         string
	OrderConfirmed       string
	OrderCompleted       string
	OrderCancelled       string
	OrderDeleted         string
	VendorOrderResponded string
	VendorOrderCompleted string
	VendorOrderCancelled string
}

// All returns every configured topic name.
func (t TopicConfig) All() []string {
	return []string{
		t.Notifications,
		t.OrderCreated,
		t.OrderConfirmed,
		t.OrderCompleted,
		t.OrderCancelled,
		t.OrderDeleted,
		t.VendorOrderResponded,
		t.VendorOrderCompleted,
		t.VendorOrderCancelled,
	}
}

type OrderConfig struct {
	DiscountRate    decimal.Decimal
	AllowEmpty      bool
	ConflictRetries int
}

type AuthConfig struct {
	JWTSecret  string
	OIDCIssuer string
}

type ReconcileConfig struct {
	Interval time.Duration
	Batch    int
}

type LogConfig struct {
	Dir   string
	Level string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8084"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			StoreTimeout: time.Duration(getEnvInt("STORE_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			SQLiteDSN:     getEnv("SQLITE_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			LockTTL:  time.Duration(getEnvInt("ORDER_LOCK_TTL_SECONDS", 10)) * time.Second,
			LockWait: time.Duration(getEnvInt("ORDER_LOCK_WAIT_MS", 3000)) * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_ADDR", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "booking-reconciler"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				Notifications:        getEnv("KAFKA_TOPIC_NOTIFICATIONS", "booking.notifications"),
				OrderCreated:         "booking.order.created",
				OrderConfirmed:       "booking.order.confirmed",
				OrderCompleted:       "booking.order.completed",
				OrderCancelled:       "booking.order.cancelled",
				OrderDeleted:         "booking.order.deleted",
				VendorOrderResponded: "booking.vendor_order.responded",
				VendorOrderCompleted: "booking.vendor_order.completed",
				VendorOrderCancelled: "booking.vendor_order.cancelled",
			},
		},
		Orders: OrderConfig{
			DiscountRate:    getEnvDecimal("PRICING_DISCOUNT_RATE", decimal.RequireFromString("0.10")),
			AllowEmpty:      getEnvBool("ORDER_ALLOW_EMPTY", false),
			ConflictRetries: getEnvInt("ORDER_CONFLICT_RETRIES", 5),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		Reconcile: ReconcileConfig{
			Interval: time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 60)) * time.Second,
			Batch:    getEnvInt("RECONCILE_BATCH", 100),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
