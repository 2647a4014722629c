package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Shop     ShopConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	BodyLimitBytes  int
	AllowedOrigins  string
	RateLimitMax    int
	RateLimitWindow time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	TimeZone        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the driver-specific connection string. For sqlite, Name is the file path
// (or a "file:...?mode=memory" URI).
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	default:
		return "host=" + d.Host +
			" user=" + d.User +
			" password=" + d.Password +
			" dbname=" + d.Name +
			" port=" + strconv.Itoa(d.Port) +
			" sslmode=" + d.SSLMode +
			" TimeZone=" + d.TimeZone
	}
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type ShopConfig struct {
	Name           string
	CurrencySymbol string
}

// Load reads configuration from the environment. A .env file is loaded first when
// present; explicit env vars win over it.
func Load() *Config {
	_ = godotenv.Load()

	bodyLimit := getEnvInt("BODY_LIMIT_BYTES", 0)
	if bodyLimit <= 0 {
		bodyLimit = getEnvInt("BODY_LIMIT_MB", 4) * 1024 * 1024
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnvString("PORT", "8080"),
			BodyLimitBytes:  bodyLimit,
			AllowedOrigins:  getEnvString("ALLOWED_ORIGINS", "*"),
			RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 60),
			RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnvString("DB_DRIVER", "postgres")),
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnvString("DB_USER", "shop"),
			Password:        getEnvString("DB_PASSWORD", "shop"),
			Name:            getEnvString("DB_NAME", "mobileshop"),
			SSLMode:         getEnvString("DB_SSLMODE", "disable"),
			TimeZone:        getEnvString("DB_TIMEZONE", "UTC"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnvString("REDIS_ADDRESS", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("LOOKUP_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnvString("KAFKA_TOPIC", "mobileshop.billing"),
		},
		JWT: JWTConfig{
			// JWT_SECRET is the older name
			Secret: getEnvString("JWT_SECRET_KEY", getEnvString("JWT_SECRET", "")),
			TTL:    time.Duration(getEnvInt("JWT_TTL_HOURS", 24)) * time.Hour,
		},
		Shop: ShopConfig{
			Name:           getEnvString("SHOP_NAME", "Mobile Shop"),
			CurrencySymbol: getEnvString("CURRENCY_SYMBOL", "₹"),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}
}

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
