package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

const defaultSigningKey = "arriendadevsecretkey"

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Env             string
	BaseURL         string
	AllowedOrigins  []string
	BodyLimit       string
	ShutdownTimeout time.Duration
}

// IsProduction reports whether the server runs with production settings
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Root          string
	PublicBaseURL string
	AttachmentTTL time.Duration
	CommunityTTL  time.Duration
	// SHA-256 hex digests of files every upload route refuses
	BlockedHashes []string
}

// MercadoPagoConfig holds payment gateway configuration
type MercadoPagoConfig struct {
	Environment           string
	SandboxAccessToken    string
	SandboxPublicKey      string
	ProductionAccessToken string
	ProductionPublicKey   string
	WebhookSecret         string
	APIBaseURL            string
	Timeout               time.Duration
}

// IsSandbox reports whether sandbox credentials are in use
func (c *MercadoPagoConfig) IsSandbox() bool {
	return c.Environment != "production"
}

// AccessToken returns the access token for the configured environment
func (c *MercadoPagoConfig) AccessToken() string {
	if c.IsSandbox() {
		return c.SandboxAccessToken
	}
	return c.ProductionAccessToken
}

// PublicKey returns the public key for the configured environment
func (c *MercadoPagoConfig) PublicKey() string {
	if c.IsSandbox() {
		return c.SandboxPublicKey
	}
	return c.ProductionPublicKey
}

// KafkaConfig holds event streaming configuration. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RateLimitConfig holds the global per-IP limiter settings
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// PresenceConfig holds presence tracker settings
type PresenceConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// ModerationConfig holds report moderation settings
type ModerationConfig struct {
	AutoSuspendThreshold int
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	JWT         JWTConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Storage     StorageConfig
	MercadoPago MercadoPagoConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
	Presence    PresenceConfig
	Moderation  ModerationConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	serverPort := getEnv("SERVER_PORT", "8080")

	config := &Config{
		ServiceName: getEnv("SERVICE_NAME", "arrienda"),
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "arrienda"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port:            serverPort,
			Env:             getEnv("APP_ENV", "development"),
			BaseURL:         strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+serverPort), "/"),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			BodyLimit:       getEnv("BODY_LIMIT", "30M"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", defaultSigningKey),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "arrienda"),
		},
		Storage: StorageConfig{
			Root:          getEnv("STORAGE_ROOT", "./data/storage"),
			PublicBaseURL: strings.TrimRight(getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:"+serverPort), "/"),
			AttachmentTTL: getEnvAsDuration("STORAGE_ATTACHMENT_URL_TTL", time.Hour),
			CommunityTTL:  getEnvAsDuration("STORAGE_COMMUNITY_URL_TTL", 15*time.Minute),
			BlockedHashes: getEnvAsList("BLOCKED_FILE_HASHES", nil),
		},
		MercadoPago: MercadoPagoConfig{
			Environment:           getEnv("MERCADOPAGO_ENVIRONMENT", "sandbox"),
			SandboxAccessToken:    getEnv("MERCADOPAGO_SANDBOX_ACCESS_TOKEN", ""),
			SandboxPublicKey:      getEnv("MERCADOPAGO_SANDBOX_PUBLIC_KEY", ""),
			ProductionAccessToken: getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
			ProductionPublicKey:   getEnv("MERCADOPAGO_PUBLIC_KEY", ""),
			WebhookSecret:         getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
			APIBaseURL:            strings.TrimRight(getEnv("MERCADOPAGO_API_URL", "https://api.mercadopago.com"), "/"),
			Timeout:               getEnvAsDuration("MERCADOPAGO_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "arrienda.events"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Presence: PresenceConfig{
			TTL:           getEnvAsDuration("PRESENCE_TTL", 60*time.Second),
			SweepInterval: getEnvAsDuration("PRESENCE_SWEEP_INTERVAL", 15*time.Second),
		},
		Moderation: ModerationConfig{
			AutoSuspendThreshold: getEnvAsInt("REPORT_AUTO_SUSPEND_THRESHOLD", 2),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Server.IsProduction() && c.JWT.SigningKey == defaultSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	if c.Moderation.AutoSuspendThreshold < 1 {
		return fmt.Errorf("invalid REPORT_AUTO_SUSPEND_THRESHOLD: %d", c.Moderation.AutoSuspendThreshold)
	}
	if !c.MercadoPago.IsSandbox() && c.MercadoPago.ProductionAccessToken == "" {
		return errors.New("MERCADOPAGO_ACCESS_TOKEN must be set when MERCADOPAGO_ENVIRONMENT=production")
	}
	return nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("storage_root", c.Storage.Root),
		zap.String("mercadopago_environment", c.MercadoPago.Environment),
		zap.Bool("kafka_enabled", len(c.Kafka.Brokers) > 0),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Comma separated list, blanks dropped
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
