package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration
type Config struct {
	Port     int
	LogLevel string
	Env      string
	DB       DBConfig
	Kafka    KafkaConfig
	Feed     FeedConfig
	Notifier NotifierConfig
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// KafkaConfig holds the Kafka configuration for the outbox relay
type KafkaConfig struct {
	Brokers       []string
	OrdersTopic   string
	ConsumerGroup string
}

// FeedConfig holds the live feed configuration
type FeedConfig struct {
	// QueueSize bounds each subscriber's delivery queue. A display that
	// falls further behind than this is disconnected and reconciles by
	// reconnecting.
	QueueSize int
}

// NotifierConfig holds the downstream notification webhook configuration
type NotifierConfig struct {
	WebhookURL string
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))

	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))

	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	queueSize, err := strconv.Atoi(getEnv("FEED_QUEUE_SIZE", "64"))

	if err != nil || queueSize < 1 {
		return nil, fmt.Errorf("invalid FEED_QUEUE_SIZE: %v", err)
	}

	return &Config{
		Port:     port,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("APP_ENV", "development"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "dinedesk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			OrdersTopic:   getEnv("KAFKA_ORDERS_TOPIC", "dinedesk.orders"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "dinedesk-notifier"),
		},
		Feed: FeedConfig{
			QueueSize: queueSize,
		},
		Notifier: NotifierConfig{
			WebhookURL: getEnv("NOTIFIER_WEBHOOK_URL", ""),
		},
	}, nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
