package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server Configuration
	Port        string
	Environment string
	Debug       bool

	// Database Configuration
	MongoURI string
	DBName   string

	// JWT Configuration
	JWTSecret      string
	AccessTokenTTL time.Duration

	// Microsoft Graph Configuration
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphDriveUser    string

	// S3 Configuration (alternate backend)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string

	// Storage backend selector: "onedrive" or "s3"
	StorageBackend string

	// Sync Configuration
	SyncInterval time.Duration
	SyncEnabled  bool
	// SyncUserID is the local user the background sync acts as; synced
	// nodes are granted to this account.
	SyncUserID string

	// Security Configuration
	RateLimitEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		Debug:       getEnvAsBool("DEBUG", true),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "codrive"),

		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		AccessTokenTTL: getEnvAsDuration("ACCESS_TOKEN_TTL", "24h"),

		GraphTenantID:     getEnv("GRAPH_TENANT_ID", ""),
		GraphClientID:     getEnv("GRAPH_CLIENT_ID", ""),
		GraphClientSecret: getEnv("GRAPH_CLIENT_SECRET", ""),
		GraphDriveUser:    getEnv("GRAPH_DRIVE_USER", ""),

		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),

		StorageBackend: getEnv("STORAGE_BACKEND", "onedrive"),

		SyncInterval: getEnvAsDuration("SYNC_INTERVAL", "5m"),
		SyncEnabled:  getEnvAsBool("SYNC_ENABLED", true),
		SyncUserID:   getEnv("SYNC_USER_ID", ""),

		RateLimitEnabled: getEnvAsBool("RATE_LIMIT_ENABLED", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	if parsed, err := time.ParseDuration(defaultValue); err == nil {
		return parsed
	}
	return 24 * time.Hour
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetServerAddress returns the server address for listening
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.JWTSecret == "change-me-in-production" && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be changed in production")
	}
	switch c.StorageBackend {
	case "onedrive":
		if c.GraphTenantID == "" || c.GraphClientID == "" || c.GraphClientSecret == "" || c.GraphDriveUser == "" {
			return fmt.Errorf("GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and GRAPH_DRIVE_USER are required for the onedrive backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	return nil
}
