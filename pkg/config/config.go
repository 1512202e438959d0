package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	MongoURI      string
	MongoDatabase string
	// PostgresURL is optional; when set, repair runs are recorded there.
	PostgresURL string

	RedisURL        string
	RealtimeBackend string

	AuthMode                string
	JWTSecret               string
	FirebaseCredentialsPath string

	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicURL       string
	MaxUploadBytes    int64

	RepairInterval        time.Duration
	RepairConcurrency     int
	TypingEventsPerSecond int
	ShutdownTimeout       time.Duration
}

const (
	RealtimeLocal = "local"
	RealtimeRedis = "redis"

	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
)

// Load reads configuration from the environment, after a best-effort .env load.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "socialmedia"),
		PostgresURL:             getEnv("POSTGRES_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		RealtimeBackend:         getEnv("REALTIME_BACKEND", RealtimeLocal),
		AuthMode:                getEnv("AUTH_MODE", AuthJWT),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		S3Endpoint:              getEnv("S3_ENDPOINT", ""),
		S3Region:                getEnv("S3_REGION", "auto"),
		S3Bucket:                getEnv("S3_BUCKET", ""),
		S3AccessKeyID:           getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:       getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PublicURL:             getEnv("S3_PUBLIC_URL", ""),
		MaxUploadBytes:          int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		RepairInterval:          getEnvDuration("REPAIR_INTERVAL", 0),
		RepairConcurrency:       getEnvInt("REPAIR_CONCURRENCY", 8),
		TypingEventsPerSecond:   getEnvInt("TYPING_EVENTS_PER_SECOND", 2),
		ShutdownTimeout:         getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration values are set and consistent.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	switch c.RealtimeBackend {
	case RealtimeLocal:
	case RealtimeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when REALTIME_BACKEND=redis")
		}
	default:
		return fmt.Errorf("REALTIME_BACKEND must be %q or %q, got %q", RealtimeLocal, RealtimeRedis, c.RealtimeBackend)
	}
	switch c.AuthMode {
	case AuthJWT:
		if c.JWTSecret == "" && c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	case AuthFirebase:
		if c.FirebaseCredentialsPath == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required when AUTH_MODE=firebase")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthJWT, AuthFirebase, c.AuthMode)
	}
	if c.RepairConcurrency < 1 {
		return fmt.Errorf("REPAIR_CONCURRENCY must be positive")
	}
	if c.RepairInterval < 0 {
		return fmt.Errorf("REPAIR_INTERVAL must not be negative")
	}
	return nil
}

// MediaEnabled reports whether message attachments can be stored.
func (c *Config) MediaEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != "" && c.S3PublicURL != ""
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SigningSecret returns the JWT secret, with a fixed development fallback.
func (c *Config) SigningSecret() string {
	if c.JWTSecret == "" {
		return "supersecretjwtkey"
	}
	return c.JWTSecret
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
