package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	Timeout            time.Duration
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Config holds settings for AWS S3 or any S3-compatible endpoint.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// StorageConfig selects the object storage backend and upload limits.
type StorageConfig struct {
	Backend        string // minio, s3 or local
	LocalDir       string
	MaxUploadBytes int64
	AllowedTypes   []string
	Timeout        time.Duration
	PresignExpiry  time.Duration
}

// RedisConfig configures the QR binding cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// LogConfig controls the process logger. File enables rotation via lumberjack.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ScanConfig tunes scan recording and the public view endpoint.
type ScanConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RateLimit   float64 // requests per second per client IP
	RateBurst   int
}

// AppConfig is the centralized configuration struct for the application.
// Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost       string
	Port          string
	PublicBaseURL string
	Database      DatabaseConfig
	MinIO         MinIOConfig
	S3            S3Config
	Storage       StorageConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Log           LogConfig
	Scan          ScanConfig
}

// DefaultAllowedTypes are the MIME types accepted for uploads unless overridden.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_HOST", "localhost:8080")
	v.SetDefault("PORT", "8080")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SEC", 300)
	v.SetDefault("DB_TIMEOUT", "5s")

	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_PATH_STYLE", false)

	v.SetDefault("STORAGE_BACKEND", "minio")
	v.SetDefault("STORAGE_LOCAL_DIR", "./data/objects")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("STORAGE_ALLOWED_TYPES", strings.Join(DefaultAllowedTypes, ","))
	v.SetDefault("STORAGE_TIMEOUT", "30s")
	v.SetDefault("STORAGE_PRESIGN_EXPIRY", "15m")

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TTL", "5m")

	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
	v.SetDefault("LOG_COMPRESS", false)

	v.SetDefault("SCAN_WORKERS", 4)
	v.SetDefault("SCAN_QUEUE_SIZE", 256)
	v.SetDefault("SCAN_MAX_ATTEMPTS", 3)
	v.SetDefault("SCAN_RATE_LIMIT", 5.0)
	v.SetDefault("SCAN_RATE_BURST", 10)
}

// Load reads configuration from the process-wide viper instance, which the CLI
// has already pointed at an optional config file and bound to its flags.
func Load() *AppConfig {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v. Environment variables take precedence
// over config file values, which take precedence over defaults.
func LoadFrom(v *viper.Viper) *AppConfig {
	setDefaults(v)
	v.AutomaticEnv()

	return &AppConfig{
		AppHost:       v.GetString("APP_HOST"),
		Port:          v.GetString("PORT"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		Database: DatabaseConfig{
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetString("DB_PORT"),
			User:               v.GetString("DB_USER"),
			Password:           v.GetString("DB_PASSWORD"),
			Name:               v.GetString("DB_NAME"),
			SSLMode:            v.GetString("DB_SSLMODE"),
			MaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetimeSec: v.GetInt("DB_CONN_MAX_LIFETIME_SEC"),
			Timeout:            v.GetDuration("DB_TIMEOUT"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		S3: S3Config{
			Region:          v.GetString("S3_REGION"),
			Bucket:          v.GetString("S3_BUCKET"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UsePathStyle:    v.GetBool("S3_USE_PATH_STYLE"),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(v.GetString("STORAGE_BACKEND")),
			LocalDir:       v.GetString("STORAGE_LOCAL_DIR"),
			MaxUploadBytes: v.GetInt64("STORAGE_MAX_UPLOAD_BYTES"),
			AllowedTypes:   splitList(v.GetString("STORAGE_ALLOWED_TYPES")),
			Timeout:        v.GetDuration("STORAGE_TIMEOUT"),
			PresignExpiry:  v.GetDuration("STORAGE_PRESIGN_EXPIRY"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("REDIS_TTL"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
			Compress:   v.GetBool("LOG_COMPRESS"),
		},
		Scan: ScanConfig{
			Workers:     v.GetInt("SCAN_WORKERS"),
			QueueSize:   v.GetInt("SCAN_QUEUE_SIZE"),
			MaxAttempts: v.GetInt("SCAN_MAX_ATTEMPTS"),
			RateLimit:   v.GetFloat64("SCAN_RATE_LIMIT"),
			RateBurst:   v.GetInt("SCAN_RATE_BURST"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
