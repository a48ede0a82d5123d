package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	altitude "github.com/twpayne/go-altitude"
)

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxQueryLength int

	// Local cache, used when MinIO is not configured.
	CacheDir  string
	CacheName string

	// Optional S3-compatible cache.
	MinIO MinIOConfig
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// Enabled returns true if a MinIO endpoint is configured.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Load reads configuration from the environment, and from a .env file in the
// current directory if there is one.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		BaseURL:   getenvDefault("ALTITUDE_API_URL", altitude.DefaultBaseURL),
		CacheName: getenvDefault("ALTITUDE_CACHE_NAME", altitude.DefaultCacheName),
	}

	timeout, err := time.ParseDuration(getenvDefault("ALTITUDE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALTITUDE_TIMEOUT: %w", err)
	}
	cfg.Timeout = timeout

	cfg.MaxQueryLength, err = getenvInt("ALTITUDE_MAX_QUERY_LENGTH", altitude.DefaultMaxQueryLength)
	if err != nil {
		return nil, err
	}

	cfg.CacheDir = os.Getenv("ALTITUDE_CACHE_DIR")
	if cfg.CacheDir == "" {
		cfg.CacheDir, err = altitude.DefaultCacheDir()
		if err != nil {
			return nil, fmt.Errorf("default cache dir: %w", err)
		}
	}

	cfg.MinIO = MinIOConfig{
		Endpoint:  os.Getenv("ALTITUDE_MINIO_ENDPOINT"),
		AccessKey: os.Getenv("ALTITUDE_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("ALTITUDE_MINIO_SECRET_KEY"),
		Bucket:    getenvDefault("ALTITUDE_MINIO_BUCKET", "coordinate-altitude"),
		Prefix:    os.Getenv("ALTITUDE_MINIO_PREFIX"),
	}
	if v := os.Getenv("ALTITUDE_MINIO_SECURE"); v != "" {
		cfg.MinIO.Secure, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ALTITUDE_MINIO_SECURE: %w", err)
		}
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
