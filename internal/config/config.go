package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Resize  ResizeConfig
	Archive ArchiveConfig
	Redis   RedisConfig
	Queue   QueueConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type ResizeConfig struct {
	// WorkerURL points at a separately deployed resize worker. When empty
	// the resize runs in-process.
	WorkerURL       string
	Timeout         time.Duration
	UserAgent       string
	MaxDownloadSize int64
}

type ArchiveConfig struct {
	MaxZipSize    int64
	MaxConcurrent int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type QueueConfig struct {
	URL string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
		},
		Resize: ResizeConfig{
			WorkerURL:       getEnv("RESIZE_WORKER_URL", ""),
			Timeout:         getDuration("RESIZE_TIMEOUT", 10*time.Second),
			UserAgent:       getEnv("RESIZE_USER_AGENT", "training-archive"),
			MaxDownloadSize: getEnvAsInt64("MAX_DOWNLOAD_SIZE", 52428800), // 50MB
		},
		Archive: ArchiveConfig{
			MaxZipSize:    getEnvAsInt64("MAX_ZIP_SIZE", 100000000), // 100mb
			MaxConcurrent: getEnvAsInt("MAX_CONCURRENT_FETCHES", 8),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getDuration("CACHE_DURATION", 24*time.Hour),
		},
		Queue: QueueConfig{
			URL: getEnv("RABBITMQ_URL", ""),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
