package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	BucketName    string
	PublicBaseURL string
}

type Worker struct {
	TickInterval    time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
	Concurrency     int
	RetentionPolicy string
	RetentionDays   int
}

type Config struct {
	ThreadsAppID     string
	ThreadsAppSecret string
	PostgresURI      string
	RedisURI         string
	R2               R2
	Worker           Worker
	SecretKey        string
	CronSecret       string
}

const (
	RetentionPolicyRetain = "retain"
	RetentionPolicyDelete = "delete"
)

func LoadConfig() *Config {
	return &Config{
		ThreadsAppID:     getEnv("THREADS_APP_ID", ""),
		ThreadsAppSecret: getEnv("THREADS_APP_SECRET", ""),
		PostgresURI:      getEnv("POSTGRES_URI", ""),
		RedisURI:         getEnv("REDIS_URI", ""),
		R2: R2{
			AccountID:     getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:     getEnv("R2_ACCESS_KEY", ""),
			SecretKey:     getEnv("R2_SECRET_KEY", ""),
			BucketName:    getEnv("R2_BUCKET_NAME", ""),
			PublicBaseURL: getEnv("R2_PUBLIC_BASE_URL", ""),
		},
		Worker: Worker{
			TickInterval:    getEnvDuration("WORKER_TICK_INTERVAL", 10*time.Second),
			PollInterval:    getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			PollMaxAttempts: getEnvInt("WORKER_POLL_MAX_ATTEMPTS", 10),
			Concurrency:     getEnvInt("WORKER_CONCURRENCY", 10),
			RetentionPolicy: getEnv("RETENTION_POLICY", RetentionPolicyRetain),
			RetentionDays:   getEnvInt("RETENTION_DAYS", 0),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CronSecret: getEnv("CRON_SECRET", ""),
	}
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
