package config

import (
	"strings"
	"sync"
)

var (
	workerOnce   sync.Once
	workerConfig *WorkerConfig
)

// WorkerConfig covers the queue, the HTTP trigger API and the storage backend
// selection.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	ServerAddr    string
	MetricsAddr   string
	StorageType   string
	LogLevel      string
	LogOutputs    []string
}

func GetWorkerConfig() *WorkerConfig {
	workerOnce.Do(func() {
		workerConfig = LoadWorkerConfig()
	})
	return workerConfig
}

func LoadWorkerConfig() *WorkerConfig {
	loadEnv()
	return &WorkerConfig{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		Concurrency:   getInt("WORKER_CONCURRENCY", 2),
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		StorageType:   getEnv("STORAGE_TYPE", "s3"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogOutputs:    splitList(getEnv("LOG_OUTPUTS", "stdout")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
