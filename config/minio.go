package config

import (
	"sync"
)

var (
	minioOnce   sync.Once
	minioConfig *MinioConfig
)

type MinioConfig struct {
	AccessKey  string
	SecretKey  string
	Endpoint   string
	UseSSL     bool
	Region     string
	BucketName string
}

func GetMinioConfig() *MinioConfig {
	minioOnce.Do(func() {
		minioConfig = LoadMinioConfig()
	})
	return minioConfig
}

func LoadMinioConfig() *MinioConfig {
	loadEnv()
	return &MinioConfig{
		AccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		SecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		UseSSL:     getBool("MINIO_USE_SSL", false),
		Region:     getEnv("MINIO_REGION", ""),
		BucketName: getEnv("MINIO_BUCKET_NAME", "lefse-results"),
	}
}
