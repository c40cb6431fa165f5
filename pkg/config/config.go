// Package config loads deployment configuration from the environment:
// which store backend to rendezvous through and how to reach it. User
// preferences live in pkg/settings instead; this layer is for the
// credentials and endpoints that do not belong in a prefs file.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/tomaslejdung/coview/pkg/store"
)

// Backend names accepted in COVIEW_STORE_BACKEND.
const (
	BackendHTTP   = "http"
	BackendRedis  = "redis"
	BackendMinIO  = "minio"
	BackendMemory = "memory"
)

// Config holds the store backend selection and its settings.
type Config struct {
	Backend string
	HTTP    HTTPConfig
	Redis   RedisConfig
	MinIO   store.MinIOConfig
}

type HTTPConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Load reads configuration from environment variables and a .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("COVIEW_STORE_BACKEND", BackendHTTP)
	viper.SetDefault("COVIEW_STORE_URL", "http://localhost:8080")
	viper.SetDefault("COVIEW_REDIS_ADDR", "localhost:6379")
	viper.SetDefault("COVIEW_REDIS_DB", 0)
	viper.SetDefault("COVIEW_REDIS_TTL_HOURS", 24)
	viper.SetDefault("COVIEW_MINIO_BUCKET", "coview")

	cfg := &Config{
		Backend: viper.GetString("COVIEW_STORE_BACKEND"),
		HTTP: HTTPConfig{
			URL: viper.GetString("COVIEW_STORE_URL"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("COVIEW_REDIS_ADDR"),
			Password: viper.GetString("COVIEW_REDIS_PASSWORD"),
			DB:       viper.GetInt("COVIEW_REDIS_DB"),
			TTL:      time.Duration(viper.GetInt("COVIEW_REDIS_TTL_HOURS")) * time.Hour,
		},
		MinIO: store.MinIOConfig{
			Endpoint:  viper.GetString("COVIEW_MINIO_ENDPOINT"),
			AccessKey: viper.GetString("COVIEW_MINIO_ACCESS_KEY"),
			SecretKey: viper.GetString("COVIEW_MINIO_SECRET_KEY"),
			Bucket:    viper.GetString("COVIEW_MINIO_BUCKET"),
			UseSSL:    viper.GetBool("COVIEW_MINIO_USE_SSL"),
		},
	}
	return cfg, nil
}

// BuildStore constructs the configured store backend.
func (c *Config) BuildStore() (store.Store, error) {
	switch c.Backend {
	case BackendHTTP:
		return store.NewHTTPStore(c.HTTP.URL), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		return store.NewRedisStore(client, "", c.Redis.TTL), nil
	case BackendMinIO:
		return store.NewMinIOStore(c.MinIO)
	case BackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Backend)
	}
}
