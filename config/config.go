package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EventBackendRedis  = "redis"
	EventBackendMemory = "memory"
)

type Config struct {
	Debug               bool   `envconfig:"debug"`
	Port                int    `envconfig:"port" default:"8080"`
	Env                 string `envconfig:"env" default:"dev"`
	PostgresHost        string `envconfig:"postgres_host"`
	PostgresUser        string `envconfig:"postgres_user"`
	PostgresDB          string `envconfig:"postgres_db"`
	PostgresPort        int    `envconfig:"postgres_port" default:"5432"`
	PostgresPassword    string `envconfig:"postgres_password"`
	PostgresTimeZone    string `envconfig:"postgres_timezone" default:"UTC"`
	JWTSecret           string `envconfig:"jwt_secret" required:"true"`
	RedisURL            string `envconfig:"redis_url"`
	EventBackend        string `envconfig:"event_backend" default:"memory"`
	FirebaseCredentials string `envconfig:"firebase_credentials"`
	MessageRateLimit    uint   `envconfig:"message_rate_limit" default:"20"`
	AllowedOrigins      string `envconfig:"allowed_origins"`
	WorkerConcurrency   int    `envconfig:"worker_concurrency" default:"5"`
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("spotchat", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Origins splits AllowedOrigins on commas. An empty result means every origin is allowed.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// UseRedisEvents reports whether realtime events travel over redis pub/sub.
func (c *Config) UseRedisEvents() bool {
	return strings.EqualFold(c.EventBackend, EventBackendRedis) && c.RedisURL != ""
}
