package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// JWTSecret signs session tokens. The server refuses to start without it.
	JWTSecret        string `env:"JWT_SECRET"`
	JWTExpireSeconds int    `env:"JWT_EXPIRE_SECONDS" envDefault:"3600"`

	// HashPoolSize bounds concurrent password hashing. Zero means GOMAXPROCS.
	HashPoolSize int `env:"HASH_POOL_SIZE" envDefault:"0"`

	Argon2   Argon2Config   `envPrefix:"ARGON2_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Events   EventsConfig   `envPrefix:"EVENTS_"`
	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`
	PubSub   PubSubConfig   `envPrefix:"PUBSUB_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Minio    MinioConfig    `envPrefix:"MINIO_"`
	GCS      GCSConfig      `envPrefix:"GCS_"`
}

type DatabaseConfig struct {
	// URL takes precedence over the individual connection fields.
	URL          string `env:"URL"`
	Driver       string `env:"DRIVER" envDefault:"postgres"`
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"5432"`
	User         string `env:"USER" envDefault:"accounts"`
	Password     string `env:"PASSWORD" envDefault:"password"`
	DBName       string `env:"NAME" envDefault:"accounts_db"`
	UseSSL       bool   `env:"USE_SSL" envDefault:"false"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"25"`
}

// Argon2Config mirrors auth.Argon2Params so the config package stays free of
// internal imports.
type Argon2Config struct {
	MemoryKiB   uint32 `env:"MEMORY_KIB" envDefault:"19456"`
	Iterations  uint32 `env:"ITERATIONS" envDefault:"2"`
	Parallelism uint8  `env:"PARALLELISM" envDefault:"1"`
	SaltLength  uint32 `env:"SALT_LENGTH" envDefault:"16"`
	KeyLength   uint32 `env:"KEY_LENGTH" envDefault:"32"`
}

type EventsConfig struct {
	Backend string `env:"BACKEND" envDefault:"none"`
	Channel string `env:"CHANNEL" envDefault:"account-events"`
}

type RabbitMQConfig struct {
	URL             string `env:"URL"`
	PrefetchCount   int    `env:"PREFETCH_COUNT" envDefault:"10"`
	QueueDurable    bool   `env:"QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"QUEUE_AUTO_DELETE" envDefault:"false"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PROJECT_ID"`
	CredentialsFile    string `env:"CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type StorageConfig struct {
	Backend string `env:"BACKEND" envDefault:"minio"`
}

type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"accounts"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"BUCKET"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
	ProjectID       string `env:"PROJECT_ID"`
}

func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	// DATABASE_URL is accepted as an alias for DB_URL.
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.JWTExpireSeconds <= 0 {
		return Config{}, fmt.Errorf("JWT_EXPIRE_SECONDS must be positive, got %d", cfg.JWTExpireSeconds)
	}
	return cfg, nil
}

// TokenTTL returns the configured session token lifetime.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpireSeconds) * time.Second
}
