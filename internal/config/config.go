package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	RedisAddr     string `env:"REDIS_ADDR,required"`
	RedisUser     string `env:"REDIS_USER"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioSecure    bool   `env:"MINIO_SECURE" envDefault:"false"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"user-reports"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`
	AdminPasswordHash    string `env:"ADMIN_PASSWORD_HASH"`

	ScoringRetries int           `env:"SCORING_RETRIES" envDefault:"3"`
	ScoringTimeout time.Duration `env:"SCORING_TIMEOUT" envDefault:"360s"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"168h"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
