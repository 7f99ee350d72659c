package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	OllamaHost        string        `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	OllamaModel       string        `env:"OLLAMA_MODEL" envDefault:"llama3"`
	OllamaTemperature float64       `env:"OLLAMA_TEMPERATURE" envDefault:"0.5"`
	OllamaMaxTokens   int           `env:"OLLAMA_MAX_TOKENS" envDefault:"2048"`
	OllamaTimeout     time.Duration `env:"OLLAMA_TIMEOUT" envDefault:"60s"`

	RedisAddr          string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	RedisMaxRetries    int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	RedisRetryInterval time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
