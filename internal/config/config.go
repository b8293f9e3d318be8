// Package config содержит логику чтения конфигурации сервиса VNDR Music.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса VNDR Music.
// Необязательные параметры (Redis, фид, AI) могут быть пустыми:
// соответствующая функциональность в этом случае отключается.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	RedisAddress     string `env:"REDIS_ADDRESS"`
	JWTSecret        string `env:"JWT_SECRET"`
	NowPlayingURL    string `env:"NOWPLAYING_URL"`
	NowPlayingAPIKey string `env:"NOWPLAYING_API_KEY"`
	AIServiceURL     string `env:"AI_SERVICE_URL"`
	AIServiceAPIKey  string `env:"AI_SERVICE_API_KEY"`
	BridgeAPIKey     string `env:"BRIDGE_API_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envValues := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for balance cache")
	flag.StringVar(&cfg.JWTSecret, "s", "", "JWT signing secret")
	flag.StringVar(&cfg.NowPlayingURL, "n", "", "now-playing feed URL")
	flag.StringVar(&cfg.NowPlayingAPIKey, "k", "", "now-playing feed API key")
	flag.StringVar(&cfg.AIServiceURL, "ai-url", "", "generative model endpoint URL")
	flag.StringVar(&cfg.AIServiceAPIKey, "ai-key", "", "generative model API key")
	flag.StringVar(&cfg.BridgeAPIKey, "b", "", "internal token bridge API key")

	flag.Parse()

	// Переменные окружения имеют приоритет над флагами.
	if envValues.RunAddress != "" {
		cfg.RunAddress = envValues.RunAddress
	}
	if envValues.DatabaseURI != "" {
		cfg.DatabaseURI = envValues.DatabaseURI
	}
	if envValues.RedisAddress != "" {
		cfg.RedisAddress = envValues.RedisAddress
	}
	if envValues.JWTSecret != "" {
		cfg.JWTSecret = envValues.JWTSecret
	}
	if envValues.NowPlayingURL != "" {
		cfg.NowPlayingURL = envValues.NowPlayingURL
	}
	if envValues.NowPlayingAPIKey != "" {
		cfg.NowPlayingAPIKey = envValues.NowPlayingAPIKey
	}
	if envValues.AIServiceURL != "" {
		cfg.AIServiceURL = envValues.AIServiceURL
	}
	if envValues.AIServiceAPIKey != "" {
		cfg.AIServiceAPIKey = envValues.AIServiceAPIKey
	}
	if envValues.BridgeAPIKey != "" {
		cfg.BridgeAPIKey = envValues.BridgeAPIKey
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
