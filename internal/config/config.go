// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Weather provider
	WeatherAPIKey  string
	WeatherBaseURL string

	// Save endpoint (form側の送信先)
	SaveEndpoint string

	// Outbound HTTP。0はタイムアウトなし
	HTTPClientTimeout time.Duration

	// Server
	ServerPort string
	StorePort  string

	// Database (store / migrate)
	DatabaseURL string

	// CORS
	CORSAllowedOrigin string

	// Session / Cookie
	BaseURL            string
	CookieSecure       bool
	CookieDomain       string
	SessionIdleTimeout time.Duration

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須項目はコマンドごとに異なるため、ValidateServe / ValidateStore で検証する。
func Load() (*Config, error) {
	cfg := &Config{
		WeatherAPIKey:     os.Getenv("WEATHER_API_KEY"),
		WeatherBaseURL:    getEnvString("WEATHER_BASE_URL", "http://api.weatherapi.com/v1"),
		SaveEndpoint:      getEnvString("SAVE_ENDPOINT", "http://localhost:5000/saveWeatherData"),
		ServerPort:        getEnvString("SERVER_PORT", "8080"),
		StorePort:         getEnvString("STORE_PORT", "5000"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		CORSAllowedOrigin: getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:8080"),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
	}

	timeout, err := getEnvDuration("HTTP_CLIENT_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, fmt.Errorf("HTTP_CLIENT_TIMEOUT must not be negative: %s", timeout)
	}
	cfg.HTTPClientTimeout = timeout

	idle, err := getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	if idle <= 0 {
		return nil, fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive: %s", idle)
	}
	cfg.SessionIdleTimeout = idle

	// Cookie設定はBASE_URLから導出する
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	return cfg, nil
}

// ValidateServe はフォームサーバーの起動に必要な環境変数を検証する。
func (c *Config) ValidateServe() error {
	var missing []string
	if c.WeatherAPIKey == "" {
		missing = append(missing, "WEATHER_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

// ValidateStore は保存エンドポイントとマイグレーションに必要な環境変数を検証する。
func (c *Config) ValidateStore() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvDuration は "10s" 形式または秒数の整数を受け付ける。
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, v)
	}
	return d, nil
}
