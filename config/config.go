package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort            string
	DatabaseURL           string
	AdminToken            string
	ScrapeIntervalMinutes string
	RequestDelaySeconds   string
	FetchTimeoutSeconds   string
	DiscordWebhookURL     string
	SourcesFile           string
	LogLevel              string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:            getEnv("SERVER_PORT", "8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		AdminToken:            getEnv("ADMIN_TOKEN", ""),
		ScrapeIntervalMinutes: getEnv("SCRAPE_INTERVAL_MINUTES", "60"),
		RequestDelaySeconds:   getEnv("REQUEST_DELAY", "1"),
		FetchTimeoutSeconds:   getEnv("FETCH_TIMEOUT_SECONDS", "30"),
		DiscordWebhookURL:     getEnv("DISCORD_WEBHOOK_URL", ""),
		SourcesFile:           getEnv("SOURCES_FILE", "sources.yaml"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}
}

// GetScrapeInterval returns the scheduler tick interval from environment
// or the default of one hour.
func (c *Config) GetScrapeInterval() time.Duration {
	minutes, err := strconv.Atoi(c.ScrapeIntervalMinutes)
	if err != nil || minutes <= 0 {
		logrus.Warnf("Invalid SCRAPE_INTERVAL_MINUTES value: %s, using default 60 minutes", c.ScrapeIntervalMinutes)
		return 60 * time.Minute
	}
	return time.Duration(minutes) * time.Minute
}

// GetRequestDelay returns the minimum delay between outbound fetches.
func (c *Config) GetRequestDelay() time.Duration {
	seconds, err := strconv.ParseFloat(c.RequestDelaySeconds, 64)
	if err != nil || seconds < 0 {
		logrus.Warnf("Invalid REQUEST_DELAY value: %s, using default 1 second", c.RequestDelaySeconds)
		return time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}

// GetFetchTimeout returns the per-request timeout for source fetches.
func (c *Config) GetFetchTimeout() time.Duration {
	seconds, err := strconv.Atoi(c.FetchTimeoutSeconds)
	if err != nil || seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
