package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Database configuration
	DatabasePath string

	// Schedule configuration
	CheckTick      time.Duration // interval between scheduler cycles
	ReportSchedule string        // "daily" or "weekly"

	// Worker pool configuration
	MaxConcurrentChecks int
	CheckTimeout        time.Duration
	MaxRetryAttempts    int

	// Azure Storage configuration (report archive; optional)
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// AI platform credentials
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	PerplexityAPIKey string
	GeminiAPIKey     string

	// Default platform set for newly created queries
	DefaultPlatforms []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabasePath: getEnv("DATABASE_PATH", "./data/citelens.db"),

		CheckTick:      time.Duration(getIntEnv("CHECK_TICK_MINUTES", 5)) * time.Minute,
		ReportSchedule: getEnv("REPORT_SCHEDULE", "weekly"),

		MaxConcurrentChecks: getIntEnv("MAX_CONCURRENT_CHECKS", 8),
		CheckTimeout:        time.Duration(getIntEnv("CHECK_TIMEOUT_SECONDS", 60)) * time.Second,
		MaxRetryAttempts:    getIntEnv("MAX_RETRY_ATTEMPTS", 3),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "reports"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		PerplexityAPIKey: getEnv("PERPLEXITY_API_KEY", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),

		DefaultPlatforms: getSliceEnv("DEFAULT_PLATFORMS", []string{
			"chatgpt",
			"claude",
			"perplexity",
			"gemini",
		}),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReportSchedule != "daily" && c.ReportSchedule != "weekly" {
		return fmt.Errorf("REPORT_SCHEDULE must be 'daily' or 'weekly'")
	}

	if c.CheckTick < time.Minute {
		return fmt.Errorf("CHECK_TICK_MINUTES must be at least 1")
	}

	if c.MaxConcurrentChecks < 1 {
		return fmt.Errorf("MAX_CONCURRENT_CHECKS must be at least 1")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
