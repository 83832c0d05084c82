// Package config provides environment-sourced configuration for the relearn
// workflow. The config is built once at the entry point and passed down;
// nothing below the entry point reads the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/relearn/internal/apperr"
)

// DefaultImageCount is the number of images surfaced per run when
// IMAGE_COUNT is not set.
const DefaultImageCount = 5

// Config holds everything one workflow run needs.
type Config struct {
	// GoogleServiceAccountKey is the service-account credentials JSON.
	GoogleServiceAccountKey string `validate:"required"`
	// DriveFolderID is the active folder images are surfaced from.
	DriveFolderID string `validate:"required"`
	// SlackWebhookURL is the incoming-webhook URL messages are posted to.
	SlackWebhookURL string `validate:"required,url"`
	// ImageCount is how many images to surface per run.
	ImageCount int `validate:"gt=0"`
	// DatabaseURL is the PostgreSQL connection URL for processing state.
	DatabaseURL string `validate:"required"`
	// GeminiAPIKey enables the OCR sub-path. Optional: when empty, images
	// are shared and archived without text extraction.
	GeminiAPIKey string
}

// requiredEnv maps Config fields to their environment variable names, in
// the order they are reported when missing.
var requiredEnv = []struct {
	name string
	get  func(*Config) string
}{
	{"GOOGLE_SERVICE_ACCOUNT_KEY", func(c *Config) string { return c.GoogleServiceAccountKey }},
	{"GOOGLE_DRIVE_FOLDER_ID", func(c *Config) string { return c.DriveFolderID }},
	{"SLACK_WEBHOOK_URL", func(c *Config) string { return c.SlackWebhookURL }},
	{"DATABASE_URL", func(c *Config) string { return c.DatabaseURL }},
}

// FromEnv builds a Config from the process environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		GoogleServiceAccountKey: os.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY"),
		DriveFolderID:           os.Getenv("GOOGLE_DRIVE_FOLDER_ID"),
		SlackWebhookURL:         os.Getenv("SLACK_WEBHOOK_URL"),
		ImageCount:              DefaultImageCount,
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		GeminiAPIKey:            os.Getenv("GEMINI_API_KEY"),
	}

	if raw := os.Getenv("IMAGE_COUNT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &apperr.ConfigError{Msg: fmt.Sprintf("IMAGE_COUNT must be an integer, got %q", raw)}
		}
		cfg.ImageCount = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete and well-formed.
// It reports every missing variable at once so a misconfigured deployment
// is fixable in one pass.
func (c *Config) Validate() error {
	var missing []string
	for _, v := range requiredEnv {
		if v.get(c) == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return &apperr.ConfigError{Missing: missing}
	}

	if err := validator.New().Struct(c); err != nil {
		return &apperr.ConfigError{Msg: err.Error()}
	}
	return nil
}

// OcrEnabled reports whether the OCR sub-path is configured.
func (c *Config) OcrEnabled() bool {
	return c.GeminiAPIKey != ""
}
