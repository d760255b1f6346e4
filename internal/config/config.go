// Package config loads jiraph configuration from a yaml file, a .env file
// and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultCommentLimit is the per-comment character ceiling used when none is
// configured. Jira truncates comments around 32k characters; the default
// leaves headroom for the thread origin marker.
const DefaultCommentLimit = 31000

// Config represents the application configuration.
type Config struct {
	AppName      string      `yaml:"app_name" json:"app_name"`
	LogLevel     string      `yaml:"log_level" json:"log_level"`
	CommentLimit int         `yaml:"comment_limit" json:"comment_limit"`
	Slack        SlackConfig `yaml:"slack" json:"slack"`
	Jira         JiraConfig  `yaml:"jira" json:"jira"`
}

// SlackConfig holds the Slack credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token" json:"bot_token"`
	AppToken string `yaml:"app_token" json:"app_token"`
}

// Validate validates the Slack configuration.
func (c SlackConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BotToken, validation.Required),
	)
}

// JiraConfig holds the Jira endpoint and credentials.
type JiraConfig struct {
	URL      string `yaml:"url" json:"url"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
}

// Validate validates the Jira configuration.
func (c JiraConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.User, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.AppName, validation.Required),
		validation.Field(&c.LogLevel, validation.Required,
			validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.CommentLimit, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if err := c.Slack.Validate(); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	if err := c.Jira.Validate(); err != nil {
		return fmt.Errorf("jira: %w", err)
	}
	return nil
}

// Load builds the configuration. Order: defaults, then the yaml file at path
// (optional when path is empty), then environment variables, which win. A
// .env file in the working directory is folded into the environment first.
func Load(path string) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		AppName:      "Jiraph",
		LogLevel:     "info",
		CommentLimit: DefaultCommentLimit,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	cfg.Jira.URL = strings.Trim(cfg.Jira.URL, "/ ")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides config fields from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("APP_NAME"); v != "" {
		cfg.AppName = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("JIRA_COMMENT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CommentLimit = n
		}
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := os.Getenv("SLACK_APP_TOKEN"); v != "" {
		cfg.Slack.AppToken = v
	}
	if v := os.Getenv("JIRA_URL"); v != "" {
		cfg.Jira.URL = v
	}
	if v := os.Getenv("JIRA_USER"); v != "" {
		cfg.Jira.User = v
	}
	if v := os.Getenv("JIRA_PASS"); v != "" {
		cfg.Jira.Password = v
	}
}
