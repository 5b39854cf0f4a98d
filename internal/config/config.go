// Package config loads relay configuration: an optional YAML file first,
// then environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/logging"
)

const (
	defaultPort              = 8080
	defaultGraphQLURL        = "https://api.github.com/graphql"
	defaultTemplateProjectID = "PVT_kwDOAtNQmc4Abbo8"
	defaultEpicLabel         = "Epic"
	defaultPageSize          = 100
	defaultRequestTimeout    = 30 * time.Second
)

// Item matching strategies.
const (
	MatchingTitle   = "title"
	MatchingContent = "content"
)

// Config holds application configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	GitHub  GitHubConfig  `yaml:"github"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig configures the webhook listener.
type HTTPConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// GitHubConfig configures the outbound GraphQL client.
type GitHubConfig struct {
	GraphQLURL string `yaml:"graphql_url"`

	// APIKeys are rotated round-robin, one per request.
	APIKeys []string `yaml:"api_keys"`

	// PageSize is the `first:` argument of every paginated connection.
	PageSize int `yaml:"page_size"`

	// RequestTimeout bounds each GraphQL call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RelayConfig holds the reconciliation policy.
type RelayConfig struct {
	TemplateProjectID     string   `yaml:"template_project_id"`
	RequiredStatusOptions []string `yaml:"required_status_options"`
	EpicLabel             string   `yaml:"epic_label"`
	Matching              string   `yaml:"matching"`

	// CommentAlerts posts unlinked-issue and update-failure alerts as
	// comments on the issue, in addition to logging them.
	CommentAlerts bool `yaml:"comment_alerts"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:         defaultPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		GitHub: GitHubConfig{
			GraphQLURL:     defaultGraphQLURL,
			PageSize:       defaultPageSize,
			RequestTimeout: defaultRequestTimeout,
		},
		Relay: RelayConfig{
			TemplateProjectID:     defaultTemplateProjectID,
			RequiredStatusOptions: append([]string(nil), domain.DefaultRequiredStatusOptions...),
			EpicLabel:             defaultEpicLabel,
			Matching:              MatchingTitle,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: string(logging.FormatText),
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ZH2GH_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = p
		}
	}
	if v := os.Getenv("GITHUB_APIKEYS"); v != "" {
		c.GitHub.APIKeys = splitList(v)
	}
	c.GitHub.GraphQLURL = getEnvOrDefault("GITHUB_GRAPHQL_URL", c.GitHub.GraphQLURL)
	c.Relay.TemplateProjectID = getEnvOrDefault("ZH2GH_TEMPLATE_PROJECT_ID", c.Relay.TemplateProjectID)
	c.Relay.Matching = getEnvOrDefault("ZH2GH_MATCHING", c.Relay.Matching)
	c.Logging.Level = getEnvOrDefault("ZH2GH_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("ZH2GH_LOG_FORMAT", c.Logging.Format)
	if v := os.Getenv("ZH2GH_COMMENT_ALERTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Relay.CommentAlerts = b
		}
	}
}

// Validate checks the values the relay cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.GitHub.GraphQLURL == "" {
		errs = append(errs, errors.New("github.graphql_url is required"))
	}
	if c.GitHub.PageSize <= 0 || c.GitHub.PageSize > 100 {
		errs = append(errs, fmt.Errorf("github.page_size must be within 1..100, got %d", c.GitHub.PageSize))
	}
	if c.Relay.TemplateProjectID == "" {
		errs = append(errs, errors.New("relay.template_project_id is required"))
	}
	if len(c.Relay.RequiredStatusOptions) == 0 {
		errs = append(errs, errors.New("relay.required_status_options must not be empty"))
	}
	switch c.Relay.Matching {
	case MatchingTitle, MatchingContent:
	default:
		errs = append(errs, fmt.Errorf("relay.matching must be %q or %q, got %q", MatchingTitle, MatchingContent, c.Relay.Matching))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address for the webhook server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
