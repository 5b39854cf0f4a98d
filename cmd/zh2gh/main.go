package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/governify/zh2gh/internal/auth"
	"github.com/governify/zh2gh/internal/config"
	"github.com/governify/zh2gh/internal/gh"
	"github.com/governify/zh2gh/internal/logging"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	// CLI flags
	configFlag   string
	logLevelFlag string
)

type contextKey string

const (
	cfgKey    contextKey = "cfg"
	loggerKey contextKey = "logger"
)

var rootCmd = &cobra.Command{
	Use:   "zh2gh",
	Short: "Relay ZenHub pipeline moves to GitHub Projects v2 status",
	Long: `zh2gh receives ZenHub webhook events and sets the "Status" field of the
issue's cards in GitHub Projects v2.

When the issue is in no project with the Todo, In Progress, In Review and Done
options, it is added to every such project of its repository, or to a new
project copied from a template.

Authentication:
  GITHUB_APIKEYS   comma separated tokens, used round-robin
  github.api_keys  the same list in the config file
  GITHUB_TOKEN     a single token, when no list is set
  gh auth token    used by 'inspect' when nothing else is set`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := cmd.Annotations["skipConfig"]; ok {
			return nil
		}

		cfg, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		if logLevelFlag != "" {
			cfg.Logging.Level = logLevelFlag
		}

		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		logger := logging.New(os.Stderr, level, logging.Format(cfg.Logging.Format))

		ctx := context.WithValue(cmd.Context(), cfgKey, cfg)
		cmd.SetContext(context.WithValue(ctx, loggerKey, logger))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file (default $ZH2GH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR or NONE (default $ZH2GH_LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd, inspectCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfig(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(cfgKey).(*config.Config)
}

func getLogger(cmd *cobra.Command) *slog.Logger {
	return cmd.Context().Value(loggerKey).(*slog.Logger)
}

// newGitHubClient builds the GraphQL client from the configured keys,
// falling back to the extra providers when none are configured.
func newGitHubClient(cfg *config.Config, logger *slog.Logger, fallbacks ...auth.TokenProvider) (*gh.Client, error) {
	providers := []auth.TokenProvider{
		&auth.StaticProvider{Keys: cfg.GitHub.APIKeys},
		&auth.EnvProvider{Var: "GITHUB_TOKEN"},
	}
	providers = append(providers, fallbacks...)

	keys, err := auth.ResolveKeys(providers...)
	if err != nil {
		return nil, err
	}
	pool, err := auth.NewKeyPool(keys)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded GitHub API keys", "count", pool.Len())

	return gh.New(gh.Options{
		Endpoint: cfg.GitHub.GraphQLURL,
		Keys:     pool,
		PageSize: cfg.GitHub.PageSize,
		Timeout:  cfg.GitHub.RequestTimeout,
		Logger:   logger,
	})
}
