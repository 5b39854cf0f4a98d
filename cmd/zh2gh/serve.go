package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/governify/zh2gh/internal/alert"
	"github.com/governify/zh2gh/internal/config"
	"github.com/governify/zh2gh/internal/gh"
	"github.com/governify/zh2gh/internal/reconcile"
	"github.com/governify/zh2gh/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig(cmd)
		logger := getLogger(cmd)

		client, err := newGitHubClient(cfg, logger)
		if err != nil {
			return err
		}
		handler, err := newWebhookHandler(cfg, client, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := webhook.NewServer(webhook.ServerConfig{
			Address:      cfg.Addr(),
			Handler:      webhook.WithTransaction(handler, logger),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
			Logger:       logger,
		})
		return srv.Serve(ctx)
	},
}

// newAlerter logs every alert and, when enabled, comments on the issue for
// the kinds a human has to act on.
func newAlerter(cfg *config.Config, commenter alert.Commenter, logger *slog.Logger) alert.Alerter {
	alerters := alert.Multi{&alert.LogAlerter{Logger: logger}}
	if cfg.Relay.CommentAlerts {
		alerters = append(alerters, &alert.CommentAlerter{
			Commenter: commenter,
			Kinds: map[alert.Kind]bool{
				alert.KindUnlinkedIssue: true,
				alert.KindUpdateFailed:  true,
			},
			Logger: logger,
		})
	}
	return alerters
}

// newWebhookHandler wires the reconciliation pipeline behind the endpoint.
func newWebhookHandler(cfg *config.Config, client *gh.Client, logger *slog.Logger) (*webhook.Handler, error) {
	matcher, err := reconcile.NewItemMatcher(cfg.Relay.Matching)
	if err != nil {
		return nil, fmt.Errorf("relay.matching: %w", err)
	}
	alerter := newAlerter(cfg, client, logger)

	resolver := reconcile.NewResolver(reconcile.ResolverConfig{
		Linker:                client,
		Alerter:               alerter,
		RequiredStatusOptions: cfg.Relay.RequiredStatusOptions,
		TemplateProjectID:     cfg.Relay.TemplateProjectID,
		Logger:                logger,
	})
	updater := reconcile.NewFieldUpdater(client, matcher, alerter, logger)
	svc := reconcile.NewService(client, resolver, updater, logger)

	return webhook.NewHandler(webhook.HandlerConfig{
		Epic:      client,
		Processor: svc,
		Alerter:   alerter,
		EpicLabel: cfg.Relay.EpicLabel,
		Pipelines: cfg.Relay.RequiredStatusOptions,
		Logger:    logger,
	}), nil
}
