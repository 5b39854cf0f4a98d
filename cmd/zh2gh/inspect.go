package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/governify/zh2gh/internal/alert"
	"github.com/governify/zh2gh/internal/auth"
	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/reconcile"
	"github.com/governify/zh2gh/internal/render"
	"github.com/governify/zh2gh/internal/store"
	"github.com/governify/zh2gh/internal/webhook"
)

var (
	// inspect flags
	urlFlag      string
	pipelineFlag string
	widthFlag    int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect --url <issue url>",
	Short: "Show how an issue would be relayed, without changing anything",
	Long: `inspect fetches the projects of an issue and its repository, shows which
are valid and where the issue's card sits, and prints the actions an event
would trigger. Recovery steps are planned, never performed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig(cmd)
		logger := getLogger(cmd)

		client, err := newGitHubClient(cfg, logger, &auth.GhCliProvider{})
		if err != nil {
			return err
		}
		matcher, err := reconcile.NewItemMatcher(cfg.Relay.Matching)
		if err != nil {
			return err
		}

		in := &inspector{
			fetcher:           client,
			epic:              client,
			matcher:           matcher,
			required:          cfg.Relay.RequiredStatusOptions,
			templateProjectID: cfg.Relay.TemplateProjectID,
			epicLabel:         cfg.Relay.EpicLabel,
			logger:            logger,
		}
		report, err := in.inspect(cmd.Context(), urlFlag, pipelineFlag)
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), render.RenderReport(report, render.Options{Width: widthFlag}))
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&urlFlag, "url", "", "GitHub issue URL (required)")
	inspectCmd.Flags().StringVar(&pipelineFlag, "pipeline", "", "Destination pipeline to preview, e.g. \"In Review\"")
	inspectCmd.Flags().IntVar(&widthFlag, "width", 0, "Maximum line width (default 80)")
	_ = inspectCmd.MarkFlagRequired("url")
}

// inspector builds a dry-run report for one issue.
type inspector struct {
	fetcher           reconcile.Fetcher
	epic              webhook.EpicChecker
	matcher           reconcile.ItemMatcher
	required          []string
	templateProjectID string
	epicLabel         string
	logger            *slog.Logger
}

func (in *inspector) inspect(ctx context.Context, rawURL, pipeline string) (render.Report, error) {
	ref, err := domain.ParseIssueURL(rawURL)
	if err != nil {
		return render.Report{}, err
	}
	if pipeline != "" && !slices.Contains(in.required, pipeline) {
		return render.Report{}, fmt.Errorf("pipeline %q is not one of %s", pipeline, strings.Join(in.required, ", "))
	}

	epic, err := in.epic.IsEpicIssue(ctx, ref, in.epicLabel)
	if err != nil {
		return render.Report{}, fmt.Errorf("checking epic label: %w", err)
	}

	start := time.Now()
	snap, err := in.fetcher.FetchRepositorySnapshot(ctx, ref)
	if err != nil {
		return render.Report{}, fmt.Errorf("fetching snapshot for %s: %w", ref, err)
	}

	report := render.Report{
		Issue:         ref,
		IssueTitle:    snap.Issue.Title,
		Target:        pipeline,
		Epic:          epic,
		FetchDuration: time.Since(start),
	}
	// Boards are built before planning: the planner adds synthesized cards.
	report.Linked = in.projectReports(snap.Issue.LinkedProjects, snap.Issue)
	report.Repository = in.projectReports(snap.RepositoryProjects, snap.Issue)
	if epic {
		return report, nil
	}

	planner := &reconcile.PlanningLinker{}
	recorder := &alert.Recorder{}
	resolver := reconcile.NewResolver(reconcile.ResolverConfig{
		Linker:                planner,
		Alerter:               recorder,
		RequiredStatusOptions: in.required,
		TemplateProjectID:     in.templateProjectID,
		Logger:                in.logger,
	})

	resolution, err := resolver.Resolve(ctx, snap)
	if err != nil {
		return render.Report{}, err
	}
	report.Source = resolution.Source
	report.Targets = domain.ProjectIDs(resolution.Projects)
	report.Plan = planner.Actions()
	report.Alerts = recorder.Alerts()

	if pipeline != "" {
		in.previewMove(report.Linked, report.Targets, pipeline)
		in.previewMove(report.Repository, report.Targets, pipeline)
	}
	return report, nil
}

func (in *inspector) projectReports(projects []*domain.Project, issue domain.Issue) []render.ProjectReport {
	reports := make([]render.ProjectReport, 0, len(projects))
	for _, p := range projects {
		pr := render.ProjectReport{
			Project: p,
			Valid:   reconcile.IsValidStatusSchema(p, in.required),
		}
		if _, ok := p.StatusField(); ok {
			pr.Board = store.New()
			pr.Board.Load(p)
		}
		if item, ok := in.matcher.Match(p, issue); ok {
			pr.MatchedItemID = item.ID
		}
		reports = append(reports, pr)
	}
	return reports
}

// previewMove moves the issue's card to the target column on the boards of
// the projects the event would update, recording the column it left.
func (in *inspector) previewMove(reports []render.ProjectReport, targets []string, pipeline string) {
	for i := range reports {
		pr := &reports[i]
		if pr.Board == nil || pr.MatchedItemID == "" || !slices.Contains(targets, pr.Project.ID) {
			continue
		}
		status, _ := pr.Board.StatusField()
		opt, ok := status.Option(pipeline)
		if !ok {
			continue
		}
		from, err := pr.Board.CardStatus(pr.MatchedItemID)
		if err != nil {
			continue
		}
		if err := pr.Board.MoveCard(pr.MatchedItemID, opt.ID); err != nil {
			in.logger.Debug("preview move failed", "project_id", pr.Project.ID, "error", err.Error())
			continue
		}
		pr.MovedFrom = optionName(status, from)
	}
}

func optionName(status domain.StatusPresent, optionID string) string {
	for _, opt := range status.Options {
		if opt.ID == optionID {
			return opt.Name
		}
	}
	return "No Status"
}
