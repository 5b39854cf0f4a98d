package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/governify/zh2gh/internal/alert"
	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/gh"
	"github.com/governify/zh2gh/internal/logging"
)

// Mutator sets a single-select value on a project item.
type Mutator interface {
	UpdateSingleSelectField(ctx context.Context, projectID, itemID, fieldID, optionID string) error
}

// Outcome is the result of one status update.
type Outcome struct {
	ProjectID string
	ItemID    string
	Err       error
}

// OK reports whether the update succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// FieldUpdater moves an issue's card to a status option, one project at a time.
type FieldUpdater struct {
	mutator Mutator
	matcher ItemMatcher
	alerter alert.Alerter
	logger  *slog.Logger
}

// NewFieldUpdater creates a FieldUpdater. A nil matcher means title matching.
func NewFieldUpdater(mutator Mutator, matcher ItemMatcher, alerter alert.Alerter, logger *slog.Logger) *FieldUpdater {
	if matcher == nil {
		matcher = TitleMatcher{}
	}
	return &FieldUpdater{mutator: mutator, matcher: matcher, alerter: alerter, logger: logger}
}

// Apply sets the status of the issue's card in p. Identifiers that cannot be
// found locally are sent empty and left for GitHub to reject. Apply never
// panics on a malformed project and reports failure only through the Outcome.
func (u *FieldUpdater) Apply(ctx context.Context, p *domain.Project, issue domain.Issue, ref domain.IssueRef, status string) Outcome {
	logger := logging.FromContext(ctx, u.logger).With("project_id", p.ID, "issue_title", issue.Title)

	var fieldID, optionID, itemID string
	if schema, ok := p.StatusField(); ok {
		fieldID = schema.FieldID
		if opt, ok := schema.Option(status); ok {
			optionID = opt.ID
		}
	}
	if item, ok := u.matcher.Match(p, issue); ok {
		itemID = item.ID
	}
	if fieldID == "" || optionID == "" || itemID == "" {
		logger.Debug("status update with missing identifiers",
			"field_id", fieldID,
			"option_id", optionID,
			"item_id", itemID,
		)
	}

	out := Outcome{ProjectID: p.ID, ItemID: itemID}
	if err := u.mutator.UpdateSingleSelectField(ctx, p.ID, itemID, fieldID, optionID); err != nil {
		out.Err = err

		var apiErr *gh.APIError
		if errors.As(err, &apiErr) {
			u.alerter.Alert(ctx, alert.Alert{
				Kind:    alert.KindUpdateFailed,
				Issue:   ref,
				Message: fmt.Sprintf("setting status %q of %q in project %s failed: %v", status, issue.Title, p.ID, apiErr),
			})
		} else {
			logger.Error("status update failed", "status", status, "error", err.Error())
		}
		return out
	}

	logger.Info("status updated", "status", status, "item_id", itemID)
	return out
}

// ApplyAll runs Apply for every project concurrently and waits for all of
// them. Outcomes are returned in project order; one failure never cancels
// the others.
func (u *FieldUpdater) ApplyAll(ctx context.Context, projects []*domain.Project, issue domain.Issue, ref domain.IssueRef, status string) []Outcome {
	outcomes := make([]Outcome, len(projects))

	var g errgroup.Group
	for i, p := range projects {
		i, p := i, p
		g.Go(func() error {
			outcomes[i] = u.Apply(ctx, p, issue, ref, status)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
