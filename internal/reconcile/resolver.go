package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/governify/zh2gh/internal/alert"
	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/logging"
)

// Linker performs the recovery mutations.
type Linker interface {
	CopyTemplateProject(ctx context.Context, repositoryName, ownerID, templateProjectID string) (*domain.Project, error)
	LinkProjectToRepository(ctx context.Context, repositoryID, projectID string) error
	LinkIssueToProject(ctx context.Context, projectID, contentID string) (string, error)
}

// Source tells where the resolved projects came from.
type Source string

const (
	// SourceLinked: valid projects the issue was already in.
	SourceLinked Source = "linked"
	// SourceRepository: valid repository projects the issue was just added to.
	SourceRepository Source = "repository"
	// SourceCreated: a project copied from the template for this issue.
	SourceCreated Source = "created"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Projects []*domain.Project
	Source   Source
}

// Resolver picks the authoritative projects for an issue.
type Resolver struct {
	linker            Linker
	alerter           alert.Alerter
	required          []string
	templateProjectID string
	logger            *slog.Logger
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Linker                Linker
	Alerter               alert.Alerter
	RequiredStatusOptions []string
	TemplateProjectID     string
	Logger                *slog.Logger
}

// NewResolver creates a Resolver. Linker, Alerter and Logger are required.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Linker == nil || cfg.Alerter == nil || cfg.Logger == nil {
		panic("reconcile.NewResolver: Linker, Alerter and Logger are required")
	}
	required := cfg.RequiredStatusOptions
	if len(required) == 0 {
		required = domain.DefaultRequiredStatusOptions
	}
	return &Resolver{
		linker:            cfg.Linker,
		alerter:           cfg.Alerter,
		required:          required,
		templateProjectID: cfg.TemplateProjectID,
		logger:            cfg.Logger,
	}
}

// Resolve returns the projects whose status should be updated:
//
//  1. the valid projects the issue is linked to, if any;
//  2. otherwise every valid repository project, after adding the issue to each;
//  3. otherwise a new project copied from the template, linked to the
//     repository, with the issue added.
//
// Invalid linked projects are left untouched. Steps 2 and 3 mutate snap: each
// newly added card is appended to its project's items.
func (r *Resolver) Resolve(ctx context.Context, snap *domain.RepositorySnapshot) (*Resolution, error) {
	logger := logging.FromContext(ctx, r.logger)

	if primary := validProjects(snap.Issue.LinkedProjects, r.required); len(primary) > 0 {
		logger.Debug("issue linked to valid projects", "projects", domain.ProjectIDs(primary))
		return &Resolution{Projects: primary, Source: SourceLinked}, nil
	}

	ref := issueRef(snap)
	r.alerter.Alert(ctx, alert.Alert{
		Kind:  alert.KindUnlinkedIssue,
		Issue: ref,
		Message: fmt.Sprintf("issue %q is not in any project with status options %s (%d linked project(s) ignored)",
			snap.Issue.Title, strings.Join(r.required, ", "), len(snap.Issue.LinkedProjects)),
	})

	linked, err := r.linkRepositoryProjects(ctx, snap)
	if err != nil {
		return nil, err
	}
	if len(linked) > 0 {
		r.alerter.Alert(ctx, alert.Alert{
			Kind:    alert.KindRecovered,
			Issue:   ref,
			Message: fmt.Sprintf("issue added to %d existing repository project(s): %s", len(linked), strings.Join(domain.ProjectIDs(linked), ", ")),
		})
		return &Resolution{Projects: linked, Source: SourceRepository}, nil
	}

	created, err := r.createProject(ctx, snap)
	if err != nil {
		return nil, err
	}
	r.alerter.Alert(ctx, alert.Alert{
		Kind:    alert.KindRecovered,
		Issue:   ref,
		Message: fmt.Sprintf("no valid project in repository %s, created project %s from template", snap.Name, created.ID),
	})
	return &Resolution{Projects: []*domain.Project{created}, Source: SourceCreated}, nil
}

// linkRepositoryProjects adds the issue to every valid repository project,
// sequentially and at most once per project.
func (r *Resolver) linkRepositoryProjects(ctx context.Context, snap *domain.RepositorySnapshot) ([]*domain.Project, error) {
	var linked []*domain.Project
	seen := make(map[string]bool)

	for _, p := range validProjects(snap.RepositoryProjects, r.required) {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		if err := r.linkIssue(ctx, p, snap.Issue); err != nil {
			return nil, err
		}
		linked = append(linked, p)
	}
	return linked, nil
}

// createProject copies the template, links the copy to the repository and
// adds the issue to it.
func (r *Resolver) createProject(ctx context.Context, snap *domain.RepositorySnapshot) (*domain.Project, error) {
	logger := logging.FromContext(ctx, r.logger)

	project, err := r.linker.CopyTemplateProject(ctx, snap.Name, snap.OwnerID, r.templateProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating project for %s: %w", snap.Name, err)
	}
	if !IsValidStatusSchema(project, r.required) {
		logger.Warn("project copied from template lacks required status options",
			"project_id", project.ID,
			"template_project_id", r.templateProjectID,
		)
	}

	if err := r.linker.LinkProjectToRepository(ctx, snap.ID, project.ID); err != nil {
		return nil, fmt.Errorf("linking project %s to repository %s: %w", project.ID, snap.Name, err)
	}
	if err := r.linkIssue(ctx, project, snap.Issue); err != nil {
		return nil, err
	}

	logger.Info("created project from template", "project_id", project.ID, "repository", snap.Name)
	return project, nil
}

func (r *Resolver) linkIssue(ctx context.Context, p *domain.Project, issue domain.Issue) error {
	itemID, err := r.linker.LinkIssueToProject(ctx, p.ID, issue.ID)
	if err != nil {
		return fmt.Errorf("adding issue %d to project %s: %w", issue.Number, p.ID, err)
	}
	p.AddLinkedIssue(itemID, issue)

	logging.FromContext(ctx, r.logger).Info("issue added to project",
		"project_id", p.ID,
		"item_id", itemID,
	)
	return nil
}

func issueRef(snap *domain.RepositorySnapshot) domain.IssueRef {
	return domain.IssueRef{Owner: snap.Owner, Repo: snap.Name, Number: snap.Issue.Number}
}
