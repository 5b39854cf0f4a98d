package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/governify/zh2gh/internal/domain"
)

// PlannedAction is a recovery mutation a PlanningLinker recorded instead of
// performing.
type PlannedAction struct {
	Op        string
	ProjectID string
	Target    string
}

func (a PlannedAction) String() string {
	return fmt.Sprintf("%s %s -> %s", a.Op, a.ProjectID, a.Target)
}

// Planned operation names.
const (
	OpCopyTemplate = "copy-template"
	OpLinkRepo     = "link-repository"
	OpLinkIssue    = "link-issue"
)

// PlanningLinker is a Linker that performs nothing. It records the actions
// and answers with placeholder ids, so Resolve can be run as a dry run.
// Template copies get the schema passed in Template, if any.
type PlanningLinker struct {
	Template domain.StatusSchema

	mu      sync.Mutex
	actions []PlannedAction
}

func (l *PlanningLinker) CopyTemplateProject(_ context.Context, repositoryName, _, templateProjectID string) (*domain.Project, error) {
	l.record(PlannedAction{Op: OpCopyTemplate, ProjectID: templateProjectID, Target: repositoryName})

	status := l.Template
	if status == nil {
		status = domain.StatusAbsent{}
	}
	return &domain.Project{
		ID:     "(new)",
		Title:  repositoryName,
		Status: status,
	}, nil
}

func (l *PlanningLinker) LinkProjectToRepository(_ context.Context, repositoryID, projectID string) error {
	l.record(PlannedAction{Op: OpLinkRepo, ProjectID: projectID, Target: repositoryID})
	return nil
}

func (l *PlanningLinker) LinkIssueToProject(_ context.Context, projectID, contentID string) (string, error) {
	l.record(PlannedAction{Op: OpLinkIssue, ProjectID: projectID, Target: contentID})
	return "(planned)", nil
}

// Actions returns the recorded actions, in order.
func (l *PlanningLinker) Actions() []PlannedAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PlannedAction(nil), l.actions...)
}

func (l *PlanningLinker) record(a PlannedAction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, a)
}
