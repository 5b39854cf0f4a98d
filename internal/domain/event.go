package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Event types sent by ZenHub webhooks.
const (
	EventIssueTransfer      = "issue_transfer"
	EventIssueReprioritized = "issue_reprioritized"
)

// NewIssuesPipeline is the ZenHub intake column. A move out of it into Todo
// is handled like a newly prioritized issue.
const NewIssuesPipeline = "New Issues"

// ErrInvalidGitHubURL indicates a github_url that does not point at an issue.
var ErrInvalidGitHubURL = errors.New("invalid github issue url")

// Event is an inbound ZenHub webhook payload. Only the fields the relay
// consumes are decoded; the rest of the payload is ignored.
type Event struct {
	Type             string `json:"type"`
	GitHubURL        string `json:"github_url"`
	Organization     string `json:"organization,omitempty"`
	Repo             string `json:"repo,omitempty"`
	IssueNumber      string `json:"issue_number,omitempty"`
	IssueTitle       string `json:"issue_title"`
	ToPipelineName   string `json:"to_pipeline_name"`
	FromPipelineName string `json:"from_pipeline_name,omitempty"`
	WorkspaceID      string `json:"workspace_id,omitempty"`
	WorkspaceName    string `json:"workspace_name,omitempty"`
}

// IsIssueCreation reports whether the event announces an issue entering the
// board: a reprioritization or a move from the intake column into Todo.
func (e Event) IsIssueCreation() bool {
	return e.Type == EventIssueReprioritized ||
		(e.FromPipelineName == NewIssuesPipeline && e.ToPipelineName == "Todo")
}

// TargetStatus returns the status option name the event maps to.
func (e Event) TargetStatus() string {
	if e.Type == EventIssueReprioritized {
		return "Todo"
	}
	return e.ToPipelineName
}

// IssueRef identifies an issue by repository coordinates.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// ParseIssueURL extracts owner, repository and issue number from a URL of the
// form https://github.com/{owner}/{repo}/issues/{number}. Segments are read
// positionally.
func ParseIssueURL(raw string) (IssueRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return IssueRef{}, fmt.Errorf("%w: %q", ErrInvalidGitHubURL, raw)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 4 || segments[2] != "issues" {
		return IssueRef{}, fmt.Errorf("%w: %q", ErrInvalidGitHubURL, raw)
	}

	number, err := strconv.Atoi(segments[3])
	if err != nil || number <= 0 {
		return IssueRef{}, fmt.Errorf("%w: bad issue number in %q", ErrInvalidGitHubURL, raw)
	}
	if segments[0] == "" || segments[1] == "" {
		return IssueRef{}, fmt.Errorf("%w: %q", ErrInvalidGitHubURL, raw)
	}

	return IssueRef{Owner: segments[0], Repo: segments[1], Number: number}, nil
}
