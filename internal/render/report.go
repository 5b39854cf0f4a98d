package render

import (
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/governify/zh2gh/internal/alert"
	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/reconcile"
	"github.com/governify/zh2gh/internal/store"
)

const defaultWidth = 80

// ProjectReport describes one project as seen by the relay.
type ProjectReport struct {
	Project *domain.Project
	Valid   bool

	// Board groups the project's cards by status. Nil when the project has
	// no status field.
	Board *store.Store

	// MatchedItemID is the issue's card, if the matcher found one.
	MatchedItemID string

	// MovedFrom names the column the matched card left in a previewed move.
	// Empty when no move was previewed.
	MovedFrom string
}

// Report is the outcome of an inspect run.
type Report struct {
	Issue      domain.IssueRef
	IssueTitle string
	Target     string

	// Epic issues are ignored by the relay; no plan is computed.
	Epic bool

	Linked     []ProjectReport
	Repository []ProjectReport

	Source  reconcile.Source
	Targets []string
	Plan    []reconcile.PlannedAction
	Alerts  []alert.Alert

	FetchDuration time.Duration
}

// Options controls report layout.
type Options struct {
	// Width is the maximum line width. Defaults to 80.
	Width int
}

// RenderReport renders a full inspection report: the issue, every linked and
// repository project with its status columns, and the dry-run plan.
func RenderReport(r Report, opts Options) string {
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}

	var sections []string
	sections = append(sections, renderIssueHeader(r, width))
	sections = append(sections, renderProjects("Linked projects", r.Linked, width))
	sections = append(sections, renderProjects("Repository projects", r.Repository, width))
	sections = append(sections, renderPlan(r, width))
	if len(r.Alerts) > 0 {
		sections = append(sections, renderAlerts(r.Alerts, width))
	}

	return strings.Join(sections, "\n\n") + "\n"
}

func renderIssueHeader(r Report, width int) string {
	title := truncate.StringWithTail(r.IssueTitle, uint(max(width-len(r.Issue.String())-2, 8)), "…")
	lines := []string{
		fmt.Sprintf("%s  %s", style(TitleStyle, r.Issue.String()), title),
		style(DimStyle, fmt.Sprintf("fetched in %s", r.FetchDuration.Round(time.Millisecond))),
	}
	return strings.Join(lines, "\n")
}

func renderProjects(heading string, projects []ProjectReport, width int) string {
	header := style(SectionStyle, fmt.Sprintf("%s (%s)", heading, humanize.Comma(int64(len(projects)))))
	if len(projects) == 0 {
		return header + "\n  " + style(DimStyle, "none")
	}

	lines := []string{header}
	for _, pr := range projects {
		lines = append(lines, renderProject(pr, width)...)
	}
	return strings.Join(lines, "\n")
}

func renderProject(pr ProjectReport, width int) []string {
	p := pr.Project
	validity := style(ErrorStyle, "invalid")
	if pr.Valid {
		validity = style(ValidStyle, "valid")
	}

	name := p.Title
	if name == "" {
		name = p.ID
	}
	lines := []string{fmt.Sprintf("  %s %s  %s  %s",
		validity,
		truncate.StringWithTail(name, uint(width/2), "…"),
		style(DimStyle, p.ID),
		english.Plural(len(p.Items), "card", ""),
	)}

	if pr.Board == nil {
		lines = append(lines, "    "+style(DimStyle, "no Status field"))
		return lines
	}

	cols, err := pr.Board.ColumnCounts()
	if err != nil {
		lines = append(lines, "    "+style(ErrorStyle, err.Error()))
		return lines
	}
	for _, col := range cols {
		lines = append(lines, fmt.Sprintf("    %s (%s)", col.Name, humanize.Comma(int64(col.Count))))
		for _, itemID := range pr.Board.GetColumnCardIDs(col.OptionID) {
			if itemID != pr.MatchedItemID {
				continue
			}
			card, err := pr.Board.GetCard(itemID)
			if err != nil {
				continue
			}
			match := "▸ " + cardTitle(card, width-8)
			if pr.MovedFrom != "" {
				match += " (from " + pr.MovedFrom + ")"
			}
			lines = append(lines, "      "+style(MatchStyle, match))
		}
	}
	return lines
}

func cardTitle(card *domain.Item, width int) string {
	texts := card.TextValues()
	title := card.ID
	if len(texts) > 0 {
		title = texts[0]
	}
	if width < 4 {
		width = 4
	}
	return truncate.StringWithTail(title, uint(width), "…")
}

func renderPlan(r Report, width int) string {
	header := style(SectionStyle, "Plan")
	if r.Epic {
		return header + "\n  ignored: issue is labeled epic"
	}

	var lines []string
	switch r.Source {
	case reconcile.SourceLinked:
		lines = append(lines, "  update linked projects")
	case reconcile.SourceRepository:
		lines = append(lines, "  add issue to repository projects, then update them")
	case reconcile.SourceCreated:
		lines = append(lines, "  create a project from the template, then update it")
	default:
		lines = append(lines, "  "+style(ErrorStyle, "no resolution"))
	}

	for _, a := range r.Plan {
		lines = append(lines, "  - "+a.String())
	}
	if r.Target != "" {
		for _, id := range r.Targets {
			lines = append(lines, fmt.Sprintf("  - set Status of %q to %q in %s",
				truncate.StringWithTail(r.IssueTitle, uint(width/2), "…"), r.Target, id))
		}
	}

	return header + "\n" + strings.Join(lines, "\n")
}

func renderAlerts(alerts []alert.Alert, width int) string {
	lines := []string{style(SectionStyle, fmt.Sprintf("Alerts (%d)", len(alerts)))}
	for _, a := range alerts {
		wrapped := wordwrap.String(fmt.Sprintf("[%s] %s", a.Kind, a.Message), width-4)
		for i, l := range strings.Split(wrapped, "\n") {
			prefix := "    "
			if i == 0 {
				prefix = "  ! "
			}
			lines = append(lines, prefix+l)
		}
	}
	return strings.Join(lines, "\n")
}
