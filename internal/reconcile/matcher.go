package reconcile

import (
	"fmt"

	"github.com/governify/zh2gh/internal/domain"
)

// ItemMatcher finds the card representing the issue inside a project.
//
// When several cards match, the first one in project order is returned.
// There is no further tie-break.
type ItemMatcher interface {
	Match(p *domain.Project, issue domain.Issue) (*domain.Item, bool)
}

// TitleMatcher matches a card whose text field value equals the issue title.
// Titles are assumed unique within a project.
type TitleMatcher struct{}

func (TitleMatcher) Match(p *domain.Project, issue domain.Issue) (*domain.Item, bool) {
	for _, item := range p.Items {
		if item.HasText(issue.Title) {
			return item, true
		}
	}
	return nil, false
}

// ContentMatcher matches a card by the issue node ID. Projects whose cards
// carry no content IDs at all fall back to title matching.
type ContentMatcher struct{}

func (ContentMatcher) Match(p *domain.Project, issue domain.Issue) (*domain.Item, bool) {
	anyContent := false
	for _, item := range p.Items {
		if item.ContentID == "" {
			continue
		}
		anyContent = true
		if issue.ID != "" && item.ContentID == issue.ID {
			return item, true
		}
	}
	if anyContent && issue.ID != "" {
		return nil, false
	}
	return TitleMatcher{}.Match(p, issue)
}

// NewItemMatcher returns the matcher for a configured strategy name.
func NewItemMatcher(strategy string) (ItemMatcher, error) {
	switch strategy {
	case "", "title":
		return TitleMatcher{}, nil
	case "content":
		return ContentMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown item matching strategy %q", strategy)
	}
}
