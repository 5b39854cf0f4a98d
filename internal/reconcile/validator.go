// Package reconcile decides which GitHub projects represent an issue and moves
// the issue's card to the requested status in each of them.
//
// The flow for one event is Resolve (pick or recover the authoritative
// projects) followed by ApplyAll (one status mutation per project).
package reconcile

import (
	"slices"

	"github.com/governify/zh2gh/internal/domain"
)

// IsValidStatusSchema reports whether the project has a "Status" field offering
// every required option name. Matching is exact. Any missing structure makes
// the project invalid; the predicate never fails.
func IsValidStatusSchema(p *domain.Project, required []string) bool {
	status, ok := p.StatusField()
	if !ok || len(status.Options) == 0 {
		return false
	}

	names := status.OptionNames()
	for _, r := range required {
		if !slices.Contains(names, r) {
			return false
		}
	}
	return true
}

// validProjects filters projects with IsValidStatusSchema, keeping order.
func validProjects(projects []*domain.Project, required []string) []*domain.Project {
	var out []*domain.Project
	for _, p := range projects {
		if IsValidStatusSchema(p, required) {
			out = append(out, p)
		}
	}
	return out
}
