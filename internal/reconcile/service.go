package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/logging"
)

// Fetcher loads the repository snapshot for an issue.
type Fetcher interface {
	FetchRepositorySnapshot(ctx context.Context, ref domain.IssueRef) (*domain.RepositorySnapshot, error)
}

// Request is one accepted event, after the gates.
type Request struct {
	Ref    domain.IssueRef
	Status string

	// IssueTitle, when set, replaces the fetched title for card matching.
	// Webhook payloads carry the title ZenHub knows, which is what cards
	// were created with.
	IssueTitle string
}

// Result is the aggregate outcome of one event.
type Result struct {
	Source   Source
	Outcomes []Outcome
}

// Failed returns the outcomes that did not succeed.
func (r *Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Service processes accepted events: fetch, resolve, update.
type Service struct {
	fetcher  Fetcher
	resolver *Resolver
	updater  *FieldUpdater
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(fetcher Fetcher, resolver *Resolver, updater *FieldUpdater, logger *slog.Logger) *Service {
	return &Service{fetcher: fetcher, resolver: resolver, updater: updater, logger: logger}
}

// Process fetches a fresh snapshot, resolves the authoritative projects and
// updates each of them. Fetch and recovery errors are returned; per-project
// update failures are reported in the Result.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	logger := logging.FromContext(ctx, s.logger)

	snap, err := s.fetcher.FetchRepositorySnapshot(ctx, req.Ref)
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot for %s: %w", req.Ref, err)
	}
	if req.IssueTitle != "" {
		snap.Issue.Title = req.IssueTitle
	}

	resolution, err := s.resolver.Resolve(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("resolving projects for %s: %w", req.Ref, err)
	}

	outcomes := s.updater.ApplyAll(ctx, resolution.Projects, snap.Issue, req.Ref, req.Status)
	res := &Result{Source: resolution.Source, Outcomes: outcomes}

	logger.Info("event processed",
		"issue", req.Ref.String(),
		"status", req.Status,
		"source", string(res.Source),
		"projects", len(outcomes),
		"failed", len(res.Failed()),
	)
	return res, nil
}
