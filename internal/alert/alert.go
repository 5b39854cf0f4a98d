// Package alert reports conditions a human should know about but that do not
// fail the webhook request.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/logging"
)

// Kind classifies an alert.
type Kind string

const (
	// KindUnlinkedIssue: the issue is in no valid project; recovery follows.
	KindUnlinkedIssue Kind = "unlinked_issue"
	// KindRecovered: recovery linked the issue to existing or new projects.
	KindRecovered Kind = "recovered"
	// KindUpdateFailed: a status mutation on one project returned errors.
	KindUpdateFailed Kind = "update_failed"
	// KindUnsupportedEvent: an event type or pipeline the relay does not handle.
	KindUnsupportedEvent Kind = "unsupported_event"
)

// Alert is one notification.
type Alert struct {
	Kind    Kind
	Issue   domain.IssueRef
	Message string
}

func (a Alert) String() string {
	if a.Issue.Owner == "" {
		return fmt.Sprintf("[%s] %s", a.Kind, a.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", a.Kind, a.Issue, a.Message)
}

// Alerter delivers alerts. Delivery is best effort and never fails the caller.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// LogAlerter writes alerts to the request logger (or its fallback).
type LogAlerter struct {
	Logger *slog.Logger
}

func (l *LogAlerter) Alert(ctx context.Context, a Alert) {
	logger := logging.FromContext(ctx, l.Logger)
	logger.Warn("alert",
		"kind", string(a.Kind),
		"issue", a.Issue.String(),
		"message", a.Message,
	)
}

// Commenter posts a comment on an issue.
type Commenter interface {
	AddComment(ctx context.Context, ref domain.IssueRef, body string) error
}

// CommentAlerter forwards alerts of the selected kinds as issue comments,
// so the people watching the issue see them.
type CommentAlerter struct {
	Commenter Commenter
	Kinds     map[Kind]bool
	Logger    *slog.Logger
}

func (c *CommentAlerter) Alert(ctx context.Context, a Alert) {
	if !c.Kinds[a.Kind] || a.Issue.Number == 0 {
		return
	}
	body := fmt.Sprintf("**zh2gh** (%s): %s", a.Kind, a.Message)
	if err := c.Commenter.AddComment(ctx, a.Issue, body); err != nil {
		logging.FromContext(ctx, c.Logger).Error("alert comment failed",
			"issue", a.Issue.String(),
			"error", err.Error(),
		)
	}
}

// Multi fans an alert out to several alerters, in order.
type Multi []Alerter

func (m Multi) Alert(ctx context.Context, a Alert) {
	for _, alerter := range m {
		alerter.Alert(ctx, a)
	}
}

// Recorder keeps alerts in memory. Used by tests and the inspect command.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *Recorder) Alert(_ context.Context, a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

// Alerts returns a copy of the recorded alerts, in order.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// Kinds returns the kinds of the recorded alerts, in order.
func (r *Recorder) Kinds() []Kind {
	alerts := r.Alerts()
	kinds := make([]Kind, 0, len(alerts))
	for _, a := range alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}
