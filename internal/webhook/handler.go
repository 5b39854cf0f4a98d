// Package webhook receives ZenHub webhook events over HTTP and hands the
// accepted ones to the reconciliation service.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/governify/zh2gh/internal/alert"
	"github.com/governify/zh2gh/internal/domain"
	"github.com/governify/zh2gh/internal/gh"
	"github.com/governify/zh2gh/internal/logging"
	"github.com/governify/zh2gh/internal/reconcile"
)

const (
	// maxBodyBytes bounds the accepted payload size.
	maxBodyBytes = 1 << 20

	defaultProcessTimeout = 2 * time.Minute
)

// ErrValidation marks requests rejected before any GitHub call.
var ErrValidation = errors.New("invalid request")

// EpicChecker reports whether an issue carries the epic label.
type EpicChecker interface {
	IsEpicIssue(ctx context.Context, ref domain.IssueRef, label string) (bool, error)
}

// Processor runs an accepted event.
type Processor interface {
	Process(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// Handler is the webhook endpoint.
type Handler struct {
	epic      EpicChecker
	processor Processor
	alerter   alert.Alerter
	epicLabel string
	pipelines []string
	timeout   time.Duration
	logger    *slog.Logger
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Epic      EpicChecker
	Processor Processor
	Alerter   alert.Alerter

	// EpicLabel is matched exactly. Defaults to "Epic".
	EpicLabel string

	// Pipelines are the accepted destination pipelines. Defaults to the
	// required status options.
	Pipelines []string

	// ProcessTimeout bounds the recovery and update calls of one event. They
	// are not cut short when the caller disconnects. Defaults to two minutes.
	ProcessTimeout time.Duration

	Logger *slog.Logger
}

// NewHandler creates a Handler. Epic, Processor, Alerter and Logger are required.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Epic == nil || cfg.Processor == nil || cfg.Alerter == nil || cfg.Logger == nil {
		panic("webhook.NewHandler: Epic, Processor, Alerter and Logger are required")
	}
	label := cfg.EpicLabel
	if label == "" {
		label = "Epic"
	}
	pipelines := cfg.Pipelines
	if len(pipelines) == 0 {
		pipelines = domain.DefaultRequiredStatusOptions
	}
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	return &Handler{
		epic:      cfg.Epic,
		processor: cfg.Processor,
		alerter:   cfg.Alerter,
		epicLabel: label,
		pipelines: pipelines,
		timeout:   timeout,
		logger:    cfg.Logger,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type projectResult struct {
	ProjectID string `json:"project_id"`
	ItemID    string `json:"item_id,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

type processedResponse struct {
	Message  string          `json:"message"`
	Source   string          `json:"source"`
	Projects []projectResult `json:"projects"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx, h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	event, ref, err := decodeEvent(r)
	if err != nil {
		h.fail(w, logger, err)
		return
	}
	logger = logger.With("issue", ref.String(), "type", event.Type, "to_pipeline", event.ToPipelineName)
	ctx = logging.WithLogger(ctx, logger)

	epic, err := h.epic.IsEpicIssue(ctx, ref, h.epicLabel)
	if err != nil {
		h.fail(w, logger, fmt.Errorf("checking epic label: %w", err))
		return
	}
	if epic {
		logger.Info("event ignored", "reason", "epic")
		writeJSON(w, http.StatusOK, messageResponse{Message: "ignored: epic"})
		return
	}

	if err := h.checkPipeline(event); err != nil {
		h.alerter.Alert(ctx, alert.Alert{Kind: alert.KindUnsupportedEvent, Issue: ref, Message: err.Error()})
		h.fail(w, logger, err)
		return
	}

	kind := "transfer"
	if event.IsIssueCreation() {
		kind = "creation"
	}
	logger.Info("event accepted", "kind", kind, "from_pipeline", event.FromPipelineName)

	// A disconnecting caller must not leave a copied project unlinked or a
	// linked card without its status.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	result, err := h.processor.Process(pctx, reconcile.Request{
		Ref:        ref,
		Status:     event.TargetStatus(),
		IssueTitle: event.IssueTitle,
	})
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newProcessedResponse(result))
}

// decodeEvent parses a JSON or form-encoded payload and checks the required
// fields. Bodies without a form content type are read as JSON.
func decodeEvent(r *http.Request) (domain.Event, domain.IssueRef, error) {
	var event domain.Event
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return event, domain.IssueRef{}, fmt.Errorf("%w: decoding form: %v", ErrValidation, err)
		}
		event = eventFromForm(r.PostForm)
	} else if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		return event, domain.IssueRef{}, fmt.Errorf("%w: decoding body: %v", ErrValidation, err)
	}

	var missing []string
	if event.GitHubURL == "" {
		missing = append(missing, "github_url")
	}
	if event.Type == "" {
		missing = append(missing, "type")
	}
	if event.ToPipelineName == "" {
		missing = append(missing, "to_pipeline_name")
	}
	if len(missing) > 0 {
		return event, domain.IssueRef{}, fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}

	ref, err := domain.ParseIssueURL(event.GitHubURL)
	if err != nil {
		return event, domain.IssueRef{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return event, ref, nil
}

func eventFromForm(form url.Values) domain.Event {
	return domain.Event{
		Type:             form.Get("type"),
		GitHubURL:        form.Get("github_url"),
		Organization:     form.Get("organization"),
		Repo:             form.Get("repo"),
		IssueNumber:      form.Get("issue_number"),
		IssueTitle:       form.Get("issue_title"),
		ToPipelineName:   form.Get("to_pipeline_name"),
		FromPipelineName: form.Get("from_pipeline_name"),
		WorkspaceID:      form.Get("workspace_id"),
		WorkspaceName:    form.Get("workspace_name"),
	}
}

// checkPipeline accepts transfers into a known pipeline and issue creation
// events.
func (h *Handler) checkPipeline(event domain.Event) error {
	switch event.Type {
	case domain.EventIssueReprioritized:
		return nil
	case domain.EventIssueTransfer:
		if slices.Contains(h.pipelines, event.ToPipelineName) {
			return nil
		}
		return fmt.Errorf("%w: unsupported pipeline %q", ErrValidation, event.ToPipelineName)
	default:
		return fmt.Errorf("%w: unsupported event type %q", ErrValidation, event.Type)
	}
}

func (h *Handler) fail(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("event failed", "status", status, "error", err.Error())
	} else {
		logger.Warn("event rejected", "status", status, "error", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps an error to the response code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, domain.ErrInvalidGitHubURL):
		return http.StatusBadRequest
	case errors.Is(err, gh.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newProcessedResponse(result *reconcile.Result) processedResponse {
	resp := processedResponse{
		Message:  "processed",
		Source:   string(result.Source),
		Projects: make([]projectResult, 0, len(result.Outcomes)),
	}
	for _, o := range result.Outcomes {
		pr := projectResult{ProjectID: o.ProjectID, ItemID: o.ItemID, OK: o.OK()}
		if o.Err != nil {
			pr.Error = o.Err.Error()
		}
		resp.Projects = append(resp.Projects, pr)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
