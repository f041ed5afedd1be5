// Package control implements the five Control Tools: the externally
// callable request/response surface (start, list, respond, cancel,
// health). The package is transport-agnostic — cmd/ocmcp-supervisor wires
// it to a stdio MCP server, but every handler here is a plain Go function
// unit-testable without any transport.
//
// Input validation is grounded on go-playground/validator struct tags,
// mirrored on top of alex's convention of translating domain errors into
// response shapes rather than letting raw errors escape a tool boundary
// (alex/internal/delivery/server/app/task_execution_service.go).
package control

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ocmcp/supervisor/internal/config"
	"github.com/ocmcp/supervisor/internal/persistence"
	"github.com/ocmcp/supervisor/internal/pool"
	"github.com/ocmcp/supervisor/internal/superrors"
	"github.com/ocmcp/supervisor/internal/supervisorlog"
	"github.com/ocmcp/supervisor/internal/task"
	"github.com/ocmcp/supervisor/internal/worker"
)

var modelPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+/[A-Za-z0-9._/-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("workermodel", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true // optional fields validate their own "omitempty"
		}
		return modelPattern.MatchString(s)
	})
	return v
}

// Tools bundles the collaborators every Control Tool handler needs.
type Tools struct {
	manager *task.Manager
	runner  *worker.Runner
	store   *persistence.Store
	pool    *pool.Pool
	cfg     *config.Config
	logger  supervisorlog.Logger
}

// New constructs Tools from its collaborators.
func New(manager *task.Manager, runner *worker.Runner, store *persistence.Store, p *pool.Pool, cfg *config.Config, logger supervisorlog.Logger) *Tools {
	return &Tools{manager: manager, runner: runner, store: store, pool: p, cfg: cfg, logger: logger}
}

// StartRequest is the start() tool's validated input.
type StartRequest struct {
	Task           string `validate:"required,max=100000"`
	Agent          string `validate:"omitempty,oneof=explore plan build"`
	Model          string `validate:"omitempty,max=128,workermodel"`
	OutputGuidance string `validate:"omitempty,max=10000"`
	SessionTitle   string `validate:"omitempty,max=256"`
}

// StartResponse is start()'s success shape.
type StartResponse struct {
	TaskID    string `json:"taskId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// Start implements the start Control Tool.
func (t *Tools) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	if err := validate.Struct(req); err != nil {
		return StartResponse{}, toValidationError(err)
	}

	model := req.Model
	if model == "" {
		model = t.cfg.Model
	}
	agent := req.Agent
	if agent == "" {
		agent = t.cfg.DefaultAgent
	}

	title := req.SessionTitle
	if title == "" {
		title = "task: " + elide(req.Task, 50)
	}

	taskID := t.manager.CreateTask(task.CreateParams{Title: title, Model: model, Agent: task.Agent(agent)})

	if t.store != nil {
		meta := persistence.PersistedTaskMetadata{
			TaskID: taskID, Title: title, Model: model, Agent: agent,
			CreatedAt: time.Now().Unix(), Status: string(task.StatusWorking),
		}
		if err := t.store.SaveTaskMetadata(taskID, meta); err != nil && t.logger != nil {
			t.logger.Warn("start: persist metadata for %s failed: %v", taskID, err)
		}
	}

	t.runner.Start(ctx, worker.StartParams{
		TaskID: taskID, Prompt: req.Task, Model: model, Agent: agent, OutputGuidance: req.OutputGuidance,
	})

	return StartResponse{TaskID: taskID, SessionID: "", Status: string(task.StatusWorking)}, nil
}

// elide returns the first n bytes of s, followed by "…" when s is longer
// than n bytes. Start uses it for the default session title "task: " + the
// first 50 bytes of the task.
func elide(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// ListRequest is the list() tool's validated input.
type ListRequest struct {
	Status string `validate:"omitempty,oneof=active all"`
	Limit  int    `validate:"omitempty,min=1"`
}

// ListedSession is one projected task entry.
type ListedSession struct {
	TaskID      string `json:"taskId"`
	SessionID   string `json:"sessionId"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Model       string `json:"model"`
	Agent       string `json:"agent"`
	CreatedAt   string `json:"createdAt"`
	LastEventAt string `json:"lastEventAt"`
}

// ListResponse is list()'s success shape.
type ListResponse struct {
	Sessions []ListedSession `json:"sessions"`
	Total    int             `json:"total"`
}

// List implements the list Control Tool.
func (t *Tools) List(req ListRequest) (ListResponse, error) {
	if req.Status == "" {
		req.Status = "active"
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if err := validate.Struct(req); err != nil {
		return ListResponse{}, toValidationError(err)
	}

	var all []task.Metadata
	if req.Status == "all" {
		all = t.manager.ListAllTasks()
	} else {
		all = t.manager.ListActiveTasks()
	}
	total := len(all)

	sort.Slice(all, func(i, j int) bool {
		return all[i].LastEventAt.After(all[j].LastEventAt)
	})
	if len(all) > req.Limit {
		all = all[:req.Limit]
	}

	sessions := make([]ListedSession, 0, len(all))
	for _, m := range all {
		sessions = append(sessions, ListedSession{
			TaskID: m.TaskID, SessionID: m.SessionID, Title: m.Title,
			Status: string(m.Status), Model: m.Model, Agent: string(m.Agent),
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339), LastEventAt: m.LastEventAt.UTC().Format(time.RFC3339),
		})
	}

	return ListResponse{Sessions: sessions, Total: total}, nil
}

// RespondRequest is the respond() tool's validated input.
type RespondRequest struct {
	TaskID   string `validate:"required"`
	Response string `validate:"required,max=50000"`
}

// RespondResponse is respond()'s result shape. Success and precondition
// violations share this shape rather than the latter being an error.
type RespondResponse struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Respond implements the respond Control Tool.
func (t *Tools) Respond(ctx context.Context, req RespondRequest) (RespondResponse, error) {
	if err := validate.Struct(req); err != nil {
		return RespondResponse{}, toValidationError(err)
	}

	meta, ok := t.manager.GetTaskMetadata(req.TaskID)
	if !ok {
		return RespondResponse{TaskID: req.TaskID, Status: "failed", Message: "Task not found: " + req.TaskID}, nil
	}
	if meta.Status != task.StatusInputRequired {
		return RespondResponse{
			TaskID: req.TaskID, Status: string(meta.Status),
			Message: fmt.Sprintf("Task is not waiting for input (status=%s)", meta.Status),
		}, nil
	}
	if meta.SessionID == "" {
		return RespondResponse{
			TaskID: req.TaskID, Status: string(meta.Status),
			Message: "Task has no session to continue",
		}, nil
	}

	t.runner.Continue(ctx, worker.ContinueParams{
		TaskID:    req.TaskID,
		SessionID: meta.SessionID,
		Response:  req.Response,
	})

	return RespondResponse{TaskID: req.TaskID, Status: "working", Message: "Response sent to task " + req.TaskID}, nil
}

// CancelRequest is the cancel() tool's validated input.
type CancelRequest struct {
	TaskID string `validate:"required"`
}

// CancelResponse is cancel()'s result shape.
type CancelResponse struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Cancel implements the cancel Control Tool.
func (t *Tools) Cancel(req CancelRequest) (CancelResponse, error) {
	if err := validate.Struct(req); err != nil {
		return CancelResponse{}, toValidationError(err)
	}

	meta, ok := t.manager.GetTaskMetadata(req.TaskID)
	if !ok {
		return CancelResponse{TaskID: req.TaskID, Status: "failed", Message: "Task not found: " + req.TaskID}, nil
	}
	if meta.Status.IsTerminal() {
		return CancelResponse{
			TaskID: req.TaskID, Status: string(meta.Status),
			Message: fmt.Sprintf("Task is already in terminal state (%s)", meta.Status),
		}, nil
	}

	t.runner.Stop(req.TaskID)
	if err := t.manager.CancelTask(req.TaskID); err != nil {
		return CancelResponse{}, err
	}

	return CancelResponse{TaskID: req.TaskID, Status: "cancelled", Message: "Task " + req.TaskID + " cancelled"}, nil
}

// CLIHealth reports the Worker CLI's availability.
type CLIHealth struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ConfigHealth mirrors the resolved configuration.
type ConfigHealth struct {
	PrimaryModel  string `json:"primaryModel"`
	FallbackModel string `json:"fallbackModel,omitempty"`
	DefaultAgent  string `json:"defaultAgent,omitempty"`
}

// PoolHealth reports Process Pool occupancy.
type PoolHealth struct {
	Running       int `json:"running"`
	Queued        int `json:"queued"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// TasksHealth reports task registry counts. ActiveProcesses counts every
// live Worker CLI child, including continuations started by respond;
// ActiveRespondProcesses is always reported as 0.
type TasksHealth struct {
	Active                 int `json:"active"`
	Total                  int `json:"total"`
	ActiveProcesses        int `json:"activeProcesses"`
	ActiveRespondProcesses int `json:"activeRespondProcesses"`
}

// HealthResponse is health()'s success shape.
type HealthResponse struct {
	CLI    CLIHealth    `json:"cli"`
	Config ConfigHealth `json:"config"`
	Pool   PoolHealth   `json:"pool"`
	Tasks  TasksHealth  `json:"tasks"`
}

const cliVersionProbeTimeout = 5 * time.Second

// Health implements the health Control Tool.
func (t *Tools) Health(ctx context.Context) HealthResponse {
	cli := probeCLI(ctx, t.cfg.WorkerBinary)

	poolStatus := t.pool.GetStatus()
	active := t.manager.ListActiveTasks()
	all := t.manager.ListAllTasks()

	return HealthResponse{
		CLI: cli,
		Config: ConfigHealth{
			PrimaryModel: t.cfg.Model, FallbackModel: t.cfg.FallbackModel, DefaultAgent: t.cfg.DefaultAgent,
		},
		Pool: PoolHealth{Running: poolStatus.Running, Queued: poolStatus.Queued, MaxConcurrent: poolStatus.MaxConcurrent},
		Tasks: TasksHealth{
			Active: len(active), Total: len(all),
			ActiveProcesses:        t.runner.ActiveCount(),
			ActiveRespondProcesses: 0,
		},
	}
}

func toValidationError(err error) error {
	if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
		fe := ve[0]
		return superrors.NewValidationError(fe.Field(), fmt.Sprintf("failed on the '%s' rule", fe.Tag()))
	}
	return superrors.NewValidationError("request", err.Error())
}

// probeCLI determines cli.available by executing the Worker CLI with a
// version flag under a 5s timeout.
func probeCLI(ctx context.Context, binary string) CLIHealth {
	probeCtx, cancel := context.WithTimeout(ctx, cliVersionProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, binary, "--version")
	out, err := cmd.Output()
	if err != nil {
		return CLIHealth{Available: false, Error: err.Error()}
	}
	return CLIHealth{Available: true, Version: strings.TrimSpace(string(out))}
}
