package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocmcp/supervisor/internal/config"
	"github.com/ocmcp/supervisor/internal/persistence"
	"github.com/ocmcp/supervisor/internal/pool"
	"github.com/ocmcp/supervisor/internal/procutil"
	"github.com/ocmcp/supervisor/internal/task"
	"github.com/ocmcp/supervisor/internal/worker"
)

func newTestTools(t *testing.T) *Tools {
	t.Helper()
	dir := t.TempDir()
	store := persistence.New(dir, nil)
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	writer := persistence.NewWriter(nil)
	t.Cleanup(writer.Close)

	p := pool.New(2, nil)
	mgr := task.NewManager(nil, nil)
	t.Cleanup(mgr.Close)

	killer := procutil.New(nil)
	runner := worker.New(mgr, store, writer, p, killer, nil, "ocmcp-worker-binary-that-does-not-exist")

	cfg := &config.Config{Model: "anthropic/claude", MaxConcurrent: 2, WorkerBinary: "ocmcp-worker-binary-that-does-not-exist"}
	return New(mgr, runner, store, p, cfg, nil)
}

func TestStartValidatesTask(t *testing.T) {
	tools := newTestTools(t)
	_, err := tools.Start(context.Background(), StartRequest{Task: ""})
	if err == nil {
		t.Fatalf("expected validation error for empty task")
	}
}

func TestStartValidatesModelPattern(t *testing.T) {
	tools := newTestTools(t)
	_, err := tools.Start(context.Background(), StartRequest{Task: "do something", Model: "not-a-valid-model"})
	if err == nil {
		t.Fatalf("expected validation error for malformed model")
	}
}

func TestStartReturnsWorkingStatus(t *testing.T) {
	tools := newTestTools(t)
	resp, err := tools.Start(context.Background(), StartRequest{Task: "do something useful"})
	require.NoError(t, err)
	require.Equal(t, "working", resp.Status)
	require.Empty(t, resp.SessionID)
	require.NotEmpty(t, resp.TaskID)
}

func TestCancelUnknownTask(t *testing.T) {
	tools := newTestTools(t)
	resp, err := tools.Cancel(CancelRequest{TaskID: "task_does_not_exist"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "failed" {
		t.Fatalf("expected failed status for unknown task, got %s", resp.Status)
	}
}

func TestCancelAlreadyTerminal(t *testing.T) {
	tools := newTestTools(t)
	start, err := tools.Start(context.Background(), StartRequest{Task: "do something"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tools.manager.FailTask(start.TaskID, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	resp, err := tools.Cancel(CancelRequest{TaskID: start.TaskID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "failed" {
		t.Fatalf("expected terminal status echoed back, got %s", resp.Status)
	}
}

func TestCancelLiveTask(t *testing.T) {
	tools := newTestTools(t)
	// Created directly on the manager: a task started through Start would be
	// failed asynchronously by the spawn error of the nonexistent binary.
	taskID := tools.manager.CreateTask(task.CreateParams{Title: "t", Model: "x/y"})

	resp, err := tools.Cancel(CancelRequest{TaskID: taskID})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", resp.Status)
	}
}

func TestRespondOnNonInputRequiredTask(t *testing.T) {
	tools := newTestTools(t)
	start, err := tools.Start(context.Background(), StartRequest{Task: "do something"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := tools.Respond(context.Background(), RespondRequest{TaskID: start.TaskID, Response: "ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message == "Response sent to task "+start.TaskID {
		t.Fatalf("expected a precondition-violation response, not success")
	}
}

func TestRespondUnknownTask(t *testing.T) {
	tools := newTestTools(t)
	resp, err := tools.Respond(context.Background(), RespondRequest{TaskID: "task_nope", Response: "ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "failed" {
		t.Fatalf("expected failed for unknown task, got %s", resp.Status)
	}
}

func TestListDefaultsToActiveWithLimit(t *testing.T) {
	tools := newTestTools(t)
	// Created directly on the manager so that no spawn failure moves them out
	// of the active set before List runs.
	for i := 0; i < 3; i++ {
		tools.manager.CreateTask(task.CreateParams{Title: "task", Model: "x/y"})
	}

	resp, err := tools.List(ListRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if resp.Total != 3 {
		t.Fatalf("expected total 3, got %d", resp.Total)
	}
	if len(resp.Sessions) != 3 {
		t.Fatalf("expected 3 sessions under the default limit, got %d", len(resp.Sessions))
	}
}

func TestHealthReportsPoolAndCLI(t *testing.T) {
	tools := newTestTools(t)
	resp := tools.Health(context.Background())
	require.False(t, resp.CLI.Available, "expected unavailable CLI for a nonexistent binary")
	require.Equal(t, 2, resp.Pool.MaxConcurrent)
}
