// Command ocmcp-supervisor is the stdio entrypoint: it wires the
// supervisor's collaborators together and exposes the five Control Tools
// over mark3labs/mcp-go's stdio transport.
//
// Grounded on the cobra root-command shape alex's own CLI entrypoints use
// (alex go.mod's "github.com/spf13/cobra" require) and on the MCP stdio
// server wiring shown by the mcp-go-based example manifests in the pack
// (jaakkos-stringwork, nick-dorsch-ponder). All actual logic lives in
// internal/control; this file is a thin transport adapter.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ocmcp/supervisor/internal/config"
	"github.com/ocmcp/supervisor/internal/control"
	"github.com/ocmcp/supervisor/internal/metrics"
	"github.com/ocmcp/supervisor/internal/persistence"
	"github.com/ocmcp/supervisor/internal/pool"
	"github.com/ocmcp/supervisor/internal/procutil"
	"github.com/ocmcp/supervisor/internal/supervisorlog"
	"github.com/ocmcp/supervisor/internal/task"
	"github.com/ocmcp/supervisor/internal/worker"
)

const exitFatalStartup = 1

func main() {
	var configPath string
	var logLevel string

	root := &cobra.Command{
		Use:   "ocmcp-supervisor",
		Short: "Supervises Worker CLI task invocations over a stdio control protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the JSON configuration file")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(exitFatalStartup)
	}
}

func run(configPath, logLevel string) error {
	supervisorlog.SetLevel(logLevel)
	logger := supervisorlog.NewComponentLogger("supervisor")

	baseDir, err := defaultBaseDir()
	if err != nil {
		return fmt.Errorf("resolve base directory: %w", err)
	}

	cfg := config.Load(resolveConfigPath(configPath, baseDir), logger)

	reg := metrics.New(nil)

	store := persistence.New(baseDir, logger)
	if err := store.Init(); err != nil {
		// Persistence becomes best-effort-disabled; the supervisor still
		// serves tasks in memory-only mode.
		logger.Warn("persistence init failed, continuing in memory-only mode: %v", err)
	}
	writer := persistence.NewWriter(logger)
	defer writer.Close()

	admission := pool.New(cfg.MaxConcurrent, reg)
	killer := procutil.New(logger)

	var manager *task.Manager
	sink := newPersistenceSink(func() *task.Manager { return manager }, store, writer, logger)
	manager = task.NewManager(logger, sink, task.WithMetrics(reg))
	defer manager.Close()

	runner := worker.New(manager, store, writer, admission, killer, logger, cfg.WorkerBinary)
	defer runner.StopAll()

	tools := control.New(manager, runner, store, admission, cfg, logger)

	mcpServer := server.NewMCPServer("ocmcp-supervisor", "0.1.0")
	registerTools(mcpServer, tools)

	logger.Info("ocmcp-supervisor starting, base=%s, maxConcurrent=%d", baseDir, cfg.MaxConcurrent)

	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(context.Background(), os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

// newPersistenceSink returns a task.StatusChangeFunc that checkpoints every
// status transition to disk through store, routed via writer's bounded queue
// so persistence I/O never blocks task-state processing. managerRef is
// resolved lazily because the sink must be constructed before the
// *task.Manager it reads snapshots from exists.
func newPersistenceSink(managerRef func() *task.Manager, store *persistence.Store, writer *persistence.Writer, logger supervisorlog.Logger) task.StatusChangeFunc {
	return func(taskID string, newStatus task.Status, statusMessage string) {
		writer.Submit(func() {
			meta, ok := managerRef().GetTaskMetadata(taskID)
			if !ok {
				return
			}
			pm := persistence.PersistedTaskMetadata{
				TaskID: meta.TaskID, SessionID: meta.SessionID, Title: meta.Title,
				Model: meta.Model, Agent: string(meta.Agent), CreatedAt: meta.CreatedAt.Unix(),
				Status: string(newStatus), StatusMessage: statusMessage,
			}
			if err := store.SaveTaskMetadata(taskID, pm); err != nil {
				logger.Warn("status change: persist metadata for %s failed: %v", taskID, err)
			}
			if !newStatus.IsTerminal() {
				return
			}
			result := persistence.PersistedResult{
				TaskID: taskID, Status: string(newStatus), Text: meta.AccumulatedText,
				TerminationReason: meta.TerminationReason, Warnings: meta.Warnings,
				CompletedAt: time.Now().Unix(),
			}
			if err := store.SaveResult(taskID, result); err != nil {
				logger.Warn("status change: persist result for %s failed: %v", taskID, err)
			}
		})
	}
}

func resolveConfigPath(flagValue, baseDir string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(baseDir, "config.json")
}

func defaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ocmcp-mcp"), nil
}

func registerTools(s *server.MCPServer, tools *control.Tools) {
	s.AddTool(
		mcp.NewTool("start",
			mcp.WithDescription("Start a new supervised task against the Worker CLI"),
			mcp.WithString("task", mcp.Required(), mcp.Description("the task prompt")),
			mcp.WithString("agent", mcp.Description("optional agent preset: explore, plan, build")),
			mcp.WithString("model", mcp.Description("optional worker model id, provider/name")),
			mcp.WithString("outputGuidance", mcp.Description("optional extra output guidance")),
			mcp.WithString("sessionTitle", mcp.Description("optional human-readable session title")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resp, err := tools.Start(ctx, control.StartRequest{
				Task:           req.GetString("task", ""),
				Agent:          req.GetString("agent", ""),
				Model:          req.GetString("model", ""),
				OutputGuidance: req.GetString("outputGuidance", ""),
				SessionTitle:   req.GetString("sessionTitle", ""),
			})
			return toolResult(resp, err)
		},
	)

	s.AddTool(
		mcp.NewTool("list",
			mcp.WithDescription("List supervised tasks"),
			mcp.WithString("status", mcp.Description("active (default) or all")),
			mcp.WithNumber("limit", mcp.Description("maximum tasks to return, default 10")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resp, err := tools.List(control.ListRequest{
				Status: req.GetString("status", ""),
				Limit:  req.GetInt("limit", 0),
			})
			return toolResult(resp, err)
		},
	)

	s.AddTool(
		mcp.NewTool("respond",
			mcp.WithDescription("Send a response to a task waiting for input"),
			mcp.WithString("taskId", mcp.Required()),
			mcp.WithString("response", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resp, err := tools.Respond(ctx, control.RespondRequest{
				TaskID:   req.GetString("taskId", ""),
				Response: req.GetString("response", ""),
			})
			return toolResult(resp, err)
		},
	)

	s.AddTool(
		mcp.NewTool("cancel",
			mcp.WithDescription("Cancel a running task"),
			mcp.WithString("taskId", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resp, err := tools.Cancel(control.CancelRequest{TaskID: req.GetString("taskId", "")})
			return toolResult(resp, err)
		},
	)

	s.AddTool(
		mcp.NewTool("health",
			mcp.WithDescription("Report supervisor health: CLI availability, config, pool, and task counts"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return toolResult(tools.Health(ctx), nil)
		},
	)
}

// toolResult marshals v to JSON text content, or produces an isError
// content response for err, so a handler failure never panics or exits
// the process.
func toolResult(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, marshalErr := json.Marshal(v)
	if marshalErr != nil {
		return mcp.NewToolResultError(marshalErr.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
