package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the 3 run tools registered:
// start_run, get_run_status and list_runs.
func NewServer(svc *RunService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "reelpipe",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_run",
		Description: "Start a social video pipeline run (ingest, narrative, voiceover, editing, packaging, analytics). Returns the run ID immediately; poll get_run_status for progress.",
	}, svc.StartRun)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_run_status",
		Description: "Get the stage-by-stage status of a run and, once it has completed, its per-platform deliverables. Set waitSeconds to block until the run finishes.",
	}, svc.GetRunStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List known runs in creation order, optionally filtered by status.",
	}, svc.ListRuns)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// NewHTTPHandler serves server over the streamable HTTP transport, for
// mounting next to the REST API.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}
