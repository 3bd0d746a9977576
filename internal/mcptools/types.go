package mcptools

// --- MCP tool types for the pipeline server (--serve-mcp and /mcp) ---
// Outputs are flattened to plain strings so the inferred schemas stay simple.

// StartRunInput is the input for the start_run MCP tool.
type StartRunInput struct {
	RunName   string   `json:"runName,omitempty" jsonschema:"run name, used as the output folder (default: demo-run)"`
	Platforms []string `json:"platforms,omitempty" jsonschema:"target platforms: instagram, tiktok (default: both)"`
	Keywords  []string `json:"stockKeywords,omitempty" jsonschema:"keywords used to select stock footage"`
	Notes     string   `json:"notes,omitempty" jsonschema:"creative direction passed to the script writer"`
}

// StartRunOutput is the result of the start_run MCP tool.
type StartRunOutput struct {
	RunID   string `json:"runId"`
	RunName string `json:"runName"`
	Status  string `json:"status"`
}

// GetRunStatusInput is the input for the get_run_status MCP tool.
type GetRunStatusInput struct {
	RunID       string `json:"runId" jsonschema:"identifier returned by start_run"`
	WaitSeconds int    `json:"waitSeconds,omitempty" jsonschema:"block up to this many seconds for the run to finish"`
}

// GetRunStatusOutput is the result of the get_run_status MCP tool.
type GetRunStatusOutput struct {
	Run RunSummary `json:"run"`
}

// ListRunsInput is the input for the list_runs MCP tool.
type ListRunsInput struct {
	Status string `json:"status,omitempty" jsonschema:"only return runs in this status: queued, running, completed, error"`
}

// ListRunsOutput is the result of the list_runs MCP tool.
type ListRunsOutput struct {
	Runs []RunSummary `json:"runs"`
}

// RunSummary is the tool-facing view of a run.
type RunSummary struct {
	RunID     string          `json:"runId"`
	RunName   string          `json:"runName"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
	Stages    []StageSummary  `json:"stages"`
	Outputs   []OutputSummary `json:"outputs,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// StageSummary is one stage of a RunSummary.
type StageSummary struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// OutputSummary is one platform deliverable of a completed run.
type OutputSummary struct {
	Platform  string   `json:"platform"`
	VideoPath string   `json:"videoPath,omitempty"`
	Caption   string   `json:"caption"`
	Hashtags  []string `json:"hashtags"`
	CTA       string   `json:"cta"`
}
