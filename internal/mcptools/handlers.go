package mcptools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// maxWait caps how long get_run_status may block.
const maxWait = 10 * time.Minute

// Submitter starts runs. *orchestrator.Runner implements it.
type Submitter interface {
	Submit(req runstate.RunRequest) (runstate.Status, error)
}

// RunService handles MCP tool calls against the run registry.
type RunService struct {
	runs Submitter
	reg  *runstate.Registry
}

// NewRunService creates a RunService submitting through runs and reading
// state from reg.
func NewRunService(runs Submitter, reg *runstate.Registry) *RunService {
	return &RunService{runs: runs, reg: reg}
}

// StartRun submits a pipeline run and returns immediately.
func (s *RunService) StartRun(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input StartRunInput,
) (*mcp.CallToolResult, StartRunOutput, error) {
	req := runstate.RunRequest{
		RunName: input.RunName,
	}
	for _, p := range input.Platforms {
		req.Platforms = append(req.Platforms, runstate.Platform(strings.ToLower(strings.TrimSpace(p))))
	}
	if input.Keywords != nil {
		req.Keywords = append([]string(nil), input.Keywords...)
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		req.Notes = &notes
	}

	st, err := s.runs.Submit(req)
	if err != nil {
		return nil, StartRunOutput{}, fmt.Errorf("start run: %w", err)
	}
	return nil, StartRunOutput{
		RunID:   st.RunID,
		RunName: st.RunName,
		Status:  string(st.Status),
	}, nil
}

// GetRunStatus reports a run's stages and outputs, optionally waiting for it
// to finish first.
func (s *RunService) GetRunStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetRunStatusInput,
) (*mcp.CallToolResult, GetRunStatusOutput, error) {
	if input.RunID == "" {
		return nil, GetRunStatusOutput{}, errors.New("runId is required")
	}
	if input.WaitSeconds > 0 {
		wait := min(time.Duration(input.WaitSeconds)*time.Second, maxWait)
		if err := s.waitTerminal(ctx, input.RunID, wait); err != nil {
			return nil, GetRunStatusOutput{}, err
		}
	}

	st, err := s.reg.Get(input.RunID)
	if err != nil {
		return nil, GetRunStatusOutput{}, fmt.Errorf("get run %s: %w", input.RunID, err)
	}
	return nil, GetRunStatusOutput{Run: summarize(st, s.lastError(input.RunID))}, nil
}

// ListRuns returns every known run in creation order.
func (s *RunService) ListRuns(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListRunsInput,
) (*mcp.CallToolResult, ListRunsOutput, error) {
	filter := runstate.RunStatus(strings.ToLower(strings.TrimSpace(input.Status)))

	runs := []RunSummary{}
	for _, st := range s.reg.List() {
		if filter != "" && st.Status != filter {
			continue
		}
		runs = append(runs, summarize(st, s.lastError(st.RunID)))
	}
	return nil, ListRunsOutput{Runs: runs}, nil
}

// waitTerminal follows the run's event log until it closes or d elapses.
// Running out of time is not an error; the caller reports the current state.
func (s *RunService) waitTerminal(ctx context.Context, runID string, d time.Duration) error {
	events, err := s.reg.Events(runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	sub := events.Subscribe(events.Len())
	for {
		_, err := sub.Next(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return err
		}
	}
}

// lastError returns the failure message of an errored run, read from its
// terminal event.
func (s *RunService) lastError(runID string) string {
	events, err := s.reg.Events(runID)
	if err != nil || !events.Closed() {
		return ""
	}
	history := events.History()
	if len(history) == 0 {
		return ""
	}
	if ev, ok := history[len(history)-1].Event.(runstate.ErrorEvent); ok {
		return ev.Message
	}
	return ""
}

func summarize(st runstate.Status, errMsg string) RunSummary {
	out := RunSummary{
		RunID:     st.RunID,
		RunName:   st.RunName,
		Status:    string(st.Status),
		CreatedAt: st.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: st.UpdatedAt.UTC().Format(time.RFC3339),
		Stages:    make([]StageSummary, 0, len(st.Stages)),
		Error:     errMsg,
	}
	for _, snap := range st.Stages {
		out.Stages = append(out.Stages, StageSummary{
			Stage:  string(snap.Stage),
			Status: string(snap.Status),
			Detail: snap.DetailText(),
		})
	}
	for _, p := range []struct {
		platform runstate.Platform
		out      *runstate.PlatformOutput
	}{
		{runstate.PlatformInstagram, st.Outputs.Instagram},
		{runstate.PlatformTikTok, st.Outputs.TikTok},
	} {
		if p.out == nil {
			continue
		}
		summary := OutputSummary{
			Platform: string(p.platform),
			Caption:  p.out.Caption,
			Hashtags: append([]string{}, p.out.Hashtags...),
			CTA:      p.out.CTA,
		}
		if p.out.VideoPath != nil {
			summary.VideoPath = *p.out.VideoPath
		}
		out.Outputs = append(out.Outputs, summary)
	}
	return out
}
