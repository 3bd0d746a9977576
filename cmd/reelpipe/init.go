package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// reelpipeMCPEntry is the MCP server configuration for the reelpipe binary.
var reelpipeMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "reelpipe",
  "args": ["--serve-mcp"]
}`)

// runInit registers the reelpipe MCP server in <dir>/.mcp.json.
func runInit(args []string, stdout, stderr io.Writer) error {
	var force bool
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&force, "force", false, "overwrite an existing reelpipe entry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	return mergeMCPConfig(filepath.Join(abs, ".mcp.json"), force, stdout)
}

// mergeMCPConfig creates or merges the reelpipe entry into .mcp.json.
func mergeMCPConfig(mcpPath string, force bool, stdout io.Writer) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["reelpipe"]; exists && !force {
		fmt.Fprintln(stdout, "  skipped .mcp.json reelpipe entry (exists, use --force to overwrite)")
		return nil
	}

	cfg.MCPServers["reelpipe"] = reelpipeMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(stdout, "  %s .mcp.json with reelpipe MCP server\n", action)
	return nil
}
