package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/reelpipe/internal/config"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigDir string
	Server    string
	ServeMCP  bool
	Version   bool
}

// version is set by goreleaser at build time.
var version = "dev"

const usage = `usage: reelpipe [flags] <command> [args]

commands:
  serve                    run the HTTP API (default)
  submit [flags]           start a run on a running server
  status [run-id]          show one run, or every run
  watch <run-id>           follow a run's events until it finishes
  init [--force] [dir]     register reelpipe in dir/.mcp.json
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var flags cliFlags

	fs := flag.NewFlagSet("reelpipe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fmt.Fprintln(stderr, "\nflags:")
		fs.PrintDefaults()
	}
	fs.StringVar(&flags.ConfigDir, "config-dir", ".", "directory holding reelpipe.yml")
	fs.StringVar(&flags.Server, "server", envOr("REELPIPE_SERVER", "http://localhost:8000"), "base URL of the pipeline API for client commands")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as an MCP server on stdio")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}

	cmd, rest := "serve", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch {
	case flags.ServeMCP:
		return withConfig(ctx, flags, stderr, func(cfg *config.Config, svc *service) error {
			return svc.serveMCP(ctx)
		})
	case cmd == "serve":
		return withConfig(ctx, flags, stderr, func(cfg *config.Config, svc *service) error {
			return svc.serveHTTP(ctx, cfg)
		})
	case cmd == "submit":
		return runSubmit(ctx, flags.Server, rest, stdout, stderr)
	case cmd == "status":
		return runStatus(ctx, flags.Server, rest, stdout)
	case cmd == "watch":
		return runWatch(ctx, flags.Server, rest, stdout)
	case cmd == "init":
		return runInit(rest, stdout, stderr)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// withConfig loads and validates the configuration, builds the service and
// calls fn with it.
func withConfig(ctx context.Context, flags cliFlags, logOut io.Writer, fn func(*config.Config, *service) error) error {
	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(logOut)

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	err = fn(cfg, svc)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
