package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dusk-indust/reelpipe/internal/api"
	"github.com/dusk-indust/reelpipe/internal/orchestrator"
	"github.com/dusk-indust/reelpipe/internal/runstate"
)

func runSubmit(ctx context.Context, server string, args []string, stdout, stderr io.Writer) error {
	var (
		name, platforms, keywords, notes string
		watch                            bool
	)
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&name, "name", "", "run name (default \"demo-run\")")
	fs.StringVar(&platforms, "platforms", "", "comma-separated platforms: instagram, tiktok")
	fs.StringVar(&keywords, "keywords", "", "comma-separated stock keywords")
	fs.StringVar(&notes, "notes", "", "free-form creative direction")
	fs.BoolVar(&watch, "watch", false, "follow the run until it finishes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := runstate.RunRequest{RunName: name}
	for _, p := range splitList(platforms) {
		req.Platforms = append(req.Platforms, runstate.Platform(strings.ToLower(p)))
	}
	req.Keywords = splitList(keywords)
	if notes != "" {
		req.Notes = &notes
	}

	client := api.NewClient(server)
	id, err := client.Submit(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, id)
	if !watch {
		return nil
	}
	return watchRun(ctx, client, id, stdout)
}

func runStatus(ctx context.Context, server string, args []string, stdout io.Writer) error {
	client := api.NewClient(server)
	if len(args) > 0 {
		st, err := client.Status(ctx, args[0])
		if err != nil {
			return err
		}
		printRun(stdout, st)
		return nil
	}

	runs, err := client.List(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs found.")
		fmt.Fprintln(stdout, "Run 'reelpipe submit' to start one.")
		return nil
	}
	for i, st := range runs {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		printRun(stdout, st)
	}
	return nil
}

func runWatch(ctx context.Context, server string, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("watch: run id is required")
	}
	return watchRun(ctx, api.NewClient(server), args[0], stdout)
}

// watchRun prints every event of the run until its terminal event. A failed
// run is reported as an error.
func watchRun(ctx context.Context, client *api.Client, runID string, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := client.Stream(ctx, runID, 0)
	if err != nil {
		return err
	}
	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
		fmt.Fprintln(stdout, orchestrator.FormatEvent(ev.Event))
		switch e := ev.Event.(type) {
		case runstate.CompleteEvent:
			printOutputs(stdout, e.Response.Outputs)
			return nil
		case runstate.ErrorEvent:
			return fmt.Errorf("run %s failed: %s", runID, e.Message)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream for run %s ended before the run finished", runID)
}

func printRun(w io.Writer, st runstate.Status) {
	fmt.Fprintf(w, "Run: %s (%s)  [%s]\n", st.RunName, st.RunID, st.Status)
	for _, snap := range st.Stages {
		fmt.Fprintln(w, orchestrator.FormatSnapshot(snap))
	}
	printOutputs(w, st.Outputs)
}

func printOutputs(w io.Writer, out runstate.Outputs) {
	for _, p := range []struct {
		name string
		out  *runstate.PlatformOutput
	}{
		{"instagram", out.Instagram},
		{"tiktok", out.TikTok},
	} {
		if p.out == nil {
			continue
		}
		video := "(not rendered)"
		if p.out.VideoPath != nil {
			video = *p.out.VideoPath
		}
		fmt.Fprintf(w, "  -> %-9s %s\n", p.name, video)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
