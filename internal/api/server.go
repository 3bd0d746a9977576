// Package api is the HTTP transport of the pipeline service: run submission,
// status queries, live event streams and static access to rendered outputs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

const (
	// DefaultKeepAlive is the idle interval between SSE keep-alive comments.
	DefaultKeepAlive = 15 * time.Second

	maxRequestBody = 1 << 20
)

// Submitter starts runs. *orchestrator.Runner implements it.
type Submitter interface {
	Submit(req runstate.RunRequest) (runstate.Status, error)
}

// Server serves the pipeline API.
type Server struct {
	Logger      *slog.Logger
	Runs        Submitter
	Registry    *runstate.Registry
	OutputsDir  string       // served under /api/outputs/ when set
	CORSOrigins []string     // allowed browser origins; "*" allows any
	MCP         http.Handler // mounted at /mcp when set
	KeepAlive   time.Duration
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/pipeline/run", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/pipeline/run/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/v1/pipeline/run/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /api/v1/pipeline/runs", s.handleList)
	if s.OutputsDir != "" {
		mux.Handle("GET /api/outputs/", http.StripPrefix("/api/outputs/", noListing(http.FileServer(http.Dir(s.OutputsDir)))))
	}
	if s.MCP != nil {
		mux.Handle("/mcp", s.MCP)
	}

	return Wrap(s.logger(), s.CORSOrigins, mux)
}

// Serve runs the API on ln until ctx is done, then shuts down gracefully.
// Request contexts derive from ctx so open event streams end on shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) keepAlive() time.Duration {
	if s.KeepAlive <= 0 {
		return DefaultKeepAlive
	}
	return s.KeepAlive
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitResponse is the body returned when a run is accepted.
type SubmitResponse struct {
	RunID string `json:"run_id"`
}

// ListResponse is the body of the run listing.
type ListResponse struct {
	Runs []runstate.Status `json:"runs"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req runstate.RunRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	st, err := s.Runs.Submit(req)
	if err != nil {
		if errors.Is(err, runstate.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger().Error("submit run", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{RunID: st.RunID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Registry.Get(r.PathValue("id"))
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ListResponse{Runs: s.Registry.List()})
}

// handleStream replays the run's events after Last-Event-ID (from the start
// when absent) and follows the log until it closes or the client leaves.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	events, err := s.Registry.Events(runID)
	if err != nil {
		writeRunError(w, err)
		return
	}

	sw := NewSSEWriter(w)
	if !sw.CanFlush() {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := events.Subscribe(lastEventID(r))
	type next struct {
		env runstate.Envelope
		err error
	}
	ch := make(chan next)
	go func() {
		defer close(ch)
		for {
			env, err := sub.Next(ctx)
			select {
			case ch <- next{env, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	sw.Init()
	log := s.logger().With("run_id", runID)
	ticker := time.NewTicker(s.keepAlive())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok || n.err != nil {
				return
			}
			if err := sw.WriteEvent(n.env); err != nil {
				log.Debug("event stream closed by client", "err", err)
				return
			}
		case <-ticker.C:
			if err := sw.KeepAlive(); err != nil {
				return
			}
		}
	}
}

// lastEventID reads the resume offset from the Last-Event-ID header, falling
// back to the "after" query parameter for clients that cannot set headers.
func lastEventID(r *http.Request) int {
	v := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if v == "" {
		v = r.URL.Query().Get("after")
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// noListing hides directory indexes of the outputs tree.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, runstate.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
