// Package server exposes the ingestion trigger endpoint invoked by the
// external scheduler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pulseworks/artistpulse/pkg/catalog"
	"github.com/pulseworks/artistpulse/pkg/ingest"
	"github.com/pulseworks/artistpulse/pkg/lake"
)

var (
	// BuildVersion, BuildCommit, BuildDate are set from main via SetBuildInfo.
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

// SetBuildInfo sets the build info from ldflags values in main.
func SetBuildInfo(version, commit, date string) {
	BuildVersion = version
	BuildCommit = commit
	BuildDate = date
}

// Runner is the ingestion entrypoint the server drives.
type Runner interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

type Config struct {
	Logger *slog.Logger
	Runner Runner
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Runner == nil {
		return errors.New("runner is required")
	}
	return nil
}

// Server is the HTTP trigger surface: one run endpoint plus health and
// version probes. All heavy lifting happens in the runner.
type Server struct {
	cfg Config
	log *slog.Logger
	mux *chi.Mux
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, log: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Post("/v1/ingest/run", s.handleRun)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/version", s.handleVersion)

	s.mux = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message,omitempty"`
}

// handleRun triggers one ingestion invocation. Optional query parameters:
// start/end (RFC3339, manual backfill) and dry_run (fetch and report only).
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "failed", ErrorKind: "invalid_request", Message: err.Error()})
		return
	}

	res, runErr := s.cfg.Runner.Run(r.Context(), req)
	if runErr != nil {
		writeJSON(w, statusFor(runErr), errorResponse{Status: "failed", ErrorKind: ingest.ErrorKind(runErr)})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseRunRequest(r *http.Request) (ingest.Request, error) {
	var req ingest.Request
	q := r.URL.Query()

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, fmt.Errorf("invalid start parameter: %w", err)
		}
		req.Start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, fmt.Errorf("invalid end parameter: %w", err)
		}
		req.End = t
	}
	if v := q.Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid dry_run parameter: %w", err)
		}
		req.DryRun = b
	}
	return req, nil
}

// statusFor maps invocation failures to response codes. A watermark
// conflict means the work is already done or being done elsewhere (409);
// upstream and storage failures surface as 5xx so the external scheduler
// retries at its own cadence.
func statusFor(err error) int {
	if errors.Is(err, lake.ErrWatermarkConflict) {
		return http.StatusConflict
	}
	if kind, ok := catalog.KindOf(err); ok {
		if kind == catalog.KindRateLimit {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	}
	var we *lake.WriteError
	if errors.As(err, &we) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionResponse contains the service build version info.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: BuildVersion,
		Commit:  BuildCommit,
		Date:    BuildDate,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
