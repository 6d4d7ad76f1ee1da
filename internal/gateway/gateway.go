// Package gateway is the IPC boundary between the GUI surface and the
// orchestration components. It exposes a fixed, enumerated set of operations
// over local HTTP; every component error is translated into a uniform
// structured error shape and nothing propagates an unhandled fault into the
// GUI process.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whalescope/whalescope/internal/config"
	"github.com/whalescope/whalescope/internal/exporter"
	"github.com/whalescope/whalescope/internal/invoker"
	"github.com/whalescope/whalescope/internal/service"
	"github.com/whalescope/whalescope/internal/storage"
	"github.com/whalescope/whalescope/internal/supervisor"
)

const (
	maxRequestBodySize = 20 << 20 // chart images ride along in export requests
	maxJSONBodySize    = 1 << 20  // every other JSON body
)

// DataLoader abstracts the analytics-service client.
type DataLoader interface {
	Load(ctx context.Context, section string, params map[string]string) (json.RawMessage, error)
	IsRunning(ctx context.Context) bool
}

// ExportRunner abstracts the export coordinator. The prompter carries the
// destination answer collected by the caller's UI.
type ExportRunner interface {
	RunWithPrompter(ctx context.Context, job exporter.Job, prompter exporter.Prompter) (exporter.Result, error)
}

// ServiceWatcher abstracts the process supervisor's status view.
type ServiceWatcher interface {
	Status() supervisor.Status
}

// SnapshotStore is the slice of storage the gateway needs.
type SnapshotStore interface {
	SaveSnapshot(snap storage.Snapshot) error
	LatestSnapshot(section string) (storage.Snapshot, error)
	RecentExports(limit int) ([]storage.ExportRecord, error)
}

// Deps holds the collaborators for the gateway handler.
type Deps struct {
	Service    DataLoader
	Exporter   ExportRunner
	Invoker    invoker.Runner
	Supervisor ServiceWatcher
	Store      SnapshotStore
	Keys       *config.Keystore
	Token      string
	Logger     *slog.Logger
	// OpenPath launches the host viewer; exporter.OpenPath unless overridden
	// in tests.
	OpenPath func(path string) error
}

// NewHandler builds the gateway router. /health and /metrics are open;
// everything else requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.OpenPath == nil {
		deps.OpenPath = exporter.OpenPath
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/api/data/{section}", handleLoadData(deps))
		r.Post("/api/export", handleExport(deps))
		r.Post("/api/open", handleOpen(deps))
		r.Get("/api/credentials", handleGetCredentials(deps))
		r.Put("/api/credentials", handlePutCredentials(deps))
		r.Post("/api/invoke", handleInvoke(deps))
		r.Get("/api/snapshots/{section}", handleSnapshot(deps))
		r.Get("/api/exports", handleRecentExports(deps))
		r.Get("/api/status", handleStatus(deps))
	})

	return r
}

// handleLoadData proxies a data load to the analytics service and records
// the payload as the section's latest snapshot.
func handleLoadData(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		section, err := exporter.ParseSection(chi.URLParam(r, "section"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "%v", err)
			return
		}

		params := map[string]string{}
		for key, vals := range r.URL.Query() {
			if len(vals) > 0 {
				params[key] = vals[0]
			}
		}

		payload, err := deps.Service.Load(r.Context(), string(section), params)
		if err != nil {
			dataLoadsTotal.WithLabelValues(string(section), "error").Inc()
			if errors.Is(err, service.ErrUnavailable) {
				httpError(w, http.StatusBadGateway, "service_unavailable", "%v", err)
				return
			}
			httpError(w, http.StatusBadGateway, "service_error", "%v", err)
			return
		}
		dataLoadsTotal.WithLabelValues(string(section), "success").Inc()

		if deps.Store != nil {
			snap := storage.Snapshot{
				ID:        uuid.NewString(),
				Section:   string(section),
				Payload:   string(payload),
				FetchedAt: time.Now().UTC(),
			}
			if err := deps.Store.SaveSnapshot(snap); err != nil {
				deps.Logger.Warn("snapshot_save_failed", "section", section, "error", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}
}

// ExportRequest is the structured argument of the export operation. An empty
// destination means the user cancelled the destination dialog in the GUI
// shell.
type ExportRequest struct {
	Kind        string            `json:"kind"`
	Section     string            `json:"section"`
	Params      map[string]string `json:"params"`
	ChartPNG    string            `json:"chart_png,omitempty"` // base64
	Destination string            `json:"destination"`
}

// destinationPrompter satisfies the coordinator's Prompter with the
// destination the GUI dialog already produced.
type destinationPrompter struct {
	path string
}

func (p destinationPrompter) Destination(_ exporter.Job, _ string) (string, bool, error) {
	if p.path == "" {
		return "", false, nil
	}
	return p.path, true, nil
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid request body: %v", err)
			return
		}

		kind, err := exporter.ParseKind(req.Kind)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "%v", err)
			return
		}
		section, err := exporter.ParseSection(req.Section)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "%v", err)
			return
		}

		var chart []byte
		if req.ChartPNG != "" {
			chart, err = base64.StdEncoding.DecodeString(req.ChartPNG)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request", "chart_png is not valid base64: %v", err)
				return
			}
		}

		job := exporter.Job{
			ID:      uuid.NewString(),
			Kind:    kind,
			Section: section,
			Params:  req.Params,
			Chart:   chart,
		}

		res, err := deps.Exporter.RunWithPrompter(r.Context(), job, destinationPrompter{path: req.Destination})
		if err != nil {
			exportsTotal.WithLabelValues(req.Kind, req.Section, "error").Inc()
			writeComponentError(w, err)
			return
		}
		if res.Cancelled {
			exportsTotal.WithLabelValues(req.Kind, req.Section, "cancelled").Inc()
			writeJSON(w, map[string]any{"cancelled": true})
			return
		}
		exportsTotal.WithLabelValues(req.Kind, req.Section, "success").Inc()
		writeJSON(w, map[string]any{"path": res.Path})
	}
}

func handleOpen(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			httpError(w, http.StatusBadRequest, "invalid_request", "path is required")
			return
		}
		if err := deps.OpenPath(req.Path); err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "%v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func handleGetCredentials(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := deps.Keys.Load()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "loading credentials: %v", err)
			return
		}
		writeJSON(w, keys)
	}
}

func handlePutCredentials(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		var keys config.APIKeys
		if err := json.NewDecoder(r.Body).Decode(&keys); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid request body: %v", err)
			return
		}
		if err := deps.Keys.Save(keys); err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "saving credentials: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// InvokeRequest runs one arbitrary worker script.
type InvokeRequest struct {
	Script string   `json:"script"`
	Args   []string `json:"args"`
}

func handleInvoke(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		var req InvokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid request body: %v", err)
			return
		}
		if req.Script == "" {
			httpError(w, http.StatusBadRequest, "invalid_request", "script is required")
			return
		}

		res, err := deps.Invoker.Invoke(r.Context(), req.Script, req.Args)
		if err != nil {
			invocationsTotal.WithLabelValues("error").Inc()
			writeComponentError(w, err)
			return
		}
		invocationsTotal.WithLabelValues("success").Inc()
		writeJSON(w, map[string]string{"stdout": res.Stdout})
	}
}

func handleSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		section, err := exporter.ParseSection(chi.URLParam(r, "section"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "%v", err)
			return
		}

		snap, err := deps.Store.LatestSnapshot(string(section))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "no snapshot for %s", section)
				return
			}
			httpError(w, http.StatusInternalServerError, "internal", "%v", err)
			return
		}

		writeJSON(w, map[string]any{
			"section":    snap.Section,
			"fetched_at": snap.FetchedAt.Format(time.RFC3339),
			"payload":    json.RawMessage(snap.Payload),
		})
	}
}

func handleRecentExports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		recs, err := deps.Store.RecentExports(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal", "%v", err)
			return
		}
		if recs == nil {
			recs = []storage.ExportRecord{}
		}

		type entry struct {
			ID          string `json:"id"`
			Kind        string `json:"kind"`
			Section     string `json:"section"`
			Symbol      string `json:"symbol,omitempty"`
			Destination string `json:"destination"`
			Bytes       int64  `json:"bytes"`
			CreatedAt   string `json:"created_at"`
		}
		out := make([]entry, len(recs))
		for i, rec := range recs {
			out[i] = entry{
				ID:          rec.ID,
				Kind:        rec.Kind,
				Section:     rec.Section,
				Symbol:      rec.Symbol,
				Destination: rec.Destination,
				Bytes:       rec.ArtifactBytes,
				CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, out)
	}
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Supervisor.Status()
		writeJSON(w, map[string]any{
			"service_state":     st.State.String(),
			"service_pid":       st.PID,
			"service_reachable": deps.Service.IsRunning(r.Context()),
		})
	}
}

// writeComponentError maps the component error taxonomy onto the uniform
// wire shape. The distinctions matter to callers: a worker that never ran, a
// worker that failed, and a worker that ran but misbehaved all read
// differently in the GUI.
func writeComponentError(w http.ResponseWriter, err error) {
	var spawnErr *invoker.SpawnError
	var workerErr *invoker.WorkerError
	var contractErr *exporter.ContractError

	switch {
	case errors.Is(err, exporter.ErrDisabled):
		httpError(w, http.StatusBadRequest, "export_disabled", "%v", err)
	case errors.Is(err, exporter.ErrUnsupported):
		httpError(w, http.StatusBadRequest, "unsupported_operation", "%v", err)
	case errors.As(err, &spawnErr):
		httpError(w, http.StatusInternalServerError, "spawn_failure", "%v", spawnErr)
	case errors.As(err, &workerErr):
		httpError(w, http.StatusInternalServerError, "worker_failure", "%v", workerErr)
	case errors.As(err, &contractErr):
		httpError(w, http.StatusInternalServerError, "contract_violation", "%v", contractErr)
	case errors.Is(err, service.ErrUnavailable):
		httpError(w, http.StatusBadGateway, "service_unavailable", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "internal", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
