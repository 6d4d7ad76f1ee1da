package exporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/whalescope/whalescope/internal/invoker"
	"github.com/whalescope/whalescope/internal/storage"
)

// Prompter asks the user for a destination path. ok=false means the user
// cancelled, which is a first-class result, not an error.
type Prompter interface {
	Destination(job Job, defaultName string) (path string, ok bool, err error)
}

// HistoryRecorder persists completed exports. Optional.
type HistoryRecorder interface {
	RecordExport(rec storage.ExportRecord) error
}

// Result is the outcome of a completed (or cancelled) export.
type Result struct {
	Cancelled bool
	Path      string
}

// Coordinator drives the export pipeline. Steps are strictly sequential per
// job; different jobs share no mutable state and may run concurrently.
type Coordinator struct {
	runner   invoker.Runner
	prompter Prompter
	history  HistoryRecorder
	logger   *slog.Logger

	// open launches the host viewer; replaced in tests.
	open func(path string) error
	// verify checks a produced artifact beyond existence; replaced in tests.
	verify func(kind Kind, path string) error
	// tempDir receives chart images; os.TempDir unless overridden.
	tempDir string
}

func NewCoordinator(runner invoker.Runner, prompter Prompter, history HistoryRecorder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		runner:   runner,
		prompter: prompter,
		history:  history,
		logger:   logger,
		open:     openWithViewer,
		verify:   verifyArtifact,
		tempDir:  os.TempDir(),
	}
}

// Run executes one export job. The step order is load-bearing: the
// destination prompt precedes worker selection and invocation, so a
// cancelled prompt never spawns a process or touches the filesystem.
func (c *Coordinator) Run(ctx context.Context, job Job) (Result, error) {
	return c.RunWithPrompter(ctx, job, c.prompter)
}

// RunWithPrompter runs a job with a caller-supplied prompter. Remote callers
// collect the destination on their side and pass it through here.
func (c *Coordinator) RunWithPrompter(ctx context.Context, job Job, prompter Prompter) (Result, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	dest, ok, err := prompter.Destination(job, job.DefaultFilename())
	if err != nil {
		return Result{}, fmt.Errorf("destination prompt: %w", err)
	}
	if !ok {
		c.logger.Info("export_cancelled", "job", job.ID, "section", job.Section)
		return Result{Cancelled: true}, nil
	}

	spec, err := selectWorker(job)
	if err != nil {
		return Result{}, err
	}

	var chartPath string
	if spec.acceptChart && len(job.Chart) > 0 {
		chartPath, err = c.writeChart(job.Chart)
		if err != nil {
			return Result{}, fmt.Errorf("writing chart image: %w", err)
		}
		defer os.Remove(chartPath)
	}

	res, err := c.runner.Invoke(ctx, spec.script, spec.args(job.Params, chartPath))
	if err != nil {
		return Result{}, err
	}

	artifact := res.Stdout
	if artifact == "" {
		return Result{}, &ContractError{Script: spec.script, Reason: "no artifact path on stdout"}
	}
	if _, err := os.Stat(artifact); err != nil {
		return Result{}, &ContractError{Script: spec.script, Reason: fmt.Sprintf("stdout %q is not a readable artifact: %v", artifact, err)}
	}
	if err := c.verify(job.Kind, artifact); err != nil {
		return Result{}, &ContractError{Script: spec.script, Reason: err.Error()}
	}

	// Copy, never move: the temp artifact and the destination may live on
	// different devices.
	size, err := copyFile(artifact, dest)
	if err != nil {
		return Result{}, fmt.Errorf("copying artifact to %s: %w", dest, err)
	}

	// Opening the destination is a side effect; its failure is not an
	// export failure.
	go func() {
		if err := c.open(dest); err != nil {
			c.logger.Warn("open_destination_failed", "path", dest, "error", err)
		}
	}()

	if c.history != nil {
		rec := storage.ExportRecord{
			ID:            job.ID,
			Kind:          job.Kind.String(),
			Section:       string(job.Section),
			Symbol:        job.Symbol(),
			Destination:   dest,
			ArtifactBytes: size,
			CreatedAt:     time.Now().UTC(),
		}
		if err := c.history.RecordExport(rec); err != nil {
			c.logger.Warn("export_history_failed", "job", job.ID, "error", err)
		}
	}

	c.logger.Info("export_complete",
		"job", job.ID,
		"kind", job.Kind.String(),
		"section", job.Section,
		"destination", dest,
		"bytes", size,
	)
	return Result{Path: dest}, nil
}

// writeChart puts the rendered chart image into a collision-free temp file.
// The name embeds a nanosecond timestamp plus a random suffix so concurrent
// exports within the same clock tick still get distinct files.
func (c *Coordinator) writeChart(png []byte) (string, error) {
	name := fmt.Sprintf("whalescope_chart_%d_%s.png",
		time.Now().UnixNano(), uuid.NewString()[:8])
	path := filepath.Join(c.tempDir, name)
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return 0, err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return 0, err
	}
	return n, nil
}

// verifyArtifact sanity-checks the produced file. CSV is taken as-is; a PDF
// that the reader cannot open means the worker emitted a broken document.
func verifyArtifact(kind Kind, path string) error {
	if kind != PDF {
		return nil
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("produced PDF is not readable: %v", err)
	}
	defer f.Close()
	if r.NumPage() < 1 {
		return fmt.Errorf("produced PDF has no pages")
	}
	return nil
}
