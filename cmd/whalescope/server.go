package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/whalescope/whalescope/internal/config"
	"github.com/whalescope/whalescope/internal/env"
	"github.com/whalescope/whalescope/internal/exporter"
	"github.com/whalescope/whalescope/internal/gateway"
	"github.com/whalescope/whalescope/internal/invoker"
	"github.com/whalescope/whalescope/internal/service"
	"github.com/whalescope/whalescope/internal/storage"
	"github.com/whalescope/whalescope/internal/supervisor"
)

// maxGatewayConns bounds concurrent gateway connections. The only legitimate
// client is the dashboard shell on the same machine.
const maxGatewayConns = 64

const serviceReadyTimeout = 30 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the whalescope backend (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running whalescope backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whalescope system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "whalescope.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// noDialogPrompter is the coordinator's default prompter in server mode. The
// gateway always supplies the destination collected by the GUI dialog, so a
// job that somehow reaches the default prompter is treated as cancelled.
type noDialogPrompter struct{}

func (noDialogPrompter) Destination(exporter.Job, string) (string, bool, error) {
	return "", false, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "whalescope version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if cfg.DebugLogging() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	logger := slog.Default()

	token, err := config.EnsureToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing gateway token: %w", err)
	}
	slog.Info("gateway bearer token available")

	// Refuse a second instance: probe the gateway before claiming the PID
	// file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("whalescope is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("whalescope is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Resolve the Python runtime layout for this build mode.
	mode := env.Development
	if cfg.Runtime.Packaged {
		mode = env.Packaged
	}
	paths := env.Resolve(mode, cfg.Runtime.Root)
	if err := paths.CheckInterpreter(); err != nil {
		return fmt.Errorf("python runtime: %w", err)
	}
	printStep("python runtime: %s (%s mode)", paths.Interpreter, mode)

	// Start the analytics service and wait for it to answer.
	sup := supervisor.New(paths, cfg.Service.Script, logger)
	if err := sup.Start(); err != nil {
		return fmt.Errorf("starting analytics service: %w", err)
	}
	defer sup.Stop()

	svc := service.New(cfg.Service.BaseURL)
	if svc.WaitReady(ctx, serviceReadyTimeout, os.Stderr) {
		printSuccess("analytics service ready at %s", cfg.Service.BaseURL)
	} else {
		printWarning("analytics service not answering yet; data loads will fail until it is up")
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	inv := invoker.New(paths, logger)
	coordinator := exporter.NewCoordinator(inv, noDialogPrompter{}, store, logger)

	deps := gateway.Deps{
		Service:    svc,
		Exporter:   coordinator,
		Invoker:    inv,
		Supervisor: sup,
		Store:      store,
		Keys:       config.NewKeystore(cfg.Storage.DataDir),
		Token:      token,
		Logger:     logger,
	}
	handler := gateway.NewHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, maxGatewayConns)

	srv := &http.Server{Handler: handler}
	stdioSrv := server.NewStdioServer(gateway.NewMCPServer(deps))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "whalescope listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("whalescope is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop whalescope (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to whalescope (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	gatewayUp := false
	if err != nil {
		printStatus("Gateway", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			gatewayUp = true
			printStatus("Gateway", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Gateway", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// The analytics service answers on its own port; probe it directly too
	// so a wedged gateway does not hide a healthy service.
	svcResp, err := client.Get(cfg.Service.BaseURL)
	if err != nil {
		printStatus("Analytics service", "not answering at %s", cfg.Service.BaseURL)
	} else {
		svcResp.Body.Close()
		printStatus("Analytics service", "answering at %s", cfg.Service.BaseURL)
	}

	if gatewayUp {
		if c, err := newAPIClient(); err == nil {
			var st struct {
				ServiceState string `json:"service_state"`
				ServicePID   int    `json:"service_pid"`
			}
			statusResp, err := c.get(context.Background(), "/api/status")
			if err == nil && decodeJSON(statusResp, &st) == nil {
				printStatus("Supervised process", "%s (PID %d)", st.ServiceState, st.ServicePID)
			}
		}
	}

	printStatus("Service script", "%s", cfg.Service.Script)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
