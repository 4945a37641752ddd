package main

import (
	"context"
	"encoding/json"
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

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/kalambet/clauveo/internal/analysis"
	"github.com/kalambet/clauveo/internal/api"
	"github.com/kalambet/clauveo/internal/assistant"
	"github.com/kalambet/clauveo/internal/bridge"
	"github.com/kalambet/clauveo/internal/config"
	"github.com/kalambet/clauveo/internal/janitor"
	"github.com/kalambet/clauveo/internal/session"
	"github.com/kalambet/clauveo/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the clauveo daemon (foreground)",
	Long: `Start the clauveo daemon in the foreground.

The daemon serves the HTTP API on 127.0.0.1 and speaks MCP over stdio, so it
can be registered directly as an MCP server:

  clauveo start --mcp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running clauveo daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show clauveo status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP over stdin/stdout")
}

// stateDir holds the PID file. With an in-memory database there is no data
// dir, so the user cache dir is used instead.
func stateDir(cfg config.Config) string {
	if cfg.Storage.DataDir != ":memory:" {
		return cfg.Storage.DataDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "clauveo")
	}
	return filepath.Join(os.TempDir(), "clauveo-state")
}

func pidFilePath(cfg config.Config) string {
	return filepath.Join(stateDir(cfg), "clauveo.pid")
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

// parseDurationOr parses a config duration, falling back to def on bad input.
func parseDurationOr(key, value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", value, "default", def, "error", err)
		return def
	}
	return d
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "clauveo version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("clauveo is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("clauveo is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bridge.Detect(bridge.DetectConfig{
		Mode:        cfg.Assistant.Mode,
		Binary:      cfg.Assistant.Binary,
		Shell:       cfg.Assistant.Shell,
		SearchPaths: cfg.Assistant.SearchPaths,
	})
	if err != nil {
		return fmt.Errorf("selecting assistant strategy: %w", err)
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

	sessions := session.NewManager()

	opts := assistant.Options{
		ScratchRoot: cfg.Staging.ScratchRoot,
		Concurrency: cfg.Staging.Concurrency,
		Recorder:    store,
		Registry:    store,
	}
	if cfg.Session.MarkErrorOnFailure {
		opts.Reporter = sessions
	}
	orch := assistant.New(b, opts)

	if orch.Available() {
		slog.Info("assistant CLI available", "strategy", orch.Strategy(), "binary", cfg.Assistant.Binary)
	} else {
		slog.Warn("assistant CLI not reachable; requests will fail until it is installed",
			"strategy", orch.Strategy(), "binary", cfg.Assistant.Binary, "search_paths", cfg.Assistant.SearchPaths)
	}

	analyzer := analysis.NewHeuristic()

	appHandler := api.NewAppHandler(api.AppDeps{
		Sessions:     sessions,
		Assistant:    orch,
		Analyzer:     analyzer,
		Interactions: store,
		Token:        apiToken,
	})

	topRouter := chi.NewRouter()
	topRouter.Mount("/", appHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Handler:           api.WithCORS(topRouter, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	// Sweep scratch directories left behind by crashed or killed requests.
	worker := janitor.NewWorker(store, orch,
		parseDurationOr("janitor.interval", cfg.Janitor.Interval, time.Minute),
		parseDurationOr("janitor.max_age", cfg.Janitor.MaxAge, 10*time.Minute),
	)
	go worker.Run(ctx)

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Sessions:     sessions,
			Assistant:    orch,
			Analyzer:     analyzer,
			Interactions: store,
			Version:      version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "clauveo listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("clauveo is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop clauveo (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to clauveo (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	printStatus("Strategy", "%s", cfg.Assistant.Mode)
	printStatus("Binary", "%s", cfg.Assistant.Binary)

	client, err := newAPIClient()
	if err != nil {
		printStatus("Server", "unknown (%v)", err)
		return nil
	}
	if err := pingServer(ctx, client); err != nil {
		printStatus("Server", "stopped")
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	printStatus("Server", "running on port %d", cfg.Server.Port)

	var avail availability
	if resp, err := client.get(ctx, "/assistant/available"); err == nil {
		if decodeJSON(resp, &avail) == nil {
			state := "not found"
			if avail.Available {
				state = "available"
			}
			printStatus("Assistant", "%s (%s)", state, avail.Strategy)
		}
	}

	var s session.RecordingSession
	if resp, err := client.get(ctx, "/session"); err == nil {
		if decodeJSON(resp, &s) == nil {
			printStatus("Session", "%s (%s)", s.Status, s.ID)
		}
	}

	if resp, err := client.get(ctx, "/interactions?limit=100"); err == nil {
		var interactions []json.RawMessage
		if decodeJSON(resp, &interactions) == nil {
			printStatus("Interactions", "%s", countLabel(len(interactions), 100))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func pingServer(ctx context.Context, c *apiClient) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
