package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/aether/internal/api"
	"github.com/kalambet/aether/internal/cache"
	"github.com/kalambet/aether/internal/config"
	"github.com/kalambet/aether/internal/orchestrator"
	"github.com/kalambet/aether/internal/provider"
	"github.com/kalambet/aether/internal/storage"
	"github.com/kalambet/aether/internal/worker"
)

const (
	shutdownTimeout     = 5 * time.Second
	defaultPollInterval = 500 * time.Millisecond
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the aether server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running aether server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aether server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "aether.pid")
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

// parseDuration reads a duration from config, falling back to def with a
// warning when the value is empty or malformed.
func parseDuration(name, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", name, "value", value, "default", def)
		return def
	}
	return d
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "aether version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()

	responseCache := cache.Open(ctx, cache.Options{RedisURL: cfg.Cache.RedisURL, Logger: logger})
	defer responseCache.Close()

	registry, err := provider.FromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("configuring providers: %w", err)
	}

	orch := orchestrator.New(orchestrator.Deps{
		Cache:       responseCache,
		Registry:    registry,
		Logger:      logger,
		CallTimeout: parseDuration("providers.call_timeout", cfg.Providers.CallTimeout, orchestrator.DefaultCallTimeout),
	})

	handler := api.NewHandler(api.Deps{
		Orchestrator: orch,
		Store:        store,
		Token:        apiToken,
		RateLimit:    api.RateLimitConfig{RequestsPerSecond: cfg.API.RateLimit, Burst: cfg.API.RateBurst},
		Logger:       logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pollInterval := parseDuration("worker.poll_interval", cfg.Worker.PollInterval, defaultPollInterval)
	pageWorker := worker.NewWorker(store, orch, pollInterval, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "aether listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		pageWorker.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Orchestrator: orch, Store: store, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		logger.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("aether is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop aether (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to aether (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	printStatus("Default provider", "%s", cfg.Providers.Default)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)

	client, err := newAPIClient()
	if err != nil {
		printStatus("Server", "unknown (%v)", err)
		return nil
	}
	client.httpClient.Timeout = 2 * time.Second

	health, err := fetchHealth(context.Background(), client)
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	printStatus("Server", "%s on port %d", health.Status, cfg.Server.Port)
	printStatus("Cache", "%s", health.Cache)
	printStatus("Providers", "%s", strings.Join(health.Providers, ", "))
	if health.Store != nil {
		printStatus("Sessions", "%d", health.Store.Sessions)
		printStatus("Pages", "%d (%d summaries queued)", health.Store.Pages, health.Store.PendingJobs)
	}
	return nil
}

type healthInfo struct {
	Status    string         `json:"status"`
	Cache     string         `json:"cache"`
	Providers []string       `json:"providers"`
	Store     *storage.Stats `json:"store"`
}

// fetchHealth reads /health. A degraded server answers 503 with the same
// body, which is still reported.
func fetchHealth(ctx context.Context, client *apiClient) (healthInfo, error) {
	resp, err := client.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return healthInfo{}, err
	}
	defer resp.Body.Close()
	var h healthInfo
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return healthInfo{}, fmt.Errorf("decoding health: %w", err)
	}
	return h, nil
}
