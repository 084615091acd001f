package main

import (
	"context"
	"errors"
	"fmt"
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
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/void/internal/api"
	"github.com/kalambet/void/internal/chat"
	"github.com/kalambet/void/internal/config"
	"github.com/kalambet/void/internal/engine"
	"github.com/kalambet/void/internal/guard"
)

const shutdownTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the OpenAI-compatible server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd, withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running void server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine readiness and server state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "void.pid")
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

func serverURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// serverRunning probes the health endpoint of a server on port.
func serverRunning(ctx context.Context, port int) (bool, int) {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL(port)+"/health", nil)
	if err != nil {
		return false, 0
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, 0
	}
	resp.Body.Close()
	return true, resp.StatusCode
}

// newRouter serves the OpenAI-compatible API and the session history on one
// listener. Both sub-routers match on the full request path.
func newRouter(rt *runtime, sessions *chat.Sessions) http.Handler {
	chatHandler := api.NewOpenAIHandler(api.ChatDeps{
		Service:  rt.service,
		Sessions: sessions,
		Model:    modelName(rt.cfg),
	})
	historyHandler := api.NewHistoryHandler(api.HistoryDeps{
		Store:    rt.store,
		Sessions: sessions,
		Token:    rt.cfg.Server.APIToken,
	})

	r := chi.NewRouter()
	r.Handle("/sessions", historyHandler)
	r.Handle("/sessions/*", historyHandler)
	r.Handle("/*", chatHandler)
	return r
}

// modelName is the model reported to API clients.
func modelName(cfg config.Config) string {
	if cfg.Engine.Mode == config.ModeAPI {
		return cfg.Remote.Model
	}
	return strings.TrimSuffix(filepath.Base(cfg.Engine.ModelPath), filepath.Ext(cfg.Engine.ModelPath))
}

func runServer(cmd *cobra.Command, withMCP bool) error {
	fmt.Fprintf(stderr, "void version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cmd, guard.RoleServer, true)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	pidPath := pidFilePath(cfg.Storage.DataDir)
	if up, _ := serverRunning(ctx, cfg.Server.Port); up {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("void is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("void is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	if err := rt.checkLocal(); err != nil {
		printWarning("%s", engine.Describe(err))
	}

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	sessions := chat.NewSessions(rt.sessionTTL(), rt.memoryOptions())
	defer sessions.Close()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}

	srv := &http.Server{
		Handler:           newRouter(rt, sessions),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(stderr, "void listening on %s (engine: %s)\n", addr, cfg.Engine.Mode)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Service:  rt.service,
			Sessions: sessions,
			Store:    rt.store,
			Version:  version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			rt.logger.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				rt.logger.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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
		printError("void is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop void (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to void (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	printStatus("Mode", "%s", cfg.Engine.Mode)
	switch cfg.Engine.Mode {
	case config.ModeAPI:
		printStatus("Endpoint", "%s (model %s)", cfg.Remote.BaseURL, cfg.Remote.Model)
	default:
		var report strings.Builder
		if err := engine.CheckReady(engineRequest(cfg), cfg.Engine.DriverDir, &report); err != nil {
			printStatus("Engine", "not ready")
		} else {
			printStatus("Engine", "ready")
		}
		for _, line := range strings.Split(strings.TrimSpace(report.String()), "\n") {
			fmt.Fprintf(stderr, "    %s\n", line)
		}
	}

	up, code := serverRunning(ctx, cfg.Server.Port)
	switch {
	case !up:
		printStatus("Server", "stopped")
	case code == http.StatusOK:
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		printStatus("Server", "error (HTTP %d)", code)
	}

	if up && code == http.StatusOK {
		if client, err := newAPIClient(); err == nil {
			if n, err := countSessions(ctx, client, 100); err == nil {
				printStatus("Sessions", "%s", countLabel(n, 100))
			}
		}
	}

	if sample, err := guard.New(guard.RoleServer).Sample(); err == nil {
		printStatus("Host memory", "%.1f%% used", sample.MemoryUsedPercent)
	}
	printStatus("Memory budget", "%d characters", cfg.Memory.MaxChars)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
