package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/api"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/browser"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/history"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/journal"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/logging"
	mcpserver "github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/mcp"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/packager"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/recorder"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath   string
	workspaceDir string
	noWorkspace  bool
	ssePort      int
	listen       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ecourts-fetcher",
		Short: "Case-status and cause-list fetcher for the eCourts portal",
		Long: `ecourts-fetcher drives the eCourts portal in a headless browser and
exposes the captcha-gated searches over HTTP (and optionally MCP).

Every search is two calls: init returns a captcha image, submit sends its text.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, false)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "explicit config file (overrides workspace config)")
	root.PersistentFlags().StringVar(&opts.workspaceDir, "workspace-dir", "", "workspace root containing .ecourts/ (skips discovery)")
	root.PersistentFlags().BoolVar(&opts.noWorkspace, "no-workspace", false, "disable .ecourts/ workspace discovery")
	root.PersistentFlags().IntVar(&opts.ssePort, "sse-port", 0, "serve MCP over SSE on this port (overrides config)")
	root.PersistentFlags().StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides config)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, false)
		},
	}

	mcpStdio := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the fetch tools over MCP stdio instead of HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, true)
		},
	}

	initConfig := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Create a .ecourts/ workspace with a template config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := config.InitWorkspace(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workspace created at %s\n", filepath.Join(dir, config.WorkspaceDirName))
			return nil
		},
	}

	root.AddCommand(serve, mcpStdio, initConfig)
	return root
}

func loadConfig(opts *options) (config.Config, string, error) {
	cfg, wsDir, err := config.LoadWithWorkspace(opts.configPath, config.WorkspaceOptions{
		Disable:     opts.noWorkspace,
		ExplicitDir: opts.workspaceDir,
	})
	if err != nil {
		return cfg, wsDir, err
	}
	if opts.ssePort != 0 {
		cfg.MCP.SSEPort = opts.ssePort
	}
	if opts.listen != "" {
		cfg.Server.Listen = opts.listen
	}
	return cfg, wsDir, nil
}

// app holds everything runServe wires together so it can be torn down in order.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	launcher *browser.Launcher
	store    *session.Store
	journal  *journal.Journal
	history  *history.SQLiteStore
	recorder *recorder.Recorder
	svc      *workflow.Service
}

func buildApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	var observers []session.Observer

	j, err := journal.New(cfg.Journal, log.Named("journal"))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	a.journal = j
	if cfg.Journal.Enable {
		observers = append(observers, j)
	}

	if cfg.History.Enable {
		if cfg.History.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.History.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("creating history dir: %w", err)
			}
		}
		hist, err := history.NewSQLiteStore(cfg.History.DSN, log.Named("history"))
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		a.history = hist
		observers = append(observers, hist)
	}

	if cfg.Trace.Enable {
		rec, err := recorder.NewRecorder(cfg.Trace, log.Named("trace"))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("trace recorder: %w", err)
		}
		a.recorder = rec
		observers = append(observers, rec)
	}

	a.launcher = browser.NewLauncher(cfg.Browser, log.Named("browser"))
	if err := a.launcher.Start(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	a.store = session.NewStore(a.launcher,
		session.WithIdleTimeout(cfg.Session.IdleExpiry()),
		session.WithLogger(log.Named("session")),
		session.WithObservers(observers...),
	)

	client := &http.Client{Timeout: cfg.Download.RequestTimeout()}
	a.svc = workflow.NewService(cfg, workflow.Deps{
		Store:      a.store,
		Downloader: packager.NewDownloader(cfg.Download, client, log.Named("download")),
		Renderer:   a.launcher,
		Logger:     log.Named("workflow"),
	})
	return a, nil
}

// close releases sessions before the browser they live in.
func (a *app) close() {
	if a.store != nil {
		a.store.Shutdown()
	}
	if a.launcher != nil {
		if err := a.launcher.Shutdown(); err != nil {
			a.log.Warn("browser shutdown", zap.Error(err))
		}
	}
	if a.recorder != nil {
		_ = a.recorder.Close()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
}

func runServe(parent context.Context, opts *options, stdio bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, wsDir, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Logging, "ecourts")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if wsDir != "" {
		log.Info("using workspace", zap.String("dir", wsDir))
	}

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.close()

	mcpSrv, err := mcpserver.NewServer(cfg, a.svc, a.journal, log.Named("mcp"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.store.Run(gctx, cfg.Session.SweepEvery())
		return nil
	})

	if stdio {
		log.Info("starting MCP stdio server")
		g.Go(func() error {
			err := mcpSrv.Start(gctx)
			stop()
			return err
		})
		return ignoreCanceled(g.Wait())
	}

	if cfg.MCP.SSEPort > 0 {
		log.Info("starting MCP SSE server", zap.Int("port", cfg.MCP.SSEPort))
		g.Go(func() error { return mcpSrv.StartSSE(gctx, cfg.MCP.SSEPort) })
	}

	deps := api.Deps{Browser: a.launcher, Logger: log.Named("api")}
	if a.history != nil {
		deps.History = a.history
	}
	if a.journal.Ready() {
		deps.Leaks = a.journal
	}
	e := api.NewServer(cfg.Server, api.NewHandler(a.svc, cfg.Server.Version, deps), log.Named("http"))

	g.Go(func() error {
		log.Info("starting HTTP API", zap.String("listen", cfg.Server.Listen))
		if err := e.Start(cfg.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down HTTP API")
		return e.Shutdown(shutdownCtx)
	})

	return ignoreCanceled(g.Wait())
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
