package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"seqthink/internal/config"
	"seqthink/internal/journal"
	"seqthink/internal/logging"
	"seqthink/internal/mcp"
	"seqthink/internal/thinking"
	"seqthink/internal/tools"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveTransport string
	serveAddr      string
	serveJournal   string
	serveNoRender  bool
)

// serveCmd runs the MCP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Run the sequential thinking MCP server.

Transports:
  stdio  newline-delimited JSON-RPC on stdin/stdout (default)
  sse    GET /sse event stream paired with POST /messages/?session_id=...
  http   POST /mcp with the JSON-RPC reply in the response body

Flags override the config file, which overrides the built-in defaults.
Environment: SEQTHINK_TRANSPORT, SEQTHINK_ADDR, SEQTHINK_LOG_LEVEL,
SEQTHINK_JOURNAL, DISABLE_THOUGHT_LOGGING.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveTransport, "transport", "t", "", "Transport: stdio, sse or http")
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address for sse/http")
	serveCmd.Flags().StringVar(&serveJournal, "journal", "", "Record accepted steps to this SQLite file")
	serveCmd.Flags().BoolVar(&serveNoRender, "no-render", false, "Do not log rendered thoughts")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Categories: cfg.Logging.Categories,
		Output:     os.Stderr,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, configPath, os.Stdin, os.Stdout)
}

// loadServeConfig resolves defaults, file, environment and flags, in that order.
func loadServeConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlagOverrides lays command-line flags over a loaded config. It runs at
// startup and again on every hot reload so flags keep winning.
func applyFlagOverrides(cfg *config.Config) {
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if serveAddr != "" {
		cfg.Server.Address = serveAddr
	}
	if serveJournal != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = serveJournal
	}
	if serveNoRender {
		cfg.Thinking.RenderThoughts = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// serve wires the processor, tool, journal and transport, and blocks until
// ctx is cancelled or the transport stops.
func serve(ctx context.Context, cfg *config.Config, cfgPath string, stdin io.Reader, stdout io.Writer) error {
	log := logging.Get(logging.CategoryBoot)

	formatter := thinking.NewFormatter(os.Stderr)
	formatter.SetColor(cfg.Thinking.Color)
	opts := []thinking.Option{
		thinking.WithFormatter(formatter),
		thinking.WithRenderThoughts(cfg.Thinking.RenderThoughts),
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()

		sessionID, err := j.StartSession(ctx, cfg.Name, cfg.Version, cfg.Server.Transport)
		if err != nil {
			return err
		}
		logging.Get(logging.CategoryJournal).With("session", sessionID).Info("Journal enabled at %s", j.Path())
		opts = append(opts, thinking.WithRecorder(j))
	}

	processor := thinking.NewProcessor(opts...)

	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewSequentialThinkingTool(processor))
	server := mcp.NewServer(cfg.Name, cfg.Version, registry)
	log.Debug("Registered %d tool(s): %s", registry.Count(), strings.Join(registry.Names(), ", "))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfgPath != "" {
		reloader := newReloader(cfg, processor)
		watcher, err := config.NewWatcher(cfgPath, reloader.Apply)
		if err != nil {
			log.Warn("Config hot reload disabled: %v", err)
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	logging.Boot("Starting %s %s (transport=%s, protocol=%s)", cfg.Name, cfg.Version, cfg.Server.Transport, mcp.ProtocolVersion)

	switch cfg.Server.Transport {
	case config.TransportStdio:
		g.Go(func() error {
			// EOF on stdin ends the whole server.
			defer cancel()
			return mcp.NewStdioTransport(server, stdin, stdout).Serve(gctx)
		})

	case config.TransportSSE:
		sse := mcp.NewSSETransport(server, cfg.Server.SSEPath, cfg.Server.MessagePath, cfg.GetKeepAlive())
		router := mcp.NewRouter(server, sse, routerOptions(cfg))
		g.Go(func() error {
			defer cancel()
			return mcp.ListenAndServe(gctx, cfg.Server.Address, router, cfg.GetShutdownTimeout(), sse.Close)
		})

	case config.TransportHTTP:
		router := mcp.NewRouter(server, mcp.NewHTTPTransport(server, cfg.Server.HTTPPath), routerOptions(cfg))
		g.Go(func() error {
			defer cancel()
			return mcp.ListenAndServe(gctx, cfg.Server.Address, router, cfg.GetShutdownTimeout())
		})

	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
	}

	err := g.Wait()
	log.Info("Server stopped (history=%d, branches=%d)", processor.HistoryLength(), len(processor.BranchIDs()))
	return err
}

func routerOptions(cfg *config.Config) mcp.RouterOptions {
	opts := mcp.RouterOptions{Debug: cfg.Logging.Level == "debug"}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	return opts
}

// reloader applies hot-reloaded configs. Watcher callbacks arrive from a
// single goroutine, so current needs no lock.
type reloader struct {
	current   *config.Config
	processor *thinking.Processor
}

func newReloader(cfg *config.Config, processor *thinking.Processor) *reloader {
	return &reloader{current: cfg, processor: processor}
}

// Apply overlays the command-line flags on next, applies the settings that can
// change without a restart and warns once about each change that cannot.
func (r *reloader) Apply(next *config.Config) {
	log := logging.Get(logging.CategoryConfig)

	applyFlagOverrides(next)

	if err := logging.SetLevel(next.Logging.Level); err != nil {
		log.Warn("Keeping log level: %v", err)
	}
	r.processor.SetRenderThoughts(next.Thinking.RenderThoughts)

	if next.Server != r.current.Server || next.Journal != r.current.Journal || next.Metrics != r.current.Metrics {
		log.Warn("Transport, journal or metrics settings changed; restart to apply")
	}
	r.current = next
	log.Info("Applied config reload (level=%s, render=%v)", next.Logging.Level, next.Thinking.RenderThoughts)
}
