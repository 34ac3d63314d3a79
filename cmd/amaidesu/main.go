// Command amaidesu is the process entrypoint: it loads configuration,
// assembles the event bus and every domain manager, starts them, and runs
// until an interrupt or terminate signal requests shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/audiostream"
	"github.com/Mai-with-u/amaidesu/internal/config"
	"github.com/Mai-with-u/amaidesu/internal/decision"
	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/extension"
	"github.com/Mai-with-u/amaidesu/internal/extension/emotionjudge"
	"github.com/Mai-with-u/amaidesu/internal/extension/obscontrol"
	"github.com/Mai-with-u/amaidesu/internal/health"
	"github.com/Mai-with-u/amaidesu/internal/input"
	"github.com/Mai-with-u/amaidesu/internal/input/pipelines"
	"github.com/Mai-with-u/amaidesu/internal/llm"
	"github.com/Mai-with-u/amaidesu/internal/mcp"
	"github.com/Mai-with-u/amaidesu/internal/mcp/mcphost"
	"github.com/Mai-with-u/amaidesu/internal/mcp/tools/diceroller"
	"github.com/Mai-with-u/amaidesu/internal/mcp/tools/fileio"
	"github.com/Mai-with-u/amaidesu/internal/mcp/tools/memorytool"
	"github.com/Mai-with-u/amaidesu/internal/memory"
	"github.com/Mai-with-u/amaidesu/internal/observe"
	"github.com/Mai-with-u/amaidesu/internal/output"
	"github.com/Mai-with-u/amaidesu/internal/prompt"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/registry"
	pkgmemory "github.com/Mai-with-u/amaidesu/pkg/memory"
	pgmemory "github.com/Mai-with-u/amaidesu/pkg/memory/postgres"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	healthAddr := flag.String("health-addr", ":8080", "address to serve /healthz and /readyz on")
	flag.Parse()

	if err := run(*configPath, *healthAddr); err != nil {
		slog.Error("amaidesu exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, healthAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	svc := config.NewService(cfg)

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: cfg.General.Name,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New(nil, logger)
	reg := registry.New(logger)
	input.RegisterProviders(reg)
	decision.RegisterProviders(reg)
	output.RegisterProviders(reg)

	llmMgr, err := llm.BuildFromConfig(svc, logger)
	if err != nil {
		return fmt.Errorf("building llm clients: %w", err)
	}

	promptMgr := prompt.New(svc.Get("general", "prompt_dir", "").(string), logger)
	sessionStore, pgStore, closeMemory, err := buildSessionStore(ctx, svc, logger)
	if err != nil {
		return fmt.Errorf("building memory backend: %w", err)
	}
	defer closeMemory()
	contextStore := memory.New(sessionStore, logger)
	audio := audiostream.New(logger)

	toolHost, err := buildToolHost(ctx, cfg, svc, pgStore, logger)
	if err != nil {
		return fmt.Errorf("building mcp tool host: %w", err)
	}
	defer func() {
		if err := toolHost.Close(); err != nil {
			logger.Warn("mcp tool host close error", "error", err)
		}
	}()

	provCtx := provider.Context{
		EventBus:      bus,
		ConfigService: svc,
		LLMService:    llmMgr,
		PromptService: promptMgr,
		AudioStream:   audio,
		ContextStore:  contextStore,
		ToolHost:      toolHost,
	}

	pipelineMgr := pipelines.BuildFromConfig(svc)
	inputMgr := input.NewManager(bus, pipelineMgr, logger)
	inputProviders, err := inputMgr.LoadFromConfig(svc, reg, provCtx)
	if err != nil {
		return fmt.Errorf("loading input providers: %w", err)
	}
	if err := inputMgr.StartAll(ctx, inputProviders); err != nil {
		return fmt.Errorf("starting input providers: %w", err)
	}

	decisionMgr := decision.NewManager(bus, reg, provCtx, logger)
	decisionDomain := decision.DecisionConfigFromTable(svc.GetSection("providers.decision"))
	providerCfg := svc.GetAllProviderConfigs("decision")[decisionDomain.ActiveProvider]
	if err := decisionMgr.Setup(ctx, "", providerCfg, decisionDomain); err != nil {
		return fmt.Errorf("setting up decision provider: %w", err)
	}

	outputMgr := output.NewManager(output.Config{ConcurrentRendering: true}, logger)
	outputProviders, err := outputMgr.LoadFromConfig(svc, reg, provCtx)
	if err != nil {
		return fmt.Errorf("loading output providers: %w", err)
	}
	if err := outputMgr.SetupAll(ctx, bus); err != nil {
		return fmt.Errorf("starting output providers: %w", err)
	}
	_ = outputProviders

	extMgr := extension.New(bus, logger)
	extMgr.Register(obscontrol.Name, obscontrol.New)
	extMgr.Register(emotionjudge.Name, emotionjudge.New)
	extensionsCfg := loadExtensionsConfig(svc)
	extResults, err := extMgr.LoadAll(ctx, extensionsCfg)
	if err != nil {
		return fmt.Errorf("loading extensions: %w", err)
	}
	for name, res := range extResults {
		if !res.Loaded {
			logger.Warn("extension failed to load", "name", name, "error", res.Err)
		}
	}

	healthHandler := health.New(health.Checker{
		Name: "event_bus",
		Check: func(context.Context) error {
			if bus.Closed() {
				return fmt.Errorf("event bus closed")
			}
			return nil
		},
	}).WithStats(func() any { return bus.AllStats() })
	mux := http.NewServeMux()
	healthHandler.Register(mux)
	handler := observe.Middleware(observe.DefaultMetrics())(mux)
	healthSrv := &http.Server{Addr: healthAddr, Handler: handler}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("amaidesu started",
		"input_providers", len(inputProviders),
		"decision_provider", decisionMgr.CurrentProvider(),
		"output_providers", outputMgr.Names(),
		"extensions", extMgr.LoadedNames(),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", "error", err)
	}
	extMgr.CleanupAll(shutdownCtx)
	if err := outputMgr.StopAll(shutdownCtx); err != nil {
		logger.Warn("output manager stop error", "error", err)
	}
	if err := inputMgr.StopAll(shutdownCtx); err != nil {
		logger.Warn("input manager stop error", "error", err)
	}

	logger.Info("amaidesu stopped")
	return nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case config.LogLevelDebug:
		slogLevel = slog.LevelDebug
	case config.LogLevelWarn:
		slogLevel = slog.LevelWarn
	case config.LogLevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}

// buildSessionStore constructs the session store backing the
// Context/Conversation service, selected by [memory] backend in config.
// "in_memory" (the default) returns a nil store, which internal/memory.New
// replaces with its own capped ring buffer. "postgres" dials
// pkg/memory/postgres and returns its Sessions() view, giving the decision
// layer durable transcript history and unlocking the notes store for
// internal/mcp/tools/memorytool. The returned closer must be deferred by
// the caller; it is a no-op for the in_memory backend.
func buildSessionStore(ctx context.Context, svc *config.Service, logger *slog.Logger) (pkgmemory.SessionStore, *pgmemory.Store, func(), error) {
	backend, _ := svc.Get("memory", "backend", "in_memory").(string)
	if backend != "postgres" {
		return nil, nil, func() {}, nil
	}

	dsn, _ := svc.Get("memory", "dsn", "").(string)
	if dsn == "" {
		return nil, nil, nil, fmt.Errorf("memory.backend=postgres requires memory.dsn")
	}
	dims := 1536
	if v, ok := svc.Get("memory", "embedding_dimensions", int64(0)).(int64); ok && v > 0 {
		dims = int(v)
	}

	store, err := pgmemory.New(ctx, dsn, dims)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to postgres memory store: %w", err)
	}
	logger.Info("memory backend connected", "backend", "postgres")
	return store.Sessions(), store, store.Close, nil
}

// buildToolHost constructs the in-process MCP tool host: built-in tools
// always (diceroller and fileio; memorytool only when pgStore is present,
// since the notes store has no in-memory implementation), plus any
// external MCP servers listed in the [mcp] config_file sub-document.
func buildToolHost(ctx context.Context, cfg *config.Config, svc *config.Service, pgStore *pgmemory.Store, logger *slog.Logger) (*mcphost.Host, error) {
	h := mcphost.New()

	baseDir, _ := svc.Get("mcp", "fileio_base_dir", "./data").(string)
	builtin := fileio.NewTools(baseDir)
	builtin = append(builtin, diceroller.Tools()...)
	if pgStore != nil {
		builtin = append(builtin, memorytool.NewTools(pgStore.Sessions(), pgStore.Notes())...)
	}
	if err := h.RegisterBuiltins(builtin); err != nil {
		return nil, fmt.Errorf("registering built-in tools: %w", err)
	}

	servers, err := config.LoadMCPServers(cfg.MCP.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading mcp server list: %w", err)
	}
	for _, server := range servers {
		err := h.RegisterServer(ctx, mcp.ServerConfig{
			Name:      server.Name,
			Transport: mcp.Transport(server.Transport),
			Command:   server.Command,
			URL:       server.URL,
			Env:       server.Env,
		})
		if err != nil {
			// A dead external server costs its tools, not the process.
			logger.Warn("mcp server registration failed", "server", server.Name, "error", err)
		}
	}
	return h, nil
}

// loadExtensionsConfig returns the per-extension config tables under
// [extensions.<name>], keyed by name.
func loadExtensionsConfig(svc *config.Service) map[string]map[string]any {
	out := make(map[string]map[string]any)
	section := svc.GetSection("extensions")
	for name, raw := range section {
		if m, ok := raw.(map[string]any); ok {
			out[name] = m
		}
	}
	return out
}
