package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"drasimcp/internal/bootstrap"
	"drasimcp/internal/config"
	"drasimcp/internal/drasi"
	"drasimcp/internal/ingest"
	"drasimcp/internal/mcpserver"
	"drasimcp/internal/store"
	"drasimcp/internal/syncpoint"
	"drasimcp/pkg/logging"
)

// ShutdownGrace bounds how long in-flight requests may finish once a
// stop has been requested.
const ShutdownGrace = 5 * time.Second

// Config carries the command-line level settings for one run.
type Config struct {
	// Debug enables debug-level logging.
	Debug bool

	// Silent discards all log output.
	Silent bool

	// ConfigPath overrides the configuration directory. Empty means
	// config.GetDefaultConfigPath().
	ConfigPath string

	// Version is the build version reported to MCP clients.
	Version string
}

// Application wires the reaction's components around one shared store:
// the change-event listener feeding it, the bootstrap initializer
// seeding it, and the MCP listener with its notifier serving it.
type Application struct {
	cfg config.ReactionConfig

	store        *store.Store
	syncPoints   *syncpoint.Manager
	initializer  *bootstrap.Initializer
	ingestServer *ingest.Server
	registry     *mcpserver.Registry
	mcpServer    *mcpserver.Server
	notifier     *mcpserver.Notifier
	watcher      *config.DriftWatcher
}

// NewApplication creates and initializes a new application instance.
// This performs the complete bootstrap sequence short of serving:
//
//  1. Configure logging based on the debug and silent flags
//  2. Load and validate the reaction configuration
//  3. Wire all components
//
// Configuration and validation failures are returned as their typed
// errors so cmd can map them to the configuration exit code.
func NewApplication(cliCfg Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cliCfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if cliCfg.Silent {
		logOutput = io.Discard
	}
	logging.InitForCLI(appLogLevel, logOutput)

	configPath := cliCfg.ConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("App", err, "Failed to load reaction configuration from %s", configPath)
		return nil, err
	}

	st := store.New(cfg.ReactionName)
	syncPoints := syncpoint.NewManager()

	initializer := bootstrap.NewInitializer(bootstrap.InitializerConfig{
		Store:      st,
		SyncPoints: syncPoints,
		Management: drasi.NewManagementClient(drasi.ManagementClientConfig{BaseURL: cfg.ManagementURL}),
		Views:      drasi.NewViewClient(drasi.ViewClientConfig{BaseURL: cfg.ViewServiceURL}),
	})

	ingestServer := ingest.NewServer(cfg.AppPort, ingest.NewHandler(st, syncPoints, cfg.Queries))

	registry := mcpserver.NewRegistry(mcpserver.RegistryConfig{})
	dispatcher := mcpserver.NewDispatcher(st, cfg.Queries, cfg.ReactionName, cliCfg.Version)
	mcpServer := mcpserver.NewServer(cfg.MCPServerPort, dispatcher, registry, cfg.ReactionName, cliCfg.Version)
	notifier := mcpserver.NewNotifier(st, registry)

	watcher := config.NewDriftWatcher(configPath, config.ResolveQueryDir(configPath, cfg.QueryConfigDir))

	return &Application{
		cfg:          cfg,
		store:        st,
		syncPoints:   syncPoints,
		initializer:  initializer,
		ingestServer: ingestServer,
		registry:     registry,
		mcpServer:    mcpServer,
		notifier:     notifier,
		watcher:      watcher,
	}, nil
}

// ReactionConfig exposes the loaded configuration.
func (a *Application) ReactionConfig() config.ReactionConfig {
	return a.cfg
}

// Run executes the reaction until the context is cancelled or a
// listener fails. The method blocks; a nil return means a clean
// shutdown.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// The change-event listener starts before the bootstrap so the
	// transport can connect immediately. Envelopes for queries that are
	// still bootstrapping are deferred with 503 and redelivered.
	g.Go(func() error {
		if err := a.ingestServer.Start(); err != nil {
			return fmt.Errorf("change-event listener failed: %w", err)
		}
		return nil
	})

	if err := a.initializer.InitializeAll(gctx, a.cfg.Queries); err != nil {
		logging.Error("App", err, "Bootstrap failed")
		a.stopListeners()
		// A listener crash cancels the bootstrap; in that case the crash
		// is the real failure.
		if werr := g.Wait(); werr != nil {
			err = werr
		}
		a.close()
		return err
	}

	sdNotify(daemon.SdNotifyReady)
	logging.Info("App", "Reaction %s ready: %d queries initialized, events on :%d, MCP on :%d",
		a.cfg.ReactionName, len(a.cfg.Queries), a.cfg.AppPort, a.cfg.MCPServerPort)

	g.Go(func() error {
		if err := a.mcpServer.Start(); err != nil {
			return fmt.Errorf("MCP listener failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.notifier.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sdNotify(daemon.SdNotifyStopping)
		a.stopListeners()
		return nil
	})

	if err := a.watcher.Start(); err != nil {
		logging.Warn("App", "Config drift watcher failed to start: %v", err)
	}

	err := g.Wait()
	a.close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info("App", "Reaction %s stopped", a.cfg.ReactionName)
	return nil
}

// stopListeners shuts both HTTP servers down within the grace window.
// Shutting down a listener that never started is a no-op.
func (a *Application) stopListeners() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()

	if err := a.mcpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("App", "MCP listener shutdown: %v", err)
	}
	if err := a.ingestServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("App", "Change-event listener shutdown: %v", err)
	}
}

// close releases background resources once the run group has drained.
func (a *Application) close() {
	if err := a.watcher.Stop(); err != nil {
		logging.Warn("App", "Config drift watcher stop: %v", err)
	}
	a.registry.Stop()
	a.store.Close()
}

// sdNotify reports lifecycle state to systemd. Outside systemd the call
// is a silent no-op.
func sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logging.Debug("App", "sd_notify %s failed: %v", state, err)
	}
}
