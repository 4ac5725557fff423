// Command castled runs the castle capture service against a game host.
//
// Usage:
//
//	castled [run]             connect to the host and run until interrupted
//	castled setupdb           create or migrate the database schema and exit
//	castled history [castle]  print recorded captures and exit
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bastionmc/castles/internal/bridge"
	"github.com/bastionmc/castles/internal/cache"
	"github.com/bastionmc/castles/internal/capture"
	"github.com/bastionmc/castles/internal/castle"
	"github.com/bastionmc/castles/internal/config"
	"github.com/bastionmc/castles/internal/database"
	"github.com/bastionmc/castles/internal/dispatcher"
	"github.com/bastionmc/castles/internal/handlers"
	"github.com/bastionmc/castles/internal/influx"
	"github.com/bastionmc/castles/internal/logging"
	"github.com/bastionmc/castles/internal/monitor"
	intOtel "github.com/bastionmc/castles/internal/otel"
	"github.com/bastionmc/castles/internal/reward"
	"github.com/bastionmc/castles/internal/storage"
	"github.com/bastionmc/castles/internal/util"
	"github.com/bastionmc/castles/internal/warp"
	"github.com/bastionmc/castles/pkg/core"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"
)

// file paths
var (
	// ConfigDir holds castles.cfg.json. It is read from CASTLES_CONFIG_DIR.
	ConfigDir string = "."

	LogFilePath  string
	LogFile      *os.File
	OTelFilePath string
	OTelFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	settingsStore *config.SettingsStore
	registry      *castle.Registry
	factionCache  *cache.FactionCache

	// Services
	eventDispatcher *dispatcher.Dispatcher
	hostBridge      *bridge.Bridge
	engine          *capture.Engine
	warps           *warp.Scheduler
	handlerService  *handlers.Service
	monitorService  *monitor.Service
	influxManager   *influx.Manager
	dbManager       *database.Manager

	storageBackend storage.Backend
	persistWriter  *storage.Writer
)

func init() {
	if dir := os.Getenv("CASTLES_CONFIG_DIR"); dir != "" {
		ConfigDir = dir
	}

	// console logging until the config is read
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := loadConfig(); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", ConfigDir)
	}
}

func loadConfig() error {
	return config.Load(ConfigDir)
}

// initLogging opens the session log files and rebuilds the loggers from config.
func initLogging() error {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("error creating logs directory: %w", err)
	}

	LogFilePath = logging.LogFilePath(logsDir, logging.ServiceName, SessionStartTime)
	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	otelCfg := config.GetOTelConfig()
	providerCfg := intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		MetricInterval: config.GetMonitorConfig().Interval,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	}
	if otelCfg.Enabled {
		OTelFilePath = filepath.Join(logsDir, fmt.Sprintf("%s.%s.otel.jsonl", logging.ServiceName, SessionStartTime.Format("20060102_150405")))
		OTelFile, err = os.OpenFile(OTelFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("error creating OTel file: %w", err)
		}
		providerCfg.LogWriter = OTelFile
		providerCfg.MetricWriter = OTelFile
	}

	OTelProvider, err = intOtel.New(providerCfg)
	if err != nil {
		return fmt.Errorf("error setting up OTel: %w", err)
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGelfWriter(gl.Address)
		if err != nil {
			Logger.Warn("Failed to connect to Graylog", "address", gl.Address, "error", err)
		} else {
			extra = append(extra, logging.NewGelfHandler(w, config.GetString("logLevel")))
		}
	}

	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	SlogManager = logging.NewSlogManager().WithContext(tickContext)
	SlogManager.Setup(file, config.GetString("logLevel"), OTelProvider.LoggerProvider(), extra...)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	return nil
}

// tickContext adds the engine tick to every log record once the engine runs.
func tickContext() []slog.Attr {
	if engine == nil {
		return nil
	}
	return []slog.Attr{slog.Uint64("tick", engine.Ticks())}
}

func logWriters() []io.Writer {
	if LogFile == nil {
		return nil
	}
	return []io.Writer{LogFile}
}

// initCore builds the registry and host state cache from the gameplay settings.
func initCore() error {
	settings, err := config.GetSettings()
	if err != nil {
		return err
	}
	settingsStore = config.NewSettingsStore(settings)
	registry = castle.NewRegistry(settings.WildernessID)
	factionCache = cache.NewFactionCache(core.Faction{
		ID:            settings.WildernessID,
		Tag:           settings.WildernessTag,
		ComparisonTag: strings.ToLower(settings.WildernessTag),
	})
	return nil
}

// initServices wires the dispatcher, host bridge, capture engine, warps,
// handlers and monitor together.
func initServices() error {
	var err error
	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(componentLogger("dispatcher")))
	if err != nil {
		return fmt.Errorf("error creating dispatcher: %w", err)
	}

	bridgeCfg := config.GetBridgeConfig()
	hostBridge = bridge.New(bridge.Config{
		URL:            bridgeCfg.URL,
		Secret:         bridgeCfg.Secret,
		RequestTimeout: bridgeCfg.RequestTimeout,
	}, handlers.Route(eventDispatcher), SlogManager.Component("bridge"))

	engine, err = capture.NewEngine(capture.Dependencies{
		Registry: registry,
		Factions: factionCache,
		Blocks:   hostBridge,
		Messages: hostBridge,
		Rewards:  reward.NewDispatcher(hostBridge),
		Settings: settingsStore,
		Logger:   SlogManager.Component("capture"),
	})
	if err != nil {
		return fmt.Errorf("error creating capture engine: %w", err)
	}
	persistWriter = storage.NewWriter(storage.WriterDependencies{
		Backend:  storageBackend,
		Snapshot: registry.Records,
		Logger:   componentLogger("writer"),
	})
	persistWriter.Start()
	engine.Observe(persistWriter)
	engine.Observe(capture.ObserverFunc(func(ev core.CaptureEvent) {
		Logger.Info("Capture resolved",
			"castle", ev.Castle,
			"outcome", ev.Outcome,
			"faction", ev.FactionTag,
			"commands", len(ev.Commands))
	}))

	warps = warp.NewScheduler(warp.Dependencies{
		Timer:      warp.SystemTimer{},
		Teleporter: hostBridge,
		Messages:   hostBridge,
		WarmUp:     func() time.Duration { return settingsStore.Get().WarpWarmUp },
		Logger:     SlogManager.Component("warp"),
	})

	history, _ := storageBackend.(storage.History)
	handlerService = handlers.NewService(handlers.Dependencies{
		Registry: registry,
		Engine:   engine,
		Warps:    warps,
		State:    factionCache,
		Blocks:   hostBridge,
		Messages: hostBridge,
		Settings: settingsStore,
		History:  history,
		OnChange: persistWriter.RequestSave,
		Logger:   SlogManager.Component("handlers"),
	})
	handlerService.RegisterHandlers(eventDispatcher)
	Logger.Info("Handlers registered", "commands", len(eventDispatcher.Commands()))

	var sinks []monitor.Sink
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		influxManager = influx.NewManager(componentLogger("influx"), influxCfg)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := influxManager.Connect(ctx)
		cancel()
		if err != nil {
			Logger.Error("Failed to set up InfluxDB", "error", err)
			influxManager = nil
		} else {
			engine.Observe(influxManager)
			sinks = append(sinks, influxManager)
		}
	}

	monitorCfg := config.GetMonitorConfig()
	var backlog monitor.Backlog = persistWriter
	if b, ok := storageBackend.(monitor.Backlog); ok {
		backlog = b
	}
	monitorService = monitor.NewService(monitor.Dependencies{
		Registry:     registry,
		Factions:     factionCache,
		Ticks:        engine.Ticks,
		Online:       func() int { return len(factionCache.Online()) },
		PendingWarps: warps.Len,
		Backlog:      backlog,
		Sinks:        sinks,
		Dir:          monitorCfg.Dir,
		Interval:     monitorCfg.Interval,
		Logger:       SlogManager.Component("monitor"),
	})
	return nil
}

// connectBridge dials the host until it answers or ctx ends.
func connectBridge(ctx context.Context) {
	backoff := time.Second
	for {
		err := hostBridge.Connect()
		if err == nil {
			Logger.Info("Connected to host", "url", config.GetBridgeConfig().URL)
			return
		}
		Logger.Warn("Host connection failed, retrying", "error", err, "retryIn", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func run(ctx context.Context) error {
	if err := initServices(); err != nil {
		return err
	}
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}

	go connectBridge(ctx)
	engine.Run(ctx)

	shutdown()
	return nil
}

// shutdown stops services in reverse order and saves the registry.
func shutdown() {
	Logger.Info("Shutting down...")

	warps.CancelAll()
	monitorService.Stop()
	persistWriter.RequestSave()
	persistWriter.Close()

	if err := hostBridge.Close(); err != nil {
		Logger.Warn("Error closing host connection", "error", err)
	}
	eventDispatcher.Close()

	closeStorage()
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Error closing InfluxDB", "error", err)
		}
	}
	closeTelemetry()
}

func closeStorage() {
	if err := storageBackend.Close(); err != nil {
		Logger.Error("Error closing storage", "error", err)
	}
	if dbManager != nil {
		if err := dbManager.Close(); err != nil {
			Logger.Error("Error closing database", "error", err)
		}
	}
}

func closeTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Error flushing logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down OTel: %v\n", err)
		}
	}
	if OTelFile != nil {
		OTelFile.Close()
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

func printHistory(castleName string) error {
	history, ok := storageBackend.(storage.History)
	if !ok {
		return fmt.Errorf("storage %q does not keep capture history", config.GetStorageConfig().Type)
	}
	events, err := history.Captures(castleName, 50)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No captures recorded")
		return nil
	}
	for _, ev := range events {
		fmt.Printf("%s  %-16s %-10s %-16s %d commands\n",
			util.FormatDate(ev.Time), ev.Castle, ev.Outcome, ev.FactionTag, len(ev.Commands))
	}
	return nil
}

func main() {
	Logger.Info("Starting up...", "version", CurrentVersion, "build", BuildDate)

	if err := initLogging(); err != nil {
		Logger.Error("Failed to initialize logging", "error", err)
		os.Exit(1)
	}
	if err := initCore(); err != nil {
		Logger.Error("Invalid castle settings", "error", err)
		os.Exit(1)
	}
	if err := initStorage(); err != nil {
		os.Exit(1)
	}

	args := os.Args[1:]
	command := "run"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
	}

	var err error
	switch command {
	case "run":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = run(ctx)

	case "setupdb":
		if dbManager == nil {
			err = fmt.Errorf("storage.type %q has no database", config.GetStorageConfig().Type)
		} else {
			err = dbManager.Setup()
		}
		if err == nil {
			Logger.Info("DB setup complete.")
		}

	case "history":
		castleName := ""
		if len(args) > 1 {
			castleName = args[1]
		}
		err = printHistory(castleName)

	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}

	if command != "run" {
		closeStorage()
		closeTelemetry()
	}
	if err != nil {
		Logger.Error("Command failed", "command", command, "error", err)
		os.Exit(1)
	}
}
