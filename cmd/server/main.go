package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safesite-labs/ppe-gate-monitor/internal/auth"
	"github.com/safesite-labs/ppe-gate-monitor/internal/camera"
	"github.com/safesite-labs/ppe-gate-monitor/internal/capture"
	"github.com/safesite-labs/ppe-gate-monitor/internal/config"
	"github.com/safesite-labs/ppe-gate-monitor/internal/detector"
	"github.com/safesite-labs/ppe-gate-monitor/internal/eventlog"
	"github.com/safesite-labs/ppe-gate-monitor/internal/logger"
	"github.com/safesite-labs/ppe-gate-monitor/internal/metrics"
	"github.com/safesite-labs/ppe-gate-monitor/internal/monitor"
	"github.com/safesite-labs/ppe-gate-monitor/internal/policy"
	"github.com/safesite-labs/ppe-gate-monitor/internal/relay"
	"github.com/safesite-labs/ppe-gate-monitor/internal/watcher"
)

var (
	// Command-line flags
	configPath   = flag.String("config", "", "Path to YAML config file")
	httpAddr     = flag.String("http", "", "HTTP server address (overrides config)")
	metricsAddr  = flag.String("metrics", "", "Metrics server address (overrides config)")
	cameraURL    = flag.String("camera", "", "Camera MJPEG stream URL (overrides config)")
	inferenceURL = flag.String("inference", "", "Inference service URL (overrides config)")
	simulate     = flag.Bool("simulate", false, "Force the simulated relay")
	logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor     = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpAddr != "" {
		cfg.Addr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *cameraURL != "" {
		cfg.CameraURL = *cameraURL
	}
	if *inferenceURL != "" {
		cfg.InferenceURL = *inferenceURL
	}
	if *simulate {
		cfg.Relay.Simulate = true
	}

	logger.Info("Main", "PPE gate monitor starting...")
	logger.Info("Main", "Log level: %s", level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Activity log, optionally mirrored to a JSONL file.
	var events *eventlog.Log
	if cfg.EventLogFile != "" {
		events, err = eventlog.NewWithFile(cfg.EventLogCapacity, cfg.EventLogFile)
		if err != nil {
			log.Fatalf("Failed to open event log file: %v", err)
		}
		defer events.Close()
	} else {
		events = eventlog.New(cfg.EventLogCapacity)
	}

	// Relay: GPIO on the gate hardware, simulation elsewhere.
	var gate relay.Controller
	if cfg.Relay.Simulate {
		logger.Warn("Main", "Running with SIMULATED relay (no GPIO control)")
		gate = relay.NewSim()
	} else {
		gate, err = relay.NewGPIO(cfg.Relay.SysfsDir, cfg.Relay.GPIOPin)
		if err != nil {
			logger.Warn("Main", "GPIO unavailable (%v), falling back to simulation", err)
			gate = relay.NewSim()
		}
	}

	// Detector client.
	det := detector.NewClient(cfg.InferenceURL, cfg.Confidence)
	if err := det.CheckHealth(); err != nil {
		logger.Warn("Main", "Inference service not reachable yet: %v", err)
	}

	// Capture sink.
	sink, err := capture.NewSink(cfg.ViolationsDir)
	if err != nil {
		log.Fatalf("Failed to create capture sink: %v", err)
	}

	// Camera source.
	cam := camera.NewMJPEGSource(cfg.CameraURL, cfg.CameraRetry.Std())
	cam.Start(ctx)
	defer cam.Stop()

	m := metrics.New()

	w := watcher.New(cam, det, gate, events, sink, m, watcher.Options{
		PollInterval:  cfg.PollInterval.Std(),
		PruneInterval: time.Hour,
		PruneMaxAge:   cfg.RetentionMaxAge.Std(),
		PruneMaxFiles: cfg.RetentionMaxFiles,
	})
	go w.Run(ctx)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to configure auth: %v", err)
	}
	if !authManager.Enabled() {
		logger.Warn("Main", "No supervisor accounts configured - control endpoints are open")
	}

	srv := monitor.NewServer(cfg, w, authManager, cam)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("Main", "Metrics listening on %s", cfg.MetricsAddr)
		if err := m.StartServer(cfg.MetricsAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("Main", "Metrics server error: %v", err)
		}
	}()

	go func() {
		logger.Info("Main", "Dashboard listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}

	// Leave the gate closed on exit, matching power-on state.
	if err := gate.Set(policy.RelayClosed); err != nil {
		logger.Error("Main", "Failed to close gate on shutdown: %v", err)
	}

	logger.Info("Main", "Server stopped")
}
