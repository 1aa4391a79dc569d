package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/novapact/gcu-go/internal/classifier"
	"github.com/novapact/gcu-go/internal/governance/audit"
	"github.com/novapact/gcu-go/internal/governance/gate"
	"github.com/novapact/gcu-go/internal/governance/handlers"
	"github.com/novapact/gcu-go/internal/governance/registry"
	"github.com/novapact/gcu-go/internal/governance/store"
	"github.com/novapact/gcu-go/internal/intake"
	"github.com/novapact/gcu-go/internal/platform/env"
	"github.com/novapact/gcu-go/internal/platform/httpserver"
	"github.com/novapact/gcu-go/internal/platform/metrics"
	"github.com/novapact/gcu-go/internal/platform/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	capabilityName := env.String("CAPABILITY_NAME", "")
	manifestPath := env.String("MANIFEST_PATH", "")
	outputsDir := env.String("OUTPUTS_DIR", "./outputs")
	dbPath := env.String("DB_PATH", "./gcu_state.db")

	confidenceThreshold, err := env.Float64("CONFIDENCE_THRESHOLD", 0.75)
	if err != nil {
		logger.Warn("invalid CONFIDENCE_THRESHOLD, falling back to default", "error", err, "default", 0.75)
		confidenceThreshold = 0.75
	}
	killSwitch, err := env.Bool("KILL_SWITCH", false)
	if err != nil {
		logger.Warn("invalid KILL_SWITCH, falling back to default", "error", err, "default", false)
		killSwitch = false
	}

	db, err := store.Open(ctx, dbPath)
	if err != nil {
		logger.Error("sqlite unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var uploader intake.Uploader
	storeCfg, enabled, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	if enabled {
		minioClient, err := objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := objectstore.EnsureBuckets(startupCtx, minioClient, storeCfg); err != nil {
			cancel()
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		cancel()
		uploader = intake.MinIOUploader{Client: minioClient, Config: storeCfg}
	} else {
		logger.Info("object store disabled: MINIO_ENDPOINT not set")
	}

	reg := registry.New(store.NewSQLiteStore(db), logger)
	journal := audit.NewFileJournal(outputsDir)
	met := metrics.NewGovernance()

	g := gate.New(gate.Config{
		CapabilityName:      capabilityName,
		ConfidenceThreshold: confidenceThreshold,
		ManifestPath:        manifestPath,
		KillSwitch:          killSwitch,
	}, classifier.NewDefault(), reg, journal, met, uploader, logger)

	api := handlers.New(logger, g, reg, journal)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.Handle("GET /metrics", met.Handler())

	cfg := httpserver.Config{
		Service:         "gcu-gateway",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "gcu-gateway", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
