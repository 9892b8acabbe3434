package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"booth/internal/adapter/repo"
	"booth/internal/capture"
	"booth/internal/compositing"
	"booth/internal/device"
	"booth/internal/generation"
	"booth/internal/http/handlers"
	"booth/internal/http/httpapi"
	"booth/internal/infra"
	"booth/internal/pipeline"
	"booth/internal/providers/style"
	"booth/internal/quota"
	"booth/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	projects := repo.NewProjectRepository(pool)
	quotas := repo.NewQuotaRepository(pool)
	sessions := repo.NewSessionRepository(pool)

	projCfg, err := projects.ProjectConfig(ctx, cfg.ProjectID)
	if err != nil {
		logger.Fatal().Err(err).Str("project_id", cfg.ProjectID).Msg("failed to load project config")
	}
	projCfg.Normalize()

	uploader, err := newUploader(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	styleClient := style.NewClient(style.Options{
		BaseURL: cfg.StyleBackend.BaseURL,
		APIKey:  cfg.StyleBackend.APIKey,
	})
	// The observer closes over the runner assigned below; snapshots only
	// flow once a run is in flight, well after wiring completes.
	var runner *pipeline.Runner
	orch := generation.NewOrchestrator(
		styleClient,
		infra.Component(logger, "generation"),
		generation.WithPollInterval(cfg.StyleBackend.PollInterval),
		generation.WithObserver(func(s generation.Snapshot) { runner.ObserveGeneration(s) }),
	)

	engine := compositing.NewEngine(infra.Component(logger, "compositing"))
	watermarks := compositing.NewLoader(http.DefaultClient, infra.Component(logger, "compositing"))
	persister := storage.NewPersister(uploader, http.DefaultClient, infra.Component(logger, "storage"))

	runner = pipeline.NewRunner(
		cfg.ProjectID,
		projects,
		orch,
		watermarks,
		engine,
		persister,
		sessions,
		http.DefaultClient,
		infra.Component(logger, "pipeline"),
	)

	admission := quota.NewController(projects, quotas, sessions, infra.Component(logger, "quota"))

	opener := &device.MJPEGOpener{StreamURL: cfg.Camera.StreamURL}
	manager := device.NewManager(opener, infra.Component(logger, "device"))
	defer manager.Close()

	stream := acquireStream(ctx, cfg, manager, projCfg.Locale, logger)

	machine := capture.NewMachine(stream, projCfg, admission, infra.Component(logger, "capture"))

	app := &handlers.App{
		ProjectID: cfg.ProjectID,
		Locale:    projCfg.Locale,
		Quota:     admission,
		Sessions:  runner,
		Capture:   machine,
		Runner:    runner,
		Device:    manager,
		Logger:    infra.Component(logger, "http"),
	}
	router := httpapi.NewRouter(app, infra.Component(logger, "http"))
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("kiosk listening on :%s", cfg.HTTP.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.IdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("kiosk stopped")
}

// newUploader picks the object store when an endpoint is configured and
// falls back to local disk otherwise, so a booth can run without a bucket
// during setup.
func newUploader(ctx context.Context, cfg *infra.Config, logger infra.Logger) (storage.Uploader, error) {
	if cfg.Storage.Endpoint != "" {
		store, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	logger.Warn().Msg("no storage endpoint configured, using local filesystem")
	return storage.NewFileStore("data", cfg.Storage.PublicBaseURL)
}

// acquireStream walks the camera fallback ladder and waits for the first
// frame. A kiosk without a camera still comes up: triggers are refused
// until an operator retries acquisition over /v1/device/retry.
func acquireStream(ctx context.Context, cfg *infra.Config, manager *device.Manager, locale string, logger infra.Logger) *device.Stream {
	stream, err := manager.Acquire(ctx)
	if err != nil {
		var devErr *device.DeviceError
		if errors.As(err, &devErr) {
			logger.Error().Err(err).Str("cause", string(devErr.Cause)).Msg(devErr.Message(locale))
		} else {
			logger.Error().Err(err).Msg("camera acquisition failed")
		}
		return nil
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.Camera.ReadyTimeout)
	defer cancel()
	if err := stream.WaitReady(readyCtx); err != nil {
		logger.Warn().Err(err).Msg("camera stream not ready yet")
	}
	return stream
}
