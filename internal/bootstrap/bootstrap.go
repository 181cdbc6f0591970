package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"sortvision-gateway/internal/app/services"
	"sortvision-gateway/internal/domain/archive"
	domainauth "sortvision-gateway/internal/domain/auth"
	"sortvision-gateway/internal/domain/blob"
	"sortvision-gateway/internal/domain/eventbus"
	eventinfra "sortvision-gateway/internal/domain/eventbus/infrastructure"
	eventrepo "sortvision-gateway/internal/domain/eventbus/repository"
	"sortvision-gateway/internal/domain/feedback"
	domainimage "sortvision-gateway/internal/domain/image"
	"sortvision-gateway/internal/domain/recognition"
	platformconfig "sortvision-gateway/internal/platform/config"
	platformerrors "sortvision-gateway/internal/platform/errors"
	platformlogging "sortvision-gateway/internal/platform/logging"
	platformobservability "sortvision-gateway/internal/platform/observability"
	platformstorage "sortvision-gateway/internal/platform/storage"
	httptransport "sortvision-gateway/internal/transport/http"
	httpscan "sortvision-gateway/internal/transport/http/scan"
	"sortvision-gateway/internal/transport/recognizer"
	"sortvision-gateway/internal/utils"
)

const (
	shutdownTimeout     = 15 * time.Second
	httpShutdownTimeout = 10 * time.Second
	eventWorkers        = 4
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	configLoader          *platformconfig.Loader
	config                *platformconfig.Config
	configPath            string
	logProvider           *platformlogging.Logger
	logger                *utils.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	events                *eventbus.AsyncEventBus
	eventRepo             eventrepo.EventRepository
	unsubscribeEvents     func()
	archive               archive.Store
	registry              *blob.MemoryRegistry
	pipeline              *domainimage.Pipeline
	scans                 *services.ScanService
	tokens                *domainauth.AuthToken
}

// Run loads configuration, wires every component, serves HTTP and shuts down
// gracefully on SIGINT/SIGTERM or when ctx is cancelled.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	if state.config == nil || logger == nil || state.scans == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger/scan service not initialised",
		)
	}

	logBootstrapGraph(logger, steps)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("start http server: %w", err)
	}
	startMaintenance(state, group, groupCtx)

	// a failing server cancels groupCtx; treat that like a signal
	go func() {
		<-groupCtx.Done()
		stop()
	}()

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func logBootstrapGraph(logger *utils.Logger, steps []initStep) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "init graph:")
	for _, step := range steps {
		deps := "-"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		logger.InfoTag("BOOT", "  %s (%s) after %s", step.ID, step.Title, deps)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"logging:init-provider", "storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "archive:init-store",
			Title:     "Initialise scan archive",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initArchiveStep,
		},
		{
			ID:        "services:init-scan",
			Title:     "Initialise scan service",
			DependsOn: []string{"observability:setup-hooks", "events:init-bus", "archive:init-store"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initScanServiceStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := state.configLoader
	if loader == nil {
		loader = platformconfig.NewLoader()
	}
	cfg, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load config", err)
	}
	state.config = cfg
	state.configPath = loader.Path()
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logProvider, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logProvider = logProvider
	state.logger = logProvider.Legacy()
	state.slogger = logProvider.Slog()
	utils.DefaultLogger = state.logger

	state.logger.InfoTag("BOOT", "logging ready [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	slogger := state.slogger
	if slogger == nil {
		slogger = state.logger.Slog()
	}

	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled,
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if err := platformstorage.InitDatabase(state.config.Database.DSN); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialize database", err)
	}
	state.db = platformstorage.GetDB()
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventWorkers).WithLogger(state.logger)
	bus.Start()
	state.events = bus

	handlers := []eventbus.EventHandler{eventbus.NewLogHandler(state.logger)}
	if state.db != nil {
		state.eventRepo = eventinfra.NewEventRepository(state.db)
		handlers = append(handlers, eventbus.NewRecorder(state.eventRepo, state.logger))
	}

	unsubscribe, err := eventbus.SetupEventHandlers(bus, handlers...)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus", "failed to subscribe event handlers", err)
	}
	state.unsubscribeEvents = unsubscribe
	return nil
}

func initArchiveStep(_ context.Context, state *appState) error {
	cfg := archive.ConfigFrom(state.config.Archive)
	store, err := archive.New(cfg, archive.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "archive:init-store", "failed to create scan archive", err)
	}
	state.archive = store
	if state.logger != nil {
		state.logger.InfoTag("ARCHIVE", "scan archive driver: %s", strings.ToLower(cfg.Driver))
	}
	return nil
}

func initScanServiceStep(_ context.Context, state *appState) error {
	cfg := state.config
	logger := state.logger

	state.registry = blob.NewMemoryRegistry(
		cfg.Blobs.BasePath,
		blob.WithMaxLiveBytes(cfg.Blobs.MaxLiveBytes),
		blob.WithLogger(logger),
	)

	pipeline, err := domainimage.NewPipeline(domainimage.Options{
		Capture: &cfg.Capture,
		Logger:  logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "services:init-scan", "failed to create capture pipeline", err)
	}
	state.pipeline = pipeline

	fb, err := feedback.NewService(cfg.Feedback, state.db, logger)
	if err != nil {
		return err
	}

	decoder := recognition.NewDecoder(
		state.registry,
		recognition.WithDecoderLogger(logger),
		recognition.WithDefaultContentType(cfg.Recognizer.DefaultContentType),
	)

	scans, err := services.NewScanService(services.ScanServiceConfig{
		Validator:    pipeline,
		Recognizer:   recognizer.NewClient(cfg.Recognizer, recognizer.WithLogger(logger)),
		Decoder:      decoder,
		Archive:      state.archive,
		Feedback:     fb,
		Events:       state.events,
		Logger:       logger,
		HistoryLimit: cfg.Archive.HistoryLimit,
	})
	if err != nil {
		return err
	}
	state.scans = scans

	if cfg.Server.Auth.Enabled {
		state.tokens = domainauth.NewAuthToken(cfg.Server.Auth.Secret).WithTTL(cfg.Server.Auth.TTL)
	}
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:         config,
		Logger:         logger,
		AuthMiddleware: httptransport.ClientIdentity(state.tokens, logger),
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine

	indexFile := filepath.Join(config.Web.StaticDir, "index.html")
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			httptransport.RespondError(c, http.StatusNotFound, "api not found", gin.H{})
			return
		}
		if _, err := os.Stat(indexFile); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(indexFile)
	})

	scanHTTP, err := httpscan.NewService(httpscan.Options{
		Scans:     state.scans,
		Registry:  state.registry,
		Capture:   state.pipeline,
		Logger:    logger,
		MaxUpload: config.Capture.MaxFileSize,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "scan:new-service", "failed to create scan http service", err)
	}
	if err := scanHTTP.Register(groupCtx, httpRouter); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "gateway listening on http://%s", addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "http shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "http server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "http server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// startMaintenance periodically drops expired archive records and old audit events.
func startMaintenance(state *appState, g *errgroup.Group, groupCtx context.Context) {
	interval := state.config.Archive.Cleanup
	if interval <= 0 {
		return
	}
	ttl := state.config.Archive.TTL

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				runMaintenance(groupCtx, state, ttl)
			}
		}
	})
}

func runMaintenance(ctx context.Context, state *appState, ttl time.Duration) {
	if state.archive != nil {
		if err := state.archive.CleanupExpired(ctx); err != nil {
			state.logger.WarnTag("ARCHIVE", "cleanup failed: %v", err)
		} else if stats, err := state.archive.Stats(ctx); err == nil {
			state.logger.InfoFields(utils.FormatLog("ARCHIVE", "cleanup done"), stats)
		}
	}
	if state.eventRepo != nil && ttl > 0 {
		n, err := state.eventRepo.DeleteOldEvents(ctx, time.Now().Add(-ttl))
		if err != nil {
			state.logger.WarnTag("EVENT", "event cleanup failed: %v", err)
		} else if n > 0 {
			state.logger.DebugTag("EVENT", "deleted %d old events", n)
		}
	}
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *utils.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag("BOOT", "shutdown timed out")
		return errors.New("shutdown timed out")
	}
	return nil
}

// close releases everything the init steps created, in reverse order.
func (s *appState) close() {
	if s.scans != nil {
		s.scans.Shutdown()
	}
	if s.events != nil {
		s.events.Stop()
	}
	if s.unsubscribeEvents != nil {
		s.unsubscribeEvents()
	}
	if s.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.archive.Close(ctx); err != nil {
			s.logger.WarnTag("ARCHIVE", "archive close failed: %v", err)
		}
		cancel()
	}
	if s.db != nil {
		if err := platformstorage.CloseDatabase(); err != nil {
			s.logger.WarnTag("BOOT", "database close failed: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(ctx); err != nil {
			s.logger.WarnTag("BOOT", "observability shutdown failed: %v", err)
		}
		cancel()
	}
	if s.logProvider != nil {
		_ = s.logProvider.Close()
	}
}
