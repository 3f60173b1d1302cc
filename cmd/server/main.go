package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"relaygate/internal/config"
	"relaygate/internal/constants"
	"relaygate/internal/events"
	"relaygate/internal/logging"
	monenh "relaygate/internal/monitoring"
	tracing "relaygate/internal/monitoring/tracing"
	"relaygate/internal/pool"
	"relaygate/internal/runtime"
	srv "relaygate/internal/server"
	store "relaygate/internal/storage"
	"relaygate/internal/upstream"
	"relaygate/internal/version"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	cfg := cm.GetConfig()
	if *debug {
		next := *cfg
		next.Security.Debug = true
		if err := cm.ReplaceConfig(&next); err != nil {
			log.WithError(err).Fatal("failed to apply debug override")
		}
		cfg = cm.GetConfig()
	}

	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	traceShutdown, err := tracing.Init(context.Background())
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to shutdown tracing")
			}
		}()
	}

	eventHub := events.NewHub()
	cm.SetEventPublisher(eventHub)
	if cfg.Security.Debug {
		eventHub.Subscribe(events.TopicConfigUpdated, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("config event: %v", evt.Payload)
		})
	}

	log.Infof("starting relaygate (config: %s)", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageBackend, err := buildStorageBackend(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("primary storage backend initialization failed; falling back to file backend")
		next := *cfg
		next.Storage.Backend = "file"
		cfg = &next
		storageBackend, err = buildStorageBackend(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("file backend fallback failed; running without persistent storage")
			storageBackend = nil
		}
	}
	defer func() {
		if storageBackend != nil {
			_ = storageBackend.Close()
		}
	}()

	metrics := monenh.NewEnhancedMetrics()
	monenh.SetDefaultMetrics(metrics)
	if storageBackend != nil {
		label := store.DetectBackendLabel(cfg, storageBackend)
		storageBackend = store.WithInstrumentation(storageBackend, metrics, label)
	}

	var active, cooling []*pool.Credential
	var dead []pool.DeadCredential
	var persister pool.Persister
	if storageBackend != nil {
		persister = pool.NewStoragePersister(storageBackend)
		active, cooling, dead, err = pool.Rehydrate(ctx, storageBackend)
		if err != nil {
			log.WithError(err).Warn("failed to rehydrate credential pool from storage; starting empty")
		}
	}

	poolCfg := &pool.Config{
		TickInterval:       cfg.TickInterval(),
		SessionWindow:      cfg.SessionWindow(),
		WeeklyWindow:       cfg.WeeklyWindow(),
		WeeklyOpusWindow:   cfg.WeeklyWindow(),
		WeeklySonnetWindow: cfg.WeeklyWindow(),
		AffinityCapacity:   cfg.Pool.AffinityCacheCapacity,
		AffinityIdleTTL:    time.Duration(cfg.Pool.AffinityIdleTTLMins) * time.Minute,
		CoolDown:           cfg.CoolDown(),
	}
	actor := pool.NewActor(persister, poolCfg)
	poolHandle := actor.Start(ctx, active, cooling, dead)

	upstreamClient := upstream.New(cfg)

	deps := srv.Dependencies{
		Pool:     poolHandle,
		Upstream: upstreamClient,
		Storage:  storageBackend,
		Version:  version.Version,
	}
	engine := srv.BuildEngine(cfg, deps)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	httpSrv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: engine}

	tasks := runtime.NewTaskManager(ctx)
	_ = tasks.Start("http-server", "serves the proxy HTTP API", func(_ context.Context) error {
		log.Infof("listening on :%d", port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("server: %v", err)
			return err
		}
		return nil
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancelShutdown()

	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
	tasks.Wait()

	if stats := tasks.GetStats(); stats.Failed > 0 {
		log.Warnf("background tasks reported %d failure(s) during shutdown", stats.Failed)
	}

	time.Sleep(constants.ServerGracefulWait)
	log.Info("server stopped")
}
