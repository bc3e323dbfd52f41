package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"postflow/internal/cache"
	"postflow/internal/collab"
	"postflow/internal/config"
	"postflow/internal/db"
	"postflow/internal/domain"
	"postflow/internal/eventbus"
	"postflow/internal/http/handler"
	"postflow/internal/lease"
	"postflow/internal/logx"
	"postflow/internal/queue"
	"postflow/internal/repo"
	"postflow/internal/service"
	"postflow/internal/trigger"
	"postflow/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	heartbeatTTL      = 30 * time.Second
	heartbeatInterval = 10 * time.Second
)

func main() {
	cfg := config.Load()
	log := logx.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.Init(initCtx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres init failed")
	}
	defer pool.Close()
	if err := db.EnsureSchema(initCtx, pool); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	rdb, err := queue.Connect(initCtx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	defer rdb.Close()

	store := repo.NewStore(pool, log)
	locks := lease.NewManager(rdb, log)
	window := cache.NewWindow(rdb, store, log)

	bus := eventbus.New(log)
	bus.Subscribe(func(ctx context.Context, ev domain.Event) error {
		return window.AddOne(ctx, time.Now().UTC(), ev.Post)
	}, domain.EventScheduled, domain.EventUpdated)

	genQ := queue.New(rdb, queue.Config{
		Name:               queue.Generation,
		Concurrency:        cfg.GenerationConcurrency,
		MaxAttempts:        cfg.GenerationMaxAttempts,
		BackoffBase:        cfg.GenerationBackoffBase,
		RetentionCompleted: cfg.RetentionCompleted,
		RetentionFailed:    cfg.RetentionFailed,
		RetentionTTL:       cfg.RetentionTTL,
	}, log)
	pubQ := queue.New(rdb, queue.Config{
		Name:               queue.Publishing,
		Concurrency:        cfg.PublishingConcurrency,
		MaxAttempts:        cfg.PublishingMaxAttempts,
		BackoffBase:        cfg.PublishingBackoffBase,
		RetentionCompleted: cfg.RetentionCompleted,
		RetentionFailed:    cfg.RetentionFailed,
		RetentionTTL:       cfg.RetentionTTL,
	}, log)
	extQ := queue.New(rdb, queue.Config{
		Name:               queue.ExternalPublish,
		Concurrency:        cfg.ExternalConcurrency,
		MaxAttempts:        cfg.ExternalMaxAttempts,
		BackoffBase:        cfg.ExternalBackoffBase,
		RetentionCompleted: cfg.RetentionCompleted,
		RetentionFailed:    cfg.RetentionFailed,
		RetentionTTL:       cfg.RetentionTTL,
	}, log)
	queues := []*queue.Queue{genQ, pubQ, extQ}

	workers := worker.New(
		store,
		extQ,
		bus,
		collab.NoopGenerator{Log: log},
		collab.NoopPublisher{Log: log},
		collab.NoopNotifier{Log: log},
		cfg.PublishSpread,
		log,
	)

	go genQ.Run(ctx, workers.ProcessGeneration, nil)
	go pubQ.Run(ctx, workers.ProcessPublishing, workers.OnPublishExhausted)
	go extQ.Run(ctx, workers.ProcessExternalPublish, workers.OnPublishExhausted)
	for _, q := range queues {
		go q.StartDelayedMover(ctx, locks, cfg.MoverInterval, cfg.MoverLeaseTTL)
	}

	instanceID := uuid.NewString()
	go worker.StartHeartbeat(ctx, rdb, instanceID, heartbeatTTL, heartbeatInterval)

	hourly := trigger.NewHourlyGeneration(locks, store, genQ, cfg.HourlyLeaseTTL, cfg.GenerationSpread, log)
	refresh := trigger.NewCacheRefresh(locks, window, cfg.RefreshLeaseTTL, log)
	minute := trigger.NewMinutePublish(locks, window, pubQ, cfg.MinuteLeaseTTL, log)
	fallback := trigger.NewFallbackPublish(locks, store, pubQ, cfg.FallbackLeaseTTL, log)

	runner := trigger.NewRunner(ctx, log)
	mustAdd := func(spec, name string, tick trigger.TickFunc) {
		if err := runner.Add(spec, name, tick); err != nil {
			log.Fatal().Err(err).Str("trigger", name).Msg("trigger registration failed")
		}
	}
	mustAdd(trigger.HourlySpec(cfg.GenerationMinute), "hourly-generation", hourly.Tick)
	mustAdd(trigger.HourlySpec(cfg.RefreshMinute), "cache-refresh", refresh.Tick)
	mustAdd(trigger.EveryMinuteSpec, "minute-publish", minute.Tick)
	mustAdd(trigger.EveryMinuteSpec, "fallback-publish", fallback.Tick)
	runner.Start()

	// Warm the window on boot so fresh instances can publish before the first
	// scheduled refresh. Losing the lease race means a peer already did it.
	if err := refresh.Tick(ctx, time.Now().UTC()); err != nil && !errors.Is(err, lease.ErrContention) {
		log.Warn().Err(err).Msg("startup cache warm failed")
	}

	svc := service.NewPostService(pool, bus)
	posts := handler.NewPostHandler(svc)
	admin := handler.NewAdminHandler(window, queues, rdb)
	health := handler.NewHealthHandler(pool, rdb)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/posts", posts.SchedulePost)
		v1.GET("/posts/:id", posts.GetPost)
		v1.POST("/posts/:id/reschedule", posts.ReschedulePost)
		v1.PUT("/owners/:id/preference", posts.SetPreference)

		adm := v1.Group("/admin")
		adm.POST("/cache/refresh", admin.ForceRefresh)
		adm.GET("/cache/keys", admin.ListCachedKeys)
		adm.GET("/cache/bucket", admin.DumpBucket)
		adm.GET("/queues", admin.QueueStats)
		adm.GET("/queues/:name/failed", admin.ListFailedJobs)
		adm.GET("/instances", admin.ListInstances)
	}

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("instance", instanceID).Msg("pipeline started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
	runner.Stop()
	log.Info().Msg("pipeline stopped")
}
