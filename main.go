package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/config"
	"github.com/Keeydi/LedgerMonitor-sub000/database"
	"github.com/Keeydi/LedgerMonitor-sub000/events"
	"github.com/Keeydi/LedgerMonitor-sub000/handlers"
	"github.com/Keeydi/LedgerMonitor-sub000/ingest"
	"github.com/Keeydi/LedgerMonitor-sub000/lifecycle"
	"github.com/Keeydi/LedgerMonitor-sub000/logging"
	"github.com/Keeydi/LedgerMonitor-sub000/metrics"
	"github.com/Keeydi/LedgerMonitor-sub000/natsserver"
	"github.com/Keeydi/LedgerMonitor-sub000/notify"
	"github.com/Keeydi/LedgerMonitor-sub000/presence"
	"github.com/Keeydi/LedgerMonitor-sub000/retention"
	"github.com/Keeydi/LedgerMonitor-sub000/scheduler"
	"github.com/Keeydi/LedgerMonitor-sub000/services"
	"github.com/Keeydi/LedgerMonitor-sub000/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Component("main").WithError(err).Fatal("❌ Invalid configuration")
	}
	logging.Setup(cfg.Env, cfg.Log.Level)
	log := logging.Component("main")
	metrics.Register()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to database")
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("❌ Failed to migrate database")
	}
	st := store.New(db)

	// Message broker: embedded unless an external URL is configured
	var (
		natsConn   *nats.Conn
		natsServer *natsserver.EmbeddedNATS
	)
	if cfg.NATS.Embedded && cfg.NATS.URL == "" {
		natsServer, err = natsserver.New(natsserver.Config{Port: cfg.NATS.Port})
		if err != nil {
			log.WithError(err).Fatal("❌ Failed to start NATS server")
		}
		defer natsServer.Shutdown()
		natsConn = natsServer.Conn()
	} else {
		natsConn, err = natsserver.Connect(cfg.NATS.URL)
		if err != nil {
			log.WithError(err).Fatal("❌ Failed to connect to NATS")
		}
		defer natsConn.Close()
	}

	publishers := events.Multi{events.NewNATSPublisher(natsConn)}
	if cfg.Kafka.Enabled {
		publishers = append(publishers, events.NewAsync(events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic), 4096, 10*time.Second))
		log.Infof("📤 Exporting lifecycle events to Kafka topic %s", cfg.Kafka.Topic)
	}
	defer publishers.Close()

	// Presence: detections table, with an optional redis fast path
	storeIndex := presence.NewStoreIndex(st.Detections)
	var (
		presenceIndex    presence.Index    = storeIndex
		presenceRecorder presence.Recorder = storeIndex
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		redisIndex := presence.NewRedisIndex(rdb, storeIndex, 2*cfg.Lifecycle.PresenceWindow)
		presenceIndex, presenceRecorder = redisIndex, redisIndex
		log.Infof("⚡ Presence cache enabled (%s)", cfg.Redis.Addr)
	}

	// Outbound channels
	httpClient := &http.Client{Timeout: cfg.Dispatch.Timeout}
	var channels []notify.Channel
	if cfg.SMS.Enabled {
		channels = append(channels, notify.NewSMSChannel(cfg.SMS.URL, cfg.SMS.APIKey, cfg.SMS.SenderName, httpClient))
	}
	if cfg.Viber.Enabled {
		channels = append(channels, notify.NewViberChannel(cfg.Viber.URL, cfg.Viber.Token, cfg.Viber.Sender, httpClient))
	}
	if len(channels) == 0 {
		log.Warn("⚠️ No notification channel enabled, owner notifications will be rejected")
	}
	dispatcher := notify.NewDispatcher(st.Notifications, st.Violations, notify.DispatcherConfig{
		Timeout:     cfg.Dispatch.Timeout,
		CountryCode: cfg.Dispatch.CountryCode,
	}, channels...)

	svc := lifecycle.NewService(lifecycle.Deps{
		Violations:  st.Violations,
		Alerts:      st.Alerts,
		Registry:    st.Registry,
		Preferences: st.Registry,
		Recipients:  st.Registry,
		Notifier:    dispatcher,
		Presence:    presenceIndex,
		Events:      publishers,
	}, lifecycle.Config{
		GracePeriod:    cfg.Lifecycle.GracePeriod,
		PresenceWindow: cfg.Lifecycle.PresenceWindow,
	})

	retrier := notify.NewRetryScheduler(st.Notifications, dispatcher, notify.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		Backoff:    cfg.Retry.Backoff,
	}, cfg.Retry.BatchSize)
	cleaner := retention.NewCleaner(st.Detections, retention.FileStore{Root: cfg.Server.UploadDir}, cfg.Retention.Window, cfg.Retention.BatchSize)

	tasks := []*scheduler.Task{
		scheduler.New("expiry-monitor", cfg.Lifecycle.SweepInterval, lifecycle.NewExpiryMonitor(svc, cfg.Lifecycle.SweepBatch).RunOnce),
		scheduler.New("notification-retry", cfg.Retry.Interval, retrier.RunOnce),
		scheduler.New("detection-retention", cfg.Retention.Interval, cleaner.RunOnce),
	}

	processor := ingest.NewProcessor(st.Detections, presenceRecorder, svc, cfg.Lifecycle.MinConfidence)
	subscriber := ingest.NewSubscriber(natsConn, processor, cfg.NATS.CaptureSubject, cfg.NATS.QueueGroup)
	if err := subscriber.Start(); err != nil {
		log.WithError(err).Fatal("❌ Failed to subscribe to captures")
	}

	hub := services.NewAlertHub(natsConn)
	if err := hub.Start(); err != nil {
		log.WithError(err).Fatal("❌ Failed to start alert hub")
	}
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, t := range tasks {
		t.Start(ctx)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Ingest-Token"}
	router.Use(cors.New(corsConfig))

	router.Static("/uploads", cfg.Server.UploadDir)
	log.Infof("📁 Serving uploads from: %s", cfg.Server.UploadDir)

	h := &handlers.Handler{
		Lifecycle:     svc,
		Captures:      processor,
		Violations:    st.Violations,
		Detections:    st.Detections,
		Presence:      presenceRecorder,
		Notifications: st.Notifications,
		Retrier:       retrier,
		Alerts:        st.Alerts,
		Users:         st.Users,
		Hub:           hub,
		NATS:          natsServer,
		DBPing: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		JWTSecret:     []byte(cfg.JWT.Secret),
		JWTExpiration: cfg.JWT.Expiration,
		IngestToken:   cfg.Server.IngestToken,
	}
	h.Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		log.Infof("🚀 Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ HTTP shutdown did not complete")
	}

	subscriber.Stop()
	for _, t := range tasks {
		t.Stop()
	}
	hub.Stop()
}
