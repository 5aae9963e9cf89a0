package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/config"
	"github.com/xavierca1/leadforge/internal/infra/cache"
	"github.com/xavierca1/leadforge/internal/infra/database"
	"github.com/xavierca1/leadforge/internal/infra/http/handlers"
	"github.com/xavierca1/leadforge/internal/infra/http/middleware"
	"github.com/xavierca1/leadforge/internal/infra/logger"
	"github.com/xavierca1/leadforge/internal/infra/mail"
	"github.com/xavierca1/leadforge/internal/infra/queue"
	"github.com/xavierca1/leadforge/internal/infra/worker"
	"github.com/xavierca1/leadforge/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDBConnection(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("connecting to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		zlog.Fatal("migrating database", zap.Error(err))
	}

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		zlog.Fatal("connecting to rabbitmq", zap.Error(err))
	}
	defer rabbitMQ.Close()

	rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()

	// 1. Repositories
	leadRepo := database.NewLeadRepository(db)
	templateRepo := database.NewEmailTemplateRepository(db)
	campaignRepo := database.NewCampaignRepository(db)
	historyRepo := database.NewEmailHistoryRepository(db)

	// 2. Adapters
	producer := queue.NewProducer(rabbitMQ.Ch)
	deduper := cache.NewDeduper(rdb, cfg.DedupTTL, zlog)
	mailer := mail.NewDispatcher(
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword,
		cfg.MailFrom, cfg.MailFromName, cfg.MessageIDDomain, zlog,
	)
	renderer, err := mail.NewRenderer()
	if err != nil {
		zlog.Fatal("parsing email layout", zap.Error(err))
	}

	// 3. Use cases
	generator := usecase.NewGenerator()
	engine := usecase.NewLeadStatusEngine(leadRepo, usecase.DefaultLeadRulesConfig(), zlog)

	createCampaignUC := usecase.NewCreateCampaignUseCase(campaignRepo, leadRepo, templateRepo, generator, producer, zlog)
	updateCampaignUC := usecase.NewUpdateCampaignUseCase(campaignRepo, zlog)
	campaignQueryUC := usecase.NewCampaignQueryUseCase(campaignRepo, historyRepo)
	runCampaignUC := usecase.NewRunCampaignUseCase(
		campaignRepo, leadRepo, historyRepo, generator, usecase.NewUUIDIssuer(),
		mailer, renderer, cfg.Delivery(), zlog,
	)
	ingestUC := usecase.NewIngestEventUseCase(historyRepo, leadRepo, engine, deduper, usecase.DefaultEngagementConfig(), zlog)
	retryUC := usecase.NewRetryFailedEmailsUseCase(historyRepo, leadRepo, mailer, cfg.Retry(), zlog)
	scoresUC := usecase.NewRecalculateScoresUseCase(
		leadRepo, historyRepo, usecase.NewScoreCalculator(usecase.DefaultScoringConfig()), engine, zlog,
	)

	// 4. Background workers
	var wg sync.WaitGroup
	background := func(name string, run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
			zlog.Debug("background task exited", zap.String("task", name))
		}()
	}

	campaignWorker := queue.NewWorker(rabbitMQ.Ch, runCampaignUC, zlog)
	background("campaign_consumer", func(ctx context.Context) {
		if err := campaignWorker.Start(ctx, queue.QueueName); err != nil {
			zlog.Error("campaign consumer stopped", zap.Error(err))
			stop()
		}
	})
	background("retry", worker.NewRetryWorker(retryUC, cfg.RetryInterval, zlog).Start)
	background("scheduled_campaigns", worker.NewScheduledCampaignWorker(campaignRepo, producer, cfg.SchedulePollInterval, zlog).Start)
	background("score_refresh", worker.NewScoreRefreshWorker(scoresUC, cfg.ScoreRefreshInterval, zlog).Start)

	// 5. Handlers
	campaignHandler := handlers.NewCampaignHandler(createCampaignUC, updateCampaignUC, campaignQueryUC, zlog)
	trackingHandler := handlers.NewTrackingHandler(ingestUC, zlog)
	webhookHandler := handlers.NewWebhookHandler(ingestUC, cfg.WebhookSecret, zlog)
	unsubscribeHandler := handlers.NewUnsubscribeHandler(ingestUC, zlog)
	leadHandler := handlers.NewLeadHandler(scoresUC, zlog)

	var smtpCheck handlers.Pinger
	if cfg.SMTPHost != "" {
		smtpCheck = handlers.PingFunc(func(context.Context) error { return nil })
	}
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": handlers.PingFunc(db.PingContext),
		"rabbitmq": handlers.PingFunc(func(context.Context) error {
			if rabbitMQ.Conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}),
		"redis": handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		"smtp":  smtpCheck,
	})

	// 6. Router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(zlog))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", handlers.SignatureHeader},
	}))

	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/email-campaigns", func(r chi.Router) {
		r.Post("/", campaignHandler.Create)
		r.Get("/{id}", campaignHandler.Get)
		r.Put("/{id}", campaignHandler.Update)
		r.Get("/{id}/stats", campaignHandler.Stats)
		r.Get("/{id}/history", campaignHandler.History)
		r.Get("/track/open/{id}", trackingHandler.Open)
		r.Get("/track/click/{id}", trackingHandler.Click)
	})
	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/email-events", webhookHandler.Handle)
		r.Get("/unsubscribe/{token}", unsubscribeHandler.Handle)
		r.Post("/unsubscribe/{token}", unsubscribeHandler.Handle)
	})
	r.Route("/api/leads", func(r chi.Router) {
		r.Get("/high-value", leadHandler.HighValue)
		r.Get("/score-distribution", leadHandler.ScoreDistribution)
		r.Post("/{id}/score", leadHandler.RefreshScore)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown", zap.Error(err))
	}
	wg.Wait()
}
