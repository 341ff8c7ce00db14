package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/vedran77/pulse-inbox/internal/config"
	"github.com/vedran77/pulse-inbox/internal/database"
	"github.com/vedran77/pulse-inbox/internal/logging"
	"github.com/vedran77/pulse-inbox/internal/metrics"
	"github.com/vedran77/pulse-inbox/internal/realtime"
	postgresrepo "github.com/vedran77/pulse-inbox/internal/repository/postgres"
	"github.com/vedran77/pulse-inbox/internal/service"
	"github.com/vedran77/pulse-inbox/internal/transport/http/handlers"
	"github.com/vedran77/pulse-inbox/internal/transport/http/middleware"
	"github.com/vedran77/pulse-inbox/internal/transport/ws"
	"github.com/vedran77/pulse-inbox/internal/unread"
)

func main() {
	if err := run(); err != nil {
		log.Fatal("server stopped", "err", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("connected to database", "host", cfg.DBHost, "db", cfg.DBName)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories
	convRepo := postgresrepo.NewConversationRepo(pool)
	memberRepo := postgresrepo.NewMemberRepo(pool)
	inboxRepo := postgresrepo.NewInboxRepo(pool)
	reportRepo := postgresrepo.NewReportRepo(pool)
	moderationRepo := postgresrepo.NewModerationRepo(pool)

	// Realtime feed. The Postgres trigger always fires, including for
	// messages delivered by other services, so its listener always runs. The
	// Redis driver adds cross-instance fan-out of changes the service
	// publishes after each write.
	pgFeed := realtime.NewPGFeed(pool, logger)
	go pgFeed.Run(ctx)

	var feed realtime.Feed = pgFeed
	var publisher service.ChangeNotifier
	if cfg.RealtimeDriver == config.RealtimeRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		rf := realtime.NewRedisFeed(rdb, logger)
		feed, publisher = realtime.Merge(pgFeed, rf), rf
	}
	logger.Info("realtime feed ready", "driver", cfg.RealtimeDriver)

	signals := realtime.NewBroadcaster()
	counter := unread.NewCounter(inboxRepo, unread.Options{
		TTL:          cfg.UnreadTTL,
		PollInterval: cfg.UnreadPollInterval,
		Feed:         feed,
		Signals:      signals,
		Metrics:      m,
		Logger:       logger,
	})
	defer counter.Close()
	invalidations := unread.NewQueue(counter, 256)
	go counter.Listen(ctx, invalidations.C())

	// WebSocket hub
	hub := ws.NewHub(m, logger)
	go hub.Run(ctx)

	// Services
	notifier := ws.NewHubNotifier(hub, publisher)
	opener := service.NewConversationOpener(convRepo, memberRepo, inboxRepo, m)
	opener.SetLogger(logger)
	opener.SetNotifier(notifier)
	inboxService := service.NewInboxService(inboxRepo, reportRepo)
	inboxService.SetLogger(logger)
	inboxService.SetNotifier(notifier)
	inboxService.SetInvalidator(invalidations)
	moderationService := service.NewModerationService(moderationRepo)

	// Handlers
	conversationHandler := handlers.NewConversationHandler(opener, inboxService)
	unreadHandler := handlers.NewUnreadHandler(counter)
	moderationHandler := handlers.NewModerationHandler(moderationService)

	// Auth middleware
	auth := middleware.Auth(cfg.JWTSecret)
	limit := middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	protected := func(h http.HandlerFunc) http.Handler {
		return auth(limit(h))
	}

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /ws", ws.ServeWS(hub, counter, cfg.JWTSecret, cfg.AllowedOrigins))

	// Protected - Conversations
	mux.Handle("POST /api/v1/conversations/{id}/open", protected(conversationHandler.Open))
	mux.Handle("POST /api/v1/conversations/{id}/archive", protected(conversationHandler.Archive))
	mux.Handle("POST /api/v1/conversations/{id}/unarchive", protected(conversationHandler.Unarchive))
	mux.Handle("POST /api/v1/conversations/{id}/hide", protected(conversationHandler.HideUntilNew))
	mux.Handle("POST /api/v1/conversations/{id}/spam", protected(conversationHandler.MarkSpam))
	mux.Handle("POST /api/v1/conversations/{id}/read", protected(conversationHandler.MarkRead))
	mux.Handle("PATCH /api/v1/conversations/{id}/settings", protected(conversationHandler.UpdateSettings))
	mux.Handle("DELETE /api/v1/conversations/{id}", protected(conversationHandler.DeleteForMe))

	// Protected - Inbox
	mux.Handle("GET /api/v1/inbox", protected(conversationHandler.List))
	mux.Handle("GET /api/v1/unread", protected(unreadHandler.Get))

	// Protected - Moderation
	mux.Handle("POST /api/v1/moderation/actions", protected(moderationHandler.Record))
	mux.Handle("POST /api/v1/moderation/hidden", protected(moderationHandler.Hidden))
	mux.Handle("POST /api/v1/moderation/visibility", protected(moderationHandler.Visibility))

	// SIGHUP asks every connected badge to refresh.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("refreshing all unread badges")
				signals.Emit()
			}
		}
	}()

	// Start server with CORS
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           middleware.CORS(cfg.AllowedOrigins)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
