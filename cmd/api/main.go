package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"survey-dialer/internal/audit"
	"survey-dialer/internal/auth"
	"survey-dialer/internal/callflow"
	"survey-dialer/internal/config"
	"survey-dialer/internal/conversation"
	"survey-dialer/internal/dispatcher"
	"survey-dialer/internal/reply"
	"survey-dialer/internal/reporting"
	"survey-dialer/internal/tasks"
	"survey-dialer/internal/telephony"
	"survey-dialer/migrations"
	"survey-dialer/pkg/logger"
	"survey-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var authManager *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		authManager, err = auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("JWT_SECRET not set; admin API is unauthenticated")
	}

	var (
		db         *sql.DB
		taskStore  tasks.Store
		auditRepo  audit.Repository
	)
	switch cfg.App.TaskStore {
	case config.TaskStoreMemory:
		mem := tasks.NewMemoryStore()
		taskStore = mem
		auditRepo = audit.NewMemoryRepo()
		log.Warn("using in-memory task store; tasks are lost on restart")
	default:
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		if cfg.DB.AutoMigrate {
			if err := utils.Migrate(rootCtx, db, migrations.FS); err != nil {
				log.Error("migrations failed", "err", err)
				os.Exit(1)
			}
		}
		taskStore = tasks.NewPostgresStore(db)
		auditRepo = audit.NewPostgresRepo(db)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	auditSvc := audit.NewService(auditRepo)
	taskSvc := tasks.NewService(taskStore, auditSvc, cfg.Dispatch.StaleClaimAfter)
	reportSvc := reporting.NewService(reporting.NewStoreRepo(taskStore))

	caller, err := telephony.NewTwilioCaller(telephony.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.PhoneNumber,
		PublicURL:  cfg.App.PublicURL,
	})
	if err != nil {
		log.Error("twilio init failed", "err", err)
		os.Exit(1)
	}

	sessions := conversation.NewStore(conversation.StoreOptions{
		MaxTurns:     cfg.Session.MaxTurns,
		IdleTTL:      cfg.Session.IdleTTL,
		TombstoneTTL: cfg.Session.TombstoneTTL,
	})
	generator := reply.NewGenerator(reply.NewOpenAIProvider(cfg.LLM), reply.GeneratorOptions{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxTurns:    sessions.MaxTurns(),
		Logger:      logger.Component(log, "reply"),
	})
	flow := callflow.NewOrchestrator(sessions, generator, callflow.DefaultConfig())

	dispatchOpts := dispatcher.Options{
		Interval:        cfg.Dispatch.Interval,
		BatchSize:       cfg.Dispatch.BatchSize,
		Concurrency:     cfg.Dispatch.Concurrency,
		StaleClaimAfter: cfg.Dispatch.StaleClaimAfter,
		Recorder:        auditSvc,
		Logger:          logger.Component(log, "dispatcher"),
	}
	if rdb != nil && cfg.Redis.DialRateLimit > 0 {
		limiter, err := dispatcher.NewRedisDialLimiter(rdb, "", cfg.Redis.DialRateLimit, cfg.Redis.DialRateWindow)
		if err != nil {
			log.Error("dial limiter init failed", "err", err)
			os.Exit(1)
		}
		dispatchOpts.Limiter = limiter
	}
	disp := dispatcher.New(taskStore, caller, dispatchOpts)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:      cfg,
		auth:     authManager,
		flow:     flow,
		tasks:    taskSvc,
		audit:    auditSvc,
		reports:  reportSvc,
		db:       db,
		redis:    rdb,
		sessions: sessions,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	dispatchDone := disp.Start(rootCtx)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sessions.RunSweeper(rootCtx, cfg.Session.SweepInterval, logger.Component(log, "sessions"))
	}()

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "task_store", cfg.App.TaskStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// The dispatch cycle keeps its own pace: claimed tasks are recorded before the
	// deferred store closes run, however long the placement calls take.
	log.Info("waiting for dispatch cycle to finish")
	<-dispatchDone
	<-sweeperDone
	log.Info("shutdown complete")
}
