package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/ucsmail/api/rest"
	apiws "github.com/kasuganosora/ucsmail/api/ws"
	"github.com/kasuganosora/ucsmail/audit"
	"github.com/kasuganosora/ucsmail/cache"
	"github.com/kasuganosora/ucsmail/config"
	dbadapter "github.com/kasuganosora/ucsmail/db"
	"github.com/kasuganosora/ucsmail/friends"
	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/mailkey"
	mw "github.com/kasuganosora/ucsmail/middleware"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/scheduler"
	"github.com/kasuganosora/ucsmail/session"
	"github.com/kasuganosora/ucsmail/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	st := store.New(db)
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger, audit.Options{
		QueueSize:     cfg.Audit.QueueSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	})

	// ---- Cache ----
	c, err := cache.NewCache(cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		RedisKeyPrefix:  cfg.Cache.RedisKeyPrefix,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := mail.NewMetrics(reg)

	// ---- Mail ----
	sm := session.NewManager(logger)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ucs",
		Name:      "sessions_online",
		Help:      "Logged-in mail connections.",
	}, func() float64 { return float64(sm.Count()) }))

	mailSvc := mail.NewService(st, sm, auditSvc, metrics, &cfg.Mail, logger)
	verifier := mailkey.NewVerifier(st, &cfg.Mail, logger)
	friendReg := friends.NewRegistry(st, logger)

	// ---- Rate limits ----
	apiLimiter := mw.NewKeyedLimiter(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	loginLimiter := mw.NewKeyedLimiter(rate.Limit(cfg.Security.LoginRPS), cfg.Security.LoginBurst)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.AddTicker("ratelimit_sweep", 5*time.Minute, func(context.Context) {
		cutoff := time.Now().Add(-10 * time.Minute)
		n := apiLimiter.Sweep(cutoff) + loginLimiter.Sweep(cutoff)
		logger.Debug("rate limit buckets swept", zap.Int("removed", n))
	})
	if cfg.Mail.ExpireInterval > 0 {
		expirer := mail.NewExpirer(mailSvc, c, cache.LockKey("mail_expire"), cfg.Mail.ExpireInterval/2, logger)
		expire := func(ctx context.Context) { expirer.Run(ctx) }
		sched.AddDelay("mail_expire_boot", 5*time.Second, expire)
		sched.AddTicker("mail_expire", cfg.Mail.ExpireInterval, expire)
	} else {
		logger.Warn("mail.expire_interval is not positive; mail expiry only runs on demand")
	}

	if cfg.Audit.Retention > 0 {
		sched.AddTicker("audit_prune", time.Hour, func(ctx context.Context) {
			n, err := auditSvc.Prune(ctx, time.Now().Add(-cfg.Audit.Retention))
			if err != nil {
				logger.Warn("audit prune failed", zap.Error(err))
				return
			}
			logger.Debug("audit pruned", zap.Int64("rows", n))
		})
	}

	// ---- WS Router ----
	wsRouter := apiws.NewRouter(logger)
	mailWS := apiws.NewMailHandlers(mailSvc, verifier, sm, &cfg.Mail, logger)
	mailWS.SetLoginLimiter(loginLimiter)
	mailWS.RegisterHandlers(wsRouter)
	apiws.NewFriendHandlers(friendReg, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/health", "/metrics"), mw.Recovery(logger))
	r.Use(mw.RateLimit(apiLimiter))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sm.Count()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(verifier, mailSvc, c, cfg.Security, logger)
	mailH := apirest.NewMailHandler(mailSvc, st)
	friendH := apirest.NewFriendHandler(friendReg, st, sm)
	adminH := apirest.NewAdminHandler(sm, mailSvc, sched, auditSvc, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/token", mw.RateLimit(loginLimiter), authH.Token)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		charsG := api.Group("/characters")
		charsG.Use(mw.Auth(cfg.Security, c))
		charsG.GET("/:id/mail", mailH.List)
		charsG.POST("/:id/mail", mailH.Send)
		charsG.GET("/:id/mail/:mail_id", mailH.Body)
		charsG.PUT("/:id/mail/:mail_id/status", mailH.SetStatus)
		charsG.GET("/:id/friends", friendH.List)
		charsG.POST("/:id/friends", friendH.Add)
		charsG.DELETE("/:id/friends", friendH.Remove)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/sessions", adminH.ListSessions)
		adminG.POST("/kick/:id", adminH.Kick)
		adminG.POST("/mail/expire", adminH.Expire)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.GET("/audit", adminH.Audit)
	}

	// ---- WebSocket ----
	wsH := apiws.NewHandler(cfg.Security, sm, wsRouter, logger)
	r.GET("/mail", wsH.ServeWS)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sm.CloseAll(3 * time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	auditSvc.Stop(shutdownCtx)
}
