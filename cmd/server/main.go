package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/laxlab/drill-rewards/internal/config"
	"github.com/laxlab/drill-rewards/internal/database"
	"github.com/laxlab/drill-rewards/internal/gamification"
	"github.com/laxlab/drill-rewards/internal/logger"
	"github.com/laxlab/drill-rewards/internal/middleware"
	"github.com/laxlab/drill-rewards/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, "drill-rewards")
	if err != nil {
		zl.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	// Initialize store
	var store gamification.Store
	switch cfg.Store.Driver {
	case "memory":
		zl.Warn("using in-memory store; data is lost on restart")
		store = gamification.NewMemoryStore()
	default:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			zl.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			zl.Fatal("failed to run migrations", zap.Error(err))
		}
		store = gamification.NewPostgresStore(db)
	}

	policy, err := gamification.ParsePolicy(cfg.Scoring.Policy)
	if err != nil {
		zl.Fatal("invalid scoring policy", zap.Error(err))
	}
	loc, err := cfg.Streak.Location()
	if err != nil {
		zl.Fatal("invalid streak timezone", zap.Error(err))
	}

	// Initialize service and handlers
	svc := gamification.NewService(store, gamification.Options{
		Policy:      policy,
		Location:    loc,
		MaxAttempts: cfg.Streak.MaxAttempts,
		Cache:       gamification.NewResultCache(cfg.Redis, zl),
		Logger:      zl,
	})
	h := gamification.NewHandler(svc, zl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gamification.RegisterMetrics(reg)
	middleware.RegisterMetrics(reg)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(zl))
	api := r.PathPrefix("/api/v1").Subrouter()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth([]byte(cfg.JWT.Secret)))
	protected.Use(limiter.Middleware)
	protected.HandleFunc("/workouts/complete", h.CompleteWorkout).Methods("POST")
	protected.HandleFunc("/streak", h.GetStreak).Methods("GET")
	protected.HandleFunc("/wallet", h.GetWallet).Methods("GET")
	protected.HandleFunc("/transactions", h.ListTransactions).Methods("GET")

	// Admin routes
	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/users/{id:[0-9]+}/streak/reset", h.AdminResetStreak).Methods("POST")
	admin.HandleFunc("/users/{id:[0-9]+}/points", h.AdminAdjustPoints).Methods("POST")
	admin.HandleFunc("/users/{id:[0-9]+}/reconcile", h.AdminReconcile).Methods("GET")
	admin.HandleFunc("/drills/{drill_id}", h.AdminPutDrill).Methods("PUT")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server starting", zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver), zap.String("policy", string(policy)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
