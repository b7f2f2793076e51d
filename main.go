package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	"github.com/piwdev/member-management-kiro-sub000/config"
	"github.com/piwdev/member-management-kiro-sub000/controller"
	"github.com/piwdev/member-management-kiro-sub000/dao"
	"github.com/piwdev/member-management-kiro-sub000/db"
	"github.com/piwdev/member-management-kiro-sub000/directory"
	"github.com/piwdev/member-management-kiro-sub000/jobs"
	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/router"
	"github.com/piwdev/member-management-kiro-sub000/service"
	"github.com/piwdev/member-management-kiro-sub000/store"
	"github.com/piwdev/member-management-kiro-sub000/store/memory"
	"github.com/piwdev/member-management-kiro-sub000/store/postgres"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger(config.GetString("log.dir"))
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pick the store backend. Neo4j is the default; postgres and memory are
	// drop-in alternatives behind the same interfaces.
	var st store.Store
	var dir directory.Directory
	switch backend := config.GetString("store.backend"); backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, config.GetString("postgres.dsn"))
		if err != nil {
			logger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer pool.Close()
		pgStore := postgres.New(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to ensure Postgres schema", zap.Error(err))
		}
		st = pgStore
		dir = directory.NewMemoryDirectory()
		logger.Warn("Employee directory runs in memory with the postgres backend; seed it from the HR sync")
	case "memory":
		st = memory.New()
		dir = directory.NewMemoryDirectory()
		logger.Warn("Using the in-memory store; all data is lost on restart")
	default:
		if err := db.InitNeo4j(); err != nil {
			logger.Fatal("Failed to initialize Neo4j", zap.Error(err))
		}
		defer db.CloseNeo4j()
		st = dao.NewStore(db.Neo4jDriver)
		dir = directory.NewNeo4jDirectory(db.Neo4jDriver)
	}

	// Initialize Redis
	if err := db.InitRedis(); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis()

	// Initialize EventBus
	eventBus := util.NewEventBus()
	eventBus.Start(ctx)

	// Initialize services and utilities
	validationUtil := util.NewValidationUtil()
	cacheService := util.NewCacheService()
	notificationService := util.NewNotificationService()
	util.RegisterNotificationHandlers(eventBus, notificationService)
	util.RegisterRoleChangeHandlers(eventBus, cacheService, notificationService)

	stats := metrics.New()
	auditService := audit.NewService(st, eventBus, stats)

	// The search mirror is best-effort: without Elasticsearch the ledger
	// still works, only the fast filtered search does not.
	var searchMirror *audit.SearchMirror
	if mirror, err := audit.NewSearchMirror(config.GetString("elasticsearch.url")); err != nil {
		logger.Warn("Audit search mirror disabled", zap.Error(err))
	} else {
		searchMirror = mirror
		audit.NewIndexer(mirror).Register(eventBus)
	}

	services, err := service.InitializeServices(st, dir, auditService, validationUtil, cacheService, eventBus, stats)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	// Background override sweep
	housekeeper := jobs.NewHousekeeper(st, auditService, stats, jobs.RedisSweepLock{}, config.GetDuration("housekeeping.interval"))
	housekeeper.Start(ctx)

	// Initialize controllers
	controllers := controller.InitializeControllers(services, auditService, searchMirror, housekeeper, stats)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	engine := router.SetupRouter(controllers, 100, time.Minute) // 100 requests per minute

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: engine,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", config.GetString("server.port")))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
