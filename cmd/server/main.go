package main // Entry point of the sync backend

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"    // .env loader for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/termin-manager/internal/config"
	"github.com/iliyamo/termin-manager/internal/database"
	"github.com/iliyamo/termin-manager/internal/handler"
	"github.com/iliyamo/termin-manager/internal/middleware"
	"github.com/iliyamo/termin-manager/internal/queue"
	"github.com/iliyamo/termin-manager/internal/repository"
	"github.com/iliyamo/termin-manager/internal/router"
)

func main() {
	_ = godotenv.Load() // best effort; real deployments set the environment directly
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureSchema(ctx, db); err != nil {
		cancel()
		log.Fatalf("schema: %v", err)
	}
	cancel()

	// Redis is optional: a nil client disables response caching and rate
	// limiting but the API stays fully functional.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; caching and rate limiting disabled")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	orgs := repository.NewOrgRepo(db)
	states := repository.NewStateRepo(db)
	backups := repository.NewBackupRepo(db)
	branding := repository.NewBrandingRepo(db)

	auth := handler.NewAuthHandler(cfg, users, tokens, orgs)
	sync := handler.NewSyncHandler(states, backups, orgs, branding, rdb)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, auth, cfg.JWTSecret)
	router.RegisterSync(e, sync, cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	)

	// Audit consumer: appends a line to logs/sync.log for every push.
	go func() {
		if err := queue.StartSyncConsumer(); err != nil {
			log.Printf("sync consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
