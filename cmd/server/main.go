package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/andresgm/shop-auth/internal/auth"
	"github.com/andresgm/shop-auth/internal/config"
	"github.com/andresgm/shop-auth/internal/database"
	"github.com/andresgm/shop-auth/internal/handler"
	"github.com/andresgm/shop-auth/internal/middleware"
	"github.com/andresgm/shop-auth/internal/queue"
	"github.com/andresgm/shop-auth/internal/repository"
	"github.com/andresgm/shop-auth/internal/router"
	"github.com/andresgm/shop-auth/internal/service"
	"github.com/andresgm/shop-auth/internal/storage"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	// Redis backs the denylist and the rate limiter.  Without it the
	// service still runs: logout then relies on the short access TTL.
	rdb := config.NewRedisClient()
	var denylist auth.Denylist = auth.NoopDenylist{}
	if rdb != nil {
		denylist = auth.NewRedisDenylist(rdb)
	} else {
		log.Print("redis unavailable: denylist and rate limiting disabled")
	}
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTLMin, denylist)

	store, err := storage.NewS3Storage(context.Background(),
		cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3User, cfg.S3Password)
	if err != nil {
		log.Fatalf("object storage: %v", err)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	images := repository.NewImageRepo(db)
	svc := service.NewAuthService(db, users, tokens, images, store, issuer, cfg,
		queue.PublishUserRegistered)

	go queue.StartAuthConsumer()

	e := echo.New()
	router.RegisterRoutes(e)
	limiter := middleware.NewFixedWindow(config.LoadRateLimitConfig(), rdb)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, svc), issuer, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
