package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolbridge/portal/internal/auth"
	"schoolbridge/portal/internal/clients"
	"schoolbridge/portal/internal/config"
	"schoolbridge/portal/internal/db"
	internalhttp "schoolbridge/portal/internal/http"
	"schoolbridge/portal/internal/jobs"
	"schoolbridge/portal/internal/kv"
	"schoolbridge/portal/internal/oauth"
	"schoolbridge/portal/internal/portal"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	deps := portal.Deps{
		Options: auth.Options{
			ServiceTimeout: cfg.AuthServiceTimeout,
			OAuthTimeout:   cfg.OAuthTimeout,
		},
	}
	if cfg.AuthServiceGRPCAddr != "" {
		authClient, err := clients.New(ctx, cfg.AuthServiceGRPCAddr, cfg.ServiceAuthToken, cfg.GRPCDialTimeout)
		if err != nil {
			log.Fatalf("grpc dial failed: %v", err)
		}
		defer authClient.Close()
		deps.Service = authClient
	} else {
		log.Printf("auth service not configured: email login disabled")
	}

	var google *oauth.GoogleProvider
	var verifier *oauth.Verifier
	if cfg.GoogleClientID != "" {
		jwksURL := cfg.GoogleJWKSURL
		if jwksURL == "" {
			jwksURL = oauth.DefaultJWKSURL
		}
		verifier = oauth.NewVerifier(oauth.NewRemoteKeySet(jwksURL, nil), cfg.GoogleClientID)
		google = oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, verifier)
		deps.OAuth = google
	} else {
		log.Printf("google client id not set: google sign-in disabled")
	}

	registry := portal.NewRegistry(store, deps)
	server := internalhttp.NewServer(cfg, registry, google, verifier)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartEvictionJob(ctx, cfg, registry)

	go func() {
		log.Printf("portal http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (kv.Store, func()) {
	switch cfg.StoreBackend {
	case "memory":
		log.Printf("using in-memory store: sessions are lost on restart")
		return kv.NewMemoryStore(), func() {}
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connection failed: %v", err)
		}
		store := kv.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			log.Fatalf("db schema failed: %v", err)
		}
		return store, pool.Close
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		return kv.NewRedisStore(redisClient), func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}
	default:
		log.Fatalf("unknown store backend %q", cfg.StoreBackend)
		return nil, nil
	}
}
