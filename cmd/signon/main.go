package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/signon/internal/cache"
	memcache "github.com/dropDatabas3/signon/internal/cache/memory"
	redcache "github.com/dropDatabas3/signon/internal/cache/redis"
	"github.com/dropDatabas3/signon/internal/config"
	"github.com/dropDatabas3/signon/internal/flow"
	"github.com/dropDatabas3/signon/internal/http/router"
	authsvc "github.com/dropDatabas3/signon/internal/http/services/auth"
	"github.com/dropDatabas3/signon/internal/metrics"
	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/rate"
	"github.com/dropDatabas3/signon/internal/store"
	memstore "github.com/dropDatabas3/signon/internal/store/memory"
	pgstore "github.com/dropDatabas3/signon/internal/store/pg"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "signon",
	})
	defer logger.Sync()
	zl := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cache backend (checks + discovery documents). Redis also backs the
	// rate limiter when available.
	var cc cache.Cache
	var limiter rate.Limiter
	switch cfg.Cache.Kind {
	case "redis":
		rc, err := redcache.New(cache.Config{
			Kind:   "redis",
			Addr:   cfg.Cache.Redis.Addr,
			DB:     cfg.Cache.Redis.DB,
			Prefix: cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			zl.Fatal("redis cache", logger.Err(err))
		}
		cc = rc
		if cfg.Rate.Enabled {
			limiter = rate.NewRedisLimiter(rc.Client(), "rl:", cfg.Rate.MaxRequests, cfg.RateWindow())
		}
	default:
		ttl, _ := time.ParseDuration(cfg.Cache.Memory.DefaultTTL)
		cc = memcache.New(ttl)
		if cfg.Rate.Enabled {
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.RateWindow())
		}
	}

	// Store backend
	var st store.Store
	switch cfg.Storage.Driver {
	case "postgres":
		pgs, err := pgstore.New(ctx, cfg.Storage.DSN, pgstore.Config{
			MaxConns: int32(cfg.Storage.Postgres.MaxOpenConns),
			MinConns: int32(cfg.Storage.Postgres.MaxIdleConns),
		})
		if err != nil {
			zl.Fatal("pg store", logger.Err(err))
		}
		if cfg.Storage.Postgres.Migrate {
			if err := pgs.Migrate(ctx); err != nil {
				zl.Fatal("pg migrate", logger.Err(err))
			}
		}
		st = pgs
	default:
		st = memstore.New()
	}
	defer st.Close()

	registry, err := config.BuildRegistry(cfg)
	if err != nil {
		zl.Fatal("providers", logger.Err(err))
	}

	if err := metrics.RegisterFlow(nil); err != nil {
		zl.Fatal("metrics", logger.Err(err))
	}

	httpc := &http.Client{Timeout: 10 * time.Second}
	engine := flow.New(flow.Deps{
		Checks: flow.NewCheckStore(flow.CheckStoreDeps{
			Cache:  cc,
			TTL:    cfg.CheckTTL(),
			Secure: cfg.Checks.CookieSecure,
		}),
		Resolver: flow.NewResolver(flow.ResolverDeps{HTTP: httpc, Cache: cc}),
		HTTP:     httpc,
	})

	svc := authsvc.NewService(authsvc.Deps{
		Registry: registry,
		Flow:     engine,
		Store:    st,
		BaseURL:  cfg.Server.BaseURL,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router.New(router.Deps{Auth: svc, Store: st, Limiter: limiter}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		zl.Info("server listening",
			logger.String("addr", cfg.Server.Addr),
			logger.Int("providers", len(registry.IDs())),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", logger.Err(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("shutdown", logger.Err(err))
	}
}
