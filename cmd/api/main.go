package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gatekit.dev/internal/audit"
	"gatekit.dev/internal/authz"
	"gatekit.dev/internal/httpapi"
	"gatekit.dev/internal/obs"
	"gatekit.dev/internal/pipeline"
	"gatekit.dev/internal/ratelimit"
	"gatekit.dev/internal/session"
	"gatekit.dev/internal/tenant"
	"gatekit.dev/internal/token"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GATEKIT_COMMIT"))

	production := os.Getenv("GATEKIT_ENV") == "production"

	tokens, err := token.NewService(os.Getenv("GATEKIT_AUTH_SECRET"))
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	stores, err := tenant.RegistryFromEnv()
	if err != nil {
		log.Fatalf("tenant stores: %v", err)
	}
	defer stores.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := tenant.BootstrapAll(bootCtx, stores); err != nil {
		bootCancel()
		log.Fatalf("schema bootstrap: %v", err)
	}
	bootCancel()

	tenantCfg := tenant.ConfigFromEnv()

	// Redis backs the rate-limit counter when configured; the in-process
	// counter serves single-instance deployments.
	var counter ratelimit.Counter = ratelimit.NewLocalCounter()
	var redisClient *redis.Client
	if addr := os.Getenv("GATEKIT_REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		counter = ratelimit.NewRedisCounter(redisClient)
	}

	registry, err := authz.NewRegistry(authz.DefaultRoles())
	if err != nil {
		log.Fatalf("role registry: %v", err)
	}

	p, err := pipeline.New(
		tenant.NewResolver(tenantCfg, stores),
		ratelimit.NewGate(counter, ratelimit.DefaultRoutes()),
		session.NewAuthenticator(),
		audit.NewRecorder(),
		pipeline.PGFactory{},
		registry,
		authz.WithDisabled(os.Getenv("GATEKIT_RBAC_DISABLED") == "true"),
	)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	api := httpapi.New(p, tokens, version,
		httpapi.WithDevMode(!production),
		httpapi.WithReadyProbe(httpapi.ReadyProbe{
			Check: func(ctx context.Context) error {
				return stores.Each(func(binding string, db *sql.DB) error {
					return db.PingContext(ctx)
				})
			},
		}),
	)

	addr := os.Getenv("GATEKIT_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatekit-api %s on %s (tenants=%d)", version, srv.Addr, stores.Tenants())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Println("Stopped")
}
