package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Silence-XiXi/queue-system/internal/config"
	"github.com/Silence-XiXi/queue-system/internal/httpapi"
	"github.com/Silence-XiXi/queue-system/internal/hub"
	"github.com/Silence-XiXi/queue-system/internal/scheduler"
	"github.com/Silence-XiXi/queue-system/internal/store/postgres"
	"github.com/Silence-XiXi/queue-system/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	h := hub.New()

	loc, err := time.LoadLocation(cfg.ResetTimezone)
	if err != nil {
		log.Printf("unknown timezone %q, using local time: %v", cfg.ResetTimezone, err)
		loc = time.Local
	}

	engine := scheduler.New(store, h, scheduler.Options{
		Location:       loc,
		PollInterval:   cfg.SettingsPoll,
		HealthInterval: cfg.HealthInterval,
		HealthGrace:    cfg.HealthGrace,
	})
	if err := engine.Start(context.Background()); err != nil {
		log.Fatalf("start reset scheduler: %v", err)
	}
	defer engine.Stop()

	handler := httpapi.NewHandler(store, h, engine, httpapi.Options{
		CallLogLimit: cfg.CallLogLimit,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", handler.Routes())

	sockjsHandler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			if _, err := session.Recv(); err != nil {
				return
			}
		}
	})
	mux.Handle("/realtime/", sockjsHandler)

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "queue-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
