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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"qrface/internal/attendance"
	"qrface/internal/auth"
	"qrface/internal/cloudinary"
	"qrface/internal/config"
	"qrface/internal/handler"
	"qrface/internal/metrics"
	"qrface/internal/profile"
	"qrface/internal/queue"
	"qrface/internal/sessions"
	"qrface/internal/store"
)

func main() {
	config.LoadDotenv()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		go runInlineWorker(ctx, mem, attendance.NewRepository(db.Client))
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	var registry sessions.Registry
	if cfg.RegistryBackend == "memory" {
		registry = sessions.NewMemory()
	} else {
		registry = sessions.NewRedisRegistry(redisClient.Client, "")
	}
	issuer := &sessions.Issuer{Registry: registry, TTL: cfg.FreshnessWindow}

	m := metrics.New(prometheus.DefaultRegisterer)
	records := attendance.NewRepository(db.Client)
	att := attendance.NewService(records, issuer, q, cfg.FreshnessWindow)
	att.OnResult = m.ObserveSubmission

	h := &handler.Handler{
		Profiles:   profile.NewRepository(db.Client),
		Records:    records,
		Attendance: att,
		Issuer:     issuer,
		Registry:   registry,
		Tokens:     auth.NewRefreshStore(db.Client),
		Metrics:    m,
		Auth: handler.AuthConfig{
			Issuer:     cfg.JWTIssuer,
			SigningKey: cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		CodeTTL: cfg.FreshnessWindow,
		Checks: map[string]func(context.Context) bool{
			"db":    func(ctx context.Context) bool { return db.Client.PingContext(ctx) == nil },
			"redis": redisClient.Healthy,
		},
	}

	cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if cdn.Enabled() {
		h.Photos = cdn
		log.Println("cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("cloudinary not configured, enrollment photos are not stored")
	}

	r := handler.NewRouter(h, handler.RouterConfig{
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// runInlineWorker processes the in-memory queue inside the api process.
func runInlineWorker(ctx context.Context, q *queue.InMemory, records *attendance.Repository) {
	proc := &attendance.Processor{Records: records}
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Printf("inline worker: %v", err)
		return
	}
	for msg := range messages {
		if err := proc.Handle(ctx, msg); err != nil {
			log.Printf("inline worker: %v", err)
		}
	}
}
