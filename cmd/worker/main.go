package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qrface/internal/attendance"
	"qrface/internal/config"
	"qrface/internal/queue"
	"qrface/internal/store"
)

// Worker consumes recorded check-ins, marks them present and keeps per-meeting tallies.
func main() {
	config.LoadDotenv()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.QueueBackend == "memory" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis; the memory queue lives inside the api process")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("warning: redis not reachable at %s, consumer will keep retrying", cfg.RedisAddr)
	}

	proc := &attendance.Processor{
		Records: attendance.NewRepository(db.Client),
		Tally:   attendance.NewRedisTally(redisClient.Client),
	}

	messages, err := queue.NewRedisQueue(redisClient.Client, "").Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		err := proc.Handle(ctx, msg)
		switch {
		case errors.Is(err, attendance.ErrSkipped):
			log.Printf("skipping message type %q", msg.Type)
		case err != nil:
			log.Printf("process %s failed: %v", msg.Type, err)
		}
	}

	log.Println("worker stopped")
}
