package main

import (
	"context"
	"log"
	"time"

	"paperlens/internal/activities"
	"paperlens/internal/config"
	"paperlens/internal/storage"
	"paperlens/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// The worker hosts the ingest workflow and all of its activities. It needs
// Postgres for the repositories and Temporal for the task queue; both are
// checked at startup so a misconfigured worker dies loudly.
func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatalf("temporal dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	a, err := activities.New(cfg, db)
	if err != nil {
		log.Fatalf("activities: %v", err)
	}

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, a)

	log.Printf("paperlens worker listening on %s queue=%s llm_providers=%q embed_providers=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.LLMProviders, cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
