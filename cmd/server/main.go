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
	"github.com/spf13/cobra"

	"order-ingestion-engine/internal/api"
	"order-ingestion-engine/internal/book"
	"order-ingestion-engine/internal/config"
	"order-ingestion-engine/internal/db"
	"order-ingestion-engine/internal/engine"
	"order-ingestion-engine/internal/exchange"
	"order-ingestion-engine/internal/queue"
	"order-ingestion-engine/internal/service"
	"order-ingestion-engine/internal/store"
)

// storeAdapter narrows *store.Store to the processor's transaction interface.
type storeAdapter struct {
	*store.Store
}

func (a storeAdapter) Begin(ctx context.Context) (engine.Tx, error) {
	return a.Store.Begin(ctx)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "order-ingestion-engine",
		Short: "order ingestion and matching engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "run the matching engine and submission endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
}

func serve() error {
	// Load environment variables if present (non-fatal).
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] .env not loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Println("[INFO] starting order ingestion engine...")

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Println("[INFO] closing database connection...")
		database.Close()
	}()
	log.Println("[INFO] database connection established")

	if err := db.Migrate(database); err != nil {
		return err
	}

	st, err := store.New(database)
	if err != nil {
		return err
	}
	defer st.Close()

	books := book.NewRegistry()
	q := queue.New()
	client := exchange.NewHTTPClient(cfg.ExchangeURL)
	processor := engine.NewProcessor(storeAdapter{st}, books, client, q, cfg.MaxRetries, cfg.RetryDelay)

	// Restore in-memory book state from the store before the worker starts.
	resting, err := st.LoadResting(context.Background())
	if err != nil {
		return err
	}
	processor.Restore(resting)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go processor.Run(workerCtx)

	svc := service.New(st, processor)
	srv := api.NewServer(svc, st, database)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[INFO] server starting on %s", cfg.HTTPAddr)
		if err := srv.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[ERROR] server failed: %v", err)
		}
	}()

	<-stop
	log.Println("[INFO] shutdown signal received, initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[ERROR] server forced to shutdown: %v", err)
	} else {
		log.Println("[INFO] server gracefully stopped")
	}

	// Any id left in the queue is dropped; all state is durable before
	// enqueue, so restart recovery re-enqueues it.
	stopWorker()
	q.Close()
	return nil
}

func migrate() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] .env not loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	const maxAttempts = 5
	const retryDelay = 5 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := db.Connect(cfg)
		if err != nil {
			log.Printf("[WARN] database not reachable (attempt %d/%d): %v", attempt, maxAttempts, err)
			if attempt == maxAttempts {
				return err
			}
			time.Sleep(retryDelay)
			continue
		}
		defer conn.Close()

		if err := db.Migrate(conn); err != nil {
			return err
		}
		log.Println("[INFO] database migrations completed successfully")
		return nil
	}
	return nil
}
