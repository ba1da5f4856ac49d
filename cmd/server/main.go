package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	webAdapter "barpos/internal/adapters/web"
	"barpos/internal/app"
	"barpos/internal/core"
	"barpos/internal/db"
	"barpos/internal/events"
	"barpos/internal/receipt"
	"barpos/internal/redisx"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	catalogService := core.NewCatalogService(pool)
	stockService := core.NewStockService(pool)
	orderService := core.NewOrderService(pool, stockService)

	// Kafka and Redis are optional: without them the server runs with events
	// and idempotency disabled.
	var producer *events.Producer
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("KAFKA_TOPIC")
		if topic == "" {
			topic = "barpos.orders"
		}
		producer = events.NewProducer(strings.Split(brokers, ","), topic, 256)
		producer.Start(ctx)
		log.Printf("events: publishing to %s", topic)
	} else {
		log.Println("events: KAFKA_BROKERS not set, publishing disabled")
	}

	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redisx.New(addr)
		defer rdb.Close()
	} else {
		log.Println("redis: REDIS_ADDR not set, idempotency disabled")
	}

	svc := app.NewAppService(pool, catalogService, orderService, stockService, producer, receipt.DefaultLayout())

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	handler := webAdapter.NewHandler(svc, rdb, os.Getenv("ALLOWED_ORIGINS"))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("server starting on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	producer.WaitClosed()
}
