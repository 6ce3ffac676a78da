package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-product-ordering.git/internal/config"
	"github.com/ariefcatur/go-product-ordering.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-product-ordering.git/internal/kafka"
	"github.com/ariefcatur/go-product-ordering.git/internal/orders"
	"github.com/ariefcatur/go-product-ordering.git/internal/postgres"
	"github.com/ariefcatur/go-product-ordering.git/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers: completed & rejected placements
	pOK := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCompleted, 1024)
	pOK.Start(ctx)
	pRJ := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderRejected, 1024)
	pRJ.Start(ctx)

	// Stores & placement engine
	products := &orders.ProductRepo{DB: db}
	orderStore := &orders.OrderRepo{DB: db}
	placer := &orders.Placer{Products: products, Orders: orderStore}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Placer:            placer,
		Store:             orderStore,
		Redis:             rdb,
		ProducerCompleted: pOK,
		ProducerRejected:  pRJ,
		Service:           cfg.ServiceName,
	}
	oh.Register(router)
	ph := &httpx.ProductsHandler{Store: products, Redis: rdb}
	ph.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pOK.Close() // close inbox -> flush & close writer
	pRJ.Close()
	cancel() // stop producer loops
	pOK.WaitClosed()
	pRJ.WaitClosed()
}
