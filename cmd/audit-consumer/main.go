package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	mongoadapter "github.com/robertarktes/event-ticketing/internal/adapters/mongo"
	"github.com/robertarktes/event-ticketing/internal/adapters/rabbit"
	"github.com/robertarktes/event-ticketing/internal/audit"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/config"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := observability.NewLogger(cfg.LogLevel)

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())

	auditLogger := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDatabase), logger)
	if err := auditLogger.EnsureIndexes(connectCtx); err != nil {
		log.Fatalf("failed to create audit indexes: %v", err)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, cfg.AuditQueue, "#", 20)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume %s: %v", cfg.AuditQueue, err)
	}

	sink := audit.NewSink(auditLogger, clock.NewSystem(), logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sink.Run(ctx, deliveries)
	}()
	logger.WithField("queue", cfg.AuditQueue).Info("audit consumer started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-done:
		logger.Warn("deliveries stopped")
	}
	stop()
	logger.Info("Shutdown audit consumer")
}
