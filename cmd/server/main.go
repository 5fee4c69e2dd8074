package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-service/internal/api"
	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/config"
	"github.com/fathima-sithara/realtime-service/internal/events"
	"github.com/fathima-sithara/realtime-service/internal/handler"
	"github.com/fathima-sithara/realtime-service/internal/logger"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/service"
	callsignal "github.com/fathima-sithara/realtime-service/internal/signal"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoCli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		zlog.Fatalw("mongo connect", "err", err)
	}
	if err := mongoCli.Ping(ctx, nil); err != nil {
		zlog.Fatalw("mongo ping", "err", err)
	}
	db := mongoCli.Database(cfg.Mongo.Database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Fatalw("redis ping", "err", err)
	}

	messages := repository.NewMongoMessageRepository(db.Collection("messages"))
	rooms := repository.NewMongoRoomRepository(db.Collection("rooms"))
	receipts := repository.NewMongoReceiptRepository(db.Collection("receipts"))

	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicChatEvents)
	}

	hub := ws.NewHub(zlog)
	hub.AttachRelay(ws.NewRelay(rdb, cfg.Redis.Prefix+":fanout", zlog))

	pres := presence.NewStore(rdb, cfg.Redis.Prefix, 60*time.Second)

	chatSvc := service.NewChatService(messages, rooms, receipts, hub, producer, zlog)
	receiptSvc := service.NewReceiptService(messages, receipts, hub, zlog)
	router := callsignal.NewRouter(hub, zlog)
	dispatcher := handler.NewDispatcher(hub, chatSvc, receiptSvc, router, pres, zlog)

	validator := auth.NewValidator(cfg.JWT.Secret)
	app := api.NewServer(cfg, hub, dispatcher, chatSvc, pres, validator, zlog)

	errs := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.App.Port)
		zlog.Infow("starting realtime service", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		zlog.Fatalw("server error", "err", e)
	case s := <-sig:
		zlog.Infow("signal received", "signal", s.String())
	}

	if err := app.Shutdown(); err != nil {
		zlog.Warnw("fiber shutdown", "err", err)
	}
	if producer != nil {
		_ = producer.Close()
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = mongoCli.Disconnect(shutdownCtx)
	_ = rdb.Close()
	zlog.Infow("shut down")
}
