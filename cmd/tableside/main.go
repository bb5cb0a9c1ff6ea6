package main

import (
	"context"
	"log"

	cartapp "tableside/internal/application/cart"
	payapp "tableside/internal/application/payment"
	"tableside/internal/application/session"
	"tableside/internal/config"
	"tableside/internal/infrastructure/http/ginserver"
	"tableside/internal/infrastructure/http/storefront"
	"tableside/internal/infrastructure/persistence/redisstore"
	"tableside/internal/interfaces/http/handler"
	"tableside/internal/interfaces/http/router"
	"tableside/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	appLog, err := logger.NewZapLogger(cfg.App.Env)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer appLog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := redisstore.New(cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer store.Close()

	client := storefront.NewClient(cfg.Storefront)
	sessions := session.NewManager(store)

	engine := cartapp.NewEngine(client, sessions, store, appLog)
	machine := payapp.NewMachine(client, store, engine, cfg.Payment, appLog)
	defer machine.Close()

	// Surface the cached cart immediately and resume any in-flight
	// payment before the UI connects.
	if _, err := engine.Activate(ctx); err != nil {
		appLog.Warn("initial cart load failed", logger.Error(err))
	}
	if err := machine.Resume(ctx); err != nil {
		appLog.Warn("payment resume failed", logger.Error(err))
	}

	cartHandler := handler.NewCartHandler(engine)
	paymentHandler := handler.NewPaymentHandler(machine, engine, client, store)
	tableHandler := handler.NewTableHandler(client, engine, store, appLog)
	orderHandler := handler.NewOrderHandler(client, sessions)
	resumeHandler := handler.NewResumeHandler(store)

	ginEngine := ginserver.NewEngine()
	router.RegisterRoutes(ginEngine, cartHandler, paymentHandler, tableHandler, orderHandler, resumeHandler)

	server := ginserver.NewServer(cfg.Server, ginEngine)
	appLog.Info("tableside client listening", logger.String("addr", cfg.Server.Address()))
	if err := server.Run(); err != nil {
		log.Fatalf("server run failed: %v", err)
	}
}
