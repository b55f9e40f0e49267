package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"vending-backend/config"
	"vending-backend/internal/advisor"
	"vending-backend/internal/api"
	"vending-backend/internal/bus"
	"vending-backend/internal/db"
	"vending-backend/internal/dispense"
	"vending-backend/internal/notification"
	"vending-backend/internal/payment"
	"vending-backend/internal/store"
	"vending-backend/internal/telemetry"
	"vending-backend/internal/ws"
)

func main() {
	logger := log.New(os.Stdout, "vending-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	mqttClient, err := bus.Connect(&cfg.MQTT)
	if err != nil {
		logger.Fatalf("failed to connect to MQTT broker: %v", err)
	}
	defer mqttClient.Close()

	hub := ws.NewHub()
	go hub.Run(ctx)

	// Alert pool runs only when push is configured; the ingestor and the
	// payment pipeline treat a nil alerter as disabled.
	var alerter telemetry.Alerter
	if webpushOptions != nil {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		alerter = pool
	}

	ingestor := telemetry.New(appStore, mqttClient, hub, alerter, cfg.Telemetry.LogInterval)
	if err := ingestor.Start(ctx); err != nil {
		logger.Fatalf("failed to subscribe to telemetry topics: %v", err)
	}
	logger.Println("telemetry ingestor started")

	commander := dispense.NewCommander(appStore, mqttClient)
	outboxWorker := dispense.NewWorker(appStore, commander, &cfg.Outbox)
	go outboxWorker.Run(ctx)

	gateway := payment.NewGateway(&cfg.Payment)
	payments := payment.NewService(appStore, gateway, commander, cfg.Payment.ServerKey, cfg.Payment.FrontendURL)
	if alerter != nil {
		payments.SetAlerter(alerter)
	}

	advisorSvc := advisor.NewService(appStore, cfg.Advisor.SessionTTL)

	router := api.NewRouter(&cfg.Server, api.Deps{
		Store:     appStore,
		Webpush:   webpushOptions,
		Bus:       mqttClient,
		Hub:       hub,
		Ingestor:  ingestor,
		Commander: commander,
		Payments:  payments,
		Advisor:   advisorSvc,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
