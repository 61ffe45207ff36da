package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/vigilo/vigilo/internal/channels"
	"github.com/vigilo/vigilo/internal/config"
	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/handlers"
	"github.com/vigilo/vigilo/internal/httpx"
	"github.com/vigilo/vigilo/internal/hub"
	"github.com/vigilo/vigilo/internal/jobs"
	"github.com/vigilo/vigilo/internal/middleware"
	"github.com/vigilo/vigilo/internal/peers"
	"github.com/vigilo/vigilo/internal/services"
)

func main() {
	// Load .env file if present (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.AdminPassword == "" {
		log.Fatal("ADMIN_PASSWORD must be set")
	}
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize defaults: %v", err)
	}

	db := database.GetDB()

	clients := httpx.NewFactory(map[string]time.Duration{
		httpx.ClientHealthCheck:      time.Duration(cfg.HealthCheckTimeoutSeconds) * time.Second,
		httpx.ClientPeerHeartbeat:    time.Duration(cfg.PeerTimeoutSeconds) * time.Second,
		httpx.ClientPeerNotification: time.Duration(cfg.PeerTimeoutSeconds) * time.Second,
	})

	registry := channels.NewRegistry()
	if err := registerGlobalChannels(registry, cfg, clients); err != nil {
		log.Fatalf("Failed to load channel provisioning: %v", err)
	}

	events := hub.New()
	stateMachine := services.NewStateMachine(db, events)
	evaluator := services.NewThresholdEvaluator(db)
	dispatcher := services.NewDispatcher(db, registry, clients, events)
	pairing := services.NewPairingService(db, cfg.InstanceName, cfg.BaseURL, cfg.PeerHeartbeatIntervalSeconds, clients)
	peerClient := peers.NewClient(clients)

	auth := middleware.NewAuthMiddleware(&middleware.AuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/auth/login",
			"/checkin/*",
			"/pair/accept",
			"/pair/unpair",
			"/peer/*",
			"/ws",
		},
	})
	cors := middleware.NewCORSMiddleware()

	mux := http.NewServeMux()
	handler := handlers.New(db, stateMachine, evaluator, pairing, auth, events)
	handler.SetupRoutes(mux)

	stop := make(chan struct{})
	scheduler := jobs.NewScheduler(db, stateMachine, dispatcher, clients, peerClient)
	scheduler.StartAll(stop)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: cors.Wrap(auth.Wrap(mux)),
	}

	go func() {
		log.Printf("Starting server on port %d", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// registerGlobalChannels builds the dispatch fallback channels from the
// optional provisioning file
func registerGlobalChannels(registry *channels.Registry, cfg *config.Config, clients *httpx.Factory) error {
	configured, err := config.LoadChannels(cfg.ChannelsFile)
	if err != nil {
		return err
	}
	for _, cc := range configured {
		switch cc.Type {
		case channels.TypeSlack:
			registry.Register(channels.NewSlackChannel(cc.BotToken, cc.Channel, cc.Enabled))
		case channels.TypeWebhook:
			registry.Register(channels.NewWebhookChannel(cc.URL, cc.Headers, cc.Enabled, clients.Client(httpx.ClientNotification)))
		default:
			log.Printf("Ignoring channel with unknown type %q", cc.Type)
		}
	}
	return nil
}
