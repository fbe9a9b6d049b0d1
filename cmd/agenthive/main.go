// Package main is the entry point for the agenthive server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/agenthive/agenthive/pkg/api"
	"github.com/agenthive/agenthive/pkg/config"
	"github.com/agenthive/agenthive/pkg/executor"
	"github.com/agenthive/agenthive/pkg/integrations"
	"github.com/agenthive/agenthive/pkg/middleware"
	"github.com/agenthive/agenthive/pkg/registry"
	"github.com/agenthive/agenthive/pkg/scheduler"
	"github.com/agenthive/agenthive/pkg/scripting"
	"github.com/agenthive/agenthive/pkg/services"
	"github.com/agenthive/agenthive/pkg/storage"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "agenthive"
)

func main() {
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Application failed: %v", err)
		}
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			log.Fatalf("Error during shutdown: %v", err)
		}
	}
}

// loadConfig loads the configuration from the flag, standard locations,
// or defaults
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
	} else {
		locations := []string{
			"./config.json",
			"./configs/config.json",
			filepath.Join(os.Getenv("HOME"), ".agenthive", "config.json"),
			"/etc/agenthive/config.json",
		}

		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}

		if cfg == nil {
			cfg = config.DefaultConfig()

			defaultPath := filepath.Join(os.Getenv("HOME"), ".agenthive", "config.json")
			if err := config.SaveConfig(cfg, defaultPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}

			fmt.Printf("Created default configuration at %s\n", defaultPath)
		}
	}

	// A missing JWT secret gets a generated one; tokens won't survive a
	// restart but nothing breaks
	if cfg.Auth.JWTSecret == "" {
		secret, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
	}

	return cfg, nil
}

// generateRandomKey generates a random hex key of the specified length
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// App represents the agenthive application
type App struct {
	config          *config.Config
	server          *api.Server
	storageProvider storage.StorageProvider
	manager         *executor.Manager
	scheduler       *scheduler.CronScheduler
	events          *api.EventBroker
	redisClient     *redis.Client
}

// NewApp wires the application together
func NewApp(cfg *config.Config) (*App, error) {
	provider, err := storage.NewProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Using %s storage provider", cfg.Storage.Type)

	accountService := services.NewAccountService(provider.GetAccountStore(), provider.GetCreditStore())
	jwtService := services.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiration)
	creditService := services.NewCreditService(
		provider.GetCreditStore(),
		provider.GetAccountStore(),
		provider.GetAgentStore(),
		provider.GetWorkflowStore(),
		provider.GetConnectionStore(),
		nil,
	)

	dispatcher := integrations.NewRegistry(provider.GetConnectionStore())
	dispatcher.Register(integrations.NewCoreDispatcher())
	dispatcher.Register(integrations.NewHTTPDispatcher())
	dispatcher.Register(integrations.NewGmailDispatcher())
	dispatcher.Register(integrations.NewSlackDispatcher())
	dispatcher.Register(integrations.NewNotionDispatcher())
	log.Printf("Registered integrations: %v", dispatcher.Names())

	exec := executor.NewExecutor(
		provider.GetWorkflowStore(),
		provider.GetExecutionStore(),
		dispatcher,
		scripting.NewJSEvaluator(),
		creditService,
		nil,
	)

	hub := api.NewHub(nil)
	events := api.NewEventBroker(nil)

	manager := executor.NewManager(
		exec,
		provider.GetExecutionStore(),
		cfg.Executor.Workers,
		cfg.Executor.QueueSize,
		executor.MultiNotifier{hub, events},
		nil,
	)

	cronScheduler := scheduler.New(provider.GetScheduleStore(), provider.GetWorkflowStore(), manager, nil)

	var limiter middleware.Limiter
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = middleware.NewRedisRateLimiter(redisClient, 100, time.Minute, nil)
		log.Printf("Using Redis rate limiter at %s", cfg.Redis.Address)
	}

	server := api.NewServer(cfg, api.Dependencies{
		Accounts:    accountService,
		JWT:         jwtService,
		Credits:     creditService,
		Workflows:   registry.NewWorkflowRegistry(provider.GetWorkflowStore(), provider.GetExecutionStore(), provider.GetScheduleStore(), creditService),
		Agents:      registry.NewAgentRegistry(provider.GetAgentStore(), creditService),
		Connections: registry.NewConnectionRegistry(provider.GetConnectionStore(), creditService),
		Schedules:   provider.GetScheduleStore(),
		Executions:  provider.GetExecutionStore(),
		Manager:     manager,
		Executor:    exec,
		Scheduler:   cronScheduler,
		Hub:         hub,
		Events:      events,
		Limiter:     limiter,
	})

	return &App{
		config:          cfg,
		server:          server,
		storageProvider: provider,
		manager:         manager,
		scheduler:       cronScheduler,
		events:          events,
		redisClient:     redisClient,
	}, nil
}

// Start starts the worker pool, scheduler, and HTTP server. Blocks
// until the server exits.
func (a *App) Start() error {
	a.manager.Start()
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return a.server.Start()
}

// Stop shuts everything down in dependency order
func (a *App) Stop(ctx context.Context) error {
	if err := a.server.Stop(ctx); err != nil {
		return err
	}

	a.scheduler.Stop()
	a.manager.Stop()
	a.events.Close()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}

	return a.storageProvider.Close()
}
