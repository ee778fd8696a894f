package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/waveroom/api/internal/client"
	"github.com/waveroom/api/internal/config"
	"github.com/waveroom/api/internal/handler"
	"github.com/waveroom/api/internal/middleware"
	"github.com/waveroom/api/internal/provider"
	"github.com/waveroom/api/internal/queue"
	"github.com/waveroom/api/internal/service"
	"github.com/waveroom/api/internal/store"
	"github.com/waveroom/api/internal/worker"
	ws "github.com/waveroom/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client and inspector
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Job/asset/artifact store and work queue
	jobStore := store.NewRedisStore(redisClient, 7*24*time.Hour)
	workQueue := queue.NewAsynqQueue(asynqClient, inspector)

	// Webhook callback base URL
	webhookBase := "http://localhost:" + cfg.Server.Port
	if cfg.Server.ApiDomain != "" {
		webhookBase = "https://" + cfg.Server.ApiDomain
	}

	// Initialize storage (optional - falls back to mock storage)
	var storageClient client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Fatalf("Failed to initialize R2 client: %v", err)
		}
		storageClient = r2Client
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
		storageClient = client.NewMockStorage(cfg.R2.PublicURL)
	}

	// Provider submission clients
	replicateClient := client.NewReplicateClient(&cfg.Replicate, webhookBase+"/webhooks/replicate")
	customClient := client.NewCustomClient(&cfg.Custom, webhookBase+"/webhooks/custom")
	submitters := map[string]client.ToolSubmitter{
		"replicate": replicateClient,
		"custom":    customClient,
	}

	// Webhook registry (verification + normalization)
	registry := provider.NewRegistry(cfg.Webhook.Secrets())

	// Initialize services
	fetcher := client.NewHTTPFetcher(time.Duration(cfg.Materialize.FetchTimeoutSec) * time.Second)
	materializer := service.NewMaterializer(
		storageClient,
		fetcher,
		jobStore,
		cfg.Materialize.Concurrency,
		time.Duration(cfg.Materialize.ArtifactTTLHours)*time.Hour,
	)
	recoveryService := service.NewRecoveryService(jobStore, workQueue, materializer, hub, cfg.Recovery)
	reconcileService := service.NewReconcileService(jobStore, workQueue, materializer, hub)
	jobService := service.NewJobService(jobStore, workQueue, recoveryService)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	webhookHandler := handler.NewWebhookHandler(registry, reconcileService)
	recoveryHandler := handler.NewRecoveryHandler(recoveryService)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-Session-* headers
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB, webhooks only carry references
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		depth, _ := workQueue.Depth(c.Context())
		return c.JSON(fiber.Map{
			"status":     "ok",
			"queueDepth": depth,
			"services": fiber.Map{
				"replicate": replicateClient.IsConfigured(),
				"custom":    customClient.IsConfigured(),
				"storage":   storageClient != nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour), jobHandler.Create)
	jobs.Get("/:jobId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), jobHandler.Status)

	// Provider webhooks (HMAC-verified, no session auth)
	app.Post("/webhooks/:provider", webhookHandler.Receive)

	// Operator routes
	admin := app.Group("/admin", middleware.OperatorAuth(cfg.Operator.Token))
	admin.Post("/recovery/sweep", recoveryHandler.Sweep)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server for job dispatch
	go startWorkerServer(cfg, jobStore, submitters)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, jobStore store.Store, submitters map[string]client.ToolSubmitter) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queue.QueueTools: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	dispatchWorker := worker.NewDispatchWorker(jobStore, submitters)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeDispatch, dispatchWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
