package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Willperez332/Wan-2.2-Automation/internal/api"
	"github.com/Willperez332/Wan-2.2-Automation/internal/config"
	"github.com/Willperez332/Wan-2.2-Automation/internal/db"
	"github.com/Willperez332/Wan-2.2-Automation/internal/pipeline"
	"github.com/Willperez332/Wan-2.2-Automation/internal/queue"
	"github.com/Willperez332/Wan-2.2-Automation/internal/services"
	"github.com/Willperez332/Wan-2.2-Automation/internal/storage"
	"github.com/Willperez332/Wan-2.2-Automation/internal/worker"
)

func main() {
	log.Println("Starting Wan Automation API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		log.Fatalf("Failed to create upload dir: %v", err)
	}

	// Create API handler
	handler := api.NewHandler(database, q, cfg.UploadDir, cfg.MaxUploadSizeBytes)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		// Initialize services
		stor := storage.New(cfg.FalStorageURL, cfg.FalAPIKey, cfg.UploadThresholdBytes)
		log.Printf("Initialized fal storage (direct-upload threshold: %d bytes)", cfg.UploadThresholdBytes)

		geminiSvc := services.NewGeminiService(cfg.GeminiKey, cfg.AnalysisModel, cfg.CompositeModel)
		ffmpegSvc := services.NewFFmpegService(cfg.TempDir)
		falClient := services.NewFalClient(services.FalClientConfig{
			APIKey:               cfg.FalAPIKey,
			BaseURL:              cfg.FalBaseURL,
			Model:                cfg.FalModel,
			PollInterval:         cfg.FalPollInterval,
			PollTimeout:          cfg.FalPollTimeout,
			MaxTransportFailures: cfg.FalMaxTransportFailures,
		})
		log.Printf("Generation model: %s", cfg.FalModel)

		// Optional prompt enhancement — nil when disabled
		var enhancer pipeline.PromptEnhancer
		if cfg.OpenAIEnabled {
			enhancer = services.NewOpenAIService(cfg.OpenAIKey)
			log.Println("OpenAI prompt enhancement enabled")
		}

		// Optional Veo generator (legacy, replaces the fal path entirely)
		var generator pipeline.Generator
		if cfg.VeoEnabled {
			generator = services.NewVeoService(cfg.GeminiKey, cfg.VeoModel)
			log.Printf("Veo video generation enabled (model: %s)", cfg.VeoModel)
		}

		orch := pipeline.New(pipeline.Config{
			Extractor:          ffmpegSvc,
			Uploader:           stor,
			Jobs:               falClient,
			Clips:              database,
			Compositor:         geminiSvc,
			Enhancer:           enhancer,
			Generator:          generator,
			MaxConcurrentClips: cfg.MaxConcurrentClips,
		})

		// Create worker
		w := worker.New(database, q, geminiSvc, orch)

		// Start worker in background
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
