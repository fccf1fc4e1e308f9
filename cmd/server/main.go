package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"gopkg.in/yaml.v3"

	"github.com/kindcoach/kindcoach/internal/ai"
	"github.com/kindcoach/kindcoach/internal/auth"
	"github.com/kindcoach/kindcoach/internal/cleanup"
	"github.com/kindcoach/kindcoach/internal/handlers"
	"github.com/kindcoach/kindcoach/internal/queue"
	"github.com/kindcoach/kindcoach/internal/storage"
	"github.com/kindcoach/kindcoach/internal/transcription"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	AssemblyAI struct {
		Language    string `yaml:"language"`
		PollSeconds int    `yaml:"poll_seconds"`
	} `yaml:"assemblyai"`

	OpenAI struct {
		Model string `yaml:"model"`
	} `yaml:"openai"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Storage struct {
		TempDir     string `yaml:"temp_dir"`
		DataDir     string `yaml:"data_dir"`
		Database    string `yaml:"database"`
		PromptsFile string `yaml:"prompts_file"`
		BackupDir   string `yaml:"backup_dir"`
	} `yaml:"storage"`

	Auth struct {
		SessionMinutes int `yaml:"session_minutes"`
	} `yaml:"auth"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`
}

func main() {
	// Load configuration
	config, err := loadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure directories exist
	if err := cleanup.EnsureTempDirExists(config.Storage.TempDir); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	if err := os.MkdirAll(config.Storage.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Custom logger setup
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	log.SetOutput(multiWriter)

	// Initialize components
	log.Println("Initializing components...")

	// Speech recognition client
	transcriber, err := transcription.NewClient(
		os.Getenv("ASSEMBLYAI_API_KEY"),
		transcription.WithLanguage(config.AssemblyAI.Language),
		transcription.WithPollInterval(time.Duration(config.AssemblyAI.PollSeconds)*time.Second),
	)
	if err != nil {
		log.Fatalf("Failed to initialize speech client: %v", err)
	}

	// Prompt templates and LLM analyzer
	prompts, err := ai.NewPromptStore(config.Storage.PromptsFile, config.Storage.BackupDir)
	if err != nil {
		log.Fatalf("Failed to load prompts: %v", err)
	}
	analyzer, err := ai.New(os.Getenv("OPENAI_API_KEY"), config.OpenAI.Model, prompts)
	if err != nil {
		log.Fatalf("Failed to initialize analyzer: %v", err)
	}

	// Conversation record store
	store, err := storage.NewStore(config.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}

	// Conversation index
	index, err := storage.NewIndex(config.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer index.Close()

	// Google Drive archiver (optional - may fail if credentials not set up)
	var archiver queue.Archiver
	if _, err := os.Stat(config.GoogleDrive.CredentialsFile); err == nil {
		driveArchiver, err := storage.NewDriveArchiver(
			config.GoogleDrive.CredentialsFile,
			config.GoogleDrive.TokenFile,
			config.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Records will only be saved locally")
		} else {
			log.Println("Google Drive archiving enabled")
			archiver = driveArchiver
		}
	} else {
		log.Println("Google Drive credentials not found - saving locally only")
	}

	// Auth
	adminUser := os.Getenv("ADMIN_USERNAME")
	adminPass := os.Getenv("ADMIN_PASSWORD")
	authManager, err := auth.NewManager(adminUser, adminPass,
		time.Duration(config.Auth.SessionMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("Failed to initialize auth (set ADMIN_USERNAME and ADMIN_PASSWORD): %v", err)
	}

	// Worker pool
	workerPool := queue.NewWorkerPool(
		config.Workers.Count,
		config.Storage.TempDir,
		transcriber,
		store,
		index,
		archiver,
	)
	workerPool.Start()

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		config.Storage.TempDir,
		time.Duration(config.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(config.Cleanup.MaxAgeHours)*time.Hour,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: config.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authManager)
	uploadHandler := handlers.NewUploadHandler(workerPool, config.Storage.TempDir, config.Limits.MaxFileSizeMB)
	jobHandler := handlers.NewJobHandler(workerPool)
	conversationHandler := handlers.NewConversationHandler(store, index)
	analysisHandler := handlers.NewAnalysisHandler(store, analyzer)
	promptHandler := handlers.NewPromptHandler(prompts)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/api/login", authHandler.Login)

	api := app.Group("/api", authManager.Middleware())
	api.Post("/logout", authHandler.Logout)

	api.Post("/upload", uploadHandler.Handle)
	api.Get("/jobs/:id", jobHandler.Status)

	api.Get("/conversations", conversationHandler.List)
	api.Get("/conversations/:id", conversationHandler.Get)
	api.Delete("/conversations/:id", conversationHandler.Delete)
	api.Get("/conversations/:id/export", conversationHandler.Export)

	api.Post("/conversations/:id/analyses/:kind", analysisHandler.Run)
	api.Get("/conversations/:id/analyses/:kind", analysisHandler.Get)
	api.Post("/conversations/:id/report", analysisHandler.Report)

	api.Get("/prompts", promptHandler.List)
	api.Get("/prompts/backups", promptHandler.Backups)
	api.Post("/prompts/restore", promptHandler.Restore)
	api.Get("/prompts/:id", promptHandler.Get)
	api.Put("/prompts/:id", promptHandler.Update)

	// WebSocket route for job progress
	app.Get("/ws/jobs/:id", websocket.New(jobHandler.Stream))

	// Get server logs
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST   /api/login                  - Login")
	log.Println("   POST   /api/upload                 - Upload conversation recording")
	log.Println("   GET    /api/jobs/:id               - Job status")
	log.Println("   GET    /ws/jobs/:id                - Job progress stream")
	log.Println("   GET    /api/conversations          - List conversations")
	log.Println("   GET    /api/conversations/:id      - Get conversation record")
	log.Println("   POST   /api/conversations/:id/analyses/:kind - Run analysis")
	log.Println("   GET    /api/prompts                - Prompt templates")
	log.Println("   GET    /logs                       - View server logs")
	log.Println("   GET    /health                     - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

// loadConfig loads configuration from YAML file
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
