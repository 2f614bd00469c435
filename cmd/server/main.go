package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"
	config "github.com/threadline/threadline/configs"
	"github.com/threadline/threadline/internal/api/handlers"
	"github.com/threadline/threadline/internal/api/middleware"
	job "github.com/threadline/threadline/internal/jobs"
	"github.com/threadline/threadline/internal/queue"
	"github.com/threadline/threadline/internal/repository"
	"github.com/threadline/threadline/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())

	threadRepo := repository.NewThreadRepository(db)
	userTokenRepo := repository.NewUserTokenRepository(db)

	r2Service := service.NewR2Service(*cfg)
	threadsClient := service.NewThreadsClient()
	threadService := service.NewThreadService(threadRepo, userTokenRepo, *r2Service)
	publisherService := service.NewPublisherService(*cfg, threadRepo, userTokenRepo, threadsClient, r2Service)

	publishJob := job.NewPublishJob(threadRepo, client)
	tokenRefreshJob := job.NewTokenRefreshJob(*cfg, userTokenRepo, threadsClient)
	cleanupJob := job.NewCleanupJob(*cfg, threadRepo, r2Service)

	queueW := queue.NewQueue(threadRepo, publisherService)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	worker := handlers.NewWorkerHandler(*cfg, publishJob)
	app.Post("/api/worker/run", worker.RunWorker)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	thread := handlers.NewThreadHandler(threadService)
	api.Post("/threads/create", thread.CreateThread)
	api.Get("/threads", thread.ListThreads)
	api.Post("/threads/remove", thread.RemoveThread)

	c := cron.New()
	c.AddFunc(fmt.Sprintf("@every %s", cfg.Worker.TickInterval), publishJob.Run)
	c.AddFunc("@every 00h10m00s", tokenRefreshJob.RefreshTokens)
	c.AddFunc("@every 01h00m00s", cleanupJob.PurgeOldThreads)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishThread, queueW.HandlePublishTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
