package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/Mayur-00/crosspost-api/configs"
	"github.com/Mayur-00/crosspost-api/internal/api/handlers"
	"github.com/Mayur-00/crosspost-api/internal/api/middleware"
	job "github.com/Mayur-00/crosspost-api/internal/jobs"
	"github.com/Mayur-00/crosspost-api/internal/platform"
	"github.com/Mayur-00/crosspost-api/internal/queue"
	"github.com/Mayur-00/crosspost-api/internal/repository"
	"github.com/Mayur-00/crosspost-api/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"
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
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	platformPostRepo := repository.NewPlatformPostRepository(db)
	oauthSessionRepo := repository.NewOAuthSessionRepository(db)
	apiKeyRepository := repository.NewApiKeyRepository(db)

	xPublisher := platform.NewXPublisher(*cfg)
	linkedinPublisher := platform.NewLinkedinPublisher(*cfg)
	registry := platform.NewRegistry(xPublisher, linkedinPublisher)
	fetcher := platform.NewMediaFetcher()

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo, socialAccountRepo)
	r2Service := service.NewR2Service(*cfg)
	postService := service.NewPostService(postRepo, platformPostRepo, socialAccountRepo, r2Service)
	sessionService := service.NewSessionService(oauthSessionRepo)
	connectService := service.NewConnectService(*cfg, sessionService, socialAccountRepo, xPublisher, linkedinPublisher)
	tokenService := service.NewTokenService(*cfg, socialAccountRepo, registry)
	apiKeyService := service.NewApiKeyService(apiKeyRepository)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	publishQueue := queue.NewQueue(redisConn)
	defer publishQueue.Close()

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)

	platformHandler := handlers.NewPlatformHandler(*cfg, connectService)
	app.Get("/auth/:platform/callback", platformHandler.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/auth/:platform", platformHandler.AddSocialAccount)

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(postService, publishQueue)
	api.Post("/posts/create", post.CreatePost)
	api.Post("/posts/publish", post.PublishPost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/remove", post.RemovePost)

	// social accounts api routes
	api.Get("/accounts", platformHandler.ListSocialAccounts)
	api.Post("/accounts/remove", platformHandler.DeleteSocialAccount)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, tokenService)
	sessionCleanupJob := job.NewSessionCleanupJob(oauthSessionRepo)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 00h10m00s", sessionCleanupJob.RemoveExpiredSessions)
	c.Start()

	worker := queue.NewWorker(postRepo, socialAccountRepo, platformPostRepo, tokenService, registry, fetcher)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency:    3,
			RetryDelayFunc: queue.RetryDelay,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, worker.HandlePublishTask)

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
