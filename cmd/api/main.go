package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"ai-evaluator/internal/config"
	"ai-evaluator/internal/handlers"
	"ai-evaluator/internal/repositories"
	"ai-evaluator/internal/services"
)

func main() {
	cfg := config.Load()

	zlog, err := buildLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.Error(err))
	}

	docRepo := repositories.NewDocumentRepository(db)
	evalRepo := repositories.NewEvaluationRepository(db)

	storageService := services.NewStorageService(cfg.Storage.UploadPath)
	if err := storageService.EnsureUploadDir(); err != nil {
		zlog.Fatal("failed to create upload directory", zap.Error(err))
	}

	pdfParser := services.NewPDFParserService()

	embedder, err := services.NewGeminiEmbedder(
		cfg.Gemini.APIKey,
		cfg.Gemini.EmbedModel,
		int(cfg.Qdrant.VectorSize),
		cfg.LLM.Timeout,
		zlog.Named("embedder"),
	)
	if err != nil {
		zlog.Fatal("failed to initialize embedder", zap.Error(err))
	}

	gateway, err := services.NewQdrantGateway(
		cfg.Qdrant.URL,
		cfg.Qdrant.APIKey,
		cfg.Qdrant.VectorSize,
		cfg.Qdrant.Timeout,
		zlog.Named("qdrant"),
	)
	if err != nil {
		zlog.Fatal("failed to initialize qdrant", zap.Error(err))
	}

	ctx := context.Background()
	for _, collection := range []string{
		cfg.Qdrant.CatalogCollection,
		cfg.Qdrant.CVCollection,
		cfg.Qdrant.ProjectCollection,
	} {
		if err := gateway.EnsureCollection(ctx, collection); err != nil {
			zlog.Fatal("failed to ensure qdrant collection",
				zap.String("collection", collection), zap.Error(err))
		}
	}

	resolver := services.NewJobKeyResolver(
		embedder,
		gateway,
		cfg.Qdrant.CatalogCollection,
		cfg.Retrieval.TopK,
		cfg.Retrieval.MatchThreshold,
		zlog.Named("resolver"),
	)

	retriever := services.NewContextRetriever(
		embedder,
		gateway,
		cfg.Qdrant.CVCollection,
		cfg.Qdrant.ProjectCollection,
		zlog.Named("retriever"),
	)

	geminiProvider, err := services.NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.LLM.Timeout)
	if err != nil {
		zlog.Fatal("failed to initialize gemini provider", zap.Error(err))
	}
	openRouterProvider := services.NewOpenRouterProvider(
		cfg.OpenRouter.APIKey,
		cfg.OpenRouter.Model,
		cfg.OpenRouter.BaseURL,
		cfg.LLM.Timeout,
	)

	invoker := services.NewModelInvoker(
		[]services.ChatProvider{geminiProvider, openRouterProvider},
		cfg.LLM.MaxAttempts,
		cfg.LLM.RetryInitial,
		zlog.Named("invoker"),
	)

	evaluatorService := services.NewEvaluatorService(
		evalRepo,
		docRepo,
		resolver,
		retriever,
		invoker,
		pdfParser,
		cfg.Retrieval.TopK,
		cfg.Retrieval.StitchRadius,
		zlog.Named("evaluator"),
	)

	worker := services.NewWorker(
		evalRepo,
		evaluatorService,
		cfg.Worker.Concurrency,
		zlog.Named("worker"),
	)
	worker.Start(ctx)

	uploadHandler := handlers.NewUploadHandler(
		docRepo,
		storageService,
		cfg.Storage.MaxFileSize,
	)
	evaluateHandler := handlers.NewEvaluationHandler(
		evalRepo,
		docRepo,
		worker,
	)
	resultHandler := handlers.NewResultHandler(evalRepo)

	app := fiber.New(fiber.Config{
		AppName:      "AI CV & Project Evaluator API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    int(cfg.Storage.MaxFileSize),
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/upload", uploadHandler.HandleUpload)
	api.Post("/evaluate", evaluateHandler.HandleEvaluate)
	api.Get("/result/:id", resultHandler.HandleGetResult)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		worker.Stop()
		if err := app.Shutdown(); err != nil {
			zlog.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	zlog.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
