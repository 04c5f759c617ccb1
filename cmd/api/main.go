package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"alfredoptarigan/ai-cv-evaluator/internal/config"
	"alfredoptarigan/ai-cv-evaluator/internal/handlers"
	"alfredoptarigan/ai-cv-evaluator/internal/llm"
	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/repositories"
	"alfredoptarigan/ai-cv-evaluator/internal/services"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDatabase(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}

	docRepo := repositories.NewDocumentRepository(db)
	evalRepo := repositories.NewEvaluationRepository(db)

	storageService := services.NewStorageService(cfg.Storage.UploadPath, cfg.Storage.MaxFileSize)
	if err := storageService.EnsureUploadDir(); err != nil {
		log.Fatal("failed to create upload directory", zap.Error(err))
	}
	documentService := services.NewDocumentService(docRepo, storageService, log)

	var genaiClient *genai.Client
	if cfg.Gemini.Enabled() {
		genaiClient, err = llm.NewGenAIClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			log.Fatal("failed to initialize Gemini client", zap.Error(err))
		}
	}

	completion, err := llm.NewClientFromConfig(cfg, genaiClient, log)
	if err != nil {
		log.Fatal("failed to initialize completion client", zap.Error(err))
	}

	retriever := newRetriever(ctx, cfg, genaiClient, log)
	textStore := services.NewDocumentTextStore(docRepo, services.NewPDFParserService())

	evaluator := services.NewEvaluatorService(
		evalRepo,
		textStore,
		retriever,
		completion,
		services.NewPromptAssembler(cfg.Retrieval.ContextMaxChars),
		services.EvaluatorOptions{
			TopK:             cfg.Retrieval.TopK,
			PreferredBackend: cfg.LLM.PreferredBackend,
		},
		log,
	)

	policy := services.RetryPolicy{
		MaxAttempts:  cfg.Worker.RetryMaxAttempts,
		InitialDelay: cfg.Worker.RetryInitialDelay,
		Timeout:      cfg.Worker.EvaluationTimeout,
	}

	queue, stopQueue := startQueue(ctx, cfg, evaluator, policy, log)

	evaluationService := services.NewEvaluationService(evalRepo, textStore, queue, log)

	// A job untouched for longer than one attempt can take has lost its worker.
	var staleAfter time.Duration
	if cfg.Worker.EvaluationTimeout > 0 {
		staleAfter = cfg.Worker.EvaluationTimeout + cfg.Worker.PendingPollInterval
	}
	sweeper := services.NewPendingJobSweeper(evalRepo, queue, cfg.Worker.PendingPollInterval, staleAfter, log)
	go sweeper.Run(ctx)

	app := fiber.New(fiber.Config{
		AppName:      "AI CV Evaluator API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    int(cfg.Storage.MaxFileSize) * 2,
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	validate := validator.New()
	handlers.RegisterRoutes(app.Group("/api/v1"),
		handlers.NewUploadHandler(documentService, log),
		handlers.NewEvaluationHandler(evaluationService, validate, log),
		handlers.NewResultHandler(evaluationService, log),
	)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":  "AI CV Evaluator API",
			"version":  "1.1.0",
			"backends": completion.Backends(),
			"endpoints": []string{
				"POST /api/v1/upload",
				"POST /api/v1/evaluate",
				"GET /api/v1/result/:id",
			},
		})
	})

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("server starting", zap.String("addr", addr), zap.Strings("backends", completion.Backends()))

	if err := app.Listen(addr); err != nil {
		log.Error("server stopped", zap.Error(err))
	}

	stopQueue()
}

// newRetriever wires Qdrant and Gemini embeddings. Missing pieces leave the
// retriever unavailable, so evaluations fall back to the default rubrics.
func newRetriever(ctx context.Context, cfg *config.Config, genaiClient *genai.Client, log *zap.Logger) services.Retriever {
	opts := services.RetrievalOptions{TopK: cfg.Retrieval.TopK, MinScore: cfg.Retrieval.MinScore}

	if genaiClient == nil {
		log.Warn("no Gemini key, retrieval disabled")
		return services.NewRetrievalClient(nil, nil, opts, log)
	}

	store, err := services.NewQdrantService(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, cfg.Qdrant.VectorSize, log)
	if err == nil {
		err = store.InitCollection(ctx)
	}
	if err != nil {
		log.Warn("context store unavailable, retrieval disabled", zap.Error(err))
		return services.NewRetrievalClient(nil, nil, opts, log)
	}

	embedder := services.NewGeminiEmbedder(genaiClient, cfg.Retrieval.EmbeddingModel)
	return services.NewRetrievalClient(embedder, store, opts, log)
}

// startQueue picks asynq when Redis is configured and the in-process worker otherwise.
func startQueue(ctx context.Context, cfg *config.Config, evaluator services.EvaluatorService, policy services.RetryPolicy, log *zap.Logger) (services.JobQueue, func()) {
	if cfg.Redis.Addr == "" {
		worker := services.NewWorker(evaluator, cfg.Worker.Concurrency, policy, log)
		worker.Start(context.WithoutCancel(ctx))
		return worker, worker.Stop
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.Worker.Concurrency,
		Queues:         map[string]int{services.EvaluationQueue: 1},
		RetryDelayFunc: policy.RetryDelayFunc(),
		Logger:         log.Sugar(),
	})

	mux := asynq.NewServeMux()
	mux.Handle(services.TaskTypeEvaluate, services.NewEvaluationTaskHandler(evaluator, log))

	if err := server.Start(mux); err != nil {
		log.Fatal("failed to start asynq server", zap.Error(err))
	}
	log.Info("asynq worker started", zap.String("redis", cfg.Redis.Addr), zap.Int("concurrency", cfg.Worker.Concurrency))

	return services.NewAsynqQueue(client, policy, log), func() {
		server.Shutdown()
		if err := client.Close(); err != nil {
			log.Warn("failed to close asynq client", zap.Error(err))
		}
	}
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
