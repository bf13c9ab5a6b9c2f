package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"fable-server/internal/ai"
	"fable-server/internal/config"
	"fable-server/internal/database"
	"fable-server/internal/handler"
	"fable-server/internal/imagegen"
	appLogger "fable-server/internal/logger"
	"fable-server/internal/narrative"
	"fable-server/internal/prompt"
	"fable-server/internal/repository"
	"fable-server/internal/service"
	"fable-server/internal/settings"
	"fable-server/internal/storage"
	"fable-server/internal/tts"
	"fable-server/pkg/taskrunner"
)

func main() {
	// Стандартный log только для самых ранних ошибок, до инициализации zap.
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используются переменные окружения")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := appLogger.New(appLogger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer logger.Sync()
	logger.Info("Логгер инициализирован", zap.String("logLevel", cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL + миграции ---
	pool, err := database.NewPool(ctx, cfg.GetDSN(), logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer pool.Close()

	if err := database.ApplyMigrations(ctx, pool, logger); err != nil {
		logger.Fatal("Не удалось применить миграции", zap.Error(err))
	}

	// --- Redis (кэш настроек генерации) ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Кэш не критичен: настройки читаются напрямую из БД.
		logger.Warn("Redis недоступен, кэш настроек отключен", zap.Error(err))
		rdb = nil
	}
	defer func() {
		if rdb != nil {
			rdb.Close()
		}
	}()

	// --- Репозитории и сервис настроек ---
	storyRepo := repository.NewPgStoryRepository(pool, logger)
	segmentRepo := repository.NewPgSegmentRepository(pool, logger)
	settingsSvc := settings.NewService(pool, rdb, cfg.SettingsTTL, logger)

	// --- Текстовые провайдеры и оркестратор ---
	var providers []ai.TextProvider
	if cfg.AIAPIKey != "" {
		providers = append(providers, ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:  cfg.AIAPIKey,
			BaseURL: cfg.AIBaseURL,
			Timeout: cfg.AITimeout,
		}, logger))
	} else {
		logger.Warn("AI_API_KEY не задан, OpenAI-совместимый провайдер отключен")
	}
	ollamaProvider, err := ai.NewOllamaProvider(ai.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaModel,
		Timeout: cfg.AITimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Не удалось создать Ollama-провайдер", zap.Error(err))
	}
	providers = append(providers, ollamaProvider)

	orchestrator := ai.NewOrchestrator(providers, ai.NewFallbackProvider(), logger)

	composer, err := prompt.NewComposer()
	if err != nil {
		logger.Fatal("Не удалось создать композитор промптов", zap.Error(err))
	}
	aggregator := narrative.NewAggregator(narrative.NewKeywordExtractor())

	// --- Blob-хранилище и верификатор ---
	var blobStore storage.BlobStore
	switch cfg.BlobBackend {
	case "s3":
		blobStore, err = storage.NewS3Store(ctx, storage.S3Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			PublicBaseURL: cfg.S3PublicBaseURL,
		}, logger)
		if err != nil {
			logger.Fatal("Не удалось создать S3-хранилище", zap.Error(err))
		}
	default:
		blobStore, err = storage.NewFSStore(cfg.BlobSavePath, cfg.BlobPublicBaseURL, logger)
		if err != nil {
			logger.Fatal("Не удалось создать файловое хранилище", zap.Error(err))
		}
	}
	verifier := storage.NewHTTPVerifier()

	// --- Провайдеры медиа ---
	imageProvider := imagegen.NewClient(imagegen.Config{
		BaseURL: cfg.ImageAPIURL,
		Ratio:   cfg.ImageRatio,
		Timeout: cfg.ImageTimeout,
	}, logger)

	synthesizer, err := tts.NewPollySynthesizer(ctx, cfg.PollyRegion, cfg.PollyEngine, cfg.PollyTimeout, logger)
	if err != nil {
		logger.Fatal("Не удалось создать Polly-синтезатор", zap.Error(err))
	}

	// --- Фоновый исполнитель ---
	runner := taskrunner.New(taskrunner.Config{MaxTasks: cfg.MaxBackgroundTasks})

	// --- Сервисы ---
	storySvc := service.NewStoryService(
		storyRepo, segmentRepo,
		aggregator, composer, orchestrator, settingsSvc,
		runner, imageProvider, blobStore, verifier,
		logger,
	)
	audioSvc := service.NewAudioService(
		storyRepo, segmentRepo,
		synthesizer, blobStore, verifier,
		cfg.TTSChunkLimit, logger,
	)

	// --- HTTP-сервер ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(handler.ZapLoggingMiddleware(logger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	h := handler.NewHandler(storySvc, audioSvc, settingsSvc, logger)
	h.RegisterRoutes(router)

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Сервер запускается", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Ошибка запуска HTTP сервера", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Получен сигнал завершения, начинаем остановку...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка при остановке HTTP сервера", zap.Error(err))
	}

	// Фоновые задачи дорабатывают до конца: уже запущенная генерация
	// изображения не должна пропасть из-за рестарта.
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("Фоновые задачи не успели завершиться", zap.Error(err))
	}

	logger.Info("Сервер остановлен")
}
