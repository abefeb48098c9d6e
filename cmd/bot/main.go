package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/clock"
	"github.com/horus-ai-bot-go/internal/config"
	"github.com/horus-ai-bot-go/internal/handlers"
	"github.com/horus-ai-bot-go/internal/i18n"
	"github.com/horus-ai-bot-go/internal/middleware"
	"github.com/horus-ai-bot-go/internal/orchestrator"
	"github.com/horus-ai-bot-go/internal/ratelimit"
	"github.com/horus-ai-bot-go/internal/services/cache"
	"github.com/horus-ai-bot-go/internal/services/history"
	"github.com/horus-ai-bot-go/internal/services/llm"
	"github.com/horus-ai-bot-go/internal/services/memory"
	"github.com/horus-ai-bot-go/internal/services/rag"
	"github.com/horus-ai-bot-go/internal/services/tools"
	"github.com/horus-ai-bot-go/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting assistant...")

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bot")
	}

	bot.Debug = cfg.Logging.Level == "debug"
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs history, the fact index and the shared reply cache
	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("Failed to connect to redis")
		}
		log.WithField("addr", cfg.Redis.Addr).Info("Connected to redis")
	}

	metrics := middleware.NewMetrics()
	clk := clock.System()

	// Tool registry; the search tool archives results into the vector store,
	// so it is registered after the store exists
	registry := tools.NewRegistry(metrics, log)
	if cfg.Tools.FileSystem.Enabled {
		fsTool := tools.NewFileSystemTool(cfg.Tools.FileSystem.Root, log)
		registry.Register(fsTool.Name(), fsTool)
	}

	// Generation providers with per-provider throttles
	primaryBucket := ratelimit.NewTokenBucket(
		cfg.Providers.Primary.RateLimit.TokensPerSecond,
		cfg.Providers.Primary.RateLimit.Burst,
		clk,
	)
	secondaryBucket := ratelimit.NewTokenBucket(
		cfg.Providers.Secondary.RateLimit.TokensPerSecond,
		cfg.Providers.Secondary.RateLimit.Burst,
		clk,
	)

	primary := buildProvider(&cfg.Providers.Primary, primaryBucket, registry, metrics, log)
	secondary := buildProvider(&cfg.Providers.Secondary, secondaryBucket, registry, metrics, log)
	provider := llm.NewFallbackProvider(primary, secondary, metrics, log)

	// Memory stack: embedder, fact index, vector store, provider, extractor
	embedder := rag.NewOllamaEmbedder(&cfg.Embedding, log)

	var factIndex rag.FactIndex
	if cfg.Memory.IndexBackend == "redis" {
		factIndex = rag.NewRedisFactIndex(redisClient, log)
	} else {
		factIndex = rag.NewMemoryFactIndex()
	}

	store, err := rag.NewStore(cfg.Memory.Path, factIndex, embedder, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open vector store")
	}

	if cfg.Tools.Search.Enabled {
		searchTool := tools.NewSearchTool(&cfg.Tools.Search, store, log)
		registry.Register(searchTool.Name(), searchTool)
	}

	memories := memory.NewProvider(store, &cfg.Memory, clk, metrics, log)
	processor := memory.NewProcessor(memories, log)

	var historyStore history.Store
	if cfg.History.Backend == "redis" {
		historyStore = history.NewRedisStore(redisClient, clk, log)
	} else {
		historyStore = history.NewMemoryStore(clk)
	}

	prompts := orchestrator.NewInstructionBuilder(cfg.Bot.Persona, clk)
	orch := orchestrator.New(provider, historyStore, memories, processor, prompts, cfg.History.Window, log)

	cacheService := cache.NewService(cfg, redisClient, log)
	rateLimiter := middleware.NewRateLimiter(cfg, log)

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	commandHandler := handlers.NewCommandHandler(bot, cfg, historyStore, memories, metrics, localizer, log)
	messageHandler := handlers.NewMessageHandler(cfg, bot, orch, cacheService, rateLimiter, metrics, localizer, log)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Bot.UpdateTimeout
	updates := bot.GetUpdatesChan(u)
	log.Info("Listening for updates")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for update := range updates {
			if update.Message == nil {
				continue
			}

			if update.Message.IsCommand() {
				if err := commandHandler.HandleCommand(ctx, update.Message); err != nil {
					log.WithError(err).Error("Failed to handle command")
				}
				continue
			}

			if err := messageHandler.HandleMessage(ctx, &update); err != nil {
				log.WithError(err).Error("Failed to handle message")
			}
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	bot.StopReceivingUpdates()
	cancel()

	// Give in-flight generations time to finish
	time.Sleep(2 * time.Second)

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Error("Failed to close redis client")
		}
	}

	log.Info("Assistant stopped")
}

func buildProvider(cfg *config.ProviderConfig, bucket *ratelimit.TokenBucket, registry *tools.Registry, metrics *middleware.Metrics, log *logrus.Logger) llm.Provider {
	switch cfg.Kind {
	case "ollama":
		return llm.NewOllama(cfg, bucket, metrics, log)
	default:
		return llm.NewGemini(cfg, bucket, registry, metrics, log)
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.History.Backend == "redis" ||
		cfg.Memory.IndexBackend == "redis" ||
		(cfg.Cache.Enabled && cfg.Cache.Backend == "redis")
}
