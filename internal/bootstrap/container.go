package bootstrap

import (
	"log"

	"coverage-rag-be/internal/config"
	"coverage-rag-be/internal/controller"
	"coverage-rag-be/internal/pkg/logger"
	"coverage-rag-be/internal/repository/implementation"
	"coverage-rag-be/internal/repository/unitofwork"
	"coverage-rag-be/internal/service"
	"coverage-rag-be/pkg/embedding"
	llmFactory "coverage-rag-be/pkg/llm/factory"
	pkgNats "coverage-rag-be/pkg/nats"
	"coverage-rag-be/pkg/rag/history"
	"coverage-rag-be/pkg/rag/progress"
	"coverage-rag-be/pkg/rag/prompt"
	"coverage-rag-be/pkg/rag/session"
	"coverage-rag-be/pkg/search"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Container holds the wired application graph. Everything downstream of the
// config and database handle is constructed here, once.
type Container struct {
	ChatController   controller.IChatController
	ChatWsController *controller.ChatWsController
	ConsumerService  service.IConsumerService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	uowFactory := unitofwork.NewRepositoryFactory(db)

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// In-process event bus between the chat service and the consumer
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))

	llmProvider, err := llmFactory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.HuggingFaceKey,
	)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}

	var searchProvider search.Provider
	switch cfg.Search.Provider {
	case "remote":
		searchProvider = search.NewRemoteProvider(cfg.Search.BaseURL, cfg.Search.APIKey)
	default:
		embeddingProvider := embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaEmbedModel)
		searchProvider = search.NewLocalProvider(implementation.NewChunkSearcher(db), embeddingProvider)
	}

	var locker session.Locker
	switch cfg.App.SessionLockBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("bootstrap", "invalid redis url, falling back to in-memory session lock", map[string]interface{}{
				"error": err.Error(),
			})
			locker = session.NewCacheLocker()
		} else {
			locker = session.NewRedisLocker(redis.NewClient(opts))
		}
	default:
		locker = session.NewCacheLocker()
	}

	// NATS is optional; exchanges still complete without a broker
	natsPub, err := pkgNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		sysLogger.Warn("bootstrap", "nats unavailable, events stay in-process", map[string]interface{}{
			"error": err.Error(),
		})
		natsPub = nil
	}

	recorder := progress.NewRecorder(cfg.Rag.ProgressFilePath)
	promptBuilder := prompt.NewBuilder(cfg.Rag.SystemPrompt)
	historyLoader := history.NewLoader(implementation.NewExchangeHistorySource(db), cfg.Rag.MaxHistory)

	chatService := service.NewChatService(
		uowFactory,
		searchProvider,
		llmProvider,
		promptBuilder,
		historyLoader,
		locker,
		pubSub,
		sysLogger,
		cfg.Search,
		cfg.Rag,
	)

	consumerService := service.NewConsumerService(pubSub, recorder, natsPub, sysLogger)

	chatController := controller.NewChatController(chatService, recorder)
	chatWsController := controller.NewChatWsController(chatService, sysLogger)

	return &Container{
		ChatController:   chatController,
		ChatWsController: chatWsController,
		ConsumerService:  consumerService,
	}
}
