package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ragdesk/internal/ai"
	"ragdesk/internal/app"
	"ragdesk/internal/cache"
	"ragdesk/internal/config"
	"ragdesk/internal/knowledge"
	"ragdesk/internal/localmodel"
	"ragdesk/internal/model"
	"ragdesk/internal/pkg/logger"
	"ragdesk/internal/platform/dbutil"
	mysqlClient "ragdesk/internal/platform/mysql"
	postgresClient "ragdesk/internal/platform/postgres"
	rabbitmqClient "ragdesk/internal/platform/rabbitmq"
	redisClient "ragdesk/internal/platform/redis"
	sqliteClient "ragdesk/internal/platform/sqlite"
	"ragdesk/internal/rag/answer"
	"ragdesk/internal/rag/chunk"
	"ragdesk/internal/rag/embed"
	"ragdesk/internal/rag/expand"
	"ragdesk/internal/rag/extract"
	"ragdesk/internal/rag/index"
	"ragdesk/internal/rag/rerank"
	"ragdesk/internal/repository"
	"ragdesk/internal/storage"
	"ragdesk/internal/worker"
)

type Services struct {
	Auth     *app.AuthService
	Document *app.DocumentService
	Search   *app.SearchService
	Chat     *app.ChatService
	Admin    *app.AdminService
}

type App struct {
	Config        *config.Config
	Log           *zap.Logger
	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	Publisher     *rabbitmqClient.MessagePublisher
	MessageWorker *worker.MessagePersistWorker
	Services      Services

	closers      []func() error
	localRuntime bool
	StartedAt    time.Time
}

type options struct {
	startWorker bool
}

type Option func(*options)

// WithoutWorker skips the message persist consumer. Commands that never serve
// chat traffic use it.
func WithoutWorker() Option {
	return func(o *options) { o.startWorker = false }
}

func New(ctx context.Context, opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}
	return NewWithConfig(ctx, cfg, log, opts...)
}

// NewWithConfig connects every enabled dependency and wires the services. On
// failure anything already opened is closed again.
func NewWithConfig(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	o := options{startWorker: true}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	if err := a.init(ctx, o); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			log.Warn("close partially started app failed", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	cfg := a.Config

	db, err := openDatabase(ctx, cfg, a.Log)
	if err != nil {
		return err
	}
	a.DB = db
	a.onClose(func() error { return dbutil.Close(db) })

	if err := db.AutoMigrate(&model.User{}, &model.Admin{}, &model.Document{}, &model.Chunk{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	idx, err := buildIndex(ctx, cfg, db)
	if err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.onClose(a.Redis.Close)
	}

	userRepo := repository.NewUserRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var historyCache *cache.HistoryCache
	if a.Redis != nil {
		historyCache = cache.NewHistoryCache(
			a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}

	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.onClose(a.MQConn.Close)
		a.Publisher = rabbitmqClient.NewMessagePublisher(a.MQConn, cfg.RabbitMQ.MessagePersistQueue)
		a.onClose(a.Publisher.Close)

		if o.startWorker {
			var invalidator worker.HistoryInvalidator
			if historyCache != nil {
				invalidator = historyCache
			}
			a.MessageWorker = worker.NewMessagePersistWorker(a.MQConn, messageRepo, invalidator, cfg.RabbitMQ.MessagePersistQueue, a.Log)
			if err := a.MessageWorker.Start(ctx); err != nil {
				return fmt.Errorf("start message worker failed: %w", err)
			}
			a.onClose(func() error { a.MessageWorker.Close(); return nil })
		}
	}

	embedModel, err := a.buildEmbeddingModel()
	if err != nil {
		return err
	}
	embedder := embed.New(embedModel, embed.Config{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		Timeout:     cfg.Embedding.Timeout(),
	}, a.Log.Named("embed"))

	reranker, err := a.buildReranker()
	if err != nil {
		return err
	}

	blobs, err := storage.NewLocalBlobStore(cfg.Storage.Root)
	if err != nil {
		return err
	}
	kb, err := knowledge.Load(cfg.Knowledge.Path, cfg.Knowledge.Window, cfg.Knowledge.MaxChars)
	if err != nil {
		return err
	}

	generator := ai.NewClient(ai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	})
	var expander app.QueryExpander
	if cfg.Retrieval.ExpansionEnabled {
		expander = expand.New(generator, expand.Config{
			MaxAlternates: cfg.Retrieval.MaxAlternates,
			MinLength:     cfg.Retrieval.MinAlternateLength,
			HistoryTurns:  cfg.Retrieval.ExpansionHistoryTurns,
			Timeout:       cfg.Retrieval.ExpansionTimeout(),
		}, a.Log.Named("expand"))
	}

	documentService := app.NewDocumentService(
		docRepo,
		chunkRepo,
		blobs,
		extract.New(cfg.Upload.AllowedTypes),
		chunk.New(chunk.WithWindow(cfg.Retrieval.ChunkSize), chunk.WithOverlap(cfg.Retrieval.ChunkOverlap)),
		embedder,
		idx,
		cfg.Upload.MaxBytes,
		a.Log.Named("documents"),
	)
	searchService := app.NewSearchService(
		embedder,
		idx,
		reranker,
		chunkRepo,
		docRepo,
		app.SearchConfig{DefaultK: cfg.Retrieval.TopK, OversampleFactor: cfg.Retrieval.OversampleFactor},
		a.Log.Named("search"),
	)

	var publisher app.AsyncMessagePublisher
	if a.Publisher != nil {
		publisher = a.Publisher
	}
	var history app.HistoryCache
	if historyCache != nil {
		history = historyCache
	}
	chatService := app.NewChatService(
		messageRepo,
		publisher,
		history,
		searchService,
		expander,
		generator,
		answer.NewAssembler(answer.AssemblerConfig{
			HistoryMode:     cfg.Retrieval.HistoryMode,
			HistoryLimit:    cfg.Retrieval.HistoryLimit,
			TagSimilarity:   cfg.Retrieval.TagSimilarity,
			MaxContextChars: cfg.Retrieval.MaxContextChars,
		}),
		answer.NewSanitizer(cfg.Sanitizer.ExtraPhrases, a.Log.Named("sanitizer")),
		kb,
		app.ChatConfig{
			TopK:              cfg.Retrieval.TopK,
			UseReranking:      cfg.Retrieval.UseReranking,
			ExpansionEnabled:  cfg.Retrieval.ExpansionEnabled,
			HistoryMode:       cfg.Retrieval.HistoryMode,
			HistoryLimit:      cfg.Retrieval.HistoryLimit,
			GenerationTimeout: cfg.LLM.Timeout(),
		},
		a.Log.Named("chat"),
	)

	a.Services = Services{
		Auth:     app.NewAuthService(userRepo, adminRepo, cfg.Auth.JWTSecret, cfg.JWTExpiration()),
		Document: documentService,
		Search:   searchService,
		Chat:     chatService,
		Admin:    app.NewAdminService(userRepo, docRepo, chunkRepo, messageRepo),
	}
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	dbLog := log.Named("gorm")
	switch cfg.Database.Driver {
	case "postgres":
		return postgresClient.New(ctx, cfg.PostgresDSN(), dbLog)
	case "sqlite":
		return sqliteClient.New(ctx, cfg.Database.SQLite.Path, dbLog)
	default:
		return mysqlClient.New(ctx, cfg.MySQLDSN(), dbLog)
	}
}

func buildIndex(ctx context.Context, cfg *config.Config, db *gorm.DB) (index.Index, error) {
	switch cfg.Retrieval.Index {
	case "memory":
		return index.NewMemory(), nil
	case "pgvector":
		idx := index.NewPGVector(db, cfg.Embedding.Dimension)
		if err := idx.Migrate(ctx); err != nil {
			return nil, err
		}
		return idx, nil
	default:
		idx := index.NewSQL(db, cfg.Embedding.Dimension)
		if err := idx.Migrate(); err != nil {
			return nil, err
		}
		return idx, nil
	}
}

func (a *App) buildEmbeddingModel() (embed.Model, error) {
	cfg := a.Config.Embedding

	var m embed.Model
	switch cfg.Provider {
	case "openai":
		m = ai.NewEmbeddingModel(ai.EmbeddingConfig{
			BaseURL:          cfg.BaseURL,
			APIKey:           cfg.APIKey,
			Model:            cfg.Model,
			Dimension:        cfg.Dimension,
			RequestDimension: strings.HasPrefix(cfg.Model, "text-embedding-3"),
		})
	default:
		local := localmodel.NewEmbedder(localmodel.EmbedderConfig{
			Name:        cfg.Model,
			ModelPath:   cfg.ModelPath,
			VocabPath:   cfg.VocabPath,
			LibraryPath: cfg.ONNXSharedLibPath,
			Dimension:   cfg.Dimension,
		})
		a.useLocalRuntime()
		a.onClose(local.Close)
		m = local
	}
	if m.Dimension() != a.Config.Embedding.Dimension {
		return nil, fmt.Errorf("embedding model dimension %d does not match configured %d", m.Dimension(), a.Config.Embedding.Dimension)
	}

	if cfg.Cache && a.Redis != nil {
		m = cache.NewEmbeddingCache(m, a.Redis, time.Duration(a.Config.Redis.EmbeddingCacheTTLMinutes)*time.Minute, "", a.Log.Named("embedding_cache"))
	}
	return m, nil
}

// buildReranker returns nil when reranking is switched off, which the search
// service treats as "never rerank".
func (a *App) buildReranker() (app.Reranker, error) {
	cfg := a.Config.Rerank

	var scorer rerank.Scorer
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "cohere":
		c, err := rerank.NewCohere(cfg.CohereAPIKey, cfg.CohereModel)
		if err != nil {
			return nil, err
		}
		scorer = c
	default:
		ce := localmodel.NewCrossEncoder(localmodel.CrossEncoderConfig{
			ModelPath:   cfg.ModelPath,
			VocabPath:   cfg.VocabPath,
			LibraryPath: a.Config.Embedding.ONNXSharedLibPath,
		})
		a.useLocalRuntime()
		a.onClose(ce.Close)
		scorer = ce
	}
	return rerank.New(scorer, rerank.Config{
		NeutralScore: &cfg.NeutralScore,
		Timeout:      cfg.Timeout(),
	}, a.Log.Named("rerank")), nil
}

// useLocalRuntime registers the onnxruntime teardown ahead of the first local
// model so it runs after every session is closed.
func (a *App) useLocalRuntime() {
	if a.localRuntime {
		return
	}
	a.localRuntime = true
	a.onClose(localmodel.Shutdown)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return errors.Join(errs...)
}
