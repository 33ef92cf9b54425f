package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"documind/internal/config"
	"documind/internal/events"
	"documind/internal/index"
	"documind/internal/model"
	"documind/internal/pipeline"
	"documind/internal/repository"
	"documind/internal/service"
	"documind/internal/store"
	"documind/pkg/database"
	"documind/pkg/embedding"
	"documind/pkg/es"
	"documind/pkg/kafka"
	"documind/pkg/log"
	"documind/pkg/storage"
	"documind/pkg/tasks"
	"documind/pkg/tika"
	"documind/pkg/token"
)

const eventBuffer = 64

// app 持有所有按配置装配好的组件。未配置的外部依赖会退回到进程内实现。
type app struct {
	cfg   config.Config
	bus   *events.Bus
	store *store.Store
	queue tasks.Queue
	jwt   *token.JWTManager

	documents     service.DocumentService
	search        service.SearchService
	models        service.ModelService
	chat          service.ChatService
	conversations service.ConversationService

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, bus: events.NewBus(eventBuffer)}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// 1. 初始化数据库和 Redis
	var db *gorm.DB
	if cfg.Database.MySQL.DSN != "" {
		var err error
		db, err = database.OpenMySQL(cfg.Database.MySQL.DSN, &model.Document{}, &model.Activity{}, &model.Chunk{})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}
	var rdb *redis.Client
	if cfg.Database.Redis.Addr != "" {
		var err error
		rdb, err = database.OpenRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
	}

	// 2. 文档库
	storeOpts := []store.Option{store.WithBus(a.bus), store.WithActivityRetention(cfg.Store.ActivityRetention)}
	if db != nil {
		storeOpts = append(storeOpts, store.WithPersister(repository.NewDocumentRepository(db)))
	}
	a.store = store.New(storeOpts...)
	if err := a.store.Load(ctx); err != nil {
		return nil, err
	}

	// 3. 向量索引
	vectorIndex, err := newVectorIndex(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	// 4. 对象存储
	var objects storage.ObjectStore = storage.NewMemoryStore()
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinioStore(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		objects = minioStore
	} else {
		log.Warnf("[App] 未配置 MinIO，原始文件保存在内存中")
	}

	// 5. 任务队列
	a.queue = newQueue(cfg, rdb)

	// 6. 文件处理管道 (Processor)
	var extractor pipeline.Extractor = pipeline.NewExtractor(nil)
	if cfg.Tika.ServerURL != "" {
		extractor = pipeline.NewExtractor(tika.NewClient(cfg.Tika.ServerURL))
	}
	embedders := embedding.NewRegistry(service.NewEmbeddingFactory(cfg.Embedding), cfg.Embedding.Dimensions)
	processor := pipeline.NewProcessor(extractor, embedders, vectorIndex, cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)

	// 7. 初始化 Service (依赖注入)
	var conversationRepo repository.ConversationRepository
	if rdb != nil {
		conversationRepo = repository.NewConversationRepository(rdb)
	} else {
		conversationRepo = repository.NewMemoryConversationRepository()
	}
	a.jwt = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ChatTokenExpireMinutes)

	a.models, err = service.NewModelService(a.store, processor, cfg.Models)
	if err != nil {
		return nil, err
	}
	a.documents = service.NewDocumentService(a.store, processor, objects, a.queue, a.models, cfg.Ingestion)
	a.search = service.NewSearchService(a.store, embedders, vectorIndex, cfg.Search)
	a.chat = service.NewChatService(a.search, a.models, service.NewLLMFactory(cfg.LLM), conversationRepo, cfg.LLM)
	a.conversations = service.NewConversationService(conversationRepo, a.jwt)

	ok = true
	return a, nil
}

func newVectorIndex(ctx context.Context, cfg config.Config, db *gorm.DB) (index.VectorIndex, error) {
	switch {
	case cfg.Elasticsearch.Addresses != "":
		return es.NewIndex(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	case db != nil:
		p := index.NewPersistent(repository.NewChunkRepository(db))
		if err := p.Load(ctx); err != nil {
			return nil, err
		}
		return p, nil
	default:
		log.Warnf("[App] 未配置 Elasticsearch 或 MySQL，向量索引保存在内存中")
		return index.NewMemory(), nil
	}
}

func newQueue(cfg config.Config, rdb *redis.Client) tasks.Queue {
	if cfg.Kafka.Brokers == "" {
		return tasks.NewMemoryQueue(0)
	}
	var attempts kafka.AttemptTracker = kafka.NewMemoryAttempts()
	if rdb != nil {
		attempts = kafka.NewRedisAttempts(rdb)
	}
	return kafka.NewQueue(cfg.Kafka, attempts)
}

// startWorkers 启动后台入库消费者。
func (a *app) startWorkers(ctx context.Context) {
	a.queue.Start(ctx, tasks.HandlerFunc(a.documents.ProcessTask))
}

// Close 按创建的逆序释放资源。
func (a *app) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			log.Warnf("[App] 关闭任务队列失败: %v", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("[App] 释放资源失败: %v", err)
		}
	}
}

// ingestFiles 把一批本地文件交给上传流程，并在日志中报告结果。
func (a *app) ingestFiles(ctx context.Context, files []service.UploadFile, author string) (*service.UploadResult, error) {
	if len(files) == 0 {
		return &service.UploadResult{}, nil
	}
	result, err := a.documents.Upload(ctx, files, service.UploadOptions{
		Author: author,
		Progress: func(p service.UploadProgress) {
			log.Infof("[Ingest] %d/%d (%.0f%%) %s", p.Completed, p.Total, p.Percent, p.File)
		},
	})
	if result != nil {
		log.Infof("[Ingest] 已导入 %d 个文件, 失败 %d 个", len(result.Documents), len(result.Failures))
	}
	if err != nil {
		return result, fmt.Errorf("ingest: %w", err)
	}
	return result, nil
}
