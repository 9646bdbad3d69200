// Package docvector provides the document vectorization server implementation.
package docvector

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/docvector/internal/docvector/biz"
	"github.com/kart-io/docvector/internal/docvector/handler"
	"github.com/kart-io/docvector/internal/docvector/metrics"
	"github.com/kart-io/docvector/internal/docvector/router"
	"github.com/kart-io/docvector/internal/docvector/store"
	"github.com/kart-io/docvector/pkg/cache"
	"github.com/kart-io/docvector/pkg/component/postgres"
	"github.com/kart-io/docvector/pkg/component/redis"
	"github.com/kart-io/docvector/pkg/component/storage"
	"github.com/kart-io/docvector/pkg/infra/app"
	"github.com/kart-io/docvector/pkg/infra/server"
	httpserver "github.com/kart-io/docvector/pkg/infra/server/http"
	"github.com/kart-io/docvector/pkg/infra/tracing"
	"github.com/kart-io/docvector/pkg/llm"
	// 导入向量模型供应商以自动注册
	_ "github.com/kart-io/docvector/pkg/llm/ollama"
	_ "github.com/kart-io/docvector/pkg/llm/openai"
	"github.com/kart-io/docvector/pkg/llm/resilience"
	cacheopts "github.com/kart-io/docvector/pkg/options/cache"
	httpopts "github.com/kart-io/docvector/pkg/options/http"
	llmopts "github.com/kart-io/docvector/pkg/options/llm"
	logopts "github.com/kart-io/docvector/pkg/options/logger"
	pgopts "github.com/kart-io/docvector/pkg/options/postgres"
	tracingopts "github.com/kart-io/docvector/pkg/options/tracing"
	vectoropts "github.com/kart-io/docvector/pkg/options/vector"
)

// Name is the name of the application.
const Name = "docvector"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	PostgresOptions  *pgopts.Options
	CacheOptions     *cacheopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	VectorOptions    *vectoropts.Options
	TracingOptions   *tracingopts.Options
	ShutdownTimeout  time.Duration
}

// Server represents the docvector server.
type Server struct {
	srv      *server.Manager
	storage  *storage.Manager
	tracing  *tracing.Provider
	embedder *biz.Embedder
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	printBanner(cfg)

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docvector service...")

	// 2. 初始化链路追踪
	if cfg.TracingOptions.ServiceVersion == "" {
		cfg.TracingOptions.ServiceVersion = app.GetVersion()
	}
	tracingProvider, err := tracing.NewProvider(ctx, cfg.TracingOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	logger.Infow("Tracing initialized", "enabled", tracingProvider.Enabled())

	// 初始化失败时释放已打开的连接
	storageMgr := storage.NewManager()
	defer func() {
		if err != nil {
			_ = storageMgr.CloseAll()
			_ = tracingProvider.Shutdown(context.Background())
		}
	}()

	// 3. 初始化 PostgreSQL 客户端
	pgClient, err := postgres.NewWithContext(ctx, cfg.PostgresOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	if err := storageMgr.Register(pgClient.Name(), pgClient); err != nil {
		_ = pgClient.Close()
		return nil, err
	}
	logger.Infow("PostgreSQL client initialized", "postgres", cfg.PostgresOptions.String())

	// 4. 初始化 Store 层
	factory := store.NewFactory(pgClient.DB())
	if cfg.PostgresOptions.AutoMigrate {
		if err := factory.Migrate(ctx, store.MigrateOptions{
			Dimension:   cfg.VectorOptions.EmbeddingDim,
			CreateIndex: cfg.PostgresOptions.CreateIndex,
		}); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	logger.Infow("Vector store initialized",
		"dimension", cfg.VectorOptions.EmbeddingDim,
		"auto_migrate", cfg.PostgresOptions.AutoMigrate,
		"hnsw_index", cfg.PostgresOptions.CreateIndex,
	)

	// 5. 初始化缓存
	cacheStore := cfg.newCacheStore(ctx, storageMgr)

	// 6. 初始化向量模型供应商
	embedProvider, breaker, err := cfg.newEmbeddingProvider(cacheStore)
	if err != nil {
		return nil, err
	}

	// 7. 初始化 Biz 层
	embedder, err := biz.NewEmbedder(embedProvider, biz.EmbedderConfig{
		Dimension:   cfg.VectorOptions.EmbeddingDim,
		Concurrency: cfg.VectorOptions.EmbedConcurrency,
		Delay:       cfg.VectorOptions.EmbedDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	searchCache := biz.NewSearchCache(cacheStore, &biz.SearchCacheConfig{
		Enabled:   cfg.CacheOptions.Enabled && cacheStore != nil,
		TTL:       cfg.CacheOptions.TTL,
		KeyPrefix: cfg.CacheOptions.KeyPrefix,
	})
	vectorService := biz.NewVectorService(
		factory,
		embedder,
		biz.NewTokenCounter(cfg.VectorOptions.TokenEncoding),
		searchCache,
		breaker,
		biz.ServiceConfigFromOptions(cfg.VectorOptions),
	)
	logger.Infow("Vector service initialized",
		"chunk_size", cfg.VectorOptions.ChunkSize,
		"chunk_overlap", cfg.VectorOptions.ChunkOverlap,
		"on_chunk_failure", cfg.VectorOptions.OnChunkFailure,
		"search_cache", cfg.CacheOptions.Enabled && cacheStore != nil,
	)

	// 8. 初始化 Handler 层
	vectorHandler := handler.NewVectorHandler(vectorService)
	healthHandler := handler.NewHealthHandler(storageMgr, breaker, metrics.GetVectorMetrics())
	logger.Info("Handler layer initialized")

	// 9. 初始化服务器
	httpServer := httpserver.NewServer(cfg.HTTPOptions)
	serverManager := server.NewManager(cfg.ShutdownTimeout, httpServer)

	// 10. 注册路由
	if err := router.Register(httpServer.Engine(), vectorHandler, healthHandler); err != nil {
		embedder.Close()
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	logger.Infow("Docvector service is ready", "addr", cfg.HTTPOptions.Addr)
	return &Server{
		srv:      serverManager,
		storage:  storageMgr,
		tracing:  tracingProvider,
		embedder: embedder,
	}, nil
}

// newCacheStore 按配置创建缓存后端。Redis 不可用时降级为不缓存。
func (cfg *Config) newCacheStore(ctx context.Context, storageMgr *storage.Manager) cache.Store {
	if !cfg.CacheOptions.InUse() {
		logger.Info("Cache is disabled")
		return nil
	}

	if !cfg.CacheOptions.RedisRequired() {
		logger.Infow("In-memory cache initialized", "ttl", cfg.CacheOptions.TTL)
		return cache.NewMemoryStore()
	}

	redisClient, err := redis.NewWithContext(ctx, cfg.CacheOptions.Redis)
	if err != nil {
		logger.Warnw("Failed to connect to redis, cache will be disabled", "error", err.Error())
		return nil
	}
	if err := storageMgr.Register(redisClient.Name(), redisClient); err != nil {
		logger.Warnw("Failed to register redis client", "error", err.Error())
		_ = redisClient.Close()
		return nil
	}
	logger.Infow("Redis cache initialized",
		"addr", cfg.CacheOptions.Redis.Addr(),
		"ttl", cfg.CacheOptions.TTL,
	)
	return cache.NewRedisStore(redisClient.Client())
}

// newEmbeddingProvider 组装 供应商 -> 重试/熔断 -> 缓存 三层。
func (cfg *Config) newEmbeddingProvider(cacheStore cache.Store) (llm.EmbeddingProvider, *resilience.CircuitBreaker, error) {
	opts := cfg.EmbeddingOptions
	dim := cfg.VectorOptions.EmbeddingDim

	base, err := llm.NewEmbeddingProvider(opts.Provider, opts.ToConfigMap(dim))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries + 1
	breakerCfg := resilience.DefaultBreakerConfig(base.Name())
	breakerCfg.FailureThreshold = opts.BreakerThreshold
	breakerCfg.Cooldown = opts.BreakerCooldown
	breakerCfg.IsFailure = resilience.IsUpstreamFailure
	resilient := resilience.NewEmbeddingProvider(base, retry, breakerCfg)

	var provider llm.EmbeddingProvider = resilient
	if cfg.CacheOptions.EmbeddingCache && cacheStore != nil {
		provider = llm.NewCachedEmbeddingProvider(resilient, cacheStore, &llm.EmbeddingCacheConfig{
			TTL:       cfg.CacheOptions.EmbeddingTTL,
			KeyPrefix: "docvector:emb:",
			Namespace: fmt.Sprintf("%s/%d", opts.Model, dim),
		})
	}

	logger.Infow("Embedding provider initialized",
		"provider", opts.Provider,
		"model", opts.Model,
		"dimension", dim,
		"embedding_cache", cfg.CacheOptions.EmbeddingCache && cacheStore != nil,
	)
	return provider, resilient.Breaker(), nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	runErr := s.srv.Run(ctx)

	// 服务器停止后再释放资源
	s.embedder.Close()
	errs := []error{runErr, s.storage.CloseAll()}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, s.tracing.Shutdown(shutdownCtx))

	logger.Info("Docvector service stopped")
	return utilerrors.NewAggregate(errs)
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  HTTP: %s\n", cfg.HTTPOptions.Addr)
	fmt.Printf("  Embedding: %s (%s, dim=%d)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model, cfg.VectorOptions.EmbeddingDim)
	fmt.Printf("  Cache: enabled=%v backend=%s\n", cfg.CacheOptions.Enabled, cfg.CacheOptions.Backend)
}
